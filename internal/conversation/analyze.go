// ABOUTME: Session analysis producing a short summary and a top intent
// ABOUTME: The built-in analyzer is keyword based; results are stored on the session

package conversation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/2389/sten-widget/internal/store"
	"github.com/2389/sten-widget/internal/widget"
)

// Known intents. Anything else an analyzer returns is stored as IntentGeneral.
const (
	IntentSupport   = "Support"
	IntentSales     = "Sales"
	IntentFeedback  = "Feedback"
	IntentBugReport = "Bug Report"
	IntentGeneral   = "General"
)

// Intents lists the valid intents in precedence order.
var Intents = []string{IntentSupport, IntentSales, IntentFeedback, IntentBugReport, IntentGeneral}

// EmptySessionSummary is stored for sessions without messages.
const EmptySessionSummary = "No messages in session"

// summaryLimit bounds the summary length in runes.
const summaryLimit = 120

// Analyzer turns a transcript into a summary and an intent.
type Analyzer interface {
	Analyze(ctx context.Context, msgs []*store.GuestMessage) (summary, intent string, err error)
}

// KeywordAnalyzer summarizes with the first guest message and picks the
// intent by keyword match. Bug reports win over support, then sales, then feedback.
type KeywordAnalyzer struct{}

var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{IntentBugReport, []string{"bug", "crash", "broken", "error", "doesn't work", "not working"}},
	{IntentSupport, []string{"help", "issue", "problem", "support", "can't", "cannot", "how do i"}},
	{IntentSales, []string{"price", "pricing", "cost", "buy", "purchase", "plan", "quote", "demo"}},
	{IntentFeedback, []string{"feedback", "suggest", "love", "hate", "improve", "wish"}},
}

func (KeywordAnalyzer) Analyze(ctx context.Context, msgs []*store.GuestMessage) (string, string, error) {
	var first string
	var guestText strings.Builder
	for _, m := range msgs {
		if m.Sender != store.SenderGuest {
			continue
		}
		if first == "" {
			first = strings.TrimSpace(m.Text)
		}
		guestText.WriteString(strings.ToLower(m.Text))
		guestText.WriteByte('\n')
	}
	if first == "" {
		return "Conversation without guest messages", IntentGeneral, nil
	}

	text := guestText.String()
	intent := IntentGeneral
	for _, group := range intentKeywords {
		if slices.ContainsFunc(group.keywords, func(k string) bool { return strings.Contains(text, k) }) {
			intent = group.intent
			break
		}
	}
	return "Guest asked: " + truncate(first, summaryLimit), intent, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:limit-3])) + "..."
}

// Analyze summarizes a session and stores the summary and intent on it.
// When the analyzer fails the previous analysis is kept and re-stamped.
func (s *Service) Analyze(ctx context.Context, sessionID string) (*widget.Session, error) {
	cs, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, notFound("Session", sessionID, err)
	}
	msgs, err := s.store.GetSessionMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	summary, intent := EmptySessionSummary, IntentGeneral
	if len(msgs) > 0 {
		summary, intent, err = s.analyzer.Analyze(ctx, msgs)
		if err != nil {
			s.logger.Warn("session analysis failed", "session_id", sessionID, "error", err)
			summary, intent = "Error generating summary", IntentGeneral
			if cs.Summary != nil {
				summary = *cs.Summary
			}
			if cs.TopIntent != nil {
				intent = *cs.TopIntent
			}
		}
	}
	if !slices.Contains(Intents, intent) {
		intent = IntentGeneral
	}

	updated, err := s.store.UpdateSessionAnalysis(ctx, sessionID, summary, intent, s.now())
	if err != nil {
		return nil, notFound("Session", sessionID, err)
	}
	s.logger.Info("session analyzed", "session_id", sessionID, "intent", intent)

	out := sessionFromStore(updated)
	return &out, nil
}
