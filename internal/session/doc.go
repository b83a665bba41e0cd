// Package session implements the widget session lifecycle inside the frame.
//
// # Overview
//
// An Engine owns everything the embedded frame knows about a conversation:
// the current view, the guest identity, the active session id, the
// transcript and the history list. Hosts drive it with user actions
// (SubmitIntake, Send, NewChat, ShowHistory, Resume, Back) and render the
// Snapshots it publishes.
//
//	eng, err := session.New(session.Context{
//	    WidgetID: "w1",
//	    Config:   cfg,
//	    Identity: identity.NewMemoryStore(),
//	    Backend:  backend.NewClient(baseURL),
//	})
//	snaps, _ := eng.Subscribe(ctx)
//	eng.Start(ctx)
//
// # Views
//
//	loading -> intake-form   no stored identity (or the config failed to load)
//	loading -> chat          identity found; transcript starts empty
//	intake-form -> chat      intake accepted; identity persisted
//	chat -> history          history fetched for the guest
//	history -> chat          Resume (transcript replaced) or Back (unchanged)
//	chat -> chat             NewChat clears the transcript and unbinds the session
//
// # Concurrency
//
// Engine methods are safe to call from multiple goroutines. State is guarded
// by a mutex that is never held across a backend call; backend calls run on
// the caller's goroutine. Only one send may be in flight. Transitions that
// replace the active binding (NewChat, Resume, intake success) bump an epoch,
// and results that arrive for an older epoch are discarded.
//
// # Errors
//
// Recoverable failures are returned as *widget.Error and also surfaced as a
// Notice that dismisses itself after the configured TTL. A failed send keeps
// its provisional transcript entry.
package session
