// ABOUTME: Locates the widget mount directive in host page HTML
// ABOUTME: First <script data-widget-id="..."> wins; parsing uses golang.org/x/net/html

package launcher

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// WidgetIDAttr is the attribute carrying the public widget id.
const WidgetIDAttr = "data-widget-id"

// ErrNoDirective is returned when the page has no usable mount directive.
var ErrNoDirective = errors.New("no script with " + WidgetIDAttr + " found")

// FindWidgetID scans an HTML document for the mount directive.
func FindWidgetID(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return "", ErrNoDirective
			}
			return "", fmt.Errorf("parsing host page: %w", z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.Script {
				continue
			}
			for _, attr := range tok.Attr {
				if attr.Key != WidgetIDAttr {
					continue
				}
				if id := strings.TrimSpace(attr.Val); id != "" {
					return id, nil
				}
			}
		}
	}
}
