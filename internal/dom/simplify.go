// Package dom prepares page HTML for the language model and resolves
// visually described targets against it.
package dom

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// dropped elements never reach the model.
var dropped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
	atom.Meta:     true,
	atom.Link:     true,
}

var keptAttrs = map[string]bool{
	"id": true, "class": true, "href": true, "name": true, "type": true,
	"value": true, "placeholder": true, "aria-label": true, "role": true,
	"title": true, "alt": true, "for": true, "action": true, "src": true,
	"onclick": true, "disabled": true, "selected": true, "checked": true,
}

const maxAttrLen = 200

// Simplify removes scripts, styles, comments and noisy attributes and
// collapses whitespace. Unparseable input is returned unchanged.
func Simplify(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	prune(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return raw
	}
	return buf.String()
}

func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.CommentNode:
			n.RemoveChild(c)
		case html.ElementNode:
			if dropped[c.DataAtom] {
				n.RemoveChild(c)
				break
			}
			attrs := c.Attr[:0]
			for _, a := range c.Attr {
				if !keptAttrs[a.Key] && !strings.HasPrefix(a.Key, "data-") {
					continue
				}
				if strings.HasPrefix(a.Key, "data-") && len(a.Val) > 40 {
					continue
				}
				if len(a.Val) > maxAttrLen {
					a.Val = a.Val[:maxAttrLen]
				}
				attrs = append(attrs, a)
			}
			c.Attr = attrs
			prune(c)
		case html.TextNode:
			text := strings.Join(strings.Fields(c.Data), " ")
			if text == "" {
				n.RemoveChild(c)
				break
			}
			c.Data = text
		}
		c = next
	}
}

// Truncate bounds s to at most max bytes, cutting on a rune boundary and
// marking the cut. A non-positive max returns s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	marker := fmt.Sprintf("\n<!-- truncated %d of %d bytes -->", len(s)-max, len(s))
	cut := max - len(marker)
	if cut <= 0 {
		cut, marker = max, ""
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}

// Prepare simplifies raw and bounds the result to max bytes.
func Prepare(raw string, max int) string {
	return Truncate(Simplify(raw), max)
}
