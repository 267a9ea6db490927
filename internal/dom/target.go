package dom

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"go-procurement-agent/internal/filter"
)

type TargetKind int

const (
	Clickable TargetKind = iota
	Fillable
)

// Match is the best element found for a visual description.
type Match struct {
	Selector string
	Name     string
	Score    float64
}

// Words that describe the element rather than name it.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "on": true, "of": true,
	"button": true, "link": true, "icon": true, "field": true, "input": true,
	"box": true, "click": true, "labeled": true, "labelled": true, "with": true,
	"text": true, "that": true, "says": true,
}

// Pagination glyphs are named by what they do.
var glyphNames = map[string]string{
	">": "next", "›": "next", "»": "next", "→": "next", ">>": "last",
	"<": "previous", "‹": "previous", "«": "previous", "←": "previous", "<<": "first",
	"...": "more", "…": "more",
}

var cssIdent = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

type candidate struct {
	node *html.Node
	name string
}

// FindTarget scores every element of the given kind against description by
// accessible name and returns the best one scoring at least minScore.
// Earlier elements win ties.
func FindTarget(rawHTML, description string, kind TargetKind, minScore float64) (Match, bool) {
	want := filter.Tokens(description, stopWords)
	if len(want) == 0 {
		return Match{}, false
	}
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return Match{}, false
	}

	labels := collectLabels(doc)
	var best Match
	var bestNode *html.Node
	walk(doc, func(n *html.Node) {
		if !matchesKind(n, kind) {
			return
		}
		name := accessibleName(n, labels)
		if name == "" {
			return
		}
		score := scoreName(want, name)
		if hintsRole(description, n) {
			score += 0.05
		}
		if score > 1 {
			score = 1
		}
		if score > best.Score {
			best = Match{Name: name, Score: score}
			bestNode = n
		}
	})

	if bestNode == nil || best.Score < minScore {
		return best, false
	}
	best.Selector = selectorFor(bestNode, best.Name)
	return best, true
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func matchesKind(n *html.Node, kind TargetKind) bool {
	if hasAttr(n, "disabled") {
		return false
	}
	typ := strings.ToLower(attr(n, "type"))
	switch kind {
	case Fillable:
		switch n.DataAtom {
		case atom.Textarea, atom.Select:
			return true
		case atom.Input:
			switch typ {
			case "hidden", "submit", "button", "image", "reset", "checkbox", "radio", "file":
				return false
			}
			return true
		}
		return false
	default:
		switch n.DataAtom {
		case atom.A:
			return hasAttr(n, "href") || hasAttr(n, "onclick")
		case atom.Button:
			return true
		case atom.Input:
			return typ == "submit" || typ == "button" || typ == "image" || typ == "reset"
		}
		switch strings.ToLower(attr(n, "role")) {
		case "button", "link", "tab", "menuitem", "option":
			return true
		}
		return hasAttr(n, "onclick")
	}
}

func collectLabels(doc *html.Node) map[string]string {
	labels := map[string]string{}
	walk(doc, func(n *html.Node) {
		if n.DataAtom == atom.Label {
			if id := attr(n, "for"); id != "" {
				labels[id] = textContent(n)
			}
		}
	})
	return labels
}

func accessibleName(n *html.Node, labels map[string]string) string {
	if v := attr(n, "aria-label"); v != "" {
		return v
	}
	if n.DataAtom == atom.Input || n.DataAtom == atom.Textarea || n.DataAtom == atom.Select {
		if l := labels[attr(n, "id")]; l != "" && attr(n, "id") != "" {
			return l
		}
		for _, key := range []string{"placeholder", "title", "value", "alt", "name"} {
			if v := attr(n, key); v != "" {
				return v
			}
		}
		return ""
	}
	if t := textContent(n); t != "" {
		return t
	}
	if v := attr(n, "title"); v != "" {
		return v
	}
	var alt string
	walk(n, func(c *html.Node) {
		if alt == "" && c.DataAtom == atom.Img {
			alt = attr(c, "alt")
		}
	})
	return alt
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
			return
		}
		if c.Type == html.ElementNode && dropped[c.DataAtom] {
			return
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			rec(k)
		}
	}
	rec(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// scoreName is 1 for an exact match, 0.6 to 1 when one side contains the
// other, and the token overlap ratio otherwise.
func scoreName(want []string, name string) float64 {
	trimmed := strings.TrimSpace(name)
	if glyph, ok := glyphNames[trimmed]; ok {
		name = glyph
	}
	have := filter.Tokens(name, stopWords)
	if len(have) == 0 {
		return 0
	}
	w := strings.Join(want, " ")
	h := strings.Join(have, " ")
	if w == h {
		return 1
	}
	short, long := len(want), len(have)
	if short > long {
		short, long = long, short
	}
	if containsPhrase(h, w) || containsPhrase(w, h) {
		return 0.6 + 0.4*float64(short)/float64(long)
	}

	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	common := 0
	union := len(set)
	seen := map[string]bool{}
	for _, t := range want {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			common++
		} else {
			union++
		}
	}
	return float64(common) / float64(union)
}

func containsPhrase(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

func hintsRole(description string, n *html.Node) bool {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "button"):
		return n.DataAtom == atom.Button || n.DataAtom == atom.Input || attr(n, "role") == "button"
	case strings.Contains(d, "link"):
		return n.DataAtom == atom.A || attr(n, "role") == "link"
	}
	return false
}

func selectorFor(n *html.Node, name string) string {
	tag := n.Data
	if id := attr(n, "id"); id != "" {
		if cssIdent.MatchString(id) {
			return "#" + id
		}
		return tag + `[id="` + escapeCSS(id) + `"]`
	}
	if v := attr(n, "aria-label"); v != "" {
		return tag + `[aria-label="` + escapeCSS(v) + `"]`
	}
	if v := attr(n, "name"); v != "" {
		return tag + `[name="` + escapeCSS(v) + `"]`
	}
	if n.DataAtom == atom.Input || n.DataAtom == atom.Textarea {
		if v := attr(n, "placeholder"); v != "" {
			return tag + `[placeholder="` + escapeCSS(v) + `"]`
		}
	}
	if t := textContent(n); t != "" {
		return tag + `:text-is("` + escapeCSS(t) + `")`
	}
	if v := attr(n, "href"); v != "" {
		return tag + `[href="` + escapeCSS(v) + `"]`
	}
	return tag + `:has-text("` + escapeCSS(name) + `")`
}

func escapeCSS(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", " ").Replace(s)
}
