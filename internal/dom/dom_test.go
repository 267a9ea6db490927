package dom

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage = `<html><head><title>Open Bids</title><script>var x = 1;</script>
<style>.a{color:red}</style></head>
<body>
  <!-- tracking -->
  <form><label for="kw">Keyword</label><input id="kw" type="text" data-reactid="x">
  <input type="hidden" name="__VIEWSTATE" value="abc"></form>
  <table><tr><td>RFP-2024-01</td><td>Road   Repair
   RFP</td></tr></table>
  <div class="pager">
    <a href="javascript:__doPostBack('grid','Page$2')">2</a>
    <a href="javascript:__doPostBack('grid','Page$Next')">&gt;</a>
    <button onclick="go()" aria-label="Download all documents">⬇</button>
    <span role="button">Show more results</span>
  </div>
</body></html>`

func TestSimplify(t *testing.T) {
	out := Simplify(listingPage)

	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "var x")
	assert.NotContains(t, out, "<style")
	assert.NotContains(t, out, "tracking")
	assert.Contains(t, out, "Road Repair RFP")
	assert.Contains(t, out, `id="kw"`)
	assert.Contains(t, out, `data-reactid="x"`)
	assert.Contains(t, out, "Page$Next")
}

func TestTruncate(t *testing.T) {
	t.Run("Short input untouched", func(t *testing.T) {
		assert.Equal(t, "abc", Truncate("abc", 10))
		assert.Equal(t, "abc", Truncate("abc", 0))
	})

	t.Run("Bounded with marker", func(t *testing.T) {
		in := strings.Repeat("x", 1000)
		out := Truncate(in, 200)
		assert.LessOrEqual(t, len(out), 200)
		assert.Contains(t, out, "truncated 800 of 1000 bytes")
	})

	t.Run("Cuts on rune boundary", func(t *testing.T) {
		in := strings.Repeat("é", 500)
		out := Truncate(in, 101)
		assert.LessOrEqual(t, len(out), 101)
		assert.True(t, utf8.ValidString(out))
	})

	t.Run("Tiny budget drops marker", func(t *testing.T) {
		out := Truncate(strings.Repeat("y", 100), 5)
		assert.Equal(t, "yyyyy", out)
	})
}

func TestFindTarget(t *testing.T) {
	tests := []struct {
		name        string
		description string
		kind        TargetKind
		wantOK      bool
		selector    string
	}{
		{
			name:        "Pagination glyph",
			description: "Next page link",
			kind:        Clickable,
			wantOK:      true,
			selector:    `a:text-is(">")`,
		},
		{
			name:        "Aria label",
			description: "Download all documents button",
			kind:        Clickable,
			wantOK:      true,
			selector:    `button[aria-label="Download all documents"]`,
		},
		{
			name:        "Role button",
			description: "show more results",
			kind:        Clickable,
			wantOK:      true,
			selector:    `span:text-is("Show more results")`,
		},
		{
			name:        "Labelled input",
			description: "keyword search field",
			kind:        Fillable,
			wantOK:      true,
			selector:    "#kw",
		},
		{
			name:        "Nothing close enough",
			description: "Login with Google",
			kind:        Clickable,
			wantOK:      false,
		},
		{
			name:        "Only stop words",
			description: "the button",
			kind:        Clickable,
			wantOK:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := FindTarget(listingPage, tt.description, tt.kind, 0.5)
			require.Equal(t, tt.wantOK, ok, "score %.2f name %q", m.Score, m.Name)
			if tt.wantOK {
				assert.Equal(t, tt.selector, m.Selector)
				assert.GreaterOrEqual(t, m.Score, 0.5)
			}
		})
	}
}
