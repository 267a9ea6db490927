package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrTransient marks failures worth retrying, such as timeouts or HTTP 429/5xx.
var ErrTransient = errors.New("transient llm failure")

func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// Request is one model turn. HTML must already be truncated by the caller.
type Request struct {
	System     string
	URL        string
	HTML       string
	Screenshot []byte
	Notes      []string
}

// Client is the interface for AI providers
type Client interface {
	// Complete sends the system prompt and the page turn and returns the
	// raw text reply with any markdown fence removed.
	Complete(ctx context.Context, req Request) (string, error)
}

// buildUserPrompt creates the user message carrying the page and any notes
// from earlier steps.
func buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current URL: %s\n", req.URL)
	if len(req.Notes) > 0 {
		b.WriteString("\nContext from previous steps:\n")
		for _, n := range req.Notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	b.WriteString("\nPage HTML (simplified, may be truncated):\n")
	b.WriteString(req.HTML)
	if len(req.Screenshot) > 0 {
		b.WriteString("\n\nA screenshot of the visible viewport is attached.")
	}
	return b.String()
}

// CleanMarkdownJSON removes backticks and the "json" prefix if the model
// wraps its answer, and drops any prose around the outermost JSON object.
func CleanMarkdownJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	content = strings.TrimSpace(content)

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start > 0 && end > start {
		content = content[start : end+1]
	} else if start == 0 && end > 0 && end < len(content)-1 {
		content = content[:end+1]
	}
	return content
}
