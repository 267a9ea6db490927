package agent

import (
	"context"
	"fmt"
	"net/url"

	"go-procurement-agent/internal/ai"
	"go-procurement-agent/internal/dom"
	"go-procurement-agent/internal/models"
)

// Extractor asks the model for the opportunities on a page and validates
// the reply.
type Extractor struct {
	llm     ai.Client
	budgets Budgets
}

func NewExtractor(llm ai.Client, b Budgets) *Extractor {
	return &Extractor{llm: llm, budgets: b.withDefaults()}
}

// Extract returns the sanitized extraction for the snapshot. Relative detail
// and document links are resolved against the page URL. An invalid reply is
// retried once before failing with a schema validation error.
func (x *Extractor) Extract(ctx context.Context, snap *models.PageSnapshot) (*models.ExtractionResult, error) {
	req := ai.Request{
		System:     ai.ExtractionSystemPrompt,
		URL:        snap.URL,
		HTML:       dom.Truncate(snap.HTML, x.budgets.MaxHTMLChars),
		Screenshot: snap.Screenshot,
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if lastErr != nil {
			req.Notes = []string{fmt.Sprintf(
				"Your previous reply did not match the schema (%v). Reply with exactly one JSON object in the required shape.", lastErr)}
		}
		reply, err := complete(ctx, x.llm, req, x.budgets)
		if err != nil {
			return nil, err
		}
		res, err := models.ParseExtractionResult([]byte(reply))
		if err == nil {
			absolutize(res, snap.URL)
			return res, nil
		}
		lastErr = err
	}
	return nil, schemaValidation("extraction reply does not match the opportunity schema", lastErr)
}

func absolutize(res *models.ExtractionResult, pageURL string) {
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return
	}
	resolve := func(raw string) string {
		if raw == "" {
			return raw
		}
		ref, err := url.Parse(raw)
		if err != nil || ref.IsAbs() {
			return raw
		}
		return base.ResolveReference(ref).String()
	}
	for i := range res.Opportunities {
		o := &res.Opportunities[i]
		o.DetailURL = resolve(o.DetailURL)
		for j := range o.Documents {
			o.Documents[j].URL = resolve(o.Documents[j].URL)
		}
	}
}
