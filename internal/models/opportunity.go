package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go-procurement-agent/internal/filter"
)

type Document struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

// ExtractedOpportunity is one procurement listing. Empty strings mean the
// field was not present on the page.
type ExtractedOpportunity struct {
	Title           string     `json:"title"`
	ReferenceNumber string     `json:"referenceNumber,omitempty"`
	OpportunityType string     `json:"opportunityType,omitempty"`
	Status          string     `json:"status,omitempty"`
	PostedDate      string     `json:"postedDate,omitempty"`
	ClosingDate     string     `json:"closingDate,omitempty"`
	Description     string     `json:"description,omitempty"`
	Category        string     `json:"category,omitempty"`
	Department      string     `json:"department,omitempty"`
	EstimatedValue  string     `json:"estimatedValue,omitempty"`
	ContactName     string     `json:"contactName,omitempty"`
	ContactEmail    string     `json:"contactEmail,omitempty"`
	ContactPhone    string     `json:"contactPhone,omitempty"`
	DetailURL       string     `json:"detailUrl,omitempty"`
	Documents       []Document `json:"documents,omitempty"`
	RawText         string     `json:"rawText"`
	Confidence      Confidence `json:"confidence"`
}

type ExtractionResult struct {
	Opportunities        []ExtractedOpportunity `json:"opportunities"`
	ExtractionNotes      string                 `json:"extractionNotes,omitempty"`
	HasMoreOpportunities bool                   `json:"hasMoreOpportunities"`
	NeedsScrolling       bool                   `json:"needsScrolling"`
}

// Confidence accepts a JSON number, a numeric string or null. Values are
// clamped into [0,1] by Sanitize.
type Confidence float64

func (c *Confidence) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if s == "" {
			*c = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("confidence %q is not a number", s)
		}
		*c = Confidence(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*c = Confidence(f)
	return nil
}

// ClampConfidence forces v into [0,1]. NaN becomes 0.
func ClampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// rawExtraction keeps the opportunities key optional so a missing key can be
// told apart from an empty list.
type rawExtraction struct {
	Opportunities        *[]ExtractedOpportunity `json:"opportunities"`
	ExtractionNotes      string                  `json:"extractionNotes"`
	HasMoreOpportunities *bool                   `json:"hasMoreOpportunities"`
	NeedsScrolling       *bool                   `json:"needsScrolling"`
}

// ParseExtractionResult decodes an extraction reply and sanitizes it.
// A reply without an opportunities array or without hasMoreOpportunities
// is rejected.
func ParseExtractionResult(raw []byte) (*ExtractionResult, error) {
	var r rawExtraction
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("invalid extraction JSON: %w", err)
	}
	if r.Opportunities == nil {
		return nil, fmt.Errorf("extraction is missing the opportunities array")
	}
	if r.HasMoreOpportunities == nil {
		return nil, fmt.Errorf("extraction is missing hasMoreOpportunities")
	}
	res := &ExtractionResult{
		Opportunities:        *r.Opportunities,
		ExtractionNotes:      strings.TrimSpace(r.ExtractionNotes),
		HasMoreOpportunities: *r.HasMoreOpportunities,
	}
	if r.NeedsScrolling != nil {
		res.NeedsScrolling = *r.NeedsScrolling
	}
	res.Sanitize()
	return res, nil
}

// Sanitize drops opportunities without a title or raw text, clamps confidence
// and normalizes dates and documents in place. It returns the number dropped.
func (r *ExtractionResult) Sanitize() int {
	kept := r.Opportunities[:0]
	dropped := 0
	for _, o := range r.Opportunities {
		o.Title = strings.TrimSpace(o.Title)
		o.RawText = strings.TrimSpace(o.RawText)
		if o.Title == "" || o.RawText == "" {
			dropped++
			continue
		}
		o.Confidence = Confidence(ClampConfidence(float64(o.Confidence)))
		o.ReferenceNumber = strings.TrimSpace(o.ReferenceNumber)
		o.DetailURL = strings.TrimSpace(o.DetailURL)
		o.PostedDate = filter.NormalizeDate(o.PostedDate)
		o.ClosingDate = filter.NormalizeDate(o.ClosingDate)

		docs := o.Documents[:0]
		for _, d := range o.Documents {
			d.URL = strings.TrimSpace(d.URL)
			if d.URL == "" {
				continue
			}
			if strings.TrimSpace(d.Name) == "" {
				d.Name = d.URL
			}
			docs = append(docs, d)
		}
		if len(docs) == 0 {
			docs = nil
		}
		o.Documents = docs
		kept = append(kept, o)
	}
	r.Opportunities = kept
	return dropped
}
