package dedup

import (
	"sync"

	"go-procurement-agent/internal/filter"
	"go-procurement-agent/internal/models"
)

// Merger collects opportunities across the pages of one job. Two records are
// the same opportunity when they agree on the normalized (referenceNumber,
// title) pair or, failing that, on (title, detailUrl).
type Merger struct {
	mu      sync.Mutex
	entries []models.ExtractedOpportunity
	byRef   map[string]int
	byURL   map[string]int
}

func NewMerger() *Merger {
	return &Merger{
		byRef: make(map[string]int),
		byURL: make(map[string]int),
	}
}

// Add merges opps into the set and returns how many were new.
func (m *Merger) Add(opps []models.ExtractedOpportunity) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for _, o := range opps {
		refKey, urlKey := keys(o)
		idx, found := -1, false
		if refKey != "" {
			idx, found = m.byRef[refKey]
		}
		if !found && urlKey != "" {
			if i, ok := m.byURL[urlKey]; ok && !conflictingRefs(m.entries[i], o) {
				idx, found = i, true
			}
		}

		if !found {
			m.entries = append(m.entries, o)
			idx = len(m.entries) - 1
			added++
		} else {
			m.entries[idx] = Merge(m.entries[idx], o)
		}

		// the merged record may carry keys neither side had alone
		refKey, urlKey = keys(m.entries[idx])
		if refKey != "" {
			if _, ok := m.byRef[refKey]; !ok {
				m.byRef[refKey] = idx
			}
		}
		if urlKey != "" {
			if _, ok := m.byURL[urlKey]; !ok {
				m.byURL[urlKey] = idx
			}
		}
	}
	return added
}

// Len is the number of distinct opportunities seen so far. It never
// decreases.
func (m *Merger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Opportunities returns a copy in first-seen order.
func (m *Merger) Opportunities() []models.ExtractedOpportunity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ExtractedOpportunity, len(m.entries))
	copy(out, m.entries)
	return out
}

func keys(o models.ExtractedOpportunity) (refKey, urlKey string) {
	title := filter.NormalizeText(o.Title)
	if title == "" {
		return "", ""
	}
	if ref := filter.NormalizeText(o.ReferenceNumber); ref != "" {
		refKey = ref + "|" + title
	}
	if u := filter.NormalizeURL(o.DetailURL); u != "" {
		urlKey = title + "|" + u
	}
	return refKey, urlKey
}

func conflictingRefs(a, b models.ExtractedOpportunity) bool {
	ra, rb := filter.NormalizeText(a.ReferenceNumber), filter.NormalizeText(b.ReferenceNumber)
	return ra != "" && rb != "" && ra != rb
}

// Merge keeps the higher-confidence record and fills its empty fields from
// the other. Documents are the union by URL, winner's first. Ties keep a.
func Merge(a, b models.ExtractedOpportunity) models.ExtractedOpportunity {
	win, lose := a, b
	if b.Confidence > a.Confidence {
		win, lose = b, a
	}

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&win.Title, lose.Title)
	fill(&win.ReferenceNumber, lose.ReferenceNumber)
	fill(&win.OpportunityType, lose.OpportunityType)
	fill(&win.Status, lose.Status)
	fill(&win.PostedDate, lose.PostedDate)
	fill(&win.ClosingDate, lose.ClosingDate)
	fill(&win.Description, lose.Description)
	fill(&win.Category, lose.Category)
	fill(&win.Department, lose.Department)
	fill(&win.EstimatedValue, lose.EstimatedValue)
	fill(&win.ContactName, lose.ContactName)
	fill(&win.ContactEmail, lose.ContactEmail)
	fill(&win.ContactPhone, lose.ContactPhone)
	fill(&win.DetailURL, lose.DetailURL)
	fill(&win.RawText, lose.RawText)

	var docs []models.Document
	seen := map[string]bool{}
	for _, d := range append(append([]models.Document(nil), win.Documents...), lose.Documents...) {
		k := filter.NormalizeURL(d.URL)
		if seen[k] {
			continue
		}
		seen[k] = true
		docs = append(docs, d)
	}
	win.Documents = docs
	return win
}
