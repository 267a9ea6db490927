package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-procurement-agent/internal/ai"
	"go-procurement-agent/internal/models"
)

// fakeBrowser is a scripted page. Click on a selector containing "next"
// moves to the following results page.
type fakeBrowser struct {
	mu sync.Mutex

	page         int
	html         string
	verification string
	navFailures  int
	clickErr     error

	navigations int
	clicks      []string
	fills       []string
	scrolls     int
	waits       int
	snapshots   int
	closed      bool
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		page: 1,
		html: `<main><table><tr><td>Road Repair RFP</td></tr></table><a id="next" href="?page=2">Next</a></main>`,
	}
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navigations++
	if b.navFailures > 0 {
		b.navFailures--
		return errors.New("net::ERR_CONNECTION_RESET")
	}
	return nil
}

func (b *fakeBrowser) Click(ctx context.Context, selector string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clickErr != nil {
		return b.clickErr
	}
	b.clicks = append(b.clicks, selector)
	if strings.Contains(strings.ToLower(selector), "next") {
		b.page++
	}
	return nil
}

func (b *fakeBrowser) Fill(ctx context.Context, selector, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fills = append(b.fills, selector+"="+value)
	return nil
}

func (b *fakeBrowser) Scroll(ctx context.Context, direction string, amount int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scrolls++
	return nil
}

func (b *fakeBrowser) Wait(ctx context.Context, d time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waits++
	return nil
}

func (b *fakeBrowser) Snapshot(ctx context.Context) (*models.PageSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots++
	return &models.PageSnapshot{
		URL:          fmt.Sprintf("https://bids.example.gov/list?page=%d", b.page),
		Title:        "Bid Opportunities",
		HTML:         b.html,
		Screenshot:   []byte{0xff, 0xd8, 0xff},
		Verification: b.verification,
	}, nil
}

func (b *fakeBrowser) Content(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.html, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// actionCalls counts executor-driven calls after the initial navigation.
func (b *fakeBrowser) actionCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clicks) + len(b.fills) + b.scrolls + b.waits + b.navigations - 1
}

// fakeLLM routes planner and extraction turns to separate scripts.
type fakeLLM struct {
	mu       sync.Mutex
	plan     func(n int, req ai.Request) string
	extract  func(n int, req ai.Request) string
	plans    []ai.Request
	extracts []ai.Request
}

func (f *fakeLLM) Complete(ctx context.Context, req ai.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.System == ai.PlannerSystemPrompt {
		f.plans = append(f.plans, req)
		if f.plan == nil {
			return `{"action":"extract"}`, nil
		}
		return f.plan(len(f.plans), req), nil
	}
	f.extracts = append(f.extracts, req)
	if f.extract == nil {
		return `{"opportunities":[],"hasMoreOpportunities":false}`, nil
	}
	return f.extract(len(f.extracts), req), nil
}

func (f *fakeLLM) planCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plans)
}

func (f *fakeLLM) extractCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.extracts)
}

func notesContain(req ai.Request, substr string) bool {
	for _, n := range req.Notes {
		if strings.Contains(n, substr) {
			return true
		}
	}
	return false
}

// funcCanceller reports the flag from fn and records cleared job ids.
type funcCanceller struct {
	mu      sync.Mutex
	fn      func() bool
	cleared []string
}

func (f *funcCanceller) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	return f.fn(), nil
}

func (f *funcCanceller) ClearCancel(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, jobID)
	return nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []models.JobEvent
}

func (r *recordingEvents) PublishJobEvent(ctx context.Context, ev models.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// statuses returns the status after each transition event, in order.
func (r *recordingEvents) statuses() []models.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Status
	for _, ev := range r.events {
		if ev.Type == "transition" {
			out = append(out, ev.Status)
		}
	}
	return out
}

type recordingNotifier struct {
	jobs []*models.ScrapingJob
}

func (n *recordingNotifier) JobFinished(ctx context.Context, job *models.ScrapingJob) error {
	n.jobs = append(n.jobs, job)
	return nil
}

type recordingRecorder struct {
	names []string
}

func (r *recordingRecorder) Record(name, reason string, snap *models.PageSnapshot) {
	r.names = append(r.names, name)
}
