// Package metrics exposes job progress as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-procurement-agent/internal/models"
)

const (
	subsystem = "procurement_agent"

	// Labels
	eventTypeLabel = "type"
	statusLabel    = "status"
)

var jobEventsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "job_events_total",
		Help:      "number of job lifecycle events by type and resulting status",
	},
	[]string{eventTypeLabel, statusLabel},
)

var jobsFinishedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "jobs_finished_total",
		Help:      "number of jobs that reached a terminal status",
	},
	[]string{statusLabel},
)

var opportunitiesPerJobMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      "opportunities_per_job",
		Help:      "opportunities found by jobs that reached a terminal status",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
	},
)

var pagesPerJobMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      "pages_per_job",
		Help:      "listing pages visited by jobs that reached a terminal status",
		Buckets:   prometheus.LinearBuckets(1, 2, 10),
	},
)

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobEventsTotalMetric)
	prometheus.MustRegister(jobsFinishedTotalMetric)
	prometheus.MustRegister(opportunitiesPerJobMetric)
	prometheus.MustRegister(pagesPerJobMetric)
}

// EventPublisher matches agent.EventPublisher.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, ev models.JobEvent) error
}

// Publisher records every job event and forwards it to next, if any.
type Publisher struct {
	next EventPublisher
}

func NewPublisher(next EventPublisher) *Publisher {
	return &Publisher{next: next}
}

func (p *Publisher) PublishJobEvent(ctx context.Context, ev models.JobEvent) error {
	Observe(ev)
	if p.next == nil {
		return nil
	}
	return p.next.PublishJobEvent(ctx, ev)
}

// Observe updates the counters for one event.
func Observe(ev models.JobEvent) {
	jobEventsTotalMetric.With(prometheus.Labels{
		eventTypeLabel: ev.Type,
		statusLabel:    string(ev.Status),
	}).Inc()

	if ev.Type != "transition" || !ev.Status.IsTerminal() {
		return
	}
	jobsFinishedTotalMetric.With(prometheus.Labels{statusLabel: string(ev.Status)}).Inc()
	opportunitiesPerJobMetric.Observe(float64(ev.Opportunities))
	if ev.Page > 0 {
		pagesPerJobMetric.Observe(float64(ev.Page))
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
