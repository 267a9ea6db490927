package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-procurement-agent/internal/models"
)

type recordingPublisher struct{ got []models.JobEvent }

func (r *recordingPublisher) PublishJobEvent(ctx context.Context, ev models.JobEvent) error {
	r.got = append(r.got, ev)
	return nil
}

func TestPublisherCountsAndForwards(t *testing.T) {
	next := &recordingPublisher{}
	p := NewPublisher(next)

	finishedBefore := testutil.ToFloat64(jobsFinishedTotalMetric.WithLabelValues("completed"))
	checkpointsBefore := testutil.ToFloat64(jobEventsTotalMetric.WithLabelValues("checkpoint", "in_progress"))

	ctx := context.Background()
	require.NoError(t, p.PublishJobEvent(ctx, models.JobEvent{Type: "checkpoint", Status: models.StatusInProgress, Page: 1}))
	require.NoError(t, p.PublishJobEvent(ctx, models.JobEvent{Type: "checkpoint", Status: models.StatusInProgress, Page: 2}))
	require.NoError(t, p.PublishJobEvent(ctx, models.JobEvent{Type: "transition", Status: models.StatusCompleted, Page: 2, Opportunities: 7}))

	assert.Len(t, next.got, 3)
	assert.Equal(t, checkpointsBefore+2, testutil.ToFloat64(jobEventsTotalMetric.WithLabelValues("checkpoint", "in_progress")))
	assert.Equal(t, finishedBefore+1, testutil.ToFloat64(jobsFinishedTotalMetric.WithLabelValues("completed")))
}

func TestPublisherWithoutNext(t *testing.T) {
	before := testutil.ToFloat64(jobsFinishedTotalMetric.WithLabelValues("failed"))
	require.NoError(t, NewPublisher(nil).PublishJobEvent(context.Background(), models.JobEvent{Type: "transition", Status: models.StatusFailed}))
	assert.Equal(t, before+1, testutil.ToFloat64(jobsFinishedTotalMetric.WithLabelValues("failed")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	Observe(models.JobEvent{Type: "transition", Status: models.StatusCancelled})

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "procurement_agent_jobs_finished_total")
}
