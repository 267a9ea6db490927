package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-procurement-agent/internal/database"
	"go-procurement-agent/internal/models"
)

type fakeCancels struct{ ids []string }

func (f *fakeCancels) RequestCancel(ctx context.Context, jobID string) error {
	f.ids = append(f.ids, jobID)
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *database.MemoryStore, *fakeCancels) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := database.NewMemoryStore()
	cancels := &fakeCancels{}
	return NewRouter(NewHandler(store, cancels)), store, cancels
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w := do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestCreateAndGetJob(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/v1/jobs", `{"url":"https://bids.example.gov/list","state":"Ohio","capital":"Columbus"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.ScrapingJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, "Ohio", created.State)
	assert.NotEmpty(t, created.AgentJobID)

	w = do(r, http.MethodGet, "/api/v1/jobs/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.ScrapingJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
}

func TestCreateJobValidation(t *testing.T) {
	r, _, _ := newTestRouter(t)
	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{"state":"Ohio"}`},
		{"relative url", `{"url":"/bids"}`},
		{"ftp url", `{"url":"ftp://bids.example.gov"}`},
		{"not json", `url=x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetJobNotFound(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w := do(r, http.MethodGet, "/api/v1/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListJobsByStatus(t *testing.T) {
	r, store, _ := newTestRouter(t)
	ctx := context.Background()
	a, _ := store.CreateScrapingJob(ctx, models.NewScrapingJob{URL: "https://a.example.gov"})
	_, _ = store.CreateScrapingJob(ctx, models.NewScrapingJob{URL: "https://b.example.gov"})
	require.NoError(t, store.ClaimScrapingJob(ctx, a))

	w := do(r, http.MethodGet, "/api/v1/jobs?status=queued", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Jobs  []models.ScrapingJob `json:"jobs"`
		Count int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, a, body.Jobs[0].ID)

	w = do(r, http.MethodGet, "/api/v1/jobs", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/jobs?status=running", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/jobs?limit=-1", "").Code)

	w = do(r, http.MethodGet, "/api/v1/jobs?status=failed", "")
	assert.JSONEq(t, `{"jobs":[],"count":0}`, w.Body.String())
}

func TestCancelJob(t *testing.T) {
	r, store, cancels := newTestRouter(t)
	ctx := context.Background()
	id, _ := store.CreateScrapingJob(ctx, models.NewScrapingJob{URL: "https://a.example.gov"})

	w := do(r, http.MethodPost, "/api/v1/jobs/"+id+"/cancel", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{id}, cancels.ids)

	// the status itself is left to the worker
	job, err := store.GetScrapingJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, job.Status)

	require.NoError(t, store.UpdateScrapingJob(ctx, id, models.JobPatch{Status: models.Ptr(models.StatusCancelled)}))
	w = do(r, http.MethodPost, "/api/v1/jobs/"+id+"/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Len(t, cancels.ids, 1)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/v1/jobs/nope/cancel", "").Code)
}

func TestCancelWithoutBus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := database.NewMemoryStore()
	r := NewRouter(NewHandler(store, nil))
	id, _ := store.CreateScrapingJob(context.Background(), models.NewScrapingJob{URL: "https://a.example.gov"})
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodPost, "/api/v1/jobs/"+id+"/cancel", "").Code)
}

func TestGetResult(t *testing.T) {
	r, store, _ := newTestRouter(t)
	ctx := context.Background()
	id, _ := store.CreateScrapingJob(ctx, models.NewScrapingJob{URL: "https://a.example.gov"})

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/jobs/"+id+"/result", "").Code)

	batchID, err := store.SaveExtractionBatch(ctx, &models.ExtractionBatch{
		JobID:         id,
		Opportunities: []models.ExtractedOpportunity{{Title: "Road Repair RFP", RawText: "Road Repair RFP", Confidence: 0.95}},
		RowCount:      1,
	})
	require.NoError(t, err)
	require.NoError(t, store.ClaimScrapingJob(ctx, id))
	require.NoError(t, store.UpdateScrapingJob(ctx, id, models.JobPatch{Status: models.Ptr(models.StatusInProgress)}))
	require.NoError(t, store.UpdateScrapingJob(ctx, id, models.JobPatch{Status: models.Ptr(models.StatusCompleted), ResultRecordID: &batchID}))

	w := do(r, http.MethodGet, "/api/v1/jobs/"+id+"/result", "")
	require.Equal(t, http.StatusOK, w.Code)
	var batch models.ExtractionBatch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	assert.Equal(t, 1, batch.RowCount)
	assert.Equal(t, "Road Repair RFP", batch.Opportunities[0].Title)
}
