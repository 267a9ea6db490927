// Package api is the operator HTTP surface: create, inspect and cancel
// scraping jobs.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-procurement-agent/internal/models"
)

type Store interface {
	CreateScrapingJob(ctx context.Context, in models.NewScrapingJob) (string, error)
	GetScrapingJob(ctx context.Context, id string) (*models.ScrapingJob, error)
	ListScrapingJobs(ctx context.Context, status models.Status, limit int) ([]models.ScrapingJob, error)
	GetExtractionBatch(ctx context.Context, id string) (*models.ExtractionBatch, error)
}

// CancelRequester records a cancellation request for the worker to observe.
type CancelRequester interface {
	RequestCancel(ctx context.Context, jobID string) error
}

type Handler struct {
	store   Store
	cancels CancelRequester
	log     *zap.SugaredLogger
}

func NewHandler(store Store, cancels CancelRequester) *Handler {
	return &Handler{store: store, cancels: cancels, log: zap.S().Named("api")}
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.health)

	v1 := r.Group("/api/v1")
	v1.POST("/jobs", h.createJob)
	v1.GET("/jobs", h.listJobs)
	v1.GET("/jobs/:id", h.getJob)
	v1.GET("/jobs/:id/result", h.getResult)
	v1.POST("/jobs/:id/cancel", h.cancelJob)
	return r
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) createJob(c *gin.Context) {
	var in models.NewScrapingJob
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := url.Parse(in.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be an absolute http(s) URL"})
		return
	}

	id, err := h.store.CreateScrapingJob(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	job, err := h.store.GetScrapingJob(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Infof("📥 Job %s created for %s", id, in.URL)
	c.JSON(http.StatusCreated, job)
}

func (h *Handler) getJob(c *gin.Context) {
	job, err := h.store.GetScrapingJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	var status models.Status
	if raw := c.Query("status"); raw != "" {
		st, err := models.ParseStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status = st
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	jobs, err := h.store.ListScrapingJobs(c.Request.Context(), status, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if jobs == nil {
		jobs = []models.ScrapingJob{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (h *Handler) getResult(c *gin.Context) {
	job, err := h.store.GetScrapingJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if job.ResultRecordID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "job has no result yet", "status": job.Status})
		return
	}
	batch, err := h.store.GetExtractionBatch(c.Request.Context(), job.ResultRecordID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// cancelJob only records the request. The worker owning the job moves it to
// cancelled at its next loop iteration.
func (h *Handler) cancelJob(c *gin.Context) {
	ctx := c.Request.Context()
	job, err := h.store.GetScrapingJob(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if job.Status.IsTerminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "job already " + string(job.Status)})
		return
	}
	if h.cancels == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cancellation is not configured"})
		return
	}
	if err := h.cancels.RequestCancel(ctx, job.ID); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Infof("🛑 Cancellation requested for job %s", job.ID)
	c.JSON(http.StatusAccepted, gin.H{"id": job.ID, "status": job.Status, "cancelRequested": true})
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.log.Errorf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
