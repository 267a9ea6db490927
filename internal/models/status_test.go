package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-procurement-agent/internal/models"
)

var allStatuses = []models.Status{
	models.StatusPending,
	models.StatusQueued,
	models.StatusInProgress,
	models.StatusCompleted,
	models.StatusFailed,
	models.StatusCancelled,
}

func TestParseStatus(t *testing.T) {
	for _, s := range allStatuses {
		got, err := models.ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	for _, bad := range []string{"", "PENDING", "running", "done"} {
		_, err := models.ParseStatus(bad)
		assert.Error(t, err, bad)
	}
}

func TestIsTransitionAllowed(t *testing.T) {
	allowed := map[[2]models.Status]bool{
		{models.StatusPending, models.StatusQueued}:        true,
		{models.StatusPending, models.StatusCancelled}:     true,
		{models.StatusQueued, models.StatusInProgress}:     true,
		{models.StatusQueued, models.StatusCancelled}:      true,
		{models.StatusInProgress, models.StatusCompleted}:  true,
		{models.StatusInProgress, models.StatusFailed}:     true,
		{models.StatusInProgress, models.StatusCancelled}:  true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[[2]models.Status{from, to}]
			assert.Equal(t, want, models.IsTransitionAllowed(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range allStatuses {
		if !s.IsTerminal() {
			assert.NotEmpty(t, models.AllowedTransitions(s), s)
			continue
		}
		assert.Empty(t, models.AllowedTransitions(s), s)
	}
}

func TestJobPatchApply(t *testing.T) {
	job := models.ScrapingJob{
		ID:                 "job-1",
		Status:             models.StatusInProgress,
		CurrentPage:        3,
		OpportunitiesFound: 12,
		CurrentAction:      "click \"Next\"",
		ErrorMessage:       "",
	}

	t.Run("Empty patch changes nothing", func(t *testing.T) {
		before := job
		patch := models.JobPatch{}
		assert.True(t, patch.IsEmpty())
		patch.Apply(&job)
		assert.Equal(t, before, job)
	})

	t.Run("Only present fields are written", func(t *testing.T) {
		j := job
		models.JobPatch{
			CurrentPage: models.Ptr(4),
			TotalPages:  models.Ptr(4),
		}.Apply(&j)

		assert.Equal(t, 4, j.CurrentPage)
		require.NotNil(t, j.TotalPages)
		assert.Equal(t, 4, *j.TotalPages)
		assert.Equal(t, 12, j.OpportunitiesFound)
		assert.Equal(t, "click \"Next\"", j.CurrentAction)
		assert.Equal(t, models.StatusInProgress, j.Status)
	})

	t.Run("Patch values are copied", func(t *testing.T) {
		j := job
		pages := 7
		models.JobPatch{TotalPages: &pages}.Apply(&j)
		pages = 9
		assert.Equal(t, 7, *j.TotalPages)
	})
}

func TestSourcesOf(t *testing.T) {
	assert.ElementsMatch(t, []models.Status{models.StatusPending, models.StatusQueued, models.StatusInProgress}, models.SourcesOf(models.StatusCancelled))
	assert.Equal(t, []models.Status{models.StatusInProgress}, models.SourcesOf(models.StatusFailed))
	assert.Empty(t, models.SourcesOf(models.StatusPending))
}
