package reporter

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-procurement-agent/internal/models"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestFormatJobCompleted(t *testing.T) {
	job := &models.ScrapingJob{
		ID:                 "job-1",
		State:              "Ohio",
		Capital:            "Columbus",
		Status:             models.StatusCompleted,
		CurrentPage:        20,
		TotalPages:         models.Ptr(20),
		OpportunitiesFound: 134,
		DurationMs:         models.Ptr(int64(81500)),
		CurrentAction:      "budget exceeded: page budget of 20 reached; more listings remain",
	}
	got := FormatJob(job)
	assert.Contains(t, got, "✅ <b>Columbus, Ohio</b> completed")
	assert.Contains(t, got, "📄 Pages: 20/20")
	assert.Contains(t, got, "📦 Opportunities: 134")
	assert.Contains(t, got, "⏱ 81.5s")
	assert.Contains(t, got, "budget exceeded")
	assert.Contains(t, got, "<code>job-1</code>")
}

func TestFormatJobFailedEscapesHTML(t *testing.T) {
	job := &models.ScrapingJob{
		ID:           "job-2",
		URL:          "https://bids.example.gov",
		Status:       models.StatusFailed,
		ErrorType:    "blocked",
		ErrorMessage: "<iframe> reCAPTCHA detected",
	}
	got := FormatJob(job)
	assert.Contains(t, got, "❌ <b>https://bids.example.gov</b> failed")
	assert.Contains(t, got, "&lt;iframe&gt; reCAPTCHA detected")
	assert.NotContains(t, got, "<iframe>")
}

func TestJobFinishedSendsHTMLWithButton(t *testing.T) {
	fs := &fakeSender{}
	r := &TelegramReporter{bot: fs, chatID: 42}

	require.NoError(t, r.JobFinished(context.Background(), &models.ScrapingJob{
		ID: "job-3", URL: "https://bids.example.gov", Status: models.StatusCancelled,
	}))
	require.Len(t, fs.sent, 1)
	msg, ok := fs.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.NotNil(t, msg.ReplyMarkup)
	assert.Contains(t, msg.Text, "🛑")

	fs.err = errors.New("bot was blocked by the user")
	assert.Error(t, r.SendMessage("hi"))
}
