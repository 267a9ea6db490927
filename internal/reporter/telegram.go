package reporter

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"go-procurement-agent/internal/models"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramReporter posts a summary to a chat whenever a job finishes.
type TelegramReporter struct {
	bot    sender
	chatID int64
}

func NewTelegramReporter(token string, chatID int64) (*TelegramReporter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}

	//turn this on in case of debug
	//bot.Debug = true

	return &TelegramReporter{bot: bot, chatID: chatID}, nil
}

func (t *TelegramReporter) SendMessage(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := t.bot.Send(msg)
	return err
}

// JobFinished implements agent.Notifier.
func (t *TelegramReporter) JobFinished(ctx context.Context, job *models.ScrapingJob) error {
	msg := tgbotapi.NewMessage(t.chatID, FormatJob(job))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if strings.HasPrefix(job.URL, "http") {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("🔗 Open portal", job.URL)),
		)
	}
	_, err := t.bot.Send(msg)
	return err
}

// FormatJob renders the terminal summary of a job as Telegram HTML.
func FormatJob(job *models.ScrapingJob) string {
	icon := map[models.Status]string{
		models.StatusCompleted: "✅",
		models.StatusFailed:    "❌",
		models.StatusCancelled: "🛑",
	}[job.Status]
	if icon == "" {
		icon = "ℹ️"
	}

	where := job.State
	if job.Capital != "" {
		where = fmt.Sprintf("%s, %s", job.Capital, job.State)
	}
	if where == "" {
		where = job.URL
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b> %s\n", icon, html.EscapeString(where), html.EscapeString(string(job.Status)))
	fmt.Fprintf(&b, "📄 Pages: %d", job.CurrentPage)
	if job.TotalPages != nil {
		fmt.Fprintf(&b, "/%d", *job.TotalPages)
	}
	fmt.Fprintf(&b, "\n📦 Opportunities: %d\n", job.OpportunitiesFound)
	if job.DurationMs != nil {
		fmt.Fprintf(&b, "⏱ %.1fs\n", float64(*job.DurationMs)/1000)
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(&b, "⚠️ <i>%s</i>: %s\n", html.EscapeString(job.ErrorType), html.EscapeString(job.ErrorMessage))
	} else if job.CurrentAction != "" {
		fmt.Fprintf(&b, "📝 %s\n", html.EscapeString(job.CurrentAction))
	}
	fmt.Fprintf(&b, "🔖 <code>%s</code>", html.EscapeString(job.ID))
	return b.String()
}
