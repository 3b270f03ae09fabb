package notifier

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/pgsentry/internal/domain"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts a batch summary to one chat. Successful batches are only
// reported when notifySuccess is set.
type Telegram struct {
	bot           sender
	chatID        int64
	notifySuccess bool
}

func NewTelegram(botToken, chatID string, notifySuccess bool) (*Telegram, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Telegram{bot: bot, chatID: id, notifySuccess: notifySuccess}, nil
}

func (t *Telegram) Notify(ctx context.Context, summary domain.BatchSummary) error {
	if summary.OK() && !t.notifySuccess {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, FormatSummary(summary))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

func FormatSummary(summary domain.BatchSummary) string {
	var b strings.Builder

	if summary.OK() {
		b.WriteString("✅ Backup Completed\n\n")
	} else {
		b.WriteString("❌ Backup Failed\n\n")
	}

	fmt.Fprintf(&b, "🕐 Started: %s\n", summary.Started.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "⏱ Duration: %s\n", summary.Duration.Round(time.Second))
	if summary.Err != nil {
		fmt.Fprintf(&b, "⚠️ Batch aborted: %v\n", summary.Err)
		return strings.TrimRight(b.String(), "\n")
	}

	fmt.Fprintf(&b, "📊 Databases: %d ok, %d failed\n", len(summary.Succeeded), len(summary.Failed))

	if len(summary.Failed) > 0 {
		names := make([]string, 0, len(summary.Failed))
		for name := range summary.Failed {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString("\n")
		for _, name := range names {
			fmt.Fprintf(&b, "• %s: %v\n", name, summary.Failed[name])
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
