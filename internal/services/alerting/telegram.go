package alerting

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"OptionsFlow/internal/domain/models"
)

// TelegramSender is the subset of *tgbotapi.BotAPI used for delivery.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewTelegramBot connects a bot with the given token. Send takes no context,
// so timeout bounds every Bot API call at the HTTP client.
func NewTelegramBot(token string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return bot, nil
}

// TelegramHandler returns a custom channel that posts alerts to chatID.
func TelegramHandler(bot TelegramSender, chatID int64) Handler {
	return func(ctx context.Context, a *models.Alert) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, FormatAlertText(a))
		msg.DisableWebPagePreview = true
		if _, err := bot.Send(msg); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	}
}

// FormatAlertText renders a as a short plain-text message.
func FormatAlertText(a *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(a.Severity.String()), a.Title)
	b.WriteString(a.Description)
	fmt.Fprintf(&b, "\nconfidence %.0f%%", a.Confidence*100)
	if len(a.TradeIDs) > 0 {
		fmt.Fprintf(&b, ", %d trades", len(a.TradeIDs))
	}
	return b.String()
}
