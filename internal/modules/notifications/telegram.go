package notifications

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
)

// TelegramNotifier sends each dispatched batch as one Telegram message
type TelegramNotifier struct {
	bot            *tgbotapi.BotAPI
	log            zerolog.Logger
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegramNotifier creates a Telegram notifier
func NewTelegramNotifier(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, log zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &TelegramNotifier{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		log:            log.With().Str("notifier", "telegram").Logger(),
	}, nil
}

// Name returns the notifier name
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// Notify sends the batch with linear-backoff retry
func (t *TelegramNotifier) Notify(ctx context.Context, notices []domain.Notice) error {
	if len(notices) == 0 {
		return nil
	}
	text := FormatDigest(domain.DateKey(time.Now()), notices)
	msg := tgbotapi.NewMessage(t.chatID, text)

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			t.log.Debug().Int("notices", len(notices)).Msg("Telegram message sent")
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", t.maxRetries, lastErr)
}
