// Package telegram feeds bot updates into the triage pipeline via the
// Bot API long-polling channel.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/notification"
	"github.com/linnemanlabs/sift/internal/source"
)

const (
	updateTimeoutSeconds = 30
	reconnectBackoff     = 5 * time.Second
	maxReconnectBackoff  = 5 * time.Minute
)

// Adapter consumes Telegram updates over long polling and ingests every
// incoming message. Edited messages are ignored; the first version wins.
type Adapter struct {
	token    string
	ingestor source.Ingestor
	logger   log.Logger
}

// New creates a telegram adapter.
func New(token string, ingestor source.Ingestor, logger log.Logger) *Adapter {
	if logger == nil {
		logger = log.Nop()
	}
	return &Adapter{
		token:    token,
		ingestor: ingestor,
		logger:   logger,
	}
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return "telegram" }

// Run implements source.Adapter. A lost connection is re-established with
// doubling backoff; the update offset restarts at 0, so the dedup key is
// what keeps redelivered updates out of the store.
func (a *Adapter) Run(ctx context.Context) error {
	backoff := reconnectBackoff
	for {
		err := a.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Error(ctx, err, "telegram connection lost, reconnecting", "backoff", backoff.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}

func (a *Adapter) consume(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(a.token)
	if err != nil {
		return fmt.Errorf("connecting bot: %w", err)
	}
	a.logger.Info(ctx, "telegram bot connected", "username", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeoutSeconds
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}
			if update.Message == nil {
				continue
			}
			rec := recordFromMessage(update.Message)
			if _, err := a.ingestor.Ingest(ctx, rec); err != nil {
				a.logger.Error(ctx, err, "telegram ingest failed", "external_id", rec.ExternalID)
			}
		}
	}
}

// recordFromMessage maps one Telegram message onto a notification record.
func recordFromMessage(msg *tgbotapi.Message) *notification.Record {
	rec := &notification.Record{
		Source:     notification.SourceTelegram,
		ThreadID:   msg.Chat.ID,
		ExternalID: fmt.Sprintf("%d:%d", msg.Chat.ID, msg.MessageID),
		Timestamp:  time.Unix(int64(msg.Date), 0).UTC().Format(time.RFC3339),
		BodyText:   msg.Text,
		MediaKind:  mediaKind(msg),
	}

	if msg.From != nil {
		rec.SenderID = msg.From.ID
		rec.SenderName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		if rec.SenderName == "" {
			rec.SenderName = msg.From.UserName
		}
	}

	// Group and supergroup chats carry a title; private chats do not.
	if msg.Chat.IsGroup() || msg.Chat.IsSuperGroup() {
		rec.ThreadTitle = msg.Chat.Title
	}

	// Media messages put their text in the caption.
	if rec.BodyText == "" && msg.Caption != "" {
		rec.BodyText = msg.Caption
	}

	if raw, err := json.Marshal(msg); err == nil {
		rec.RawPayload = notification.ClampRawPayload(string(raw))
	}

	return rec
}

func mediaKind(msg *tgbotapi.Message) string {
	switch {
	case len(msg.Photo) > 0:
		return "photo"
	// Animations also populate Document, so they win the tie.
	case msg.Animation != nil:
		return "animation"
	case msg.Document != nil:
		return "document"
	case msg.Video != nil:
		return "video"
	case msg.Voice != nil:
		return "voice"
	case msg.Audio != nil:
		return "audio"
	case msg.Sticker != nil:
		return "sticker"
	default:
		return ""
	}
}
