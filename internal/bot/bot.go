// Package bot is the Telegram intake. It stores each customer message the
// way the messaging layer does and hands it to the pipeline. It never
// sends anything back to customers.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fedeforai/frostdesk-core-sub003/internal/errors"
	"github.com/fedeforai/frostdesk-core-sub003/internal/models"
	"github.com/fedeforai/frostdesk-core-sub003/internal/pipeline"
)

const (
	maxAttempts  = 3
	retryBackoff = 200 * time.Millisecond
)

// UpdateSource is the part of *tgbotapi.BotAPI used for long polling.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// MessageStore persists conversations and inbound messages.
type MessageStore interface {
	SaveConversation(ctx context.Context, c *models.Conversation) (string, error)
	SaveInboundMessage(ctx context.Context, m *models.InboundMessage) (string, error)
}

// Orchestrator runs one stored message through the pipeline.
type Orchestrator interface {
	Orchestrate(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

type Config struct {
	InstructorID    string
	DefaultLanguage string
	Workers         int
	PollTimeout     int // seconds
}

type Bot struct {
	updates  UpdateSource
	store    MessageStore
	pipeline Orchestrator
	cfg      Config
	logger   *zap.Logger
}

func New(token string, store MessageStore, p Orchestrator, cfg Config, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	logger.Info("Authorized on telegram", zap.String("username", api.Self.UserName))
	return NewWithSource(api, store, p, cfg, logger), nil
}

// NewWithSource builds a bot on an arbitrary update source.
func NewWithSource(src UpdateSource, store MessageStore, p Orchestrator, cfg Config, logger *zap.Logger) *Bot {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Bot{
		updates:  src,
		store:    store,
		pipeline: p,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start polls for updates until ctx is cancelled or the update channel
// closes, then waits for in-flight messages to complete.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeout

	updates := b.updates.GetUpdatesChan(u)

	var g errgroup.Group
	g.SetLimit(b.cfg.Workers)

	// Messages already taken off the channel finish even after shutdown starts;
	// the pipeline's store timeouts bound them.
	work := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			b.updates.StopReceivingUpdates()
			g.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				g.Wait()
				return nil
			}
			if update.Message == nil {
				continue
			}
			message := update.Message
			g.Go(func() error {
				b.handleMessage(work, message)
				return nil
			})
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	logger := b.logger.With(
		zap.Int64("chat_id", message.Chat.ID),
		zap.Int("telegram_message_id", message.MessageID))

	if message.IsCommand() {
		logger.Debug("Ignoring command", zap.String("command", message.Command()))
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if content == "" {
		logger.Debug("Ignoring message without text")
		return
	}

	conversationID, err := b.store.SaveConversation(ctx, &models.Conversation{
		InstructorID:   b.cfg.InstructorID,
		Channel:        models.ChannelTelegram,
		ExternalChatID: strconv.FormatInt(message.Chat.ID, 10),
	})
	if err != nil {
		logger.Error("Failed to save conversation", zap.Error(err))
		return
	}

	externalID := strconv.Itoa(message.MessageID)
	if _, err := b.store.SaveInboundMessage(ctx, &models.InboundMessage{
		ConversationID:    conversationID,
		Channel:           models.ChannelTelegram,
		Text:              content,
		ExternalMessageID: externalID,
		ReceivedAt:        message.Time().UTC(),
	}); err != nil {
		logger.Error("Failed to save message", zap.Error(err))
		return
	}

	language := b.cfg.DefaultLanguage
	if message.From != nil && message.From.LanguageCode != "" {
		language = message.From.LanguageCode
	}

	req := pipeline.Request{
		ConversationID:    conversationID,
		ExternalMessageID: externalID,
		Text:              content,
		Channel:           models.ChannelTelegram,
		Language:          language,
	}
	outcome, err := b.orchestrate(ctx, req, logger)
	if err != nil {
		logger.Error("Failed to process message",
			zap.Error(err),
			zap.Bool("retryable", errors.Retryable(err)),
			zap.String("conversation_id", conversationID))
		return
	}

	logger.Info("Message processed",
		zap.String("snapshot_id", outcome.SnapshotID),
		zap.String("decision", string(outcome.Decision)),
		zap.Bool("draft_generated", outcome.DraftGenerated),
		zap.Bool("require_escalation", outcome.RequireEscalation),
		zap.Bool("idempotent", outcome.Idempotent))
}

// orchestrate retries retryable failures with a linear backoff.
func (b *Bot) orchestrate(ctx context.Context, req pipeline.Request, logger *zap.Logger) (*pipeline.Outcome, error) {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var outcome *pipeline.Outcome
		outcome, err = b.pipeline.Orchestrate(ctx, req)
		if err == nil {
			return outcome, nil
		}
		if !errors.Retryable(err) || attempt == maxAttempts {
			break
		}
		logger.Warn("Retrying message", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return nil, err
}
