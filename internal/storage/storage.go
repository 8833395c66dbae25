package storage

import (
	"context"

	"github.com/fedeforai/frostdesk-core-sub003/internal/models"
)

// MessageResolver finds messages stored by the messaging layer.
type MessageResolver interface {
	// ResolveMessage returns a MESSAGE_NOT_FOUND error when the message is not stored yet.
	ResolveMessage(ctx context.Context, conversationID, externalMessageID string) (*models.InboundMessage, error)
}

// SnapshotStore persists classification snapshots, at most one per message.
type SnapshotStore interface {
	// GetSnapshotByMessage returns nil, nil when no snapshot exists.
	GetSnapshotByMessage(ctx context.Context, messageID string) (*models.ClassificationSnapshot, error)
	// InsertSnapshot stores snap unless one already exists for its message.
	// It returns the id of the stored row and whether this call created it.
	// An empty InstructorID is resolved from the conversation.
	InsertSnapshot(ctx context.Context, snap *models.ClassificationSnapshot) (string, bool, error)
}

// DraftStore persists sanitized drafts, at most one per message.
type DraftStore interface {
	// GetDraftByMessage returns nil, nil when no draft exists.
	GetDraftByMessage(ctx context.Context, messageID string) (*models.DraftRecord, error)
	// InsertDraft stores d unless one already exists for its message.
	// It refuses drafts whose snapshot does not allow drafting.
	InsertDraft(ctx context.Context, d *models.DraftRecord) (string, bool, error)
}

// Storage is the full persistence surface.
// SaveConversation and SaveInboundMessage belong to the messaging layer and
// are idempotent on their external identifiers.
type Storage interface {
	MessageResolver
	SnapshotStore
	DraftStore

	SaveConversation(ctx context.Context, c *models.Conversation) (string, error)
	SaveInboundMessage(ctx context.Context, m *models.InboundMessage) (string, error)
	Close() error
}
