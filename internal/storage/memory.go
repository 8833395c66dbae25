package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fedeforai/frostdesk-core-sub003/internal/errors"
	"github.com/fedeforai/frostdesk-core-sub003/internal/models"
)

// MemoryStorage keeps everything in keyed maps. Rows are copied in and out
// so stored records cannot be mutated by callers.
type MemoryStorage struct {
	mu                 sync.RWMutex
	conversations      map[string]models.Conversation
	conversationByChat map[string]string
	messages           map[string]models.InboundMessage
	messageByExternal  map[string]string
	snapshots          map[string]models.ClassificationSnapshot // by message id
	snapshotByID       map[string]string                        // snapshot id -> message id
	drafts             map[string]models.DraftRecord            // by message id
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations:      make(map[string]models.Conversation),
		conversationByChat: make(map[string]string),
		messages:           make(map[string]models.InboundMessage),
		messageByExternal:  make(map[string]string),
		snapshots:          make(map[string]models.ClassificationSnapshot),
		snapshotByID:       make(map[string]string),
		drafts:             make(map[string]models.DraftRecord),
	}
}

func compositeKey(a, b string) string {
	return a + "\x00" + b
}

func (s *MemoryStorage) SaveConversation(ctx context.Context, c *models.Conversation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := compositeKey(string(c.Channel), c.ExternalChatID)
	if id, exists := s.conversationByChat[key]; exists {
		return id, nil
	}

	row := *c
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	s.conversations[row.ID] = row
	s.conversationByChat[key] = row.ID
	return row.ID, nil
}

func (s *MemoryStorage) SaveInboundMessage(ctx context.Context, m *models.InboundMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[m.ConversationID]; !exists {
		return "", errors.NewInvalidRequest("unknown conversation " + m.ConversationID)
	}

	key := compositeKey(m.ConversationID, m.ExternalMessageID)
	if id, exists := s.messageByExternal[key]; exists {
		return id, nil
	}

	row := *m
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	if row.ReceivedAt.IsZero() {
		row.ReceivedAt = time.Now().UTC()
	}
	s.messages[row.ID] = row
	s.messageByExternal[key] = row.ID
	return row.ID, nil
}

func (s *MemoryStorage) ResolveMessage(ctx context.Context, conversationID, externalMessageID string) (*models.InboundMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.messageByExternal[compositeKey(conversationID, externalMessageID)]
	if !exists {
		return nil, errors.NewMessageNotFound(conversationID, externalMessageID)
	}
	msg := s.messages[id]
	return &msg, nil
}

func (s *MemoryStorage) GetSnapshotByMessage(ctx context.Context, messageID string) (*models.ClassificationSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if snap, exists := s.snapshots[messageID]; exists {
		return copySnapshot(snap), nil
	}
	return nil, nil
}

func (s *MemoryStorage) InsertSnapshot(ctx context.Context, snap *models.ClassificationSnapshot) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.snapshots[snap.MessageID]; exists {
		return existing.ID, false, nil
	}

	row := *copySnapshot(*snap)
	if row.InstructorID == "" {
		conv, exists := s.conversations[row.ConversationID]
		if !exists || conv.InstructorID == "" {
			return "", false, errors.NewTenantUnresolved(row.ConversationID)
		}
		row.InstructorID = conv.InstructorID
	}
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	s.snapshots[row.MessageID] = row
	s.snapshotByID[row.ID] = row.MessageID
	return row.ID, true, nil
}

func (s *MemoryStorage) GetDraftByMessage(ctx context.Context, messageID string) (*models.DraftRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, exists := s.drafts[messageID]; exists {
		return &d, nil
	}
	return nil, nil
}

func (s *MemoryStorage) InsertDraft(ctx context.Context, d *models.DraftRecord) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.drafts[d.MessageID]; exists {
		return existing.ID, false, nil
	}

	messageID, exists := s.snapshotByID[d.SnapshotID]
	if !exists {
		return "", false, errors.NewInvalidRequest("unknown snapshot " + d.SnapshotID)
	}
	if messageID != d.MessageID {
		return "", false, errors.NewInvalidRequest("snapshot " + d.SnapshotID + " belongs to another message")
	}
	if !s.snapshots[messageID].AllowDraft {
		return "", false, errors.NewDraftNotAllowed(d.SnapshotID)
	}

	row := *d
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	s.drafts[row.MessageID] = row
	return row.ID, true, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func copySnapshot(snap models.ClassificationSnapshot) *models.ClassificationSnapshot {
	if snap.IntentConfidence != nil {
		c := *snap.IntentConfidence
		snap.IntentConfidence = &c
	}
	return &snap
}
