package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fedeforai/frostdesk-core-sub003/internal/errors"
	"github.com/fedeforai/frostdesk-core-sub003/internal/models"
)

// dialect captures the differences between the supported SQL engines.
type dialect struct {
	name              string
	numberedParams    bool // $1, $2 instead of ?
	migrations        string
	isUniqueViolation func(error) bool
}

// rebind rewrites ? placeholders for engines that use numbered parameters.
func (d dialect) rebind(query string) string {
	if !d.numberedParams {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStorage implements Storage on database/sql.
// Inserts rely on unique constraints plus ON CONFLICT DO NOTHING, so a
// writer that loses a race reads back the winner's row.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

func newSQLStorage(db *sql.DB, d dialect, logger *zap.Logger) (*SQLStorage, error) {
	s := &SQLStorage{db: db, dialect: d, logger: logger}
	if _, err := db.Exec(d.migrations); err != nil {
		return nil, errors.NewPersistence("run "+d.name+" migrations", err)
	}
	return s, nil
}

// DB exposes the underlying pool, mainly for tests and pool tuning.
func (s *SQLStorage) DB() *sql.DB {
	return s.db
}

// ConfigurePool applies connection pool limits. Zero values keep the sql.DB defaults.
func (s *SQLStorage) ConfigurePool(maxOpen, maxIdle int, maxLifetime time.Duration) {
	if maxOpen > 0 {
		s.db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		s.db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		s.db.SetConnMaxLifetime(maxLifetime)
	}
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStorage) SaveConversation(ctx context.Context, c *models.Conversation) (string, error) {
	id := c.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var stored string
	err := s.queryRow(ctx, `
		INSERT INTO conversations (id, instructor_id, channel, external_chat_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (channel, external_chat_id) DO NOTHING
		RETURNING id`,
		id, c.InstructorID, string(c.Channel), c.ExternalChatID, createdAt.UnixMilli(),
	).Scan(&stored)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = s.queryRow(ctx,
			`SELECT id FROM conversations WHERE channel = ? AND external_chat_id = ?`,
			string(c.Channel), c.ExternalChatID,
		).Scan(&stored)
	}
	if err != nil {
		return "", errors.NewPersistence("save conversation", err)
	}
	return stored, nil
}

func (s *SQLStorage) SaveInboundMessage(ctx context.Context, m *models.InboundMessage) (string, error) {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	receivedAt := m.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	var stored string
	err := s.queryRow(ctx, `
		INSERT INTO inbound_messages (id, conversation_id, channel, text, external_message_id, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, external_message_id) DO NOTHING
		RETURNING id`,
		id, m.ConversationID, string(m.Channel), m.Text, m.ExternalMessageID, receivedAt.UnixMilli(),
	).Scan(&stored)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = s.queryRow(ctx,
			`SELECT id FROM inbound_messages WHERE conversation_id = ? AND external_message_id = ?`,
			m.ConversationID, m.ExternalMessageID,
		).Scan(&stored)
	}
	if err != nil {
		return "", errors.NewPersistence("save inbound message", err)
	}
	return stored, nil
}

func (s *SQLStorage) ResolveMessage(ctx context.Context, conversationID, externalMessageID string) (*models.InboundMessage, error) {
	var (
		msg        models.InboundMessage
		channel    string
		receivedAt int64
	)
	err := s.queryRow(ctx, `
		SELECT id, conversation_id, channel, text, external_message_id, received_at
		FROM inbound_messages
		WHERE conversation_id = ? AND external_message_id = ?`,
		conversationID, externalMessageID,
	).Scan(&msg.ID, &msg.ConversationID, &channel, &msg.Text, &msg.ExternalMessageID, &receivedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewMessageNotFound(conversationID, externalMessageID)
	}
	if err != nil {
		return nil, errors.NewPersistence("resolve message", err)
	}
	msg.Channel = models.Channel(channel)
	msg.ReceivedAt = time.UnixMilli(receivedAt).UTC()
	return &msg, nil
}

const snapshotColumns = `id, message_id, conversation_id, instructor_id, channel, relevant,
	relevance_confidence, relevance_reason, intent, intent_confidence, decision,
	decision_reason, allow_draft, require_escalation, model_id, created_at`

func (s *SQLStorage) GetSnapshotByMessage(ctx context.Context, messageID string) (*models.ClassificationSnapshot, error) {
	row := s.queryRow(ctx, `SELECT `+snapshotColumns+` FROM classification_snapshots WHERE message_id = ?`, messageID)
	snap, err := scanSnapshot(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewPersistence("get snapshot", err)
	}
	return snap, nil
}

func (s *SQLStorage) InsertSnapshot(ctx context.Context, snap *models.ClassificationSnapshot) (string, bool, error) {
	existing, err := s.GetSnapshotByMessage(ctx, snap.MessageID)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		return existing.ID, false, nil
	}

	instructorID := snap.InstructorID
	if instructorID == "" {
		err := s.queryRow(ctx, `SELECT instructor_id FROM conversations WHERE id = ?`, snap.ConversationID).Scan(&instructorID)
		if stderrors.Is(err, sql.ErrNoRows) || (err == nil && instructorID == "") {
			return "", false, errors.NewTenantUnresolved(snap.ConversationID)
		}
		if err != nil {
			return "", false, errors.NewPersistence("resolve instructor", err)
		}
	}

	id := snap.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var stored string
	err = s.queryRow(ctx, `
		INSERT INTO classification_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING id`,
		id, snap.MessageID, snap.ConversationID, instructorID, string(snap.Channel), snap.Relevant,
		snap.RelevanceConfidence, nullString(string(snap.RelevanceReason)), nullString(string(snap.Intent)),
		nullFloat(snap.IntentConfidence), snap.Decision, snap.DecisionReason, snap.AllowDraft,
		snap.RequireEscalation, snap.ModelID, createdAt.UnixMilli(),
	).Scan(&stored)
	if s.lostRace(err) {
		// Lost the race: another writer stored a snapshot for this message first.
		winner, err := s.GetSnapshotByMessage(ctx, snap.MessageID)
		if err != nil {
			return "", false, err
		}
		if winner == nil {
			return "", false, errors.NewPersistence("insert snapshot", stderrors.New("conflicting row vanished"))
		}
		s.logger.Debug("Snapshot insert lost race",
			zap.String("message_id", snap.MessageID),
			zap.String("snapshot_id", winner.ID))
		return winner.ID, false, nil
	}
	if err != nil {
		return "", false, errors.NewPersistence("insert snapshot", err)
	}
	return stored, true, nil
}

const draftColumns = `id, message_id, snapshot_id, draft_text, model_id, created_at`

func (s *SQLStorage) GetDraftByMessage(ctx context.Context, messageID string) (*models.DraftRecord, error) {
	var (
		d         models.DraftRecord
		createdAt int64
	)
	err := s.queryRow(ctx, `SELECT `+draftColumns+` FROM draft_records WHERE message_id = ?`, messageID).
		Scan(&d.ID, &d.MessageID, &d.SnapshotID, &d.DraftText, &d.ModelID, &createdAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewPersistence("get draft", err)
	}
	d.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &d, nil
}

func (s *SQLStorage) InsertDraft(ctx context.Context, d *models.DraftRecord) (string, bool, error) {
	existing, err := s.GetDraftByMessage(ctx, d.MessageID)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		return existing.ID, false, nil
	}

	var (
		snapshotMessageID string
		allowDraft        bool
	)
	err = s.queryRow(ctx, `SELECT message_id, allow_draft FROM classification_snapshots WHERE id = ?`, d.SnapshotID).
		Scan(&snapshotMessageID, &allowDraft)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, errors.NewInvalidRequest("unknown snapshot " + d.SnapshotID)
	}
	if err != nil {
		return "", false, errors.NewPersistence("load snapshot for draft", err)
	}
	if snapshotMessageID != d.MessageID {
		return "", false, errors.NewInvalidRequest("snapshot " + d.SnapshotID + " belongs to another message")
	}
	if !allowDraft {
		return "", false, errors.NewDraftNotAllowed(d.SnapshotID)
	}

	id := d.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var stored string
	err = s.queryRow(ctx, `
		INSERT INTO draft_records (`+draftColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING id`,
		id, d.MessageID, d.SnapshotID, d.DraftText, d.ModelID, createdAt.UnixMilli(),
	).Scan(&stored)
	if s.lostRace(err) {
		winner, err := s.GetDraftByMessage(ctx, d.MessageID)
		if err != nil {
			return "", false, err
		}
		if winner == nil {
			return "", false, errors.NewPersistence("insert draft", stderrors.New("conflicting row vanished"))
		}
		return winner.ID, false, nil
	}
	if err != nil {
		return "", false, errors.NewPersistence("insert draft", err)
	}
	return stored, true, nil
}

// lostRace reports whether an insert was skipped or refused because another
// writer already stored the row.
func (s *SQLStorage) lostRace(err error) bool {
	if stderrors.Is(err, sql.ErrNoRows) {
		return true
	}
	return err != nil && s.dialect.isUniqueViolation(err)
}

func scanSnapshot(row *sql.Row) (*models.ClassificationSnapshot, error) {
	var (
		snap             models.ClassificationSnapshot
		channel          string
		relevanceReason  sql.NullString
		intent           sql.NullString
		intentConfidence sql.NullFloat64
		createdAt        int64
	)
	err := row.Scan(
		&snap.ID, &snap.MessageID, &snap.ConversationID, &snap.InstructorID, &channel, &snap.Relevant,
		&snap.RelevanceConfidence, &relevanceReason, &intent, &intentConfidence, &snap.Decision,
		&snap.DecisionReason, &snap.AllowDraft, &snap.RequireEscalation, &snap.ModelID, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	snap.Channel = models.Channel(channel)
	snap.RelevanceReason = models.RelevanceReason(relevanceReason.String)
	snap.Intent = models.Intent(intent.String)
	if intentConfidence.Valid {
		c := intentConfidence.Float64
		snap.IntentConfidence = &c
	}
	snap.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &snap, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
