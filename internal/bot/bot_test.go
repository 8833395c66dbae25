package bot

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/fedeforai/frostdesk-core-sub003/internal/decision"
	"github.com/fedeforai/frostdesk-core-sub003/internal/errors"
	"github.com/fedeforai/frostdesk-core-sub003/internal/models"
	"github.com/fedeforai/frostdesk-core-sub003/internal/pipeline"
	"github.com/fedeforai/frostdesk-core-sub003/internal/storage"
)

type fakeSource struct {
	ch   chan tgbotapi.Update
	once sync.Once
}

func newFakeSource(updates ...tgbotapi.Update) *fakeSource {
	ch := make(chan tgbotapi.Update, len(updates))
	for _, u := range updates {
		ch <- u
	}
	return &fakeSource{ch: ch}
}

func (f *fakeSource) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.ch
}

func (f *fakeSource) StopReceivingUpdates() {
	f.once.Do(func() { close(f.ch) })
}

func textUpdate(chatID int64, messageID int, text, lang string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: messageID,
		Date:      int(time.Date(2026, 1, 14, 8, 0, 0, 0, time.UTC).Unix()),
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: chatID, LanguageCode: lang},
		Text:      text,
	}}
}

func commandUpdate(chatID int64, messageID int) tgbotapi.Update {
	u := textUpdate(chatID, messageID, "/start", "en")
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}}
	return u
}

type recordingOrchestrator struct {
	mu       sync.Mutex
	requests []pipeline.Request
	errs     []error
}

func (r *recordingOrchestrator) Orchestrate(_ context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return nil, err
	}
	return &pipeline.Outcome{SnapshotID: "snap", Decision: decision.NotRelevant}, nil
}

func TestBot_StoresAndOrchestratesMessages(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := storage.NewMemoryStorage()
	logger := zaptest.NewLogger(t)
	p := pipeline.New(pipeline.Deps{Messages: store, Snapshots: store, Drafts: store, Logger: logger}, pipeline.Options{})

	src := newFakeSource(
		textUpdate(100, 1, "Vorrei prenotare domani alle 10:00 per 2 persone, 2 ore", "it"),
		textUpdate(200, 1, "I want a ski lesson", "en"),
		textUpdate(200, 1, "I want a ski lesson", "en"), // redelivery
		commandUpdate(200, 2),
		tgbotapi.Update{UpdateID: 9},
	)
	src.StopReceivingUpdates()

	b := NewWithSource(src, store, p, Config{InstructorID: "inst-1", Workers: 2}, logger)
	require.NoError(t, b.Start(context.Background()))

	ctx := context.Background()
	for _, chat := range []int64{100, 200} {
		convID, err := store.SaveConversation(ctx, &models.Conversation{
			Channel:        models.ChannelTelegram,
			ExternalChatID: strconv.FormatInt(chat, 10),
		})
		require.NoError(t, err)

		msg, err := store.ResolveMessage(ctx, convID, "1")
		require.NoError(t, err)

		snap, err := store.GetSnapshotByMessage(ctx, msg.ID)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, "inst-1", snap.InstructorID)
		assert.Equal(t, models.ChannelTelegram, snap.Channel)
	}

	convID, err := store.SaveConversation(ctx, &models.Conversation{Channel: models.ChannelTelegram, ExternalChatID: "200"})
	require.NoError(t, err)
	_, err = store.ResolveMessage(ctx, convID, "2")
	assert.True(t, errors.Is(err, errors.ErrMessageNotFound), "commands are not stored")
}

func TestBot_PassesLanguageAndRetries(t *testing.T) {
	store := storage.NewMemoryStorage()
	orch := &recordingOrchestrator{errs: []error{errors.NewPersistence("insert snapshot", context.DeadlineExceeded)}}

	src := newFakeSource(textUpdate(300, 5, "Quanto costa una lezione?", ""))
	src.StopReceivingUpdates()

	b := NewWithSource(src, store, orch, Config{InstructorID: "inst-1", DefaultLanguage: "it"}, zaptest.NewLogger(t))
	require.NoError(t, b.Start(context.Background()))

	require.Len(t, orch.requests, 2)
	assert.Equal(t, orch.requests[0], orch.requests[1])
	assert.Equal(t, "it", orch.requests[0].Language)
	assert.Equal(t, "5", orch.requests[0].ExternalMessageID)
	assert.Equal(t, "Quanto costa una lezione?", orch.requests[0].Text)
}

func TestBot_DoesNotRetryPermanentErrors(t *testing.T) {
	store := storage.NewMemoryStorage()
	orch := &recordingOrchestrator{errs: []error{errors.NewTenantUnresolved("c")}}

	src := newFakeSource(textUpdate(300, 5, "I want a ski lesson", "en"))
	src.StopReceivingUpdates()

	b := NewWithSource(src, store, orch, Config{Workers: 1}, zaptest.NewLogger(t))
	require.NoError(t, b.Start(context.Background()))

	assert.Len(t, orch.requests, 1)
}

func TestBot_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newFakeSource()
	b := NewWithSource(src, storage.NewMemoryStorage(), &recordingOrchestrator{}, Config{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
}

// blockingOrchestrator holds each run until released and records whether
// its context was already cancelled when it resumed.
type blockingOrchestrator struct {
	entered  chan struct{}
	release  chan struct{}
	ctxErr   error
	finished bool
}

func (o *blockingOrchestrator) Orchestrate(ctx context.Context, _ pipeline.Request) (*pipeline.Outcome, error) {
	close(o.entered)
	<-o.release
	o.ctxErr = ctx.Err()
	o.finished = true
	return &pipeline.Outcome{SnapshotID: "snap", Decision: decision.NotRelevant}, nil
}

func TestBot_ShutdownLetsInFlightMessagesFinish(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newFakeSource(textUpdate(400, 7, "I want a ski lesson", "en"))
	orch := &blockingOrchestrator{entered: make(chan struct{}), release: make(chan struct{})}
	b := NewWithSource(src, storage.NewMemoryStorage(), orch, Config{InstructorID: "inst-1"}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Start(ctx) }()

	<-orch.entered
	cancel()
	close(orch.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
	assert.True(t, orch.finished)
	assert.NoError(t, orch.ctxErr)
}
