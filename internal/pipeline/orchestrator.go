// Package pipeline runs one inbound message through classification, the
// drafting decision, the escalation gate and, when allowed, draft generation
// and guardrails. Every run that gets past message resolution ends with
// exactly one stored snapshot for the message.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fedeforai/frostdesk-core-sub003/internal/classifier"
	"github.com/fedeforai/frostdesk-core-sub003/internal/decision"
	"github.com/fedeforai/frostdesk-core-sub003/internal/draft"
	"github.com/fedeforai/frostdesk-core-sub003/internal/errors"
	"github.com/fedeforai/frostdesk-core-sub003/internal/extract"
	"github.com/fedeforai/frostdesk-core-sub003/internal/models"
	"github.com/fedeforai/frostdesk-core-sub003/internal/storage"
)

// DefaultStoreTimeout bounds each store call when Options.StoreTimeout is zero.
const DefaultStoreTimeout = 5 * time.Second

// State is a step of the orchestration state machine.
type State string

const (
	StateStart           State = "START"
	StateLookupSnapshot  State = "LOOKUP_EXISTING_SNAPSHOT"
	StateClassify        State = "CLASSIFY"
	StateDecide          State = "DECIDE"
	StateGate            State = "GATE"
	StatePersistSnapshot State = "PERSIST_SNAPSHOT"
	StateGenerate        State = "GENERATE"
	StateSanitize        State = "SANITIZE"
	StatePersistDraft    State = "PERSIST_DRAFT"
	StateRejected        State = "REJECTED"
	StateDone            State = "DONE"
)

// Request identifies the message to process.
type Request struct {
	ConversationID    string         `json:"conversation_id"`
	ExternalMessageID string         `json:"external_message_id"`
	Text              string         `json:"text"`
	Channel           models.Channel `json:"channel"`
	Language          string         `json:"language,omitempty"`
}

// Outcome is the terminal result of a run.
type Outcome struct {
	SnapshotID        string                    `json:"snapshot_id"`
	DraftGenerated    bool                      `json:"draft_generated"`
	DraftID           string                    `json:"draft_id,omitempty"`
	Decision          decision.Label            `json:"decision"`
	Reason            string                    `json:"reason"`
	AllowDraft        bool                      `json:"allow_draft"`
	RequireEscalation bool                      `json:"require_escalation"`
	Idempotent        bool                      `json:"idempotent"`
	Violations        []draft.Violation         `json:"violations,omitempty"`
	Booking           *extract.BookingFields    `json:"booking,omitempty"`
	Reschedule        *extract.RescheduleFields `json:"reschedule,omitempty"`
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Messages   storage.MessageResolver
	Snapshots  storage.SnapshotStore
	Drafts     storage.DraftStore
	Classifier classifier.Classifier
	Generator  draft.Generator
	Logger     *zap.Logger
}

// Options tune an orchestrator.
type Options struct {
	StoreTimeout time.Duration
	// Now is the clock used by the field extractors.
	Now func() time.Time
}

type Orchestrator struct {
	messages     storage.MessageResolver
	snapshots    storage.SnapshotStore
	drafts       storage.DraftStore
	classifier   classifier.Classifier
	generator    draft.Generator
	logger       *zap.Logger
	storeTimeout time.Duration
	now          func() time.Time
}

// New builds an orchestrator. A missing classifier, generator or logger is
// replaced by the rule classifier, the template generator and a no-op logger.
func New(deps Deps, opts Options) *Orchestrator {
	o := &Orchestrator{
		messages:     deps.Messages,
		snapshots:    deps.Snapshots,
		drafts:       deps.Drafts,
		classifier:   deps.Classifier,
		generator:    deps.Generator,
		logger:       deps.Logger,
		storeTimeout: opts.StoreTimeout,
		now:          opts.Now,
	}
	if o.classifier == nil {
		o.classifier = classifier.NewRuleClassifier()
	}
	if o.generator == nil {
		o.generator = draft.NewTemplateGenerator()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.storeTimeout <= 0 {
		o.storeTimeout = DefaultStoreTimeout
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// run carries the per-message state through the state machine.
type run struct {
	req     Request
	msg     *models.InboundMessage
	text    string
	lang    string
	intent  models.Intent
	outcome *Outcome
	logger  *zap.Logger
}

func (r *run) enter(s State) {
	r.logger.Debug("Pipeline state", zap.String("state", string(s)))
}

// Orchestrate processes one message. It returns an error only when the
// message cannot be resolved, the stores fail, or the request is malformed.
// Low confidence, guardrail rejections and generator failures are outcomes.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request) (*Outcome, error) {
	if req.ConversationID == "" || req.ExternalMessageID == "" {
		return nil, errors.NewInvalidRequest("conversation id and external message id are required")
	}

	r := &run{
		req: req,
		logger: o.logger.With(
			zap.String("conversation_id", req.ConversationID),
			zap.String("external_message_id", req.ExternalMessageID)),
	}
	r.enter(StateStart)

	msg, err := o.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	r.msg = msg
	r.logger = r.logger.With(zap.String("message_id", msg.ID))
	r.text = req.Text
	if r.text == "" {
		r.text = msg.Text
	}
	r.lang = req.Language
	if draft.NormalizeLocale(r.lang) == "" {
		r.lang = draft.DetectLocale(r.text)
	}

	r.enter(StateLookupSnapshot)
	existing, err := o.getSnapshot(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return o.observe(ctx, r, existing)
	}

	r.enter(StateClassify)
	channel := req.Channel
	if channel == "" {
		channel = msg.Channel
	}
	cls, err := o.classifier.Classify(ctx, classifier.Input{Text: r.text, Channel: channel, Language: req.Language})
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("classify: %w", err))
	}
	r.intent = cls.Intent

	r.enter(StateDecide)
	dec := decision.Decide(cls.Relevant, cls.RelevanceConfidence, cls.IntentConfidence)

	r.enter(StateGate)
	gate := decision.GateFor(dec.Label)

	r.outcome = &Outcome{
		Decision:          dec.Label,
		Reason:            dec.Reason,
		AllowDraft:        gate.AllowDraft,
		RequireEscalation: gate.RequireEscalation,
	}
	if cls.Relevant {
		o.extractFields(r)
	}

	r.enter(StatePersistSnapshot)
	snap := &models.ClassificationSnapshot{
		MessageID:           msg.ID,
		ConversationID:      msg.ConversationID,
		Channel:             channel,
		Relevant:            cls.Relevant,
		RelevanceConfidence: cls.RelevanceConfidence,
		RelevanceReason:     cls.RelevanceReason,
		Intent:              cls.Intent,
		IntentConfidence:    cls.IntentConfidence,
		Decision:            string(dec.Label),
		DecisionReason:      dec.Reason,
		AllowDraft:          gate.AllowDraft,
		RequireEscalation:   gate.RequireEscalation,
		ModelID:             cls.ModelID,
	}
	snapshotID, created, err := o.insertSnapshot(ctx, snap)
	if err != nil {
		return nil, err
	}
	r.outcome.SnapshotID = snapshotID

	if !created {
		// A concurrent run stored its snapshot first; its gate is authoritative.
		winner, err := o.getSnapshot(ctx, msg.ID)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, errors.NewPersistence("read back snapshot", stderrors.New("snapshot missing after conflict"))
		}
		r.logger.Info("Adopted concurrently stored snapshot", zap.String("snapshot_id", winner.ID))
		r.intent = winner.Intent
		r.outcome.Decision = decision.Label(winner.Decision)
		r.outcome.Reason = winner.DecisionReason
		r.outcome.AllowDraft = winner.AllowDraft
		r.outcome.RequireEscalation = winner.RequireEscalation
	}

	r.logger.Info("Message classified",
		zap.String("snapshot_id", snapshotID),
		zap.String("decision", string(r.outcome.Decision)),
		zap.String("intent", string(r.intent)),
		zap.Bool("allow_draft", r.outcome.AllowDraft),
		zap.Bool("require_escalation", r.outcome.RequireEscalation))

	if !r.outcome.AllowDraft {
		r.enter(StateDone)
		return r.outcome, nil
	}

	if err := o.produceDraft(ctx, r); err != nil {
		return nil, err
	}
	r.enter(StateDone)
	return r.outcome, nil
}

// observe returns the stored outcome of an earlier run without re-running it.
func (o *Orchestrator) observe(ctx context.Context, r *run, snap *models.ClassificationSnapshot) (*Outcome, error) {
	d, err := o.getDraft(ctx, snap.MessageID)
	if err != nil {
		return nil, err
	}
	out := &Outcome{
		SnapshotID:        snap.ID,
		DraftGenerated:    d != nil,
		Decision:          decision.Label(snap.Decision),
		Reason:            snap.DecisionReason,
		AllowDraft:        snap.AllowDraft,
		RequireEscalation: snap.RequireEscalation,
		Idempotent:        true,
	}
	if d != nil {
		out.DraftID = d.ID
	}
	r.logger.Debug("Snapshot already exists", zap.String("snapshot_id", snap.ID), zap.Bool("draft", d != nil))
	r.enter(StateDone)
	return out, nil
}

// extractFields attaches ephemeral booking or reschedule fields for reviewers.
func (o *Orchestrator) extractFields(r *run) {
	now := o.now()
	switch r.intent {
	case models.IntentNewBooking:
		b := extract.ExtractBooking(r.text, now)
		r.outcome.Booking = &b
	case models.IntentReschedule:
		rs := extract.ExtractReschedule(r.text, now)
		r.outcome.Reschedule = &rs
	}
}

// produceDraft runs GENERATE, SANITIZE and PERSIST_DRAFT. Generator failures end the
// run without a draft; only store failures are returned.
func (o *Orchestrator) produceDraft(ctx context.Context, r *run) error {
	r.enter(StateGenerate)
	raw, err := o.generate(r)
	if err != nil {
		r.logger.Error("Draft generation failed", zap.Error(err))
		return nil
	}

	r.enter(StateSanitize)
	res := draft.Sanitize(raw, r.intent, r.lang)
	r.outcome.Violations = res.Violations
	if res.Rejected {
		r.enter(StateRejected)
		r.logger.Warn("Draft rejected by guardrails",
			zap.Int("blocking", len(res.Blocking())),
			zap.Any("violations", res.Violations))
		return nil
	}

	r.enter(StatePersistDraft)
	id, created, err := o.insertDraft(ctx, &models.DraftRecord{
		MessageID:  r.msg.ID,
		SnapshotID: r.outcome.SnapshotID,
		DraftText:  res.Text,
		ModelID:    o.generator.ModelID(),
	})
	if err != nil {
		return err
	}
	r.outcome.DraftGenerated = true
	r.outcome.DraftID = id
	r.logger.Info("Draft stored", zap.String("draft_id", id), zap.Bool("created", created))
	return nil
}

// generate calls the generator and turns a panic into an error.
func (o *Orchestrator) generate(r *run) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("generator panic: %v", p)
		}
	}()
	return o.generator.Generate(r.text, r.lang)
}

func (o *Orchestrator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.storeTimeout)
}

func (o *Orchestrator) resolve(ctx context.Context, req Request) (*models.InboundMessage, error) {
	ctx, cancel := o.storeContext(ctx)
	defer cancel()
	msg, err := o.messages.ResolveMessage(ctx, req.ConversationID, req.ExternalMessageID)
	return msg, storeError("resolve message", err)
}

func (o *Orchestrator) getSnapshot(ctx context.Context, messageID string) (*models.ClassificationSnapshot, error) {
	ctx, cancel := o.storeContext(ctx)
	defer cancel()
	snap, err := o.snapshots.GetSnapshotByMessage(ctx, messageID)
	return snap, storeError("get snapshot", err)
}

func (o *Orchestrator) insertSnapshot(ctx context.Context, snap *models.ClassificationSnapshot) (string, bool, error) {
	ctx, cancel := o.storeContext(ctx)
	defer cancel()
	id, created, err := o.snapshots.InsertSnapshot(ctx, snap)
	return id, created, storeError("insert snapshot", err)
}

func (o *Orchestrator) getDraft(ctx context.Context, messageID string) (*models.DraftRecord, error) {
	ctx, cancel := o.storeContext(ctx)
	defer cancel()
	d, err := o.drafts.GetDraftByMessage(ctx, messageID)
	return d, storeError("get draft", err)
}

func (o *Orchestrator) insertDraft(ctx context.Context, d *models.DraftRecord) (string, bool, error) {
	ctx, cancel := o.storeContext(ctx)
	defer cancel()
	id, created, err := o.drafts.InsertDraft(ctx, d)
	return id, created, storeError("insert draft", err)
}

// storeError keeps coded errors and classifies anything else as persistence.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pErr *errors.PipelineError
	if stderrors.As(err, &pErr) {
		return err
	}
	return errors.NewPersistence(op, err)
}
