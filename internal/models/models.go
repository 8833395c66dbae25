package models

import "time"

// Channel is the messaging channel a conversation runs on.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelWeb      Channel = "web"
)

// Intent is the closed set of customer request categories.
// The zero value means no intent was assigned.
type Intent string

const (
	IntentNewBooking  Intent = "NEW_BOOKING"
	IntentReschedule  Intent = "RESCHEDULE"
	IntentCancel      Intent = "CANCEL"
	IntentInfoRequest Intent = "INFO_REQUEST"
)

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentNewBooking, IntentReschedule, IntentCancel, IntentInfoRequest:
		return true
	}
	return false
}

// RelevanceReason explains why a message was judged not relevant.
// It is empty for relevant messages.
type RelevanceReason string

const (
	ReasonOutOfDomain RelevanceReason = "OUT_OF_DOMAIN"
	ReasonSmallTalk   RelevanceReason = "SMALL_TALK"
	ReasonSpam        RelevanceReason = "SPAM"
)

// Valid reports whether r is one of the known relevance reasons.
func (r RelevanceReason) Valid() bool {
	switch r {
	case ReasonOutOfDomain, ReasonSmallTalk, ReasonSpam:
		return true
	}
	return false
}

// Conversation ties a customer chat to the instructor (tenant) who owns it.
type Conversation struct {
	ID             string    `json:"id"`
	InstructorID   string    `json:"instructor_id"`
	Channel        Channel   `json:"channel"`
	ExternalChatID string    `json:"external_chat_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// InboundMessage is a customer message as stored by the messaging layer.
// It is never modified by the pipeline.
type InboundMessage struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	Channel           Channel   `json:"channel"`
	Text              string    `json:"text"`
	ExternalMessageID string    `json:"external_message_id"`
	ReceivedAt        time.Time `json:"received_at"`
}

// ClassificationSnapshot is the audit record of one classification and
// decision run. At most one exists per message.
type ClassificationSnapshot struct {
	ID                  string          `json:"id"`
	MessageID           string          `json:"message_id"`
	ConversationID      string          `json:"conversation_id"`
	InstructorID        string          `json:"instructor_id"`
	Channel             Channel         `json:"channel"`
	Relevant            bool            `json:"relevant"`
	RelevanceConfidence float64         `json:"relevance_confidence"`
	RelevanceReason     RelevanceReason `json:"relevance_reason,omitempty"`
	Intent              Intent          `json:"intent,omitempty"`
	IntentConfidence    *float64        `json:"intent_confidence,omitempty"`
	Decision            string          `json:"decision"`
	DecisionReason      string          `json:"decision_reason"`
	AllowDraft          bool            `json:"allow_draft"`
	RequireEscalation   bool            `json:"require_escalation"`
	ModelID             string          `json:"model_id"`
	CreatedAt           time.Time       `json:"created_at"`
}

// DraftRecord is a sanitized reply suggestion waiting for human review.
type DraftRecord struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	SnapshotID string    `json:"snapshot_id"`
	DraftText  string    `json:"draft_text"`
	ModelID    string    `json:"model_id"`
	CreatedAt  time.Time `json:"created_at"`
}
