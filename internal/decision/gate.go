package decision

// Gate says whether a draft may be attempted and whether a human must be flagged.
type Gate struct {
	AllowDraft        bool `json:"allow_draft"`
	RequireEscalation bool `json:"require_escalation"`
}

// GateFor maps a decision label onto the gate. Unknown labels fail closed.
func GateFor(label Label) Gate {
	switch label {
	case AutoDraftAllowed:
		return Gate{AllowDraft: true, RequireEscalation: false}
	case LowConfidenceDraftAllowed:
		return Gate{AllowDraft: true, RequireEscalation: true}
	case NoDraftEscalate:
		return Gate{AllowDraft: false, RequireEscalation: true}
	case NotRelevant:
		return Gate{AllowDraft: false, RequireEscalation: false}
	default:
		return Gate{AllowDraft: false, RequireEscalation: true}
	}
}
