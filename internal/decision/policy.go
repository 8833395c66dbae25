// Package decision turns classifier confidences into a drafting decision
// and maps that decision onto the draft/escalation gate.
package decision

import "fmt"

// Band is the reviewer-facing bucket of a confidence score.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

const (
	// MediumFloor is the lowest confidence in the medium band.
	MediumFloor = 0.60
	// HighFloor is the lowest confidence in the high band.
	HighFloor = 0.85
	// DraftThreshold is the minimum intent confidence for any draft.
	// The rule classifier's weak booking score (0.76) sits just above it.
	DraftThreshold = 0.75
)

// Label is the closed set of decision outcomes.
type Label string

const (
	AutoDraftAllowed          Label = "AUTO_DRAFT_ALLOWED"
	LowConfidenceDraftAllowed Label = "LOW_CONFIDENCE_DRAFT_ALLOWED"
	NoDraftEscalate           Label = "NO_DRAFT_ESCALATE"
	NotRelevant               Label = "NOT_RELEVANT"
)

// Labels lists every known decision label.
var Labels = []Label{AutoDraftAllowed, LowConfidenceDraftAllowed, NoDraftEscalate, NotRelevant}

// Decision is the output of the confidence policy.
type Decision struct {
	Label  Label  `json:"label"`
	Reason string `json:"reason"`
	Band   Band   `json:"band,omitempty"`
}

// BandFor buckets a confidence score. Boundaries belong to the upper band.
func BandFor(confidence float64) Band {
	switch {
	case confidence >= HighFloor:
		return BandHigh
	case confidence >= MediumFloor:
		return BandMedium
	default:
		return BandLow
	}
}

// Decide applies the confidence policy. A nil intentConfidence means the
// classifier assigned no intent and is treated as no confidence at all.
func Decide(relevant bool, relevanceConfidence float64, intentConfidence *float64) Decision {
	if !relevant {
		return Decision{
			Label:  NotRelevant,
			Reason: fmt.Sprintf("message not relevant (relevance confidence %.2f)", relevanceConfidence),
		}
	}

	if intentConfidence == nil {
		return Decision{
			Label:  NoDraftEscalate,
			Reason: "relevant message without intent",
			Band:   BandLow,
		}
	}

	c := *intentConfidence
	band := BandFor(c)
	switch {
	case band == BandHigh:
		return Decision{
			Label:  AutoDraftAllowed,
			Reason: fmt.Sprintf("intent confidence %.2f is high", c),
			Band:   band,
		}
	case c >= DraftThreshold:
		return Decision{
			Label:  LowConfidenceDraftAllowed,
			Reason: fmt.Sprintf("intent confidence %.2f is %s, at or above draft threshold %.2f", c, band, DraftThreshold),
			Band:   band,
		}
	default:
		return Decision{
			Label:  NoDraftEscalate,
			Reason: fmt.Sprintf("intent confidence %.2f is %s, below draft threshold %.2f", c, band, DraftThreshold),
			Band:   band,
		}
	}
}
