package classifier

import (
	"context"
	"regexp"
	"strings"

	"github.com/fedeforai/frostdesk-core-sub003/internal/models"
)

// RulesModelID identifies the rule-based classifier in snapshots.
const RulesModelID = "rules-v1"

// Input is the text to classify plus optional hints.
type Input struct {
	Text     string
	Channel  models.Channel
	Language string
}

// Result is a relevance verdict and an intent, each with a confidence in [0,1].
// Intent and IntentConfidence are empty when the message is not relevant.
type Result struct {
	Relevant            bool                   `json:"relevant"`
	RelevanceConfidence float64                `json:"relevance_confidence"`
	RelevanceReason     models.RelevanceReason `json:"relevance_reason,omitempty"`
	Intent              models.Intent          `json:"intent,omitempty"`
	IntentConfidence    *float64               `json:"intent_confidence,omitempty"`
	ModelID             string                 `json:"model_id"`
}

// Classifier decides relevance and intent for a customer message.
// Implementations must be deterministic for identical input.
type Classifier interface {
	Classify(ctx context.Context, in Input) (Result, error)
}

// Rule confidences.
const (
	spamConfidence       = 0.95
	smallTalkConfidence  = 0.85
	outOfDomainConf      = 0.7
	strongRelevanceConf  = 0.9
	weakRelevanceConf    = 0.75
	cancelConfidence     = 0.92
	rescheduleConfidence = 0.88
	bookingConfidence    = 0.9
	infoConfidence       = 0.8
	// weakBookingConfidence clears the 0.75 draft threshold on purpose.
	weakBookingConfidence = 0.76
	fallbackConfidence    = 0.6
)

var (
	linkPattern  = regexp.MustCompile(`https?://|www\.`)
	promoPattern = regexp.MustCompile(`\b(click|winner|win|prize|promo|bitcoin|crypto|casino|loan|viagra|vinci|gratis|guadagna|investment|investimento)\b`)

	// Ordered so signal counting never depends on map iteration.
	domainPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(lesson|lessons|lezion[ei]|class|corso)\b`),
		regexp.MustCompile(`\b(ski|skiing|sci|sciare|snowboard|telemark|freeride|fondo)\b`),
		regexp.MustCompile(`\b(instructor|maestr[oa]|istruttor[ei]|coach)\b`),
		regexp.MustCompile(`\b(book|booking|reserve|reservation|prenot\w*|riserv\w*)\b`),
		regexp.MustCompile(`\b(cancel\w*|annull\w*|disdi\w*|disdett\w*)\b`),
		reschedulePattern,
		pricePattern,
		regexp.MustCompile(`\b(availab\w*|disponibil\w*)`),
		regexp.MustCompile(`\b(slopes?|pist[ae]|resort|skipass|ski pass|equipment|rental|noleggio|attrezzatura)\b`),
	}

	smallTalkPattern = regexp.MustCompile(`^(ciao|hello|hi|hey|buongiorno|buonasera|salve|good (morning|evening|afternoon)|thanks|thank you|grazie( mille)?|ok|okay|perfetto|perfect|great|ottimo|bye|arrivederci|a presto|see you)\b`)

	cancelPattern     = regexp.MustCompile(`\b(cancel\w*|annull\w*|disdi\w*|disdett\w*)\b`)
	reschedulePattern = regexp.MustCompile(`\b(reschedul\w*|postpone\w*|spost\w*|posticip\w*|anticip\w*)\b|\bmove (my|the|our) (lesson|booking)\b|\bchange the (time|date|day)\b|\bcambiare (l'orario|orario|la data|data|giorno)\b`)
	bookingVerb       = regexp.MustCompile(`\b(book|reserve|prenot\w*|riserv\w*)\b`)
	bookingVocabulary = regexp.MustCompile(`\b(lesson|lessons|lezion[ei]|booking|prenotazione|corso|class)\b`)
	temporalCue       = regexp.MustCompile(`\b(today|tomorrow|tonight|oggi|domani|dopodomani|stasera|monday|tuesday|wednesday|thursday|friday|saturday|sunday|luned|marted|mercoled|gioved|venerd|sabato|domenica)|\d{1,2}[:.]\d{2}|\d{4}-\d{2}-\d{2}|\b\d{1,2}/\d{1,2}\b`)
	partyCue          = regexp.MustCompile(`\b\d+\s*(people|persons|person|persone|persona|pax|adults|adulti|kids|children|bambini|ragazzi)\b`)
	pricePattern      = regexp.MustCompile(`\b(price|prices|cost|costs|how much|rates?|prezz[oi]|costo|costa|quanto|tariff\w*)\b`)
)

// RuleClassifier is a deterministic lexical classifier for English and Italian.
type RuleClassifier struct{}

// NewRuleClassifier returns the rule-based classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// Classify implements Classifier. It never returns an error.
func (c *RuleClassifier) Classify(_ context.Context, in Input) (Result, error) {
	return c.classify(in.Text), nil
}

func (c *RuleClassifier) classify(text string) Result {
	content := strings.ToLower(strings.TrimSpace(text))

	signals := 0
	for _, p := range domainPatterns {
		if p.MatchString(content) {
			signals++
		}
	}

	promo := len(uniqueMatches(promoPattern, content))
	if (linkPattern.MatchString(content) && promo >= 1) || (promo >= 2 && signals == 0) {
		return notRelevant(models.ReasonSpam, spamConfidence)
	}

	if signals == 0 {
		if smallTalkPattern.MatchString(content) {
			return notRelevant(models.ReasonSmallTalk, smallTalkConfidence)
		}
		return notRelevant(models.ReasonOutOfDomain, outOfDomainConf)
	}

	relevance := weakRelevanceConf
	if signals >= 2 {
		relevance = strongRelevanceConf
	}

	intent, confidence := c.intent(content)
	return Result{
		Relevant:            true,
		RelevanceConfidence: relevance,
		Intent:              intent,
		IntentConfidence:    &confidence,
		ModelID:             RulesModelID,
	}
}

func (c *RuleClassifier) intent(content string) (models.Intent, float64) {
	switch {
	case cancelPattern.MatchString(content):
		return models.IntentCancel, cancelConfidence
	case reschedulePattern.MatchString(content):
		return models.IntentReschedule, rescheduleConfidence
	case bookingVerb.MatchString(content) && (temporalCue.MatchString(content) || partyCue.MatchString(content)):
		return models.IntentNewBooking, bookingConfidence
	case pricePattern.MatchString(content):
		return models.IntentInfoRequest, infoConfidence
	case bookingVerb.MatchString(content) || bookingVocabulary.MatchString(content):
		return models.IntentNewBooking, weakBookingConfidence
	default:
		return models.IntentInfoRequest, fallbackConfidence
	}
}

func notRelevant(reason models.RelevanceReason, confidence float64) Result {
	return Result{
		Relevant:            false,
		RelevanceConfidence: confidence,
		RelevanceReason:     reason,
		ModelID:             RulesModelID,
	}
}

func uniqueMatches(p *regexp.Regexp, content string) map[string]struct{} {
	found := make(map[string]struct{})
	for _, m := range p.FindAllString(content, -1) {
		found[m] = struct{}{}
	}
	return found
}
