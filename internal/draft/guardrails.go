package draft

import (
	"regexp"
	"strings"

	"github.com/fedeforai/frostdesk-core-sub003/internal/models"
)

// Supported locales.
const (
	LocaleEN = "en"
	LocaleIT = "it"
)

// Severity of a guardrail violation.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityWarning  Severity = "warning"
)

// Rule identifiers, in evaluation order.
const (
	RuleEmptyDraft      = "empty_draft"
	RuleNoCommitment    = "no_commitment"
	RuleNoInventedDate  = "no_invented_date"
	RuleNoInventedTime  = "no_invented_time"
	RuleNoInventedPrice = "no_invented_price"
	RuleTone            = "tone"
	RuleDisclaimer      = "disclaimer"
)

// Disclaimers prepended to every stored draft, by locale.
var Disclaimers = map[string]string{
	LocaleEN: "Suggested reply, to be reviewed by a human before sending.",
	LocaleIT: "Bozza suggerita, da verificare da un operatore prima dell'invio.",
}

// Violation is one guardrail hit.
type Violation struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Locale   string   `json:"locale,omitempty"`
	Match    string   `json:"match,omitempty"`
}

// Result is the outcome of Sanitize. Text is empty when Rejected is true.
type Result struct {
	Text       string        `json:"text,omitempty"`
	Rejected   bool          `json:"rejected"`
	Intent     models.Intent `json:"intent,omitempty"`
	Violations []Violation   `json:"violations"`
}

// Blocking returns the blocking violations.
func (r Result) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityBlocking {
			out = append(out, v)
		}
	}
	return out
}

type check struct {
	rule     string
	locale   string // empty applies to every locale
	patterns []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Blocking checks in evaluation order. Patterns run on lowercased text.
// Italian patterns avoid a leading \b before accented letters, which RE2
// does not treat as word characters.
var checks = []check{
	{RuleNoCommitment, LocaleEN, compile(
		`\b(i|we) (can )?(confirm|book|guarantee|reserve)\b`,
		`\bconfirmed\b`,
		`\b(is|are) available\b`,
		`\b(we|i)('ve| have) (booked|reserved)\b`,
		`\b(is|are|has been|have been) (booked|reserved|confirmed)\b`,
		`\bguarantee[ds]?\b`,
		`\b(it|this|the lesson) costs?\b`,
		`\bthe price is\b`,
	)},
	{RuleNoCommitment, LocaleIT, compile(
		`\bconferm(o|ato|ata|ati|ate|iamo)\b`,
		`(è|e'|sono|siamo) disponibil[ei]\b`,
		`\b(possiamo|posso) (confermare|prenotare|garantire|riservare)\b`,
		`\b(ho|abbiamo) (prenotato|riservato|confermato)\b`,
		`(è|e'|sono) (prenotat|riservat|confermat)\w*`,
		`\bgarantisc\w*|\bgarantit[oaie]\b`,
		`\b(costa|costano)\b`,
		`\bil prezzo (è|e')`,
	)},

	{RuleNoInventedDate, "", compile(
		`\b\d{4}-\d{2}-\d{2}\b`,
		`\b\d{1,2}/\d{1,2}(/\d{2,4})?\b`,
		`\b\d{1,2}\.\d{1,2}\.\d{2,4}\b`,
	)},
	{RuleNoInventedDate, LocaleEN, compile(
		`\b(today|tomorrow|tonight|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`,
		`\b\d{1,2}(st|nd|rd|th)?\s+(of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december)\b`,
		`\b(january|february|march|april|june|july|august|september|october|november|december)\s+\d{1,2}\b`,
		`\bmay\s+\d{1,2}(st|nd|rd|th)\b`,
		`\bthe \d{1,2}(st|nd|rd|th)\b`,
	)},
	{RuleNoInventedDate, LocaleIT, compile(
		`\b(oggi|domani|dopodomani|stasera|luned|marted|mercoled|gioved|venerd|sabato|domenica)`,
		`\b\d{1,2}\s+(gennaio|febbraio|marzo|aprile|maggio|giugno|luglio|agosto|settembre|ottobre|novembre|dicembre)\b`,
	)},

	{RuleNoInventedTime, "", compile(
		`\b([01]?\d|2[0-3])[:.][0-5]\d\b`,
		`\b\d{1,2}\s?(am|pm)\b`,
		`\b\d{1,2}h\d{0,2}\b`,
	)},
	{RuleNoInventedTime, LocaleEN, compile(`\bat \d{1,2}\b`)},
	{RuleNoInventedTime, LocaleIT, compile(`\b(alle|ore|dalle) \d{1,2}\b`)},

	{RuleNoInventedPrice, "", compile(
		`[€$£]\s?\d`,
		`\d+(?:[.,]\d+)?\s?€`,
		`\b\d+(?:[.,]\d+)?\s?(eur|euro|euros|usd|chf|dollars?|franchi)\b`,
		`\b\d+\s?(per|a|l') ?(hour|ora|person|persona)\b`,
	)},

	{RuleTone, LocaleEN, compile(
		`\byou (can|must|should|need to|have to|will need to) (book|pay|come|arrive|be there|bring|confirm)\b`,
		`\bit('s| is) (done|ready|confirmed|booked|settled)\b`,
		`\byou('re| are) (all set|booked|confirmed)\b`,
		`\ball set\b`,
	)},
	{RuleTone, LocaleIT, compile(
		`\b(puoi|devi|dovete|potete|dovrai) (prenotare|pagare|venire|presentarti|arrivare|portare|confermare)\b`,
		`(è|e') (fatto|pronto|confermato|tutto a posto)\b`,
		`\bsei (prenotat[oa]|confermat[oa])\b`,
	)},
}

// NormalizeLocale maps a language code like "it-IT" onto a supported locale,
// or returns "" when the language is unknown.
func NormalizeLocale(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	switch lang {
	case LocaleEN, LocaleIT:
		return lang
	}
	return ""
}

// Sanitize screens a raw draft. Rules run in order: commitment language,
// invented dates, times and prices, tone, then the disclaimer. Any blocking
// violation rejects the draft; violations are returned either way.
// An unknown language is screened against every locale.
func Sanitize(raw string, intent models.Intent, language string) Result {
	locale := NormalizeLocale(language)
	res := Result{Intent: intent, Violations: []Violation{}}

	text := strings.TrimSpace(raw)
	if text == "" {
		res.Rejected = true
		res.Violations = append(res.Violations, Violation{Rule: RuleEmptyDraft, Severity: SeverityBlocking})
		return res
	}

	body := stripDisclaimers(text)
	content := strings.ToLower(body)
	for _, c := range checks {
		if c.locale != "" && locale != "" && c.locale != locale {
			continue
		}
		seen := make(map[string]bool)
		for _, p := range c.patterns {
			for _, m := range p.FindAllString(content, -1) {
				if seen[m] {
					continue
				}
				seen[m] = true
				res.Violations = append(res.Violations, Violation{
					Rule:     c.rule,
					Severity: SeverityBlocking,
					Locale:   c.locale,
					Match:    m,
				})
			}
		}
	}

	if len(res.Blocking()) > 0 {
		res.Rejected = true
		return res
	}

	if !hasDisclaimer(text) {
		disclaimerLocale := locale
		if disclaimerLocale == "" {
			disclaimerLocale = LocaleEN
		}
		text = Disclaimers[disclaimerLocale] + "\n\n" + text
		res.Violations = append(res.Violations, Violation{
			Rule:     RuleDisclaimer,
			Severity: SeverityWarning,
			Locale:   disclaimerLocale,
		})
	}

	res.Text = text
	return res
}

func hasDisclaimer(text string) bool {
	for _, d := range []string{Disclaimers[LocaleEN], Disclaimers[LocaleIT]} {
		if strings.Contains(text, d) {
			return true
		}
	}
	return false
}

// stripDisclaimers removes disclaimer sentences so their wording is never screened.
func stripDisclaimers(text string) string {
	for _, d := range []string{Disclaimers[LocaleEN], Disclaimers[LocaleIT]} {
		text = strings.ReplaceAll(text, d, "")
	}
	return text
}
