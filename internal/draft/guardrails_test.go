package draft

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedeforai/frostdesk-core-sub003/internal/models"
)

func rules(vs []Violation) map[string]int {
	out := make(map[string]int)
	for _, v := range vs {
		out[v.Rule]++
	}
	return out
}

func TestSanitize_CommitmentDateTimePrice(t *testing.T) {
	res := Sanitize("I confirm your booking for tomorrow at 10:00, it costs 50 euro", models.IntentNewBooking, "en")

	require.True(t, res.Rejected)
	assert.Empty(t, res.Text)
	assert.GreaterOrEqual(t, len(res.Blocking()), 3)

	got := rules(res.Violations)
	assert.Positive(t, got[RuleNoCommitment])
	assert.Positive(t, got[RuleNoInventedDate])
	assert.Positive(t, got[RuleNoInventedTime])
	assert.Positive(t, got[RuleNoInventedPrice])
	assert.Zero(t, got[RuleDisclaimer])
}

func TestSanitize_BlockingRules(t *testing.T) {
	tests := []struct {
		name string
		text string
		lang string
		rule string
	}{
		{"en available", "The instructor is available then.", "en", RuleNoCommitment},
		{"en guarantee", "We guarantee great snow.", "en", RuleNoCommitment},
		{"it confermo", "Confermo la lezione.", "it", RuleNoCommitment},
		{"it disponibile", "Il maestro è disponibile.", "it", RuleNoCommitment},
		{"it costa", "La lezione costa poco.", "it", RuleNoCommitment},
		{"en we can confirm", "We can confirm your lesson.", "en", RuleNoCommitment},
		{"en we confirm", "We confirm the lesson.", "en", RuleNoCommitment},
		{"en is booked", "Your lesson is booked.", "en", RuleNoCommitment},
		{"en we have reserved", "We have reserved a slot for you.", "en", RuleNoCommitment},
		{"en has been confirmed", "The slot has been confirmed.", "en", RuleNoCommitment},
		{"it abbiamo prenotato", "Abbiamo prenotato la lezione.", "it", RuleNoCommitment},
		{"it è prenotata", "La lezione è prenotata.", "it", RuleNoCommitment},
		{"it possiamo confermare", "Possiamo confermare la lezione.", "it", RuleNoCommitment},
		{"iso date", "See you on 2026-02-01.", "en", RuleNoInventedDate},
		{"slash date", "Ci vediamo il 12/02.", "it", RuleNoInventedDate},
		{"en weekday", "How about Saturday?", "en", RuleNoInventedDate},
		{"en month", "Maybe on 3rd of March.", "en", RuleNoInventedDate},
		{"it month", "Forse il 3 marzo.", "it", RuleNoInventedDate},
		{"en ordinal day", "See you on the 15th.", "en", RuleNoInventedDate},
		{"en may ordinal", "How about May 3rd?", "en", RuleNoInventedDate},
		{"it relative", "Ci sentiamo domani.", "it", RuleNoInventedDate},
		{"clock", "Meet at the lift around 9.30.", "en", RuleNoInventedTime},
		{"ampm", "Around 3pm works.", "en", RuleNoInventedTime},
		{"it alle", "Ci vediamo alle 9.", "it", RuleNoInventedTime},
		{"euro sign", "It's €40 per hour.", "en", RuleNoInventedPrice},
		{"chf", "Roughly 80 CHF.", "en", RuleNoInventedPrice},
		{"en per hour", "The lesson is 50 per hour.", "en", RuleNoInventedPrice},
		{"it a persona", "Sono 40 a persona.", "it", RuleNoInventedPrice},
		{"en tone must", "You must book through the website.", "en", RuleTone},
		{"en tone done", "Great, it's done.", "en", RuleTone},
		{"en tone all set", "You're all set.", "en", RuleTone},
		{"it tone devi", "Devi pagare in anticipo.", "it", RuleTone},
		{"it tone fatto", "È fatto, grazie!", "it", RuleTone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Sanitize(tt.text, models.IntentInfoRequest, tt.lang)
			assert.True(t, res.Rejected)
			assert.Empty(t, res.Text)
			assert.Positive(t, rules(res.Violations)[tt.rule], "violations: %+v", res.Violations)
		})
	}
}

func TestSanitize_AddsDisclaimer(t *testing.T) {
	res := Sanitize("Thanks for your message! I'll check with the instructor and get back to you.", models.IntentNewBooking, "en")

	require.False(t, res.Rejected)
	assert.True(t, strings.HasPrefix(res.Text, Disclaimers[LocaleEN]))
	require.Len(t, res.Violations, 1)
	assert.Equal(t, RuleDisclaimer, res.Violations[0].Rule)
	assert.Equal(t, SeverityWarning, res.Violations[0].Severity)
	assert.Empty(t, res.Blocking())
}

func TestSanitize_DisclaimerLocale(t *testing.T) {
	res := Sanitize("Grazie! Ti rispondo appena possibile.", models.IntentInfoRequest, "it-IT")

	require.False(t, res.Rejected)
	assert.True(t, strings.HasPrefix(res.Text, Disclaimers[LocaleIT]))
}

func TestSanitize_DisclaimerIdempotent(t *testing.T) {
	first := Sanitize("Thanks, I'll get back to you shortly.", models.IntentInfoRequest, "en")
	require.False(t, first.Rejected)

	second := Sanitize(first.Text, models.IntentInfoRequest, "en")
	require.False(t, second.Rejected)
	assert.Equal(t, first.Text, second.Text)
	assert.Empty(t, second.Violations)
	assert.Equal(t, 1, strings.Count(second.Text, Disclaimers[LocaleEN]))
}

func TestSanitize_DisclaimerDoesNotRescueBlockingText(t *testing.T) {
	text := Disclaimers[LocaleEN] + "\n\nYour lesson is confirmed."
	res := Sanitize(text, models.IntentNewBooking, "en")

	assert.True(t, res.Rejected)
	assert.Empty(t, res.Text)
}

func TestSanitize_UnknownLanguageScreensAllLocales(t *testing.T) {
	text := "Ci sentiamo domani."

	assert.False(t, Sanitize(text, models.IntentInfoRequest, "en").Rejected)
	assert.True(t, Sanitize(text, models.IntentInfoRequest, "").Rejected)
	assert.True(t, Sanitize(text, models.IntentInfoRequest, "de").Rejected)
}

func TestSanitize_Empty(t *testing.T) {
	res := Sanitize("   ", models.IntentCancel, "en")

	assert.True(t, res.Rejected)
	assert.Equal(t, RuleEmptyDraft, res.Violations[0].Rule)
}

func TestNormalizeLocale(t *testing.T) {
	assert.Equal(t, LocaleIT, NormalizeLocale("it-IT"))
	assert.Equal(t, LocaleEN, NormalizeLocale(" EN_gb "))
	assert.Equal(t, "", NormalizeLocale("fr"))
	assert.Equal(t, "", NormalizeLocale(""))
}
