// Package draft produces reply suggestions for human review and screens
// them with the quality guardrails before they can be stored.
package draft

import (
	"regexp"
	"strings"
)

// TemplateModelID identifies the template generator in draft records.
const TemplateModelID = "template-v1"

// Generator produces one candidate reply from the customer's last message.
// It sees no classification state and decides nothing about safety.
type Generator interface {
	Generate(lastMessage, language string) (string, error)
	ModelID() string
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(lastMessage, language string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(lastMessage, language string) (string, error) {
	return f(lastMessage, language)
}

// ModelID implements Generator.
func (f GeneratorFunc) ModelID() string {
	return "func"
}

var (
	italianHint = regexp.MustCompile(`\b(ciao|buongiorno|buonasera|vorrei|grazie|lezione|lezioni|domani|prenotare|siamo|sono|per favore|quanto|dalle|alle|persone|maestro)\b`)
	englishHint = regexp.MustCompile(`\b(hi|hello|would|like|lesson|lessons|tomorrow|book|we|are|please|how|much|people|instructor|the)\b`)
)

var templates = map[string]struct {
	question string
	request  string
}{
	LocaleIT: {
		question: "Grazie per la domanda! Raccolgo le informazioni con il maestro e ti rispondo al più presto.",
		request:  "Grazie per il messaggio! Verifico i dettagli con il maestro e ti rispondo al più presto. Se hai preferenze particolari, fammi sapere.",
	},
	LocaleEN: {
		question: "Thanks for your question! I'll gather the details with the instructor and get back to you shortly.",
		request:  "Thanks for your message! I'll check the details with the instructor and get back to you shortly. If you have any particular preferences, let me know.",
	},
}

// TemplateGenerator writes neutral acknowledgements that never state dates,
// times, prices or availability.
type TemplateGenerator struct{}

// NewTemplateGenerator returns the template generator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// ModelID implements Generator.
func (g *TemplateGenerator) ModelID() string {
	return TemplateModelID
}

// Generate implements Generator.
func (g *TemplateGenerator) Generate(lastMessage, language string) (string, error) {
	locale := NormalizeLocale(language)
	if locale == "" {
		locale = DetectLocale(lastMessage)
	}
	t := templates[locale]
	if strings.HasSuffix(strings.TrimSpace(lastMessage), "?") {
		return t.question, nil
	}
	return t.request, nil
}

// DetectLocale guesses between Italian and English by counting common words.
// Ties go to English.
func DetectLocale(text string) string {
	content := strings.ToLower(text)
	it := len(italianHint.FindAllString(content, -1))
	en := len(englishHint.FindAllString(content, -1))
	if it > en {
		return LocaleIT
	}
	return LocaleEN
}
