package extract

import (
	"regexp"
	"strings"
	"time"
)

// RescheduleFields describe a request to move an existing lesson.
type RescheduleFields struct {
	Date          string   `json:"date,omitempty"`
	CurrentStart  string   `json:"current_start,omitempty"`
	CurrentEnd    string   `json:"current_end,omitempty"`
	NewStart      string   `json:"new_start,omitempty"`
	NewEnd        string   `json:"new_end,omitempty"`
	SameLocation  bool     `json:"same_location"`
	Complete      bool     `json:"complete"`
	MissingFields []string `json:"missing_fields"`
	Confidence    float64  `json:"confidence"`
}

var sameLocationPattern = regexp.MustCompile(`\b(same (place|location|meeting point|spot)|stess[oa] (posto|punto|luogo|location|zona|punto di ritrovo))\b`)

// ExtractReschedule pulls the current and requested slot out of text.
// With two or more slots the first is the current one and the last the new one;
// a single slot is taken as the new one.
func ExtractReschedule(text string, now time.Time) RescheduleFields {
	var f RescheduleFields

	f.Date, _ = ResolveDate(text, now)

	slots := FindSlots(text)
	switch {
	case len(slots) >= 2:
		cur, next := slots[0], slots[len(slots)-1]
		f.CurrentStart, f.CurrentEnd = cur.Start, cur.End
		f.NewStart, f.NewEnd = next.Start, next.End
	case len(slots) == 1:
		f.NewStart, f.NewEnd = slots[0].Start, slots[0].End
	}

	f.SameLocation = sameLocationPattern.MatchString(strings.ToLower(text))

	f.MissingFields = []string{}
	if f.Date == "" {
		f.MissingFields = append(f.MissingFields, FieldDate)
	}
	if f.NewStart == "" {
		f.MissingFields = append(f.MissingFields, FieldNewStartTime)
	}
	f.Complete = len(f.MissingFields) == 0

	f.Confidence = score(
		[]bool{f.Date != "", f.NewStart != ""},
		[]bool{f.CurrentStart != "", f.NewEnd != "", f.SameLocation},
	)
	return f
}
