// Package extract pulls structured booking and reschedule fields out of
// free customer text. Its output is reviewer context only and never feeds
// the drafting decision.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const isoLayout = "2006-01-02"

var (
	isoDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	euDatePattern  = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})\b`)

	// Longer phrases first: "dopodomani" must win over "domani".
	relativeDays = []struct {
		pattern *regexp.Regexp
		offset  int
	}{
		{regexp.MustCompile(`\b(day after tomorrow|dopodomani)\b`), 2},
		{regexp.MustCompile(`\b(tomorrow|domani)\b`), 1},
		{regexp.MustCompile(`\b(today|oggi|stamattina|stasera)\b`), 0},
	}
)

// ResolveDate finds a date in text and returns it as YYYY-MM-DD.
// Relative terms resolve against now's calendar date.
func ResolveDate(text string, now time.Time) (string, bool) {
	content := strings.ToLower(text)

	if m := isoDatePattern.FindStringSubmatch(content); m != nil {
		if d, ok := calendarDate(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	if m := euDatePattern.FindStringSubmatch(content); m != nil {
		if d, ok := calendarDate(m[3], m[2], m[1]); ok {
			return d, true
		}
	}
	for _, rel := range relativeDays {
		if rel.pattern.MatchString(content) {
			y, mo, d := now.Date()
			return time.Date(y, mo, d+rel.offset, 0, 0, 0, 0, now.Location()).Format(isoLayout), true
		}
	}
	return "", false
}

// calendarDate validates the parts and rejects dates like 31/02.
func calendarDate(year, month, day string) (string, bool) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return "", false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return "", false
	}
	return t.Format(isoLayout), true
}

// Slot is a time or time range found in text. End is empty for a single time.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

const clock = `(\d{1,2})(?:[:.](\d{2}))?\s*(am|pm)?`

var (
	rangePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{1,2})[:.](\d{2})\s*()(?:-|–|to|alle|a|until|till)\s*(\d{1,2})[:.](\d{2})\s*()`),
		regexp.MustCompile(`\b(?:dalle|from|between|tra le|fra le)\s+` + clock + `\s*(?:-|–|to|alle|until|till|and|e(?: le)?)\s*` + clock + `\b`),
	}
	singlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{1,2})[:.](\d{2})\s*(am|pm)?\b`),
		regexp.MustCompile(`\b(\d{1,2})()\s*(am|pm)\b`),
		regexp.MustCompile(`\b(\d{1,2})h(\d{2})?()\b`),
		regexp.MustCompile(`\b(?:alle|ore|at|verso le|around)\s+(\d{1,2})(?:[:.](\d{2}))?\s*(am|pm)?\b`),
	}
	// Day.month without a year, e.g. "il 15.01" or "15.01 alle 10".
	// Group 1 is the date.
	shortDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:il|on|del|dal|the)\s+(\d{1,2}[./]\d{1,2})\b`),
		regexp.MustCompile(`\b(\d{1,2}\.\d{1,2})\s+(?:alle|ore|at|verso le|around)\s`),
	}
)

type span struct {
	start, end int
	slot       Slot
}

// FindSlots returns the times and ranges in text in reading order.
// Ranges win over single times they overlap.
func FindSlots(text string) []Slot {
	content := stripDates(strings.ToLower(text))

	var found []span
	overlaps := func(s, e int) bool {
		for _, f := range found {
			if s < f.end && f.start < e {
				return true
			}
		}
		return false
	}

	for _, p := range rangePatterns {
		for _, idx := range p.FindAllStringSubmatchIndex(content, -1) {
			if overlaps(idx[0], idx[1]) {
				continue
			}
			g := groups(content, idx)
			endSuffix := g[6]
			startSuffix := g[3]
			if startSuffix == "" {
				startSuffix = endSuffix
			}
			start, ok1 := normalizeClock(g[1], g[2], startSuffix)
			end, ok2 := normalizeClock(g[4], g[5], endSuffix)
			if !ok1 || !ok2 {
				continue
			}
			found = append(found, span{idx[0], idx[1], Slot{Start: start, End: end}})
		}
	}

	content = stripShortDates(content, overlaps)

	for _, p := range singlePatterns {
		for _, idx := range p.FindAllStringSubmatchIndex(content, -1) {
			if overlaps(idx[0], idx[1]) {
				continue
			}
			g := groups(content, idx)
			start, ok := normalizeClock(g[1], g[2], g[3])
			if !ok {
				continue
			}
			found = append(found, span{idx[0], idx[1], Slot{Start: start}})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })
	slots := make([]Slot, 0, len(found))
	for _, f := range found {
		slots = append(slots, f.slot)
	}
	return slots
}

// ResolveTimes returns the first time or range in text.
func ResolveTimes(text string) (start, end string, ok bool) {
	slots := FindSlots(text)
	if len(slots) == 0 {
		return "", "", false
	}
	return slots[0].Start, slots[0].End, true
}

func groups(content string, idx []int) []string {
	out := make([]string, len(idx)/2)
	for i := range out {
		if idx[2*i] >= 0 {
			out[i] = content[idx[2*i]:idx[2*i+1]]
		}
	}
	return out
}

func normalizeClock(hour, minute, suffix string) (string, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil {
		return "", false
	}
	m := 0
	if minute != "" {
		if m, err = strconv.Atoi(minute); err != nil {
			return "", false
		}
	}
	switch suffix {
	case "am":
		if h < 1 || h > 12 {
			return "", false
		}
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 1 || h > 12 {
			return "", false
		}
		if h != 12 {
			h += 12
		}
	}
	if h > 23 || m > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", h, m), true
}

// addMinutes adds minutes to an HH:MM clock. It fails past midnight.
func addMinutes(hhmm string, minutes int) (string, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", false
	}
	total := t.Hour()*60 + t.Minute() + minutes
	if minutes <= 0 || total >= 24*60 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60), true
}

// minutesBetween returns end-start in minutes, or 0 when end is not after start.
func minutesBetween(start, end string) int {
	s, err1 := time.Parse("15:04", start)
	e, err2 := time.Parse("15:04", end)
	if err1 != nil || err2 != nil || !e.After(s) {
		return 0
	}
	return int(e.Sub(s).Minutes())
}

func stripDates(content string) string {
	blank := func(s string) string { return strings.Repeat(" ", len(s)) }
	content = isoDatePattern.ReplaceAllStringFunc(content, blank)
	return euDatePattern.ReplaceAllStringFunc(content, blank)
}

// stripShortDates blanks day.month dates outside already matched ranges.
func stripShortDates(content string, taken func(start, end int) bool) string {
	b := []byte(content)
	for _, p := range shortDatePatterns {
		for _, idx := range p.FindAllStringSubmatchIndex(content, -1) {
			if taken(idx[2], idx[3]) {
				continue
			}
			for i := idx[2]; i < idx[3]; i++ {
				b[i] = ' '
			}
		}
	}
	return string(b)
}
