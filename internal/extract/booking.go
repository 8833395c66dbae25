package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Field names reported in MissingFields.
const (
	FieldDate         = "date"
	FieldStartTime    = "startTime"
	FieldPartySize    = "partySize"
	FieldNewStartTime = "newStartTime"
)

const (
	coreFieldWeight = 1.0
	auxFieldWeight  = 0.5
)

// BookingFields are the candidate details of a new booking request.
type BookingFields struct {
	Date            string   `json:"date,omitempty"`
	StartTime       string   `json:"start_time,omitempty"`
	EndTime         string   `json:"end_time,omitempty"`
	PartySize       int      `json:"party_size,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Discipline      string   `json:"discipline,omitempty"`
	SkillLevel      string   `json:"skill_level,omitempty"`
	CustomerName    string   `json:"customer_name,omitempty"`
	Resort          string   `json:"resort,omitempty"`
	MeetingPoint    string   `json:"meeting_point,omitempty"`
	Complete        bool     `json:"complete"`
	MissingFields   []string `json:"missing_fields"`
	Confidence      float64  `json:"confidence"`
}

type namedPattern struct {
	name    string
	pattern *regexp.Regexp
}

var (
	partyNumberPattern = regexp.MustCompile(`\b(\d{1,2}|one|two|three|four|five|six|uno|una|due|tre|quattro|cinque|sei)\s+(people|persons|person|persone|persona|pax|adults|adulti|participants|partecipanti|kids|children|bambini|ragazzi)\b`)
	partyGroupPattern  = regexp.MustCompile(`\b(?:siamo in|we are|party of|group of|gruppo di)\s+(\d{1,2}|two|three|four|five|six|due|tre|quattro|cinque|sei)\b`)

	hoursPattern      = regexp.MustCompile(`\b(\d{1,2}(?:[.,]5)?)\s*(hours|hour|hrs|hr|ore|ora)\b`)
	minutesPattern    = regexp.MustCompile(`\b(\d{2,3})\s*(minutes|minute|mins|min|minuti)\b`)
	halfHourPattern   = regexp.MustCompile(`\b(half an hour|mezz'ora|mezzora)\b`)
	singleHourPattern = regexp.MustCompile(`\b(an hour|one hour|un'ora|una ora)\b`)

	disciplines = []namedPattern{
		{"snowboard", regexp.MustCompile(`\bsnowboard`)},
		{"telemark", regexp.MustCompile(`\btelemark\b`)},
		{"freeride", regexp.MustCompile(`\bfreeride\b`)},
		{"cross-country", regexp.MustCompile(`\b(cross[- ]country|sci di fondo|fondo)\b`)},
		{"ski", regexp.MustCompile(`\b(ski|skiing|sci|sciare)\b`)},
	}

	skillLevels = []namedPattern{
		{"beginner", regexp.MustCompile(`\b(beginners?|principiant\w*|first time|prima volta|never skied|mai sciato)`)},
		{"intermediate", regexp.MustCompile(`\b(intermediate|intermedi\w*)`)},
		{"advanced", regexp.MustCompile(`\b(advanced|avanzat\w*|expert|espert\w*)`)},
	}

	namePattern = regexp.MustCompile(`(?:[Mm]y name is|[Mm]i chiamo|[Ss]ono|I am|I'm)\s+(\p{Lu}\p{Ll}+(?:\s+\p{Lu}\p{Ll}+)?)`)

	meetingPointPattern = regexp.MustCompile(`(?i)(?:meeting point|meet(?:ing)? at|punto di (?:ritrovo|incontro)|ritrovo|ci vediamo (?:a|al|alla|allo|presso))\s*:?\s*([^.,;!?\n]+)`)

	resorts = []string{
		"Madonna di Campiglio", "Val Gardena", "Alta Badia", "Sauze d'Oulx", "Plan de Corones",
		"Cervinia", "Courmayeur", "La Thuile", "Pila", "Sestriere", "Bardonecchia", "Cortina",
		"Livigno", "Bormio", "Zermatt", "Chamonix", "Val d'Isere", "St. Moritz", "Kronplatz",
	}

	numberWords = map[string]int{
		"one": 1, "uno": 1, "una": 1,
		"two": 2, "due": 2,
		"three": 3, "tre": 3,
		"four": 4, "quattro": 4,
		"five": 5, "cinque": 5,
		"six": 6, "sei": 6,
	}
)

// ExtractBooking pulls booking fields from text. Relative dates resolve against now.
// A booking is complete when date, start time and party size are all present.
func ExtractBooking(text string, now time.Time) BookingFields {
	content := strings.ToLower(text)
	var f BookingFields

	f.Date, _ = ResolveDate(text, now)
	start, end, _ := ResolveTimes(text)
	f.StartTime = start
	f.PartySize = partySize(content)
	f.DurationMinutes = durationMinutes(content)

	switch {
	case end != "":
		f.EndTime = end
		if f.DurationMinutes == 0 {
			f.DurationMinutes = minutesBetween(start, end)
		}
	case start != "" && f.DurationMinutes > 0:
		f.EndTime, _ = addMinutes(start, f.DurationMinutes)
	}

	f.Discipline = firstMatch(content, disciplines)
	f.SkillLevel = firstMatch(content, skillLevels)
	if m := namePattern.FindStringSubmatch(text); m != nil {
		f.CustomerName = m[1]
	}
	f.Resort = findResort(content)
	if m := meetingPointPattern.FindStringSubmatch(text); m != nil {
		f.MeetingPoint = strings.TrimSpace(m[1])
	}

	f.MissingFields = []string{}
	if f.Date == "" {
		f.MissingFields = append(f.MissingFields, FieldDate)
	}
	if f.StartTime == "" {
		f.MissingFields = append(f.MissingFields, FieldStartTime)
	}
	if f.PartySize == 0 {
		f.MissingFields = append(f.MissingFields, FieldPartySize)
	}
	f.Complete = len(f.MissingFields) == 0

	f.Confidence = score(
		[]bool{f.Date != "", f.StartTime != "", f.PartySize > 0},
		[]bool{f.EndTime != "", f.DurationMinutes > 0, f.Discipline != "", f.SkillLevel != "",
			f.CustomerName != "", f.Resort != "", f.MeetingPoint != ""},
	)
	return f
}

func partySize(content string) int {
	if m := partyNumberPattern.FindStringSubmatch(content); m != nil {
		return parseCount(m[1])
	}
	if m := partyGroupPattern.FindStringSubmatch(content); m != nil {
		return parseCount(m[1])
	}
	return 0
}

func parseCount(s string) int {
	if n, ok := numberWords[s]; ok {
		return n
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

func durationMinutes(content string) int {
	if m := hoursPattern.FindStringSubmatch(content); m != nil {
		h, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err == nil && h > 0 {
			return int(h * 60)
		}
	}
	if m := minutesPattern.FindStringSubmatch(content); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	if halfHourPattern.MatchString(content) {
		return 30
	}
	if singleHourPattern.MatchString(content) {
		return 60
	}
	return 0
}

func firstMatch(content string, options []namedPattern) string {
	for _, o := range options {
		if o.pattern.MatchString(content) {
			return o.name
		}
	}
	return ""
}

func findResort(content string) string {
	for _, r := range resorts {
		if strings.Contains(content, strings.ToLower(r)) {
			return r
		}
	}
	return ""
}

// score weighs core fields above auxiliary ones; more fields never score lower.
func score(core, aux []bool) float64 {
	total := 0.0
	for _, ok := range core {
		if ok {
			total += coreFieldWeight
		}
	}
	for _, ok := range aux {
		if ok {
			total += auxFieldWeight
		}
	}
	return total
}
