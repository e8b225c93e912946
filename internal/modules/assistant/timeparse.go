package assistant

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	hmmssRe   = regexp.MustCompile(`\b(\d+):([0-5]?\d):([0-5]\d)\b`)
	mmssRe    = regexp.MustCompile(`\b(\d{1,3}):([0-5]?\d)\b`)
	minutesRe = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:minutes?|mins?|min)\b`)
)

var deicticPhrases = []string{"this moment", "right now"}

// ParseTime pulls an explicit time reference out of a query. Supported
// forms, tried in order: H:MM:SS, MM:SS, "N minute(s)/min", and deictic
// phrases resolved against the player timestamp. Returns false when the
// query carries no time reference.
func ParseTime(query string, playerTimestamp float64) (float64, bool) {
	q := strings.ToLower(query)

	if m := hmmssRe.FindStringSubmatch(q); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		s, _ := strconv.Atoi(m[3])
		return float64(h*3600 + mi*60 + s), true
	}

	if m := mmssRe.FindStringSubmatch(q); m != nil {
		mi, _ := strconv.Atoi(m[1])
		s, _ := strconv.Atoi(m[2])
		return float64(mi*60 + s), true
	}

	if m := minutesRe.FindStringSubmatch(q); m != nil {
		mins, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return mins * 60, true
		}
	}

	for _, phrase := range deicticPhrases {
		if strings.Contains(q, phrase) {
			return playerTimestamp, true
		}
	}

	return 0, false
}
