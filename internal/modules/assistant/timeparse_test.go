package assistant

import "testing"

func TestParseTime(t *testing.T) {
	cases := []struct {
		name   string
		query  string
		player float64
		want   float64
		found  bool
	}{
		{"hmmss", "what happens at 1:02:30?", 0, 3750, true},
		{"mmss", "explain 12:45 please", 0, 765, true},
		{"mmss short", "go to 1:05", 0, 65, true},
		{"mmss single-digit seconds", "what is said at 5:7", 0, 307, true},
		{"mmss single-digit both", "explain 3:4 to me", 0, 184, true},
		{"minutes integer", "what was said at 5 minutes in", 0, 300, true},
		{"minutes fractional", "around 2.5 min", 0, 150, true},
		{"mins abbreviation", "the part at 3 mins", 0, 180, true},
		{"deictic this moment", "what is being discussed at this moment?", 321, 321, true},
		{"deictic right now", "what are they talking about right now", 88.5, 88.5, true},
		{"uppercase deictic", "What is happening RIGHT NOW?", 10, 10, true},
		{"no reference", "what is a goroutine?", 42, 0, false},
		{"bare number", "explain question 3", 42, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, found := ParseTime(tc.query, tc.player)
			if found != tc.found {
				t.Fatalf("ParseTime(%q) found = %v, want %v", tc.query, found, tc.found)
			}
			if found && got != tc.want {
				t.Fatalf("ParseTime(%q) = %v, want %v", tc.query, got, tc.want)
			}
		})
	}
}

func TestParseTimePrefersLongerForms(t *testing.T) {
	// H:MM:SS must win over the embedded MM:SS reading of the same text.
	got, found := ParseTime("the demo at 2:10:05 was great", 0)
	if !found || got != 2*3600+10*60+5 {
		t.Fatalf("got %v (found=%v), want 7805", got, found)
	}
}

func TestParseTimeExplicitBeatsDeictic(t *testing.T) {
	got, found := ParseTime("right now, but actually tell me about 0:30", 500)
	if !found || got != 30 {
		t.Fatalf("got %v (found=%v), want the explicit 30", got, found)
	}
}
