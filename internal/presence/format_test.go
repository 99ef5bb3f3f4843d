package presence

import (
	"strings"
	"testing"
	"time"

	"tools.zach/dev/scrobblecord/internal/i18n"
)

func testCatalog(t *testing.T) *i18n.Catalog {
	t.Helper()
	cat, err := i18n.Load("en-US")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return cat
}

func TestFormatLines_SingleEntryUnpadded(t *testing.T) {
	tests := []struct {
		name string
		line Line
	}{
		{"small key", Line{"name", "Alice (@alice)"}},
		{"large key", Line{"first_time", "First time listening!"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatLines([]Line{tt.line}, LineLimit, PadRune)
			if got != tt.line.Text {
				t.Errorf("FormatLines = %q, want %q", got, tt.line.Text)
			}
			if strings.ContainsRune(got, PadRune) {
				t.Error("single entry must not be padded")
			}
		})
	}
}

func TestFormatLines_ShortLinesPadded(t *testing.T) {
	got := FormatLines([]Line{
		{"scrobbles", "12 scrobbles"},
		{"artists", "5 artists"},
	}, LineLimit, PadRune)

	if !strings.ContainsRune(got, PadRune) {
		t.Error("short lines should be padded")
	}
	if !strings.Contains(got, "12 scrobbles") || !strings.Contains(got, "5 artists") {
		t.Errorf("missing line text: %q", got)
	}
}

func TestFormatLines_LongLineGetsNoPadding(t *testing.T) {
	long := "a really long line over twenty characters"
	got := FormatLines([]Line{
		{"name", long},
		{"artists", "5 artists"},
	}, LineLimit, PadRune)

	// A long small-image line is followed directly by the joining space,
	// with no pad suffix in between.
	if !strings.Contains(got, long+"  ") {
		t.Errorf("long line should have empty suffix: %q", got)
	}
}

func TestFormatLines_UppercaseReducesPadding(t *testing.T) {
	lower := FormatLines([]Line{{"a", "aaaa"}, {"b", "zz"}}, LineLimit, PadRune)
	upper := FormatLines([]Line{{"a", "AAAA"}, {"b", "zz"}}, LineLimit, PadRune)

	if strings.Count(upper, string(PadRune)) >= strings.Count(lower, string(PadRune)) {
		t.Errorf("uppercase line should receive fewer pads: lower=%d upper=%d",
			strings.Count(lower, string(PadRune)), strings.Count(upper, string(PadRune)))
	}
}

func TestFormatLines_OverBudgetStripsPads(t *testing.T) {
	lines := []Line{
		{"name", "Alice (@alicealice)"},
		{"scrobbles", "123456 scrobbles"},
		{"artists", "54321 artists"},
		{"loved_tracks", "999 loved tracks"},
		{"extra", "more text here"},
	}
	got := FormatLines(lines, LineLimit, PadRune)

	if strings.ContainsRune(got, PadRune) {
		t.Errorf("pads should be stripped from over-budget text: %q", got)
	}
	if runeLen(got) > 128 {
		t.Errorf("result length %d exceeds 128", runeLen(got))
	}
}

func TestFormatLines_NeverExceeds128(t *testing.T) {
	var lines []Line
	for _, key := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		lines = append(lines, Line{key, strings.Repeat(key, 12)})
	}
	got := FormatLines(lines, LineLimit, PadRune)
	if runeLen(got) > 128 {
		t.Errorf("result length %d exceeds 128: %q", runeLen(got), got)
	}
}

func TestSelectArtwork_FirstTimeListener(t *testing.T) {
	cat := testCatalog(t)
	noon := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, lines := SelectArtwork(cat, "https://img/cover.png", 0, 0, true, noon)

	var keys []string
	for _, l := range lines {
		keys = append(keys, l.Key)
	}
	if len(keys) != 1 || keys[0] != "first_time" {
		t.Errorf("lines = %v, want exactly [first_time]", keys)
	}
}

func TestSelectArtwork_FallbackCoverByHour(t *testing.T) {
	cat := testCatalog(t)
	tests := []struct {
		hour int
		want string
	}{
		{0, dayModeCover},
		{8, dayModeCover},
		{9, nightModeCover},
		{12, nightModeCover},
		{17, nightModeCover},
		{18, dayModeCover},
		{23, dayModeCover},
	}

	for _, tt := range tests {
		now := time.Date(2026, 3, 1, tt.hour, 30, 0, 0, time.UTC)
		artwork, lines := SelectArtwork(cat, "", 3, 0, false, now)
		if artwork != tt.want {
			t.Errorf("hour %d: artwork = %q, want %q", tt.hour, artwork, tt.want)
		}
		if len(lines) == 0 || lines[0].Key != "theme" {
			t.Errorf("hour %d: expected theme line, got %v", tt.hour, lines)
		}
	}
}

func TestSelectArtwork_ExplicitArtworkNoThemeLine(t *testing.T) {
	cat := testCatalog(t)
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	artwork, lines := SelectArtwork(cat, "https://img/cover.png", 3, 10, true, now)
	if artwork != "https://img/cover.png" {
		t.Errorf("artwork = %q", artwork)
	}
	for _, l := range lines {
		if l.Key == "theme" {
			t.Error("explicit artwork should not emit a theme line")
		}
	}
}

func TestSelectArtwork_ArtistScrobbleLines(t *testing.T) {
	cat := testCatalog(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		artistCount int
		trackCount  int
		showStats   bool
		wantSub     string
		wantLine    bool
	}{
		{"artist and track counts", 3, 10, true, "3/10", true},
		{"artist count only", 3, 0, true, "3 ", true},
		{"stats disabled", 3, 10, false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, lines := SelectArtwork(cat, "https://img/c.png", tt.artistCount, tt.trackCount, tt.showStats, now)
			var found *Line
			for i := range lines {
				if lines[i].Key == "artist_scrobbles" {
					found = &lines[i]
				}
			}
			if !tt.wantLine {
				if found != nil {
					t.Errorf("unexpected artist_scrobbles line: %v", found)
				}
				return
			}
			if found == nil {
				t.Fatal("missing artist_scrobbles line")
			}
			if !strings.Contains(found.Text, tt.wantSub) {
				t.Errorf("line %q does not contain %q", found.Text, tt.wantSub)
			}
		})
	}
}
