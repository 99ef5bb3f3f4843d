// format.go holds the pure text and artwork helpers used to build hover texts
// for the presence payload's image slots.

package presence

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"tools.zach/dev/scrobblecord/internal/i18n"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

const (
	// LineLimit is the character budget one hover-text line is padded toward.
	LineLimit = 26

	// PadRune separates short lines visually in Discord's hover text.
	// U+2000 (EN QUAD) renders as a wide space and survives Discord's
	// whitespace collapsing.
	PadRune = '\u2000'

	// maxHoverText is Discord's hover text display limit. Rendered text
	// longer than this gets its pad runes stripped.
	maxHoverText = 128

	// noPadThreshold is the line length above which no padding is added.
	// Padding only helps short lines separate visually.
	noPadThreshold = 20
)

// Fallback cover art shown when a track has no album artwork, picked by local
// time of day.
const (
	dayModeCover   = "https://i.imgur.com/GOVbNaF.png"
	nightModeCover = "https://i.imgur.com/kvGS4Pa.png"
)

// largeImageKeys marks the line keys rendered on the large-image hover text.
// They follow a slightly different padding policy than small-image lines.
var largeImageKeys = map[string]bool{
	"theme":            true,
	"artist_scrobbles": true,
	"first_time":       true,
}

// ///////////////////////////////////////////////
// Line formatting
// ///////////////////////////////////////////////

// Line is one labeled hover-text entry. Order is significant, so callers pass
// a slice rather than a map.
type Line struct {
	Key  string
	Text string
}

// FormatLines joins labeled lines into a single hover-text string. Each line
// is right-padded with pad toward the limit, less one pad per uppercase rune
// since uppercase glyphs render wider. Small-image lines longer than 20 runes
// get no padding. A single large-image line is returned as-is. If the joined
// result exceeds 128 runes all pad runes are stripped.
func FormatLines(lines []Line, limit int, pad rune) string {
	var b strings.Builder
	padStr := string(pad)

	for _, l := range lines {
		line := l.Text + " "
		if largeImageKeys[l.Key] {
			if len(lines) == 1 {
				b.Reset()
				b.WriteString(line)
				continue
			}
			b.WriteString(line)
			b.WriteString(strings.Repeat(padStr, padCount(line, limit)))
			b.WriteString(" ")
		} else {
			suffix := ""
			if runeLen(line) <= noPadThreshold {
				suffix = strings.Repeat(padStr, padCount(line, limit))
			}
			b.WriteString(line)
			b.WriteString(suffix)
			b.WriteString(" ")
		}
	}

	result := b.String()
	if runeLen(result) > maxHoverText {
		result = strings.ReplaceAll(result, padStr, "")
	}
	return strings.TrimSpace(result)
}

// padCount returns how many pad runes a line needs: the budget minus the line
// length minus one per uppercase rune, floored at zero.
func padCount(line string, limit int) int {
	upper := 0
	for _, r := range line {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	n := limit - runeLen(line) - upper
	if n < 0 {
		return 0
	}
	return n
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

// ///////////////////////////////////////////////
// Artwork selection
// ///////////////////////////////////////////////

// SelectArtwork resolves the large-image asset and its hover-text lines.
//
// With no explicit artwork it picks one of two fixed covers by local clock
// hour and emits a theme line. An artist the user has never played gets a
// first-listen line instead of any count. Otherwise, when showArtistStats is
// set, it emits the artist play count, with the track count appended when one
// exists.
func SelectArtwork(cat *i18n.Catalog, explicit string, artistCount, trackCount int, showArtistStats bool, now time.Time) (string, []Line) {
	var lines []Line

	artwork := explicit
	if artwork == "" {
		// Evening and night hours get the alternate cover.
		night := now.Hour() >= 18 || now.Hour() < 9
		if night {
			artwork = dayModeCover
			lines = append(lines, Line{"theme", cat.T("rpc_night_mode")})
		} else {
			artwork = nightModeCover
			lines = append(lines, Line{"theme", cat.T("rpc_day_mode")})
		}
	}

	if artistCount != 0 {
		if showArtistStats {
			msg := cat.T("rpc_scrobbles", strconv.Itoa(artistCount))
			if trackCount != 0 {
				msg = cat.T("rpc_scrobbles_total", strconv.Itoa(artistCount), strconv.Itoa(trackCount))
			}
			lines = append(lines, Line{"artist_scrobbles", msg})
		}
	} else {
		lines = append(lines, Line{"first_time", cat.T("rpc_first_time")})
	}

	return artwork, lines
}
