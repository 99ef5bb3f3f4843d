package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "display.small_image_source")
// to their [FieldDoc] entries. The genconfig tool uses this map to annotate the
// generated config.default.toml with inline comments and alternative examples.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version — do not edit.",
	},

	// ── API ──────────────────────────────────────────────────────
	"api.key": {
		Comment: "Last.fm API credentials.\nCreate an API account at https://www.last.fm/api/account/create",
	},
	"api.secret": {},

	// ── User ─────────────────────────────────────────────────────
	"user.username": {
		Comment: "The Last.fm account whose now-playing track is mirrored to Discord.",
	},

	// ── App ──────────────────────────────────────────────────────
	"app.lang": {
		Comment: "Language for menu and presence strings (BCP-47 code).",
		Alternatives: []string{
			`lang = "tr-TR"`,
		},
	},
	"app.discord_app_id": {
		Comment: "Application ID for Discord Rich Presence.\nOverride with your own Discord app if you want custom images.",
	},

	// ── Display ──────────────────────────────────────────────────
	"display.show_scrobbles": {
		Comment: "Small image hover text: which profile stats to include.",
	},
	"display.show_artists":  {},
	"display.show_loved":    {},
	"display.show_username": {},
	"display.show_small_image": {
		Comment: "Master toggle for the small image slot.",
	},
	"display.small_image_source": {
		Comment: "Which image fills the small slot.",
		Alternatives: []string{
			`small_image_source = "default"`,
			`small_image_source = "lastfm"`,
		},
	},
	"display.large_image_mode": {
		Comment: "Large image hover text: per-artist play counts or the album name.",
		Alternatives: []string{
			`large_image_mode = "album"`,
		},
	},
	"display.focus_artist": {
		Comment: "Feature the artist line instead of the track title in Discord's\nmember-list status preview.",
	},

	// ── Behavior ─────────────────────────────────────────────────
	"behavior.track_check_interval_seconds": {
		Comment: "Seconds between Last.fm polls while a track is playing.",
	},
	"behavior.idle_interval_seconds": {
		Comment: "Shorter poll interval while nothing is playing, so a new track\nshows up quickly.",
	},

	// ── Privacy ──────────────────────────────────────────────────
	"privacy.hide_artists": {
		Comment: "Artists matching any of these glob patterns are never published.\nMatching is case-insensitive.",
		Alternatives: []string{
			`hide_artists = ["Some Artist", "Guilty *"]`,
		},
	},

	// ── Log ──────────────────────────────────────────────────────
	"log.level": {
		Comment: "Minimum log level: trace, debug, info, warn, error.",
	},
	"log.max_size_mb": {
		Comment: "Rotate the log file when it exceeds this size.",
	},
}
