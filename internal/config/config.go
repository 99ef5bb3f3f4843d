// Package config provides configuration loading and defaults for the
// Scrobblecord daemon.
//
// Configuration is loaded from a TOML file in the user's data directory.
// The package handles Last.fm API credentials, display preferences for the
// Discord presence, privacy controls, and daemon behavior with sensible
// defaults. Loading returns an immutable snapshot; editing the file and
// triggering a reload produces a fresh snapshot rather than mutating shared
// state in place.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/scrobblecord/internal/atomicfile"
	"tools.zach/dev/scrobblecord/internal/migrate"
	"tools.zach/dev/scrobblecord/internal/paths"
)

// DefaultDiscordAppID is the Discord application (OAuth2 client) ID whose
// asset set carries the generic artwork placeholder used by the large image.
const DefaultDiscordAppID = "702984897496875072"

// Small image source selector values.
const (
	SmallImageAvatar  = "avatar"
	SmallImageDefault = "default"
	SmallImageLastfm  = "lastfm"
)

// Large image content mode values.
const (
	LargeImageArtistStats = "artist_stats"
	LargeImageAlbum       = "album"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// API holds Last.fm API credentials.
	API APIConfig `toml:"api"`
	// User holds the tracked Last.fm account.
	User UserConfig `toml:"user"`
	// App holds application-wide settings.
	App AppConfig `toml:"app"`
	// Display holds presence display preferences.
	Display DisplayConfig `toml:"display"`
	// Behavior holds poll loop timing settings.
	Behavior BehaviorConfig `toml:"behavior"`
	// Privacy holds artist-hiding settings.
	Privacy PrivacyConfig `toml:"privacy"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// APIConfig holds Last.fm API credentials.
type APIConfig struct {
	// Key is the Last.fm API key.
	Key string `toml:"key"`
	// Secret is the Last.fm API shared secret.
	Secret string `toml:"secret"`
}

// UserConfig holds the tracked Last.fm account.
type UserConfig struct {
	// Username is the Last.fm account whose now-playing track is mirrored.
	Username string `toml:"username"`
}

// AppConfig holds application-wide settings.
type AppConfig struct {
	// Lang is the BCP-47 language code for menu and presence strings.
	Lang string `toml:"lang"`
	// DiscordAppID overrides the Discord application ID for Rich Presence.
	DiscordAppID string `toml:"discord_app_id"`
}

// DisplayConfig holds presence display preferences. These seed the runtime
// preference set; the tray menu mutates the runtime copy without writing back.
type DisplayConfig struct {
	// ShowScrobbles includes the total scrobble count in the small image text.
	ShowScrobbles bool `toml:"show_scrobbles"`
	// ShowArtists includes the distinct artist count in the small image text.
	ShowArtists bool `toml:"show_artists"`
	// ShowLoved includes the loved track count in the small image text.
	ShowLoved bool `toml:"show_loved"`
	// ShowSmallImage is the master toggle for the small image slot.
	ShowSmallImage bool `toml:"show_small_image"`
	// SmallImageSource selects the small image: "avatar", "default", or "lastfm".
	SmallImageSource string `toml:"small_image_source"`
	// ShowUsername includes the display name and username in the small image text.
	ShowUsername bool `toml:"show_username"`
	// LargeImageMode selects the large image text: "artist_stats" or "album".
	LargeImageMode string `toml:"large_image_mode"`
	// FocusArtist makes Discord feature the state (artist) line over the title.
	FocusArtist bool `toml:"focus_artist"`
}

// BehaviorConfig holds poll loop timing settings.
type BehaviorConfig struct {
	// TrackCheckIntervalSeconds is the wait between polls while a track plays.
	TrackCheckIntervalSeconds int `toml:"track_check_interval_seconds"`
	// IdleIntervalSeconds is the shorter wait between polls while idle.
	IdleIntervalSeconds int `toml:"idle_interval_seconds"`
}

// PrivacyConfig holds artist-hiding settings.
type PrivacyConfig struct {
	// HideArtists is a list of glob patterns; tracks whose artist matches any
	// pattern are treated as "nothing playing" and never published.
	HideArtists []string `toml:"hide_artists"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
// Credentials are intentionally empty; the daemon refuses to start without
// them (see [Config.HasCredentials]).
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		App: AppConfig{
			Lang:         "en-US",
			DiscordAppID: DefaultDiscordAppID,
		},
		Display: DisplayConfig{
			ShowScrobbles:    true,
			ShowArtists:      true,
			ShowLoved:        true,
			ShowSmallImage:   true,
			SmallImageSource: SmallImageAvatar,
			ShowUsername:     true,
			LargeImageMode:   LargeImageArtistStats,
			FocusArtist:      true,
		},
		Behavior: BehaviorConfig{
			TrackCheckIntervalSeconds: 5,
			IdleIntervalSeconds:       2,
		},
		Privacy: PrivacyConfig{
			HideArtists: []string{},
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
// Credential fields carry placeholder text so the generated file documents
// what the user must fill in.
func ExampleConfig() *Config {
	cfg := DefaultConfig()
	cfg.API.Key = "<your last.fm api key>"
	cfg.API.Secret = "<your last.fm api secret>"
	cfg.User.Username = "<your last.fm username>"
	return cfg
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/config.toml.
// If the file doesn't exist, returns DefaultConfig.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)

	shouldMigrate := migrate.Config.NeedsMigration(version)
	if shouldMigrate {
		// Write backup before migration
		if backupErr := os.WriteFile(path+".bak", data, 0o600); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
		var migrateErr error
		data, _, migrateErr = migrate.Config.Run(data, version)
		if migrateErr != nil {
			return nil, fmt.Errorf("migrate config: %w", migrateErr)
		}
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// Re-save after migration
	if shouldMigrate {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}

	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
// The file carries credentials, so it is written user-readable only.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o600)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
// Credential completeness is checked separately via [Config.HasCredentials]
// so a reload of an incomplete file can be rejected without being fatal.
func (c *Config) Validate() error {
	switch c.Display.SmallImageSource {
	case SmallImageAvatar, SmallImageDefault, SmallImageLastfm:
	default:
		return fmt.Errorf("invalid small_image_source %q: must be avatar, default, or lastfm", c.Display.SmallImageSource)
	}

	switch c.Display.LargeImageMode {
	case LargeImageArtistStats, LargeImageAlbum:
	default:
		return fmt.Errorf("invalid large_image_mode %q: must be artist_stats or album", c.Display.LargeImageMode)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}

	if c.Behavior.TrackCheckIntervalSeconds <= 0 {
		return fmt.Errorf("track_check_interval_seconds must be > 0, got %d", c.Behavior.TrackCheckIntervalSeconds)
	}

	if c.Behavior.IdleIntervalSeconds <= 0 {
		return fmt.Errorf("idle_interval_seconds must be > 0, got %d", c.Behavior.IdleIntervalSeconds)
	}

	if c.App.DiscordAppID == "" {
		return fmt.Errorf("discord_app_id must not be empty")
	}

	for _, pattern := range c.Privacy.HideArtists {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid hide_artists pattern %q", pattern)
		}
	}

	return nil
}

// HasCredentials reports whether the API key, secret, and username are all
// present and not left at the generated placeholder values.
func (c *Config) HasCredentials() bool {
	for _, v := range []string{c.API.Key, c.API.Secret, c.User.Username} {
		if v == "" || strings.HasPrefix(v, "<") {
			return false
		}
	}
	return true
}

// ///////////////////////////////////////////////
// Privacy Helpers
// ///////////////////////////////////////////////

// IsHiddenArtist reports whether artist matches any configured hide pattern.
// Matching is case-insensitive since Last.fm artist casing is inconsistent
// across endpoints.
func (c *Config) IsHiddenArtist(artist string) bool {
	name := strings.ToLower(artist)
	for _, pattern := range c.Privacy.HideArtists {
		matched, err := doublestar.Match(strings.ToLower(pattern), name)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
