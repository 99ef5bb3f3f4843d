package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tools.zach/dev/scrobblecord/internal/migrate"
	"tools.zach/dev/scrobblecord/internal/paths"
)

// writeConfig writes raw TOML to the config path inside a temp data dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, paths.ConfigFile), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestDefaultConfig_IdleShorterThanTrackInterval(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Behavior.IdleIntervalSeconds >= cfg.Behavior.TrackCheckIntervalSeconds {
		t.Errorf("idle interval %d should be shorter than track interval %d",
			cfg.Behavior.IdleIntervalSeconds, cfg.Behavior.TrackCheckIntervalSeconds)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Lang != "en-US" {
		t.Errorf("lang = %q, want en-US", cfg.App.Lang)
	}
	if cfg.HasCredentials() {
		t.Error("defaults should not have credentials")
	}
}

func TestLoad_ParsesAllSections(t *testing.T) {
	dir := writeConfig(t, `
version = 2

[api]
key = "k"
secret = "s"

[user]
username = "alice"

[app]
lang = "tr-TR"

[display]
show_scrobbles = false
small_image_source = "lastfm"
large_image_mode = "album"

[behavior]
track_check_interval_seconds = 7

[privacy]
hide_artists = ["Secret *"]

[log]
level = "debug"
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.HasCredentials() {
		t.Error("credentials not detected")
	}
	if cfg.User.Username != "alice" {
		t.Errorf("username = %q", cfg.User.Username)
	}
	if cfg.Display.ShowScrobbles {
		t.Error("show_scrobbles should be false")
	}
	if cfg.Display.SmallImageSource != SmallImageLastfm {
		t.Errorf("small_image_source = %q", cfg.Display.SmallImageSource)
	}
	if cfg.Display.LargeImageMode != LargeImageAlbum {
		t.Errorf("large_image_mode = %q", cfg.Display.LargeImageMode)
	}
	if cfg.Behavior.TrackCheckIntervalSeconds != 7 {
		t.Errorf("track interval = %d", cfg.Behavior.TrackCheckIntervalSeconds)
	}
	// Unset keys keep their defaults.
	if cfg.Behavior.IdleIntervalSeconds != 2 {
		t.Errorf("idle interval = %d, want default 2", cfg.Behavior.IdleIntervalSeconds)
	}
}

func TestLoad_MigratesV1SmallImageBooleans(t *testing.T) {
	dir := writeConfig(t, `
[api]
key = "k"
secret = "s"

[user]
username = "alice"

[display]
use_default_icon = true
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Display.SmallImageSource != SmallImageDefault {
		t.Errorf("small_image_source = %q, want %q", cfg.Display.SmallImageSource, SmallImageDefault)
	}
	if cfg.Version != migrate.Config.CurrentVersion {
		t.Errorf("version = %d, want %d", cfg.Version, migrate.Config.CurrentVersion)
	}

	// Migration writes a backup and re-saves the upgraded file.
	if _, err := os.Stat(filepath.Join(dir, paths.ConfigFile+".bak")); err != nil {
		t.Errorf("expected migration backup: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, paths.ConfigFile))
	if err != nil {
		t.Fatalf("read migrated file: %v", err)
	}
	if strings.Contains(string(data), "use_default_icon") {
		t.Error("migrated file still contains v1 key")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"bad small image source", "version = 2\n[display]\nsmall_image_source = \"webcam\"\n"},
		{"bad large image mode", "version = 2\n[display]\nlarge_image_mode = \"gif\"\n"},
		{"bad log level", "version = 2\n[log]\nlevel = \"loud\"\n"},
		{"zero track interval", "version = 2\n[behavior]\ntrack_check_interval_seconds = 0\n"},
		{"negative idle interval", "version = 2\n[behavior]\nidle_interval_seconds = -1\n"},
		{"bad glob", "version = 2\n[privacy]\nhide_artists = [\"[\"]\n"},
		{"not toml at all", "{\"json\": true}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.toml)
			if _, err := Load(dir); err == nil {
				t.Error("expected load error")
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, paths.ConfigFile)

	cfg := DefaultConfig()
	cfg.API.Key = "k"
	cfg.API.Secret = "s"
	cfg.User.Username = "alice"
	cfg.Privacy.HideArtists = []string{"guilty*"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.User.Username != "alice" {
		t.Errorf("username = %q", loaded.User.Username)
	}
	if len(loaded.Privacy.HideArtists) != 1 || loaded.Privacy.HideArtists[0] != "guilty*" {
		t.Errorf("hide_artists = %v", loaded.Privacy.HideArtists)
	}
}

func TestHasCredentials(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		secret   string
		username string
		want     bool
	}{
		{"all set", "k", "s", "u", true},
		{"missing key", "", "s", "u", false},
		{"missing secret", "k", "", "u", false},
		{"missing username", "k", "s", "", false},
		{"placeholder key", "<your last.fm api key>", "s", "u", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.API.Key = tt.key
			cfg.API.Secret = tt.secret
			cfg.User.Username = tt.username
			if got := cfg.HasCredentials(); got != tt.want {
				t.Errorf("HasCredentials() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsHiddenArtist(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Privacy.HideArtists = []string{"Guilty Pleasure", "secret *"}

	tests := []struct {
		artist string
		want   bool
	}{
		{"Guilty Pleasure", true},
		{"guilty pleasure", true}, // case-insensitive
		{"Secret Band", true},
		{"Public Band", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.artist, func(t *testing.T) {
			if got := cfg.IsHiddenArtist(tt.artist); got != tt.want {
				t.Errorf("IsHiddenArtist(%q) = %v, want %v", tt.artist, got, tt.want)
			}
		})
	}
}

func TestIsHiddenArtist_EmptyPatterns(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.IsHiddenArtist("Anyone") {
		t.Error("no patterns should hide nothing")
	}
}

func TestExampleConfig_Placeholders(t *testing.T) {
	cfg := ExampleConfig()
	if cfg.HasCredentials() {
		t.Error("example config placeholders must not count as credentials")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("example config invalid: %v", err)
	}
}
