package migrate

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
)

// Registry holds the version and migrations for a single schema target.
type Registry struct {
	// CurrentVersion is the latest schema version that this registry targets.
	CurrentVersion int
	// Migrations is the ordered list of versioned upgrades. Exported so
	// tests can override the migration list for a given registry instance.
	Migrations []Migration
}

// Register appends a migration to the registry. It panics if a migration
// with the same version is already registered, preventing silent conflicts.
func (r *Registry) Register(m Migration) {
	for _, existing := range r.Migrations {
		if existing.Version == m.Version {
			panic(fmt.Sprintf("migrate: duplicate migration version %d (description: %q)", m.Version, m.Description))
		}
	}
	r.Migrations = append(r.Migrations, m)
}

// NeedsMigration reports whether a file at fileVersion would have any
// migrations applied.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	return NeedsMigration(fileVersion, r.CurrentVersion, r.Migrations)
}

// Run applies registered migrations sequentially where fromVersion < m.Version.
func (r *Registry) Run(data []byte, fromVersion int) ([]byte, int, error) {
	return Run(data, fromVersion, r.Migrations)
}

// Config is the migration registry for config.toml files.
var Config = &Registry{CurrentVersion: 2}

func init() {
	Config.Register(Migration{
		Version:     2,
		Description: "collapse small-image boolean trio into display.small_image_source",
		Upgrade:     upgradeSmallImageSource,
	})
}

// upgradeSmallImageSource rewrites the v1 display section, which carried three
// mutually exclusive booleans (use_custom_profile_image, use_default_icon,
// use_lastfm_icon), into the v2 single small_image_source enum. When more than
// one boolean was set, avatar wins over default icon, which wins over the
// Last.fm icon — the same precedence v1 readers applied.
func upgradeSmallImageSource(data []byte) ([]byte, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse v1 config: %w", err)
	}

	display, ok := raw["display"].(map[string]any)
	if ok {
		source := "avatar"
		switch {
		case truthy(display["use_custom_profile_image"]):
			source = "avatar"
		case truthy(display["use_default_icon"]):
			source = "default"
		case truthy(display["use_lastfm_icon"]):
			source = "lastfm"
		}
		delete(display, "use_custom_profile_image")
		delete(display, "use_default_icon")
		delete(display, "use_lastfm_icon")
		display["small_image_source"] = source
	}
	raw["version"] = 2

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return nil, fmt.Errorf("encode v2 config: %w", err)
	}
	return buf.Bytes(), nil
}

// truthy reports whether a decoded TOML value is the boolean true.
func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
