// Package scrobblecord provides embedded assets for the Scrobblecord daemon.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML]. The daemon writes this file to the data directory on
// first run so users have a commented starting point to edit.
package scrobblecord

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time. Regenerate with `go run ./cmd/genconfig` after changing
// defaults.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
