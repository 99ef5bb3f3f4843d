// Package main implements the scrobblecord daemon, which polls Last.fm for
// the tracked user's now-playing track and publishes Discord Rich Presence
// updates.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	rootpkg "tools.zach/dev/scrobblecord"
	"tools.zach/dev/scrobblecord/internal/config"
	"tools.zach/dev/scrobblecord/internal/discord"
	"tools.zach/dev/scrobblecord/internal/i18n"
	"tools.zach/dev/scrobblecord/internal/lastfm"
	"tools.zach/dev/scrobblecord/internal/logger"
	"tools.zach/dev/scrobblecord/internal/paths"
	"tools.zach/dev/scrobblecord/internal/poller"
	"tools.zach/dev/scrobblecord/internal/presence"
	"tools.zach/dev/scrobblecord/internal/tray"
	"tools.zach/dev/scrobblecord/internal/update"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//   - goreleaser: -X main.version={{.Version}}  -> "0.1.0"
//   - make build: -X main.version=$(VERSION)    -> "0.0.0-dev+05ffee5"
//
// When ldflags are not set (bare go build), resolveVersion reads the VCS info
// that Go embeds automatically, so dev builds get a useful version string
// without needing git at runtime.
var version = "dev"

// resolveVersion returns the build version string. If [version] was set via
// ldflags at build time it is returned as-is; otherwise VCS revision and dirty
// state embedded by the Go toolchain are used to construct a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// PID Management
// ///////////////////////////////////////////////

// pidToken generates a random 16-character hex token used to prove ownership
// of the PID file, so [removePID] only deletes the file if this instance wrote it.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// writePID creates or opens the PID file at [DataPaths.PID], acquires an
// advisory file lock, and writes "PID:TOKEN" content. The returned file handle
// must be kept open for the lifetime of the daemon to hold the lock; pass it to
// [removePID] on shutdown.
func writePID(paths DataPaths, token string) (*os.File, error) {
	f, err := os.OpenFile(paths.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	content := fmt.Sprintf("%d:%s", os.Getpid(), token)
	if _, err := f.WriteString(content); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return f, nil
}

// removePID releases the advisory lock, closes the file handle, and removes the
// PID file only if the stored token matches, preventing accidental removal of a
// file owned by a different daemon instance.
func removePID(paths DataPaths, token string, f *os.File) {
	if f != nil {
		_ = unlockFile(f)
		f.Close()
	}
	data, err := os.ReadFile(paths.PID())
	if err != nil {
		return
	}
	parts := strings.SplitN(string(data), ":", 2)
	if len(parts) == 2 && parts[1] == token {
		os.Remove(paths.PID())
	}
}

// checkStalePID checks whether another daemon instance is running. It attempts
// to acquire the advisory lock on the PID file; if the lock fails, another
// instance holds it. If the lock succeeds, any previous instance is dead and
// the stale file is cleaned up.
func checkStalePID(paths DataPaths) (alive bool, pid int) {
	f, err := os.OpenFile(paths.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		data, _ := os.ReadFile(paths.PID())
		f.Close()
		parts := strings.SplitN(string(data), ":", 2)
		if len(parts) >= 1 {
			if p, convErr := strconv.Atoi(parts[0]); convErr == nil {
				return true, p
			}
		}
		return true, 0
	}

	// Lock acquired -- previous instance is dead. Clean up stale file.
	_ = unlockFile(f)
	f.Close()
	os.Remove(paths.PID())
	return false, 0
}

// defaultDataDir returns the platform default directory for scrobblecord data,
// typically ~/.scrobblecord. Falls back to ./.scrobblecord if the home
// directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	dataDir := flag.String("data-dir", defaultDataDir(), "Data directory for config and logs")
	flag.Parse()

	dp := DataPaths{Root: *dataDir}

	if err := os.MkdirAll(dp.Root, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: create data dir: %v\n", err)
		os.Exit(1)
	}

	if alive, pid := checkStalePID(dp); alive {
		fmt.Fprintf(os.Stderr, "daemon already running (pid %d)\n", pid)
		os.Exit(1)
	}

	if _, err := os.Stat(dp.Config()); os.IsNotExist(err) {
		if writeErr := os.WriteFile(dp.Config(), rootpkg.DefaultConfigTOML, 0o644); writeErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", writeErr)
		}
	}

	cfg, err := config.Load(dp.Root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: load config: %v\n", err)
		os.Exit(1)
	}

	log, levelVar, logCloser, err := logger.NewLogger(dp.Log(), logger.ParseLevel(cfg.Log.Level), cfg.Log.MaxSizeMB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: init logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	ver := resolveVersion()
	slog.Info("scrobblecord starting", "version", ver, "data_dir", dp.Root)

	if !cfg.HasCredentials() {
		logger.Fail(log, "missing Last.fm credentials, fill in api key, secret and username", "config", dp.Config())
		fmt.Fprintf(os.Stderr, "fatal: missing Last.fm credentials; edit %s and restart\n", dp.Config())
		os.Exit(1)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("update check panic", "error", r)
			}
		}()
		update.Check(ver)
	}()

	token := pidToken()
	pidFile, err := writePID(dp, token)
	if err != nil {
		slog.Error("failed to write PID file", "error", err)
		os.Exit(1)
	}
	defer removePID(dp, token, pidFile)

	cat, err := i18n.Load(cfg.App.Lang)
	if err != nil {
		slog.Error("failed to load language catalog", "lang", cfg.App.Lang, "error", err)
		os.Exit(1)
	}
	if cat.Lang() != cfg.App.Lang {
		slog.Warn("requested language unavailable, using fallback", "requested", cfg.App.Lang, "using", cat.Lang())
	}

	var current atomic.Pointer[config.Config]
	current.Store(cfg)

	factory := func(c *config.Config) poller.Provider {
		return lastfm.NewClient(c.API.Key, c.User.Username)
	}

	client := discord.NewClient(cfg.App.DiscordAppID)
	session := presence.NewSession(client, factory(cfg), cat, presence.PreferencesFromConfig(cfg))
	defer session.Disable()

	p := poller.New(session, factory, nil, cfg)

	dispatcher := tray.NewDispatcher(session, p)
	dispatcher.Username = func() string { return current.Load().User.Username }
	dispatcher.OnOpenProfile = func(url string) {
		slog.Info("open profile in your browser", "url", url)
		fmt.Println(url)
	}
	dispatcher.OnToggleDebug = func() bool {
		configured := logger.ParseLevel(current.Load().Log.Level)
		if levelVar.Level() == slog.LevelDebug && configured != slog.LevelDebug {
			levelVar.Set(configured)
			slog.Info("debug logging disabled")
			return false
		}
		levelVar.Set(slog.LevelDebug)
		slog.Info("debug logging enabled")
		return true
	}

	reload := func() {
		next, loadErr := config.Load(dp.Root)
		if loadErr != nil {
			slog.Warn("config reload failed, keeping previous settings", "error", loadErr)
			return
		}
		prev := current.Swap(next)
		if next.App.Lang != prev.App.Lang {
			slog.Warn("language change takes effect after restart", "lang", next.App.Lang)
		}
		if levelVar.Level() != slog.LevelDebug || logger.ParseLevel(prev.Log.Level) == slog.LevelDebug {
			levelVar.Set(logger.ParseLevel(next.Log.Level))
		}
		p.SetConfig(next)
		session.UpdatePreferences(func(prefs *presence.Preferences) {
			*prefs = presence.PreferencesFromConfig(next)
		})
		p.Wake()
		slog.Info("config reloaded")
	}
	dispatcher.OnReload = reload

	quit := make(chan struct{})
	var quitOnce sync.Once
	dispatcher.OnQuit = func() {
		quitOnce.Do(func() { close(quit) })
	}

	watcher, err := config.NewWatcher(dp.Root)
	if err != nil {
		slog.Error("failed to watch config file", "error", err)
		os.Exit(1)
	}
	defer watcher.Close()
	if watcher.Polling() {
		slog.Info("using polling mode for config watching")
	}

	cons := &console{
		cat:        cat,
		dispatcher: dispatcher,
		session:    session,
		username:   dispatcher.Username,
		configPath: func() string { return dp.Config() },
		out:        os.Stdout,
	}
	p.SetSink(cons)
	cons.poller = p

	p.Start()
	defer p.Stop()

	go cons.run(os.Stdin)

	sig := signalChannel()
	for {
		select {
		case s := <-sig:
			slog.Info("received signal, shutting down", "signal", s.String())
			return
		case <-quit:
			slog.Info("quit requested, shutting down")
			return
		case <-watcher.Events():
			slog.Info("config file changed on disk")
			reload()
		}
	}
}
