package tray

import (
	"fmt"
	"log/slog"
	"sync"

	"tools.zach/dev/scrobblecord/internal/config"
	"tools.zach/dev/scrobblecord/internal/presence"
)

// Waker interrupts the poll loop's wait so a preference change renders
// immediately. The poller satisfies it.
type Waker interface {
	Wake()
}

// ///////////////////////////////////////////////
// Dispatcher
// ///////////////////////////////////////////////

// Dispatcher maps menu action IDs onto session preference mutations and
// daemon commands. Every preference mutation clears the session's render memo
// and wakes the poll loop.
type Dispatcher struct {
	session *presence.Session
	waker   Waker
	log     *slog.Logger

	// OnOpenProfile receives the profile URL to open. Wired by the binary.
	OnOpenProfile func(url string)
	// OnReload triggers a config reload.
	OnReload func()
	// OnQuit initiates daemon shutdown.
	OnQuit func()
	// OnToggleDebug flips the runtime log level and reports the new state.
	OnToggleDebug func() bool

	// Username returns the active Last.fm username for the profile URL.
	Username func() string

	mu           sync.Mutex
	settingsOpen bool
	debugEnabled bool
}

// NewDispatcher creates a Dispatcher over the given session and waker.
func NewDispatcher(session *presence.Session, waker Waker) *Dispatcher {
	return &Dispatcher{
		session: session,
		waker:   waker,
		log:     slog.Default().With("component", "tray"),
	}
}

// DebugEnabled reports the state of the debug toggle for menu rendering.
func (d *Dispatcher) DebugEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.debugEnabled
}

// Dispatch executes one menu action. Unknown IDs return an error.
func (d *Dispatcher) Dispatch(id string) error {
	switch id {
	case ActOpenProfile:
		if d.OnOpenProfile != nil && d.Username != nil {
			d.OnOpenProfile("https://www.last.fm/user/" + d.Username())
		}
	case ActToggleSmallImage:
		d.mutate(func(p *presence.Preferences) { p.ShowSmallImage = !p.ShowSmallImage })
	case ActSmallSourceAvatar:
		d.mutate(func(p *presence.Preferences) { p.SmallImageSource = config.SmallImageAvatar })
	case ActSmallSourceDefault:
		d.mutate(func(p *presence.Preferences) { p.SmallImageSource = config.SmallImageDefault })
	case ActSmallSourceLastfm:
		d.mutate(func(p *presence.Preferences) { p.SmallImageSource = config.SmallImageLastfm })
	case ActToggleUsername:
		d.mutate(func(p *presence.Preferences) { p.ShowUsername = !p.ShowUsername })
	case ActToggleScrobbles:
		d.mutate(func(p *presence.Preferences) { p.ShowScrobbles = !p.ShowScrobbles })
	case ActToggleArtists:
		d.mutate(func(p *presence.Preferences) { p.ShowArtists = !p.ShowArtists })
	case ActToggleLoved:
		d.mutate(func(p *presence.Preferences) { p.ShowLoved = !p.ShowLoved })
	case ActLargeArtistStats:
		d.mutate(func(p *presence.Preferences) { p.LargeImageMode = config.LargeImageArtistStats })
	case ActLargeAlbum:
		d.mutate(func(p *presence.Preferences) { p.LargeImageMode = config.LargeImageAlbum })
	case ActToggleFocusArtist:
		d.mutate(func(p *presence.Preferences) { p.FocusArtist = !p.FocusArtist })
	case ActToggleDebug:
		if d.OnToggleDebug != nil {
			enabled := d.OnToggleDebug()
			d.mu.Lock()
			d.debugEnabled = enabled
			d.mu.Unlock()
		}
	case ActReload:
		if d.OnReload != nil {
			d.OnReload()
		}
	case ActQuit:
		if d.OnQuit != nil {
			d.OnQuit()
		}
	default:
		return fmt.Errorf("unknown menu action %q", id)
	}
	return nil
}

// mutate applies a preference change and wakes the poll loop for an
// immediate re-render.
func (d *Dispatcher) mutate(fn func(*presence.Preferences)) {
	d.session.UpdatePreferences(fn)
	if d.waker != nil {
		d.waker.Wake()
	}
}

// ///////////////////////////////////////////////
// Settings session guard
// ///////////////////////////////////////////////

// OpenSettings claims the single interactive settings session. A second open
// attempt while one is active is rejected with a logged warning.
func (d *Dispatcher) OpenSettings() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settingsOpen {
		d.log.Warn("settings session already open")
		return false
	}
	d.settingsOpen = true
	return true
}

// CloseSettings releases the settings session.
func (d *Dispatcher) CloseSettings() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settingsOpen = false
}
