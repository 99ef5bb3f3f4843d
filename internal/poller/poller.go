// Package poller runs the daemon's worker loop: poll Last.fm for the
// now-playing track, drive the presence session, and notify the menu surface
// when the visible state changes.
//
// The loop is cooperative. Preference changes and config reloads do not call
// into it directly; they set flags and fire a wake signal that short-circuits
// the current wait. One cycle never kills the loop: errors and panics degrade
// to an idle wait and the next cycle retries.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"tools.zach/dev/scrobblecord/internal/config"
	"tools.zach/dev/scrobblecord/internal/lastfm"
	"tools.zach/dev/scrobblecord/internal/logger"
	"tools.zach/dev/scrobblecord/internal/presence"
)

// ///////////////////////////////////////////////
// Collaborator interfaces
// ///////////////////////////////////////////////

// Provider is the Last.fm surface the poller consumes. [lastfm.Client]
// satisfies it.
type Provider interface {
	presence.Metadata
	NowPlaying(ctx context.Context) (string, *lastfm.Track, error)
}

// ProviderFactory builds a Provider from a config snapshot. Called once at
// start and again after every config reload.
type ProviderFactory func(cfg *config.Config) Provider

// Sink receives a notification when the now-playing track or the connection
// state changes, so the menu surface can re-render.
type Sink interface {
	Refresh(nowPlaying string, state presence.State)
}

// ///////////////////////////////////////////////
// Poller
// ///////////////////////////////////////////////

// Poller owns the worker goroutine.
type Poller struct {
	session *presence.Session
	factory ProviderFactory
	log     *slog.Logger

	// wake short-circuits the inter-cycle wait. Buffered to 1 so signals
	// coalesce.
	wake chan struct{}
	// forced marks the next cycle as a preference-triggered re-render that
	// may reuse the cached poll result.
	forced atomic.Bool
	// fatalExit terminates the process on an invalid API key. Replaced in
	// tests.
	fatalExit func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	sink          Sink
	cfg           *config.Config
	configChanged bool
	provider      Provider

	// Poll cache reused by forced re-renders so a preference toggle does not
	// cost a network round-trip.
	cachedIdentity string
	cachedTrack    *lastfm.Track

	// Last values pushed to the sink, to detect changes.
	lastNowPlaying string
	lastState      presence.State
}

// New creates a Poller. The initial provider is built from cfg via factory.
func New(session *presence.Session, factory ProviderFactory, sink Sink, cfg *config.Config) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		session:   session,
		factory:   factory,
		sink:      sink,
		log:       slog.Default().With("component", "poller"),
		wake:      make(chan struct{}, 1),
		fatalExit: func() { os.Exit(1) },
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		provider:  factory(cfg),
		lastState: presence.Disconnected,
	}
}

// SetSink installs the change-notification sink. Call before [Poller.Start]
// when the sink itself needs a reference to the poller.
func (p *Poller) SetSink(sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

// Start launches the worker goroutine.
func (p *Poller) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop cancels the loop and waits for the worker to exit.
func (p *Poller) Stop() {
	p.cancel()
	p.notifyWake()
	p.wg.Wait()
}

// Wake marks the next cycle as a forced re-render and interrupts the current
// wait. Called after every preference mutation.
func (p *Poller) Wake() {
	p.forced.Store(true)
	p.notifyWake()
}

// SetConfig installs a new config snapshot. The next cycle rebuilds the
// Last.fm client against it.
func (p *Poller) SetConfig(cfg *config.Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.configChanged = true
	p.mu.Unlock()
	p.notifyWake()
}

// NowPlaying returns the identity of the track the last cycle saw, empty when
// idle. Used for menu labels.
func (p *Poller) NowPlaying() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastNowPlaying
}

// notifyWake delivers one wake signal, coalescing with any pending one.
func (p *Poller) notifyWake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// ///////////////////////////////////////////////
// Worker loop
// ///////////////////////////////////////////////

// run executes cycles until the context is cancelled.
func (p *Poller) run() {
	defer p.wg.Done()
	logger.Trace(p.log, "starting poll loop")

	for {
		if p.ctx.Err() != nil {
			return
		}
		wait := p.safeCycle()
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		case <-time.After(wait):
		}
	}
}

// safeCycle runs one cycle, converting panics into an idle wait.
func (p *Poller) safeCycle() (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("poll cycle panicked", "panic", r)
			wait = p.idleInterval()
		}
	}()
	return p.cycle()
}

// cycle performs one poll iteration and returns how long to wait before the
// next one.
func (p *Poller) cycle() time.Duration {
	cfg, provider := p.currentConfig()
	forced := p.forced.Swap(false)

	identity, track := p.resolveTrack(forced, provider)

	if track != nil && cfg.IsHiddenArtist(track.Artist) {
		p.log.Debug("artist hidden by privacy filter", "artist", track.Artist)
		identity, track = "", nil
	}

	if track == nil {
		p.session.Disable()
		p.mu.Lock()
		p.cachedIdentity = ""
		p.cachedTrack = nil
		p.mu.Unlock()
		p.refreshSink("")
		return p.idleInterval()
	}

	p.session.Enable()
	p.session.UpdateStatus(p.ctx, identity, track)
	p.refreshSink(identity)
	return time.Duration(cfg.Behavior.TrackCheckIntervalSeconds) * time.Second
}

// currentConfig returns the active config snapshot and provider, rebuilding
// the provider first when a reload happened since the last cycle.
func (p *Poller) currentConfig() (*config.Config, Provider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.configChanged {
		p.provider = p.factory(p.cfg)
		p.session.SetMetadata(p.provider)
		p.cachedIdentity = ""
		p.cachedTrack = nil
		p.configChanged = false
		p.log.Info("rebuilt Last.fm client after config reload", "user", p.provider.Username())
	}
	return p.cfg, p.provider
}

// resolveTrack returns the track to render this cycle. Forced re-renders
// reuse the cached poll result when one exists; everything else polls fresh.
func (p *Poller) resolveTrack(forced bool, provider Provider) (string, *lastfm.Track) {
	if forced {
		p.mu.Lock()
		identity, track := p.cachedIdentity, p.cachedTrack
		p.mu.Unlock()
		if track != nil {
			p.log.Debug("forced update, reusing cached track", "track", identity)
			return identity, track
		}
	}

	identity, track, err := provider.NowPlaying(p.ctx)
	if err != nil {
		if errors.Is(err, lastfm.ErrInvalidAPIKey) {
			logger.Fail(p.log, "invalid Last.fm API key, update the config file with a valid key", "error", err)
			p.fatalExit()
			return "", nil
		}
		p.log.Error("now-playing poll failed", "error", err)
		return "", nil
	}

	if track != nil {
		p.mu.Lock()
		p.cachedIdentity = identity
		p.cachedTrack = track
		p.mu.Unlock()
	}
	return identity, track
}

// refreshSink notifies the sink when the now-playing track or connection
// state changed since the last notification.
func (p *Poller) refreshSink(nowPlaying string) {
	state := p.session.State()

	p.mu.Lock()
	changed := nowPlaying != p.lastNowPlaying || state != p.lastState
	p.lastNowPlaying = nowPlaying
	p.lastState = state
	sink := p.sink
	p.mu.Unlock()

	if changed && sink != nil {
		sink.Refresh(nowPlaying, state)
	}
}

// idleInterval returns the shorter wait used while nothing is playing.
func (p *Poller) idleInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.cfg.Behavior.IdleIntervalSeconds) * time.Second
}
