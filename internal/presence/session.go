// Package presence owns the Discord presence lifecycle: it connects and
// disconnects the IPC channel, caches per-track profile and library metadata,
// and assembles the rich-presence payload from the current track and the
// active display preferences.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"tools.zach/dev/scrobblecord/internal/config"
	"tools.zach/dev/scrobblecord/internal/discord"
	"tools.zach/dev/scrobblecord/internal/i18n"
	"tools.zach/dev/scrobblecord/internal/lastfm"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

const (
	// defaultAvatarURL is Last.fm's stock avatar, used as the small image
	// when the source preference is "default".
	defaultAvatarURL = "https://lastfm.freetls.fastly.net/i/u/avatar170s/818148bf682d429dc215c1705eb27b98.png"

	// lastfmIconURL is the Last.fm service icon, used as the small image
	// when the source preference is "lastfm".
	lastfmIconURL = "https://www.last.fm/static/images/lastfm_avatar_applemusic.b06eb8ad89be.png"

	// trackURLTemplate points at the track inside the user's own library.
	trackURLTemplate = "https://www.last.fm/user/%s/library/music/%s/_/%s"

	// ytMusicSearchTemplate is the secondary button target.
	ytMusicSearchTemplate = "https://music.youtube.com/search?q=%s"

	// placeholderAsset is the generic large-image identifier used when a
	// render has neither a countdown nor an album to show.
	placeholderAsset = "artwork"
)

// ///////////////////////////////////////////////
// Preferences
// ///////////////////////////////////////////////

// Preferences is the bundle of display toggles read on every render.
// Mutated by the menu dispatcher, read by the poll worker.
type Preferences struct {
	ShowScrobbles    bool
	ShowArtists      bool
	ShowLoved        bool
	ShowSmallImage   bool
	SmallImageSource string
	ShowUsername     bool
	LargeImageMode   string
	FocusArtist      bool
}

// PreferencesFromConfig seeds display preferences from a config snapshot.
func PreferencesFromConfig(cfg *config.Config) Preferences {
	return Preferences{
		ShowScrobbles:    cfg.Display.ShowScrobbles,
		ShowArtists:      cfg.Display.ShowArtists,
		ShowLoved:        cfg.Display.ShowLoved,
		ShowSmallImage:   cfg.Display.ShowSmallImage,
		SmallImageSource: cfg.Display.SmallImageSource,
		ShowUsername:     cfg.Display.ShowUsername,
		LargeImageMode:   cfg.Display.LargeImageMode,
		FocusArtist:      cfg.Display.FocusArtist,
	}
}

// ///////////////////////////////////////////////
// Collaborator interfaces
// ///////////////////////////////////////////////

// Channel is the presence side of the Discord IPC client.
// [discord.Client] satisfies it.
type Channel interface {
	Connect() error
	SetActivity(activity *discord.Activity) error
	ClearActivity() error
	Close() error
}

// Metadata is the Last.fm side the session consumes: profile header and
// library play counts. [lastfm.Client] satisfies it.
type Metadata interface {
	Username() string
	Profile(ctx context.Context) (*lastfm.Profile, error)
	LibraryStats(ctx context.Context, artist, title string) (*lastfm.LibraryStats, error)
}

// ///////////////////////////////////////////////
// Session
// ///////////////////////////////////////////////

// State is the presence connection state.
type State int

const (
	// Disconnected means no IPC channel is open.
	Disconnected State = iota
	// Connected means presence updates flow to Discord.
	Connected
)

// String returns the state name for logs and menu labels.
func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Snapshot is a read-only view of the session for menu rendering.
type Snapshot struct {
	State       State
	ConnectedAt time.Time
	Artist      string
	ArtistCount int
	Prefs       Preferences
}

// Session drives Discord presence for one user. All methods are safe for
// concurrent use; the poll worker and the menu dispatcher share one Session.
type Session struct {
	channel Channel
	cat     *i18n.Catalog
	log     *slog.Logger
	clock   func() time.Time

	mu    sync.Mutex
	meta  Metadata
	prefs Preferences
	state State
	// connectedAt is the time of the last successful Connect.
	connectedAt time.Time

	// Render memoization, reset on disconnect so a resumed track renders fresh.
	lastIdentity    string
	lastArtist      string
	lastArtistCount int

	// Single-entry metadata cache keyed by track identity.
	cachedIdentity string
	cachedProfile  *lastfm.Profile
	cachedStats    *lastfm.LibraryStats
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) SessionOption {
	return func(s *Session) { s.clock = clock }
}

// NewSession creates a presence session over the given channel and metadata
// source with the initial display preferences.
func NewSession(channel Channel, meta Metadata, cat *i18n.Catalog, prefs Preferences, opts ...SessionOption) *Session {
	s := &Session{
		channel: channel,
		meta:    meta,
		cat:     cat,
		prefs:   prefs,
		log:     slog.Default().With("component", "presence"),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetMetadata swaps the metadata source, used after a config reload rebinds
// the Last.fm client. The metadata cache is dropped since the user identity
// may have changed.
func (s *Session) SetMetadata(meta Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
	s.cachedIdentity = ""
	s.cachedProfile = nil
	s.cachedStats = nil
}

// Preferences returns a copy of the current display preferences.
func (s *Session) Preferences() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// UpdatePreferences applies fn to the display preferences and clears the
// last-rendered identity so the next update re-renders.
func (s *Session) UpdatePreferences(fn func(*Preferences)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.prefs)
	s.lastIdentity = ""
}

// InvalidateRender clears the last-rendered identity so the next
// [Session.UpdateStatus] pushes a payload even for an unchanged track.
func (s *Session) InvalidateRender() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastIdentity = ""
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a read-only view for menu rendering.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:       s.state,
		ConnectedAt: s.connectedAt,
		Artist:      s.lastArtist,
		ArtistCount: s.lastArtistCount,
		Prefs:       s.prefs,
	}
}

// ///////////////////////////////////////////////
// Lifecycle
// ///////////////////////////////////////////////

// Enable connects to Discord if not already connected. A missing Discord
// client is logged at warn and retried on the next call; other connect
// failures are logged and swallowed.
func (s *Session) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Connected {
		return
	}
	if err := s.channel.Connect(); err != nil {
		if errors.Is(err, discord.ErrIPCNotAvailable) {
			s.log.Warn("Discord not found, will retry in next cycle")
		} else {
			s.log.Error("error connecting to Discord", "error", err)
		}
		return
	}
	s.state = Connected
	s.connectedAt = s.clock()
	s.log.Info("connected with Discord")
}

// Disable clears any pushed presence, closes the channel, and resets the
// render memoization so a resumed track is treated as new.
func (s *Session) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked("disconnected from Discord due to inactivity on Last.fm")
}

// disconnectLocked tears down the connection and resets render state.
// The caller must hold s.mu.
func (s *Session) disconnectLocked(msg string) {
	if s.state == Disconnected {
		return
	}
	if err := s.channel.ClearActivity(); err != nil {
		s.log.Debug("clearing activity on disconnect", "error", err)
	}
	if err := s.channel.Close(); err != nil {
		s.log.Debug("closing Discord channel", "error", err)
	}
	s.state = Disconnected
	s.connectedAt = time.Time{}
	s.lastIdentity = ""
	s.lastArtist = ""
	s.lastArtistCount = 0
	s.log.Info(msg)
}

// ///////////////////////////////////////////////
// Rendering
// ///////////////////////////////////////////////

// UpdateStatus assembles and pushes a presence payload for the given track.
// Calling it again with the same identity is a no-op. A metadata fetch
// failure aborts without touching session state so the next poll can retry.
// A push failure forces a disconnect so the next cycle reconnects.
func (s *Session) UpdateStatus(ctx context.Context, identity string, track *lastfm.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	title := track.Title
	// Discord rejects fields shorter than two characters.
	if runeLen(title) < 2 {
		title += " "
	}

	if s.lastIdentity == identity && s.lastArtist != "" {
		return
	}

	hasCountdown := track.TimeRemaining > 0
	remaining := track.TimeRemaining
	if hasCountdown {
		remaining = truncateRemaining(remaining)
	}

	profile, stats, ok := s.metadataLocked(ctx, identity, track.Artist, track.Title)
	if !ok {
		return
	}

	start := s.clock()
	s.lastIdentity = identity
	s.lastArtist = track.Artist
	s.lastArtistCount = stats.ArtistCount

	username := s.meta.Username()
	buttons := s.buildButtons(username, track.Artist, track.Title, track.Album)
	smallImage, smallText := s.buildSmallImage(profile, username)
	artwork, largeText := s.buildLargeImage(track.ArtworkURL, track.Album, stats, start)

	displayType := discord.StatusDisplayDetails
	if s.prefs.FocusArtist {
		displayType = discord.StatusDisplayState
	}
	state := track.Artist
	if hasCountdown && track.Album != "" {
		state = track.Artist + " - " + track.Album
	}

	largeAsset := artwork
	if !hasCountdown && track.Album == "" {
		largeAsset = placeholderAsset
	}

	activity := &discord.Activity{
		Type:              discord.ActivityListening,
		StatusDisplayType: displayType,
		Details:           title,
		State:             state,
		Buttons:           buttons,
		Assets: &discord.Assets{
			LargeImage: largeAsset,
			LargeText:  largeText,
			SmallImage: smallImage,
			SmallText:  smallText,
		},
	}
	if hasCountdown {
		activity.Timestamps = &discord.Timestamps{End: start.Unix() + int64(remaining)}
	}

	if err := s.channel.SetActivity(activity); err != nil {
		s.log.Error("error updating presence", "error", err)
		// A failed push usually means the pipe died. Force a disconnect so
		// the next poll cycle reconnects.
		s.disconnectLocked("disconnected from Discord after failed update")
	}
}

// truncateRemaining reproduces the legacy countdown truncation: the first
// three characters of the decimal string, reparsed. 125.9 becomes 125 while
// 5.5 stays 5.5. Lossy on purpose, the rendered countdown depends on it.
func truncateRemaining(seconds float64) float64 {
	str := strconv.FormatFloat(seconds, 'f', -1, 64)
	if len(str) > 3 {
		str = str[:3]
	}
	str = strings.TrimSuffix(str, ".")
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return seconds
	}
	return v
}

// metadataLocked resolves (profile, stats) through the single-entry cache.
// The caller must hold s.mu. A fetch failure leaves the cache untouched and
// returns ok=false.
func (s *Session) metadataLocked(ctx context.Context, identity, artist, title string) (*lastfm.Profile, *lastfm.LibraryStats, bool) {
	if s.cachedIdentity == identity && s.cachedProfile != nil && s.cachedStats != nil {
		s.log.Debug("using cached Last.fm stats", "track", identity)
		return s.cachedProfile, s.cachedStats, true
	}

	profile, err := s.meta.Profile(ctx)
	if err != nil {
		s.log.Error("user data not found", "user", s.meta.Username(), "error", err)
		return nil, nil, false
	}

	stats, err := s.meta.LibraryStats(ctx, artist, title)
	if err != nil {
		s.log.Error("library data not found", "user", s.meta.Username(), "error", err)
		return nil, nil, false
	}

	s.cachedIdentity = identity
	s.cachedProfile = profile
	s.cachedStats = stats
	return profile, stats, true
}

// buildButtons compiles the two presence link buttons: the track in the
// user's Last.fm library and a YouTube Music search.
func (s *Session) buildButtons(username, artist, title, album string) []discord.Button {
	return []discord.Button{
		{
			Label: s.cat.T("menu_view_track"),
			URL:   fmt.Sprintf(trackURLTemplate, username, url.PathEscape(artist), url.PathEscape(title)),
		},
		{
			Label: "YouTube Music",
			URL:   fmt.Sprintf(ytMusicSearchTemplate, url.QueryEscape(album)),
		},
	}
}

// buildSmallImage resolves the small-image asset and hover text from the
// profile snapshot, governed by the display preferences. The caller must
// hold s.mu.
func (s *Session) buildSmallImage(profile *lastfm.Profile, username string) (string, string) {
	if !s.prefs.ShowSmallImage {
		return "", ""
	}

	var asset string
	switch s.prefs.SmallImageSource {
	case config.SmallImageAvatar:
		asset = profile.AvatarURL
	case config.SmallImageDefault:
		asset = defaultAvatarURL
	case config.SmallImageLastfm:
		asset = lastfmIconURL
	}

	var lines []Line
	if s.prefs.ShowUsername {
		lines = append(lines, Line{"name", fmt.Sprintf("%s (@%s)", profile.DisplayName, username)})
	}
	if s.prefs.ShowScrobbles {
		lines = append(lines, Line{"scrobbles", s.cat.T("rpc_scrobbles", strconv.Itoa(profile.Scrobbles))})
	}
	if s.prefs.ShowArtists {
		lines = append(lines, Line{"artists", s.cat.T("rpc_artists", strconv.Itoa(profile.Artists))})
	}
	if s.prefs.ShowLoved {
		lines = append(lines, Line{"loved_tracks", s.cat.T("rpc_loved_tracks", strconv.Itoa(profile.LovedTracks))})
	}

	return asset, FormatLines(lines, LineLimit, PadRune)
}

// buildLargeImage resolves the large-image asset and hover text. The caller
// must hold s.mu.
func (s *Session) buildLargeImage(artworkURL, album string, stats *lastfm.LibraryStats, now time.Time) (string, string) {
	showStats := s.prefs.LargeImageMode == config.LargeImageArtistStats
	artwork, lines := SelectArtwork(s.cat, artworkURL, stats.ArtistCount, stats.TrackCount, showStats, now)

	text := FormatLines(lines, LineLimit, PadRune)
	if strings.TrimSpace(text) == "" {
		if album != "" {
			text = album
		} else {
			text = s.cat.T("rpc_listening_now")
		}
	}
	return artwork, text
}
