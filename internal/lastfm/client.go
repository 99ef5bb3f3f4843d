// Package lastfm is a typed client for the subset of the Last.fm REST API
// this daemon consumes: the now-playing track, the user profile header, and
// per-artist/per-track play counts.
//
// All calls go through ws.audioscrobbler.com/2.0 with format=json. Failures
// are classified three ways: [ErrInvalidAPIKey] is fatal and should terminate
// the process, transient network failures and malformed responses are returned
// as ordinary errors for the caller to log and treat as "no data this cycle".
package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is the Last.fm web service root.
const DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// maxResponseSize caps how much of a response body is read (1 MB).
const maxResponseSize = 1 << 20

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrInvalidAPIKey is returned when Last.fm rejects the configured API key.
// Callers treat this as fatal.
var ErrInvalidAPIKey = errors.New("invalid Last.fm API key")

// ///////////////////////////////////////////////
// Data Types
// ///////////////////////////////////////////////

// Track holds the metadata of the currently playing track.
type Track struct {
	Title      string
	Artist     string
	Album      string
	ArtworkURL string
	// TimeRemaining is the track duration in seconds, 0 when unknown or live.
	TimeRemaining float64
}

// Profile is a snapshot of the user's public profile header.
type Profile struct {
	DisplayName string
	AvatarURL   string
	Scrobbles   int
	Artists     int
	LovedTracks int
}

// LibraryStats holds the user's play counts for one artist and one track.
type LibraryStats struct {
	// ArtistCount is how many times the user has played this artist, 0 if never.
	ArtistCount int
	// TrackCount is how many times the user has played this exact track.
	TrackCount int
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client queries the Last.fm API on behalf of one user.
type Client struct {
	baseURL  string
	apiKey   string
	username string
	http     *retryablehttp.Client

	// mu protects the now-playing details cache.
	mu sync.Mutex
	// cachedIdentity is the identity of the last now-playing track whose
	// details were fetched, so repeated polls of the same track skip the
	// track.getInfo round-trip.
	cachedIdentity string
	cachedTrack    *Track
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// NewClient creates a Last.fm client bound to one username.
func NewClient(apiKey, username string, opts ...Option) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.HTTPClient.Timeout = 10 * time.Second
	hc.Logger = nil // suppress retryablehttp's default logging

	c := &Client{
		baseURL:  DefaultBaseURL,
		apiKey:   apiKey,
		username: username,
		http:     hc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Username returns the Last.fm username this client is bound to.
func (c *Client) Username() string {
	return c.username
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// NowPlaying returns the identity and metadata of the user's currently
// playing track, or ("", nil, nil) when nothing is playing. Repeated calls
// while the same track plays reuse cached details instead of re-fetching.
// Going idle clears the cache so a resumed track is fetched fresh.
func (c *Client) NowPlaying(ctx context.Context) (string, *Track, error) {
	head, err := c.recentHead(ctx)
	if err != nil {
		return "", nil, err
	}
	if head == nil {
		c.mu.Lock()
		c.cachedIdentity = ""
		c.cachedTrack = nil
		c.mu.Unlock()
		return "", nil, nil
	}

	identity := head.Artist.Text + " - " + head.Name

	c.mu.Lock()
	if c.cachedIdentity == identity && c.cachedTrack != nil {
		track := c.cachedTrack
		c.mu.Unlock()
		return identity, track, nil
	}
	c.mu.Unlock()

	track := &Track{
		Title:      head.Name,
		Artist:     head.Artist.Text,
		Album:      head.Album.Text,
		ArtworkURL: largestImage(head.Image),
	}

	// Duration comes from a separate track.getInfo call. A failure here is
	// not fatal to the poll: the track still renders, just without a countdown.
	duration, err := c.trackDuration(ctx, track.Artist, track.Title)
	if err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return "", nil, err
		}
	} else {
		track.TimeRemaining = duration
	}

	c.mu.Lock()
	c.cachedIdentity = identity
	c.cachedTrack = track
	c.mu.Unlock()
	return identity, track, nil
}

// Profile fetches the user's profile header: display name, avatar, and the
// scrobbles / artists / loved-tracks totals.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var info struct {
		User struct {
			Name        string  `json:"name"`
			RealName    string  `json:"realname"`
			PlayCount   flexInt `json:"playcount"`
			ArtistCount flexInt `json:"artist_count"`
			Image       []image `json:"image"`
		} `json:"user"`
	}
	if err := c.call(ctx, "user.getinfo", url.Values{"user": {c.username}}, &info); err != nil {
		return nil, fmt.Errorf("fetching user info: %w", err)
	}

	var loved struct {
		LovedTracks struct {
			Attr struct {
				Total flexInt `json:"total"`
			} `json:"@attr"`
		} `json:"lovedtracks"`
	}
	if err := c.call(ctx, "user.getlovedtracks", url.Values{"user": {c.username}, "limit": {"1"}}, &loved); err != nil {
		return nil, fmt.Errorf("fetching loved tracks: %w", err)
	}

	display := info.User.RealName
	if display == "" {
		display = info.User.Name
	}
	return &Profile{
		DisplayName: display,
		AvatarURL:   largestImage(info.User.Image),
		Scrobbles:   int(info.User.PlayCount),
		Artists:     int(info.User.ArtistCount),
		LovedTracks: int(loved.LovedTracks.Attr.Total),
	}, nil
}

// LibraryStats fetches the user's play counts for the given artist and track.
// A user who has never played the artist gets ArtistCount 0.
func (c *Client) LibraryStats(ctx context.Context, artist, title string) (*LibraryStats, error) {
	var artistInfo struct {
		Artist struct {
			Stats struct {
				UserPlayCount flexInt `json:"userplaycount"`
			} `json:"stats"`
		} `json:"artist"`
	}
	err := c.call(ctx, "artist.getInfo", url.Values{
		"artist":   {artist},
		"username": {c.username},
	}, &artistInfo)
	if err != nil {
		return nil, fmt.Errorf("fetching artist stats: %w", err)
	}

	var trackInfo struct {
		Track struct {
			UserPlayCount flexInt `json:"userplaycount"`
		} `json:"track"`
	}
	err = c.call(ctx, "track.getInfo", url.Values{
		"artist":   {artist},
		"track":    {title},
		"username": {c.username},
	}, &trackInfo)
	if err != nil {
		return nil, fmt.Errorf("fetching track stats: %w", err)
	}

	return &LibraryStats{
		ArtistCount: int(artistInfo.Artist.Stats.UserPlayCount),
		TrackCount:  int(trackInfo.Track.UserPlayCount),
	}, nil
}

// ///////////////////////////////////////////////
// Internal helpers
// ///////////////////////////////////////////////

// recentTrack is the wire shape of one entry in user.getrecenttracks.
type recentTrack struct {
	Name   string `json:"name"`
	Artist struct {
		Text string `json:"#text"`
	} `json:"artist"`
	Album struct {
		Text string `json:"#text"`
	} `json:"album"`
	Image []image `json:"image"`
	Attr  struct {
		NowPlaying string `json:"nowplaying"`
	} `json:"@attr"`
}

// image is one entry of a Last.fm image size ladder.
type image struct {
	Size string `json:"size"`
	Text string `json:"#text"`
}

// recentHead returns the head of the user's recent tracks when it is marked
// now-playing, or nil when the user is idle.
func (c *Client) recentHead(ctx context.Context) (*recentTrack, error) {
	var resp struct {
		RecentTracks struct {
			Track []recentTrack `json:"track"`
		} `json:"recenttracks"`
	}
	err := c.call(ctx, "user.getrecenttracks", url.Values{
		"user":  {c.username},
		"limit": {"1"},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetching recent tracks: %w", err)
	}

	if len(resp.RecentTracks.Track) == 0 {
		return nil, nil
	}
	head := resp.RecentTracks.Track[0]
	if head.Attr.NowPlaying != "true" {
		return nil, nil
	}
	return &head, nil
}

// trackDuration returns the track duration in seconds via track.getInfo,
// 0 when Last.fm has no duration on record.
func (c *Client) trackDuration(ctx context.Context, artist, title string) (float64, error) {
	var resp struct {
		Track struct {
			// Duration is reported in milliseconds.
			Duration flexInt `json:"duration"`
		} `json:"track"`
	}
	err := c.call(ctx, "track.getInfo", url.Values{
		"artist": {artist},
		"track":  {title},
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("fetching track duration: %w", err)
	}
	return float64(resp.Track.Duration) / 1000, nil
}

// apiError is the Last.fm JSON error envelope.
type apiError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

// Last.fm error codes that mean the API key itself is bad.
const (
	codeInvalidAPIKey    = 10
	codeSuspendedAPIKey  = 26
	codeInvalidSignature = 13
)

// call performs one GET against the API and decodes the JSON response into out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	params.Set("method", method)
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	// Last.fm reports API-level errors in the body, for both 200 and 4xx
	// statuses, so decode the error envelope before the payload.
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != 0 {
		switch apiErr.Code {
		case codeInvalidAPIKey, codeSuspendedAPIKey, codeInvalidSignature:
			return fmt.Errorf("%w: %s", ErrInvalidAPIKey, apiErr.Message)
		}
		return fmt.Errorf("%s: api error %d: %s", method, apiErr.Code, apiErr.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", method, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", method, err)
	}
	return nil
}

// largestImage returns the URL of the last non-empty entry in an image size
// ladder. Last.fm orders images small to large.
func largestImage(images []image) string {
	for i := len(images) - 1; i >= 0; i-- {
		if images[i].Text != "" {
			return images[i].Text
		}
	}
	return ""
}

// flexInt decodes Last.fm numeric fields, which arrive as either JSON numbers
// or quoted strings depending on the endpoint. Empty strings decode to 0.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		s = unquoted
	}
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing numeric field %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}
