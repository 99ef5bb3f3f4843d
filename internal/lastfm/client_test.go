package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// fakeAPI serves canned JSON per API method and counts calls.
type fakeAPI struct {
	t         *testing.T
	responses map[string]string
	calls     map[string]*atomic.Int64
}

func newFakeAPI(t *testing.T, responses map[string]string) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{t: t, responses: responses, calls: make(map[string]*atomic.Int64)}
	for method := range responses {
		f.calls[method] = &atomic.Int64{}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Query().Get("method")
		body, ok := f.responses[method]
		if !ok {
			t.Errorf("unexpected API method %q", method)
			http.Error(w, `{"error":6,"message":"unexpected method"}`, http.StatusBadRequest)
			return
		}
		f.calls[method].Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

const nowPlayingBody = `{
	"recenttracks": {"track": [{
		"name": "Song",
		"artist": {"#text": "Artist"},
		"album": {"#text": "Album"},
		"image": [
			{"size": "small", "#text": "https://img/small.png"},
			{"size": "extralarge", "#text": "https://img/xl.png"}
		],
		"@attr": {"nowplaying": "true"}
	}]}
}`

const idleBody = `{
	"recenttracks": {"track": [{
		"name": "Old Song",
		"artist": {"#text": "Artist"},
		"album": {"#text": "Album"},
		"image": []
	}]}
}`

const durationBody = `{"track": {"duration": "245000"}}`

func TestNowPlaying_ActiveTrack(t *testing.T) {
	_, srv := newFakeAPI(t, map[string]string{
		"user.getrecenttracks": nowPlayingBody,
		"track.getInfo":        durationBody,
	})
	c := NewClient("key", "alice", WithBaseURL(srv.URL+"/"))

	identity, track, err := c.NowPlaying(context.Background())
	if err != nil {
		t.Fatalf("NowPlaying: %v", err)
	}
	if identity != "Artist - Song" {
		t.Errorf("identity = %q", identity)
	}
	if track == nil {
		t.Fatal("track is nil")
	}
	if track.Title != "Song" || track.Artist != "Artist" || track.Album != "Album" {
		t.Errorf("track = %+v", track)
	}
	if track.ArtworkURL != "https://img/xl.png" {
		t.Errorf("artwork = %q, want largest image", track.ArtworkURL)
	}
	if track.TimeRemaining != 245 {
		t.Errorf("time remaining = %v, want 245", track.TimeRemaining)
	}
}

func TestNowPlaying_Idle(t *testing.T) {
	_, srv := newFakeAPI(t, map[string]string{
		"user.getrecenttracks": idleBody,
	})
	c := NewClient("key", "alice", WithBaseURL(srv.URL+"/"))

	identity, track, err := c.NowPlaying(context.Background())
	if err != nil {
		t.Fatalf("NowPlaying: %v", err)
	}
	if identity != "" || track != nil {
		t.Errorf("expected idle, got identity %q track %+v", identity, track)
	}
}

func TestNowPlaying_DetailsCachedAcrossPolls(t *testing.T) {
	f, srv := newFakeAPI(t, map[string]string{
		"user.getrecenttracks": nowPlayingBody,
		"track.getInfo":        durationBody,
	})
	c := NewClient("key", "alice", WithBaseURL(srv.URL+"/"))

	for range 3 {
		if _, _, err := c.NowPlaying(context.Background()); err != nil {
			t.Fatalf("NowPlaying: %v", err)
		}
	}

	if got := f.calls["user.getrecenttracks"].Load(); got != 3 {
		t.Errorf("recent tracks calls = %d, want 3", got)
	}
	if got := f.calls["track.getInfo"].Load(); got != 1 {
		t.Errorf("track.getInfo calls = %d, want 1 (details cached)", got)
	}
}

func TestNowPlaying_IdleClearsDetailsCache(t *testing.T) {
	responses := map[string]string{
		"user.getrecenttracks": nowPlayingBody,
		"track.getInfo":        durationBody,
	}
	f, srv := newFakeAPI(t, responses)
	c := NewClient("key", "alice", WithBaseURL(srv.URL+"/"))

	if _, _, err := c.NowPlaying(context.Background()); err != nil {
		t.Fatalf("first poll: %v", err)
	}
	responses["user.getrecenttracks"] = idleBody
	if _, _, err := c.NowPlaying(context.Background()); err != nil {
		t.Fatalf("idle poll: %v", err)
	}
	responses["user.getrecenttracks"] = nowPlayingBody
	if _, _, err := c.NowPlaying(context.Background()); err != nil {
		t.Fatalf("resumed poll: %v", err)
	}

	if got := f.calls["track.getInfo"].Load(); got != 2 {
		t.Errorf("track.getInfo calls = %d, want 2 (cache cleared on idle)", got)
	}
}

func TestNowPlaying_InvalidAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":10,"message":"Invalid API key"}`))
	}))
	defer srv.Close()

	c := NewClient("bad", "alice", WithBaseURL(srv.URL+"/"))
	_, _, err := c.NowPlaying(context.Background())
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("err = %v, want ErrInvalidAPIKey", err)
	}
}

func TestNowPlaying_MalformedResponse(t *testing.T) {
	_, srv := newFakeAPI(t, map[string]string{
		"user.getrecenttracks": `{"recenttracks": "not an object"}`,
	})
	c := NewClient("key", "alice", WithBaseURL(srv.URL+"/"))

	_, _, err := c.NowPlaying(context.Background())
	if err == nil {
		t.Fatal("expected parse error")
	}
	if errors.Is(err, ErrInvalidAPIKey) {
		t.Error("malformed response must not classify as invalid key")
	}
}

func TestProfile(t *testing.T) {
	_, srv := newFakeAPI(t, map[string]string{
		"user.getinfo": `{"user": {
			"name": "alice",
			"realname": "Alice",
			"playcount": "12345",
			"artist_count": "500",
			"image": [
				{"size": "small", "#text": "https://img/s.png"},
				{"size": "extralarge", "#text": "https://img/a.png"}
			]
		}}`,
		"user.getlovedtracks": `{"lovedtracks": {"@attr": {"total": "42"}}}`,
	})
	c := NewClient("key", "alice", WithBaseURL(srv.URL+"/"))

	p, err := c.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	want := Profile{
		DisplayName: "Alice",
		AvatarURL:   "https://img/a.png",
		Scrobbles:   12345,
		Artists:     500,
		LovedTracks: 42,
	}
	if *p != want {
		t.Errorf("profile = %+v, want %+v", *p, want)
	}
}

func TestProfile_FallsBackToUsername(t *testing.T) {
	_, srv := newFakeAPI(t, map[string]string{
		"user.getinfo":        `{"user": {"name": "alice", "realname": "", "playcount": 1}}`,
		"user.getlovedtracks": `{"lovedtracks": {"@attr": {"total": 0}}}`,
	})
	c := NewClient("key", "alice", WithBaseURL(srv.URL+"/"))

	p, err := c.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.DisplayName != "alice" {
		t.Errorf("display name = %q, want username fallback", p.DisplayName)
	}
}

func TestLibraryStats(t *testing.T) {
	_, srv := newFakeAPI(t, map[string]string{
		"artist.getInfo": `{"artist": {"stats": {"userplaycount": "3"}}}`,
		"track.getInfo":  `{"track": {"userplaycount": 10}}`,
	})
	c := NewClient("key", "alice", WithBaseURL(srv.URL+"/"))

	stats, err := c.LibraryStats(context.Background(), "Artist", "Song")
	if err != nil {
		t.Fatalf("LibraryStats: %v", err)
	}
	if stats.ArtistCount != 3 || stats.TrackCount != 10 {
		t.Errorf("stats = %+v, want {3 10}", stats)
	}
}

func TestLibraryStats_NeverPlayedArtist(t *testing.T) {
	_, srv := newFakeAPI(t, map[string]string{
		"artist.getInfo": `{"artist": {"stats": {"listeners": "900"}}}`,
		"track.getInfo":  `{"track": {"name": "Song"}}`,
	})
	c := NewClient("key", "alice", WithBaseURL(srv.URL+"/"))

	stats, err := c.LibraryStats(context.Background(), "Artist", "Song")
	if err != nil {
		t.Fatalf("LibraryStats: %v", err)
	}
	if stats.ArtistCount != 0 || stats.TrackCount != 0 {
		t.Errorf("stats = %+v, want zeros for unplayed artist", stats)
	}
}

func TestFlexInt(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want flexInt
		err  bool
	}{
		{"number", `7`, 7, false},
		{"quoted number", `"245000"`, 245000, false},
		{"empty string", `""`, 0, false},
		{"null", `null`, 0, false},
		{"garbage", `"abc"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f flexInt
			err := json.Unmarshal([]byte(tt.in), &f)
			if tt.err {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if f != tt.want {
				t.Errorf("flexInt = %d, want %d", f, tt.want)
			}
		})
	}
}
