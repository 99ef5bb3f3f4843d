// Package tray models the daemon's menu surface. The menu is rebuilt as a
// plain item tree from a state snapshot on every change rather than holding
// live callbacks, so any frontend (the stdin console, a future tray icon) can
// render it.
package tray

import (
	"strconv"
	"time"

	"tools.zach/dev/scrobblecord/internal/config"
	"tools.zach/dev/scrobblecord/internal/i18n"
	"tools.zach/dev/scrobblecord/internal/presence"
)

// ///////////////////////////////////////////////
// Item model
// ///////////////////////////////////////////////

// Kind classifies a menu item.
type Kind int

const (
	// KindLabel is a read-only status line.
	KindLabel Kind = iota
	// KindAction triggers a one-shot command.
	KindAction
	// KindToggle is an independent on/off switch.
	KindToggle
	// KindRadio is one option of a mutually exclusive group.
	KindRadio
	// KindSeparator is a visual divider.
	KindSeparator
	// KindSubmenu groups child items.
	KindSubmenu
)

// Item is one node of the rendered menu tree.
type Item struct {
	// ID names the dispatch action. Empty for labels, separators, and
	// submenu headers.
	ID       string
	Kind     Kind
	Label    string
	Checked  bool
	Children []Item
}

// State is the snapshot the menu is rendered from.
type State struct {
	// NowPlaying is the identity of the current track, empty while idle.
	NowPlaying string
	// Session is the presence session view: connection state, artist stats,
	// display preferences.
	Session presence.Snapshot
	// Username is the configured Last.fm username.
	Username string
	// DebugEnabled reports whether the debug log level toggle is on.
	DebugEnabled bool
}

// Action IDs understood by the dispatcher.
const (
	ActOpenProfile        = "open_profile"
	ActToggleSmallImage   = "toggle_small_image"
	ActSmallSourceAvatar  = "small_source_avatar"
	ActSmallSourceDefault = "small_source_default"
	ActSmallSourceLastfm  = "small_source_lastfm"
	ActToggleUsername     = "toggle_username"
	ActToggleScrobbles    = "toggle_scrobbles"
	ActToggleArtists      = "toggle_artists"
	ActToggleLoved        = "toggle_loved"
	ActLargeArtistStats   = "large_mode_artist_stats"
	ActLargeAlbum         = "large_mode_album"
	ActToggleFocusArtist  = "toggle_focus_artist"
	ActToggleDebug        = "toggle_debug"
	ActReload             = "reload"
	ActQuit               = "quit"
)

// ///////////////////////////////////////////////
// Rendering
// ///////////////////////////////////////////////

// Build renders the menu tree for the given state.
func Build(cat *i18n.Catalog, st State) []Item {
	prefs := st.Session.Prefs

	nowPlaying := cat.T("no_track")
	if st.NowPlaying != "" {
		nowPlaying = cat.T("now_playing", st.NowPlaying)
	}

	stats := cat.T("stats_idle")
	if st.Session.Artist != "" {
		stats = cat.T("artist_plays", st.Session.Artist, strconv.Itoa(st.Session.ArtistCount))
	}

	status := cat.T("disconnected")
	if st.Session.State == presence.Connected {
		status = cat.T("connected")
		if !st.Session.ConnectedAt.IsZero() {
			status = cat.T("connected_with_time", st.Session.ConnectedAt.Format(time.Kitchen))
		}
	}

	return []Item{
		{ID: ActOpenProfile, Kind: KindAction, Label: cat.T("user", st.Username)},
		{Kind: KindLabel, Label: nowPlaying},
		{Kind: KindLabel, Label: stats},
		{Kind: KindLabel, Label: cat.T("discord_status", status)},
		{Kind: KindSeparator},
		{Kind: KindSubmenu, Label: cat.T("menu_small_image_options"), Children: []Item{
			{ID: ActToggleSmallImage, Kind: KindToggle, Label: cat.T("menu_show_small_image"), Checked: prefs.ShowSmallImage},
			{Kind: KindSeparator},
			{ID: ActSmallSourceAvatar, Kind: KindRadio, Label: cat.T("menu_use_avatar"), Checked: prefs.SmallImageSource == config.SmallImageAvatar},
			{ID: ActSmallSourceDefault, Kind: KindRadio, Label: cat.T("menu_use_default_icon"), Checked: prefs.SmallImageSource == config.SmallImageDefault},
			{ID: ActSmallSourceLastfm, Kind: KindRadio, Label: cat.T("menu_use_lastfm_icon"), Checked: prefs.SmallImageSource == config.SmallImageLastfm},
			{Kind: KindSeparator},
			{ID: ActToggleUsername, Kind: KindToggle, Label: cat.T("menu_show_username"), Checked: prefs.ShowUsername},
			{ID: ActToggleScrobbles, Kind: KindToggle, Label: cat.T("menu_show_scrobbles"), Checked: prefs.ShowScrobbles},
			{ID: ActToggleArtists, Kind: KindToggle, Label: cat.T("menu_show_artists"), Checked: prefs.ShowArtists},
			{ID: ActToggleLoved, Kind: KindToggle, Label: cat.T("menu_show_loved"), Checked: prefs.ShowLoved},
		}},
		{Kind: KindSubmenu, Label: cat.T("menu_large_image_options"), Children: []Item{
			{ID: ActLargeArtistStats, Kind: KindRadio, Label: cat.T("menu_show_artist_plays"), Checked: prefs.LargeImageMode == config.LargeImageArtistStats},
			{ID: ActLargeAlbum, Kind: KindRadio, Label: cat.T("menu_show_album_name"), Checked: prefs.LargeImageMode == config.LargeImageAlbum},
			{Kind: KindSeparator},
			{ID: ActToggleFocusArtist, Kind: KindToggle, Label: cat.T("menu_focus_artist"), Checked: prefs.FocusArtist},
		}},
		{Kind: KindSeparator},
		{ID: ActToggleDebug, Kind: KindToggle, Label: cat.T("menu_debug"), Checked: st.DebugEnabled},
		{ID: ActReload, Kind: KindAction, Label: cat.T("menu_reload")},
		{ID: ActQuit, Kind: KindAction, Label: cat.T("menu_quit")},
	}
}

// Actions returns the flat list of actionable item IDs in the tree, in
// render order. Used by the console frontend for input validation.
func Actions(items []Item) []string {
	var ids []string
	for _, it := range items {
		if it.ID != "" {
			ids = append(ids, it.ID)
		}
		if len(it.Children) > 0 {
			ids = append(ids, Actions(it.Children)...)
		}
	}
	return ids
}
