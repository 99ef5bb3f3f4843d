// console.go implements the daemon's interactive menu surface as a line-based
// stdin console. It renders the same menu tree a tray icon would and forwards
// chosen actions to the dispatcher.

package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"tools.zach/dev/scrobblecord/internal/i18n"
	"tools.zach/dev/scrobblecord/internal/poller"
	"tools.zach/dev/scrobblecord/internal/presence"
	"tools.zach/dev/scrobblecord/internal/tray"
)

// ///////////////////////////////////////////////
// Console
// ///////////////////////////////////////////////

// console drives the menu over stdin/stdout. It also serves as the poller's
// sink: track and connection changes print a one-line status update.
type console struct {
	cat        *i18n.Catalog
	dispatcher *tray.Dispatcher
	poller     *poller.Poller
	session    *presence.Session
	username   func() string
	configPath func() string

	mu  sync.Mutex
	out io.Writer
}

// Refresh prints a status line when the now-playing track or connection
// state changes. Implements [poller.Sink].
func (c *console) Refresh(nowPlaying string, state presence.State) {
	label := c.cat.T("no_track")
	if nowPlaying != "" {
		label = c.cat.T("now_playing", nowPlaying)
	}
	c.printf("%s | %s\n", label, c.cat.T("discord_status", state.String()))
}

// printf serializes writes so status lines from the poller goroutine do not
// interleave with menu output.
func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// run reads commands until in is closed. Recognized commands: "menu" prints
// the menu tree, "settings"/"done" bracket an interactive settings session,
// a number or action ID dispatches that menu item, "help" lists commands.
func (c *console) run(in io.Reader) {
	c.printf("scrobblecord console: type 'menu' to show the menu, 'help' for commands\n")

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "help":
			c.printf("commands: menu, settings, done, help, quit, or a menu number/action id\n")
		case "menu":
			c.printMenu()
		case "settings":
			if c.dispatcher.OpenSettings() {
				c.printf("edit %s, then type 'done' to apply\n", c.configPath())
			} else {
				c.printf("a settings session is already open\n")
			}
		case "done":
			c.dispatcher.CloseSettings()
			c.dispatch(tray.ActReload)
		case "quit", "exit":
			c.dispatch(tray.ActQuit)
			return
		default:
			c.dispatch(c.resolveAction(line))
		}
	}
}

// dispatch forwards one action ID to the dispatcher, reporting errors to the
// console rather than the log.
func (c *console) dispatch(id string) {
	if err := c.dispatcher.Dispatch(id); err != nil {
		c.printf("%v\n", err)
	}
}

// resolveAction maps a numeric menu choice onto its action ID; anything
// non-numeric is treated as a raw action ID.
func (c *console) resolveAction(line string) string {
	n, err := strconv.Atoi(line)
	if err != nil {
		return line
	}
	ids := tray.Actions(c.buildMenu())
	if n < 1 || n > len(ids) {
		return line
	}
	return ids[n-1]
}

// buildMenu renders the menu tree from the live daemon state.
func (c *console) buildMenu() []tray.Item {
	return tray.Build(c.cat, tray.State{
		NowPlaying:   c.poller.NowPlaying(),
		Session:      c.session.Snapshot(),
		Username:     c.username(),
		DebugEnabled: c.dispatcher.DebugEnabled(),
	})
}

// printMenu writes the menu tree with actionable items numbered in the same
// order [tray.Actions] reports them.
func (c *console) printMenu() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	var walk func(items []tray.Item, indent string)
	walk = func(items []tray.Item, indent string) {
		for _, it := range items {
			switch it.Kind {
			case tray.KindSeparator:
				fmt.Fprintf(c.out, "%s---\n", indent)
			case tray.KindLabel:
				fmt.Fprintf(c.out, "%s%s\n", indent, it.Label)
			case tray.KindSubmenu:
				fmt.Fprintf(c.out, "%s%s:\n", indent, it.Label)
				walk(it.Children, indent+"  ")
			default:
				n++
				mark := " "
				if it.Kind == tray.KindToggle || it.Kind == tray.KindRadio {
					if it.Checked {
						mark = "x"
					}
				}
				fmt.Fprintf(c.out, "%s[%s] %2d. %s\n", indent, mark, n, it.Label)
			}
		}
	}
	walk(c.buildMenu(), "")
}
