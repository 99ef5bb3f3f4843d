// Package i18n provides localized user-facing strings for the menu and
// presence text.
//
// Message catalogs are TOML files embedded at build time, one per locale.
// The requested language code from the config file is matched against the
// available catalogs with [language.Matcher], so "tr", "tr-TR" and even
// "tr-Cyrl" all resolve to the Turkish catalog. Unmatched languages fall
// back to en-US.
package i18n

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

// FallbackLang is the locale used when no catalog matches the requested
// language, and the source of last-resort strings for keys missing from a
// matched catalog.
const FallbackLang = "en-US"

// ///////////////////////////////////////////////
// Catalog
// ///////////////////////////////////////////////

// Catalog holds the resolved message set for one locale.
type Catalog struct {
	// tag is the matched language tag.
	tag language.Tag
	// messages maps message keys to template strings with {0}, {1}... slots.
	messages map[string]string
}

// Available returns the locale codes of all embedded catalogs, fallback first.
func Available() ([]string, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read embedded locales: %w", err)
	}
	var codes []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".toml")
		if name == FallbackLang {
			continue
		}
		codes = append(codes, name)
	}
	sort.Strings(codes)
	return append([]string{FallbackLang}, codes...), nil
}

// Load resolves lang against the embedded catalogs and returns the matched
// Catalog. Keys missing from a non-fallback catalog are filled from en-US so
// partial translations never surface raw keys.
func Load(lang string) (*Catalog, error) {
	codes, err := Available()
	if err != nil {
		return nil, err
	}

	tags := make([]language.Tag, 0, len(codes))
	for _, c := range codes {
		tag, parseErr := language.Parse(c)
		if parseErr != nil {
			return nil, fmt.Errorf("embedded locale %q has invalid code: %w", c, parseErr)
		}
		tags = append(tags, tag)
	}

	desired, parseErr := language.Parse(lang)
	if parseErr != nil {
		desired = tags[0]
	}
	// The matcher returns the fallback (index 0) when nothing matches.
	matcher := language.NewMatcher(tags)
	_, idx, _ := matcher.Match(desired)
	code := codes[idx]

	messages, err := readCatalog(code)
	if err != nil {
		return nil, err
	}
	if code != FallbackLang {
		fallback, fbErr := readCatalog(FallbackLang)
		if fbErr != nil {
			return nil, fbErr
		}
		for k, v := range fallback {
			if _, ok := messages[k]; !ok {
				messages[k] = v
			}
		}
	}

	return &Catalog{tag: tags[idx], messages: messages}, nil
}

// readCatalog parses one embedded locale file into a flat key/value map.
func readCatalog(code string) (map[string]string, error) {
	data, err := localeFS.ReadFile("locales/" + code + ".toml")
	if err != nil {
		return nil, fmt.Errorf("read locale %q: %w", code, err)
	}
	messages := make(map[string]string)
	if err := toml.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", code, err)
	}
	return messages, nil
}

// Lang returns the matched locale code, e.g. "en-US".
func (c *Catalog) Lang() string {
	return c.tag.String()
}

// T returns the message for key with positional {0}, {1}... slots replaced by
// the stringified args. Unknown keys return the key itself so a missing
// translation is visible rather than silent.
func (c *Catalog) T(key string, args ...any) string {
	msg, ok := c.messages[key]
	if !ok {
		return key
	}
	for i, a := range args {
		msg = strings.ReplaceAll(msg, fmt.Sprintf("{%d}", i), fmt.Sprint(a))
	}
	return msg
}
