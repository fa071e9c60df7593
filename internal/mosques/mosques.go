// Package mosques loads the list of mosques to scrape.
package mosques

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed mosques.toml
var defaultList []byte

// Mosque is a mosque with a published prayer timetable.
type Mosque struct {
	Slug string `toml:"slug"`
	URL  string `toml:"url"`
	Name string `toml:"name"`
}

// List is a list of mosques.
type List []Mosque

type file struct {
	Mosque []Mosque `toml:"mosque"`
}

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Default returns the built-in mosque list.
func Default() List {
	l, err := Parse(defaultList)
	if err != nil {
		panic(fmt.Errorf("mosques: invalid built-in list: %w", err))
	}
	return l
}

// Load reads a mosque list from a TOML file. If path is empty, the built-in
// list is returned.
func Load(path string) (List, error) {
	if path == "" {
		return Default(), nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load mosque list: %w", err)
	}
	l, err := Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("load mosque list %q: %w", path, err)
	}
	return l, nil
}

// Parse parses and validates a TOML mosque list.
func Parse(buf []byte) (List, error) {
	var f file
	md, err := toml.Decode(string(buf), &f)
	if err != nil {
		return nil, err
	}
	if keys := md.Undecoded(); len(keys) != 0 {
		return nil, fmt.Errorf("unknown key %q", keys[0].String())
	}
	seen := map[string]bool{}
	for i, m := range f.Mosque {
		if !slugRe.MatchString(m.Slug) {
			return nil, fmt.Errorf("mosque %d: invalid slug %q", i+1, m.Slug)
		}
		if seen[m.Slug] {
			return nil, fmt.Errorf("mosque %d: duplicate slug %q", i+1, m.Slug)
		}
		seen[m.Slug] = true
		if u, err := url.Parse(m.URL); err != nil {
			return nil, fmt.Errorf("mosque %q: invalid url: %w", m.Slug, err)
		} else if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("mosque %q: invalid url %q", m.Slug, m.URL)
		}
	}
	return List(f.Mosque), nil
}

// Lookup finds the mosque with the specified slug.
func (l List) Lookup(slug string) (Mosque, bool) {
	if i := slices.IndexFunc(l, func(m Mosque) bool {
		return m.Slug == slug
	}); i != -1 {
		return l[i], true
	}
	return Mosque{}, false
}

// Slugs returns the slugs of all mosques in the list.
func (l List) Slugs() []string {
	s := make([]string, len(l))
	for i, m := range l {
		s[i] = m.Slug
	}
	return s
}

// MonthURL returns the timetable URL for the specified month.
func (m Mosque) MonthURL(month time.Month) string {
	u, err := url.Parse(m.URL)
	if err != nil {
		return m.URL
	}
	q := u.Query()
	q.Set("month", fmt.Sprintf("%02d", int(month)))
	u.RawQuery = q.Encode()
	return u.String()
}

// Label returns a human-readable name for the mosque.
func (m Mosque) Label() string {
	if s := strings.TrimSpace(m.Name); s != "" {
		return s
	}
	return m.Slug
}
