// Package location orders the download locations of a configuration source.
//
// Locations are tried in the order returned by Order: the location that last
// succeeded for the source first, then HTTPS locations, then plain HTTP ones.
// Only URLs are remembered; a remembered URL the source no longer lists is ignored
// and a listed one is tried with the certificates the source currently carries.
// Both partitions are shuffled so that clients spread their load over mirrors.
package location

import (
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

// LastSuccessTable remembers the download URL that last succeeded for each source for
// the lifetime of the process. It is owned by the caller and passed to the downloader.
type LastSuccessTable struct {
	mu   sync.RWMutex
	urls map[string]string
}

// NewLastSuccessTable creates an empty table
func NewLastSuccessTable() *LastSuccessTable {
	return &LastSuccessTable{urls: make(map[string]string)}
}

// Get returns the last successful download URL of src
func (t *LastSuccessTable) Get(src globalconf.Source) (string, bool) {
	if t == nil {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.urls[src.Key()]
	return u, ok
}

// Put records the URL of loc as the last successful one of src
func (t *LastSuccessTable) Put(src globalconf.Source, loc globalconf.Location) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.urls[src.Key()] = loc.DownloadURL
}

// Forget removes the entry of src if it still points at loc
func (t *LastSuccessTable) Forget(src globalconf.Source, loc globalconf.Location) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.urls[src.Key()]; ok && last == loc.DownloadURL {
		delete(t.urls, src.Key())
	}
}

// Shuffler randomizes a slice in place
type Shuffler func(n int, swap func(i, j int))

// Order returns the candidate locations of src in the order they should be tried.
// A nil shuffle uses math/rand/v2.
func Order(src globalconf.Source, table *LastSuccessTable, shuffle Shuffler) []globalconf.Location {
	if shuffle == nil {
		shuffle = rand.Shuffle
	}

	var result []globalconf.Location
	seen := make(map[string]struct{})
	add := func(loc globalconf.Location) {
		if _, ok := seen[loc.DownloadURL]; ok {
			return
		}
		seen[loc.DownloadURL] = struct{}{}
		result = append(result, loc)
	}

	var secure, plain []globalconf.Location
	for _, loc := range src.Locations {
		u, ok := parse(loc.DownloadURL)
		if !ok {
			continue
		}
		if strings.EqualFold(u.Scheme, "https") {
			secure = append(secure, loc)
			continue
		}
		if strings.EqualFold(u.Scheme, "http") {
			u.Scheme = "https"
			secure = append(secure, loc.WithURL(u.String()))
		}
		plain = append(plain, loc)
	}

	shuffle(len(secure), func(i, j int) { secure[i], secure[j] = secure[j], secure[i] })
	shuffle(len(plain), func(i, j int) { plain[i], plain[j] = plain[j], plain[i] })

	if last, ok := table.Get(src); ok {
		if loc, found := find(last, secure, plain); found {
			add(loc)
		}
	}

	for _, loc := range secure {
		add(loc)
	}
	for _, loc := range plain {
		add(loc)
	}
	return result
}

// find returns the current location serving rawURL
func find(rawURL string, partitions ...[]globalconf.Location) (globalconf.Location, bool) {
	for _, locs := range partitions {
		for _, loc := range locs {
			if loc.DownloadURL == rawURL {
				return loc, true
			}
		}
	}
	return globalconf.Location{}, false
}

func parse(raw string) (*url.URL, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	return u, true
}
