// Package anchor loads the configuration anchor, the locally trusted document naming the
// primary instance and the locations its configuration is downloaded from.
package anchor

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sha256simd "github.com/minio/sha256-simd"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

// Document is the XML form of a configuration anchor. The same element is embedded in
// private parameters to describe federation partner sources.
type Document struct {
	XMLName            xml.Name         `xml:"configurationAnchor"`
	GeneratedAt        string           `xml:"generatedAt,omitempty"`
	InstanceIdentifier string           `xml:"instanceIdentifier"`
	Sources            []SourceDocument `xml:"source"`
}

// SourceDocument is one download location of an anchor
type SourceDocument struct {
	DownloadURL       string   `xml:"downloadURL"`
	VerificationCerts []string `xml:"verificationCert"`
}

// Source converts the document into a configuration source
func (d Document) Source() (globalconf.Source, error) {
	instance := strings.TrimSpace(d.InstanceIdentifier)
	if instance == "" {
		return globalconf.Source{}, errors.New("missing instance identifier")
	}

	src := globalconf.Source{InstanceIdentifier: instance}
	for i, s := range d.Sources {
		loc := globalconf.Location{
			InstanceIdentifier: instance,
			DownloadURL:        strings.TrimSpace(s.DownloadURL),
		}
		for _, c := range s.VerificationCerts {
			der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(c), ""))
			if err != nil {
				return globalconf.Source{}, fmt.Errorf("source %d: invalid verification certificate: %w", i, err)
			}
			loc.VerificationCerts = append(loc.VerificationCerts, der)
		}
		src.Locations = append(src.Locations, loc)
	}
	return src, nil
}

// Anchor is a loaded configuration anchor
type Anchor struct {
	GeneratedAt time.Time
	Source      globalconf.Source

	// Hash is the hex SHA-256 of the anchor file content
	Hash string
}

// InstanceIdentifier returns the primary instance identifier
func (a *Anchor) InstanceIdentifier() string {
	return a.Source.InstanceIdentifier
}

// Parse parses anchor XML
func Parse(data []byte) (*Anchor, error) {
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", globalconf.ErrMalformedAnchor, err)
	}

	src, err := doc.Source()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", globalconf.ErrMalformedAnchor, err)
	}
	if len(src.Locations) == 0 {
		return nil, fmt.Errorf("%w: anchor of %s has no sources", globalconf.ErrMalformedAnchor, src.InstanceIdentifier)
	}

	a := &Anchor{Source: src, Hash: hashOf(data)}
	if doc.GeneratedAt != "" {
		if a.GeneratedAt, err = time.Parse(time.RFC3339, strings.TrimSpace(doc.GeneratedAt)); err != nil {
			return nil, fmt.Errorf("%w: invalid generatedAt %q", globalconf.ErrMalformedAnchor, doc.GeneratedAt)
		}
	}
	return a, nil
}

// Load reads and parses the anchor file at path
func Load(path string) (*Anchor, error) {
	// #nosec G304 -- the anchor path comes from trusted configuration
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", globalconf.ErrAnchorNotFound, path)
		}
		return nil, fmt.Errorf("failed to read anchor file %s: %w", path, err)
	}
	return Parse(data)
}

func hashOf(data []byte) string {
	sum := sha256simd.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Loader keeps the current anchor and reloads it when the file content changes
type Loader struct {
	path string

	mu      sync.Mutex
	current *Anchor
}

// NewLoader creates a loader for the anchor file at path
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the anchor file path
func (l *Loader) Path() string {
	return l.path
}

// Current returns the loaded anchor, or nil before the first successful Reload
func (l *Loader) Current() *Anchor {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Reload loads the anchor if none is loaded yet or the file changed since the last load.
// It returns the current anchor and whether it was (re)loaded.
func (l *Loader) Reload() (*Anchor, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// #nosec G304 -- the anchor path comes from trusted configuration
	data, err := os.ReadFile(filepath.Clean(l.path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("%w: %s", globalconf.ErrAnchorNotFound, l.path)
		}
		return nil, false, fmt.Errorf("failed to read anchor file %s: %w", l.path, err)
	}

	if l.current != nil && l.current.Hash == hashOf(data) {
		return l.current, false, nil
	}

	a, err := Parse(data)
	if err != nil {
		return nil, false, err
	}

	slog.Info("Configuration anchor loaded",
		"path", l.path,
		"instance", a.InstanceIdentifier(),
		"locations", len(a.Source.Locations))
	l.current = a
	return a, true, nil
}
