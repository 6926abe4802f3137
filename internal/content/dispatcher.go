// Package content dispatches downloaded configuration content to schema-version specific
// parsers and checks that parsed content belongs to the instance it was declared for.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

// SchemaVersion is the configuration schema version of a content part
type SchemaVersion int

// Supported schema versions
const (
	V2 SchemaVersion = 2
	V3 SchemaVersion = 3
	V4 SchemaVersion = 4
)

// ErrUnsupportedVersion is returned for schema versions without a registered variant
var ErrUnsupportedVersion = errors.New("unsupported configuration version")

// Variant parses the recognized content types of one schema version
type Variant struct {
	ParsePrivate func(data []byte) (*PrivateParameters, error)
	ParseShared  func(data []byte) (*SharedParameters, error)
}

// DefaultVariants returns the variants of all supported schema versions
func DefaultVariants() map[SchemaVersion]Variant {
	return map[SchemaVersion]Variant{
		V2: {ParsePrivate: parsePrivateParameters, ParseShared: parseSharedParametersV2},
		V3: {ParsePrivate: parsePrivateParameters, ParseShared: parseSharedParametersV3},
		V4: {ParsePrivate: parsePrivateParameters, ParseShared: parseSharedParametersV4},
	}
}

// Parsed is the result of dispatching a content part
type Parsed struct {
	ContentIdentifier  string
	InstanceIdentifier string

	// Private is set for private parameters content
	Private *PrivateParameters

	// Shared is set for shared parameters content
	Shared *SharedParameters
}

// Opaque reports whether the content was passed through without interpretation
func (p *Parsed) Opaque() bool {
	return p.Private == nil && p.Shared == nil
}

// Dispatcher routes content to the parser of its content type and schema version
type Dispatcher struct {
	variants map[SchemaVersion]Variant
}

// NewDispatcher creates a dispatcher. With no variants the defaults are used.
func NewDispatcher(variants map[SchemaVersion]Variant) *Dispatcher {
	if len(variants) == 0 {
		variants = DefaultVariants()
	}
	return &Dispatcher{variants: variants}
}

// Handle parses content described by f. Content types other than private and shared
// parameters are accepted as opaque.
func (d *Dispatcher) Handle(data []byte, f globalconf.File) (*Parsed, error) {
	parsed := &Parsed{ContentIdentifier: f.ContentIdentifier}

	isPrivate := globalconf.IsContentID(f.ContentIdentifier, globalconf.ContentIDPrivateParameters)
	isShared := globalconf.IsContentID(f.ContentIdentifier, globalconf.ContentIDSharedParameters)
	if !isPrivate && !isShared {
		return parsed, nil
	}

	variant, ok := d.variants[SchemaVersion(f.Version)]
	if !ok {
		return nil, fmt.Errorf("%w: %d for content part %s", ErrUnsupportedVersion, f.Version, f.ContentIdentifier)
	}

	var err error
	if isPrivate {
		parsed.Private, err = variant.ParsePrivate(data)
		if err == nil {
			parsed.InstanceIdentifier = parsed.Private.InstanceIdentifier
		}
	} else {
		parsed.Shared, err = variant.ParseShared(data)
		if err == nil {
			parsed.InstanceIdentifier = parsed.Shared.InstanceIdentifier
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: content part %s: %v", globalconf.ErrMalformedConfiguration, f.ContentIdentifier, err)
	}

	if err := verifyInstanceIdentifier(f, parsed.InstanceIdentifier); err != nil {
		return nil, err
	}
	return parsed, nil
}

func verifyInstanceIdentifier(f globalconf.File, parsed string) error {
	expected := strings.TrimSpace(f.InstanceIdentifier)
	if expected == "" {
		return nil
	}
	if expected != parsed {
		return fmt.Errorf("%w: Content part %s has invalid instance identifier (expected %s, but was %s)",
			globalconf.ErrMalformedConfiguration, f.ContentIdentifier, expected, parsed)
	}
	return nil
}

// ReadPrivateParameters reads private parameters persisted at path. The schema version is
// taken from the metadata sidecar. It returns nil without error when the file does not exist.
func (d *Dispatcher) ReadPrivateParameters(path string) (*PrivateParameters, error) {
	parsed, err := d.readStored(path, globalconf.ContentIDPrivateParameters)
	if err != nil || parsed == nil {
		return nil, err
	}
	return parsed.Private, nil
}

// ReadSharedParameters reads shared parameters persisted at path, like ReadPrivateParameters.
func (d *Dispatcher) ReadSharedParameters(path string) (*SharedParameters, error) {
	parsed, err := d.readStored(path, globalconf.ContentIDSharedParameters)
	if err != nil || parsed == nil {
		return nil, err
	}
	return parsed.Shared, nil
}

func (d *Dispatcher) readStored(path, contentID string) (*Parsed, error) {
	// #nosec G304 -- path is built from the configuration root and an escaped instance identifier
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", strings.ToLower(contentID), err)
	}

	meta, err := readMetadata(globalconf.MetadataPath(path))
	if err != nil {
		return nil, err
	}

	return d.Handle(data, globalconf.File{
		ContentIdentifier:  contentID,
		InstanceIdentifier: meta.InstanceIdentifier,
		Version:            meta.Version,
	})
}

func readMetadata(path string) (*globalconf.FileMetadata, error) {
	// #nosec G304 -- metadata sidecar next to a configuration file
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &globalconf.FileMetadata{Version: int(V2)}, nil
		}
		return nil, fmt.Errorf("failed to read metadata %s: %w", path, err)
	}
	var meta globalconf.FileMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: invalid metadata %s: %v", globalconf.ErrMalformedConfiguration, path, err)
	}
	if meta.Version == 0 {
		meta.Version = int(V2)
	}
	return &meta, nil
}
