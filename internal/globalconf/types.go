// Package globalconf provides the data model shared by the configuration client components:
// sources, locations, downloaded configuration descriptors and on-disk naming.
package globalconf

import (
	"strings"
	"time"
)

const (
	// ContentIDPrivateParameters identifies private parameters content
	ContentIDPrivateParameters = "PRIVATE-PARAMETERS"

	// ContentIDSharedParameters identifies shared parameters content
	ContentIDSharedParameters = "SHARED-PARAMETERS"
)

const (
	// PrivateParametersFileName is the local file name of private parameters
	PrivateParametersFileName = "private-params.xml"

	// SharedParametersFileName is the local file name of shared parameters
	SharedParametersFileName = "shared-params.xml"

	// InstanceIdentifierFileName is the root-level marker holding the primary instance identifier
	InstanceIdentifierFileName = "instance-identifier"

	// MetadataSuffix is appended to a content file name to get its metadata sidecar
	MetadataSuffix = ".metadata"

	// LockFileName is the run lock kept in the configuration root
	LockFileName = ".confclient.lock"
)

// IsContentID reports whether id names the given content identifier, ignoring case.
func IsContentID(id, want string) bool {
	return strings.EqualFold(strings.TrimSpace(id), want)
}

// Location is a single download location of a configuration source
type Location struct {
	// InstanceIdentifier of the source this location serves
	InstanceIdentifier string `json:"instanceIdentifier"`

	// DownloadURL is the configuration directory URL
	DownloadURL string `json:"downloadUrl"`

	// VerificationCerts are DER encoded certificates used to verify the directory signature
	VerificationCerts [][]byte `json:"-"`
}

// WithURL returns a copy of the location pointing at another URL
func (l Location) WithURL(u string) Location {
	l.DownloadURL = u
	return l
}

// Source is a configuration source: an instance and the locations it can be downloaded from
type Source struct {
	InstanceIdentifier string
	Locations          []Location
}

// Key identifies the source in process-lifetime tables
func (s Source) Key() string {
	return s.InstanceIdentifier
}

// File describes one content part of a configuration directory
type File struct {
	ContentIdentifier  string
	ContentLocation    string
	Hash               string
	HashAlgorithmID    string
	InstanceIdentifier string
	ExpirationDate     time.Time
	Version            int

	// FileName is the optional explicit local name of the content
	FileName string
}

// Metadata returns the sidecar metadata persisted next to the content file
func (f File) Metadata() FileMetadata {
	return FileMetadata{
		ContentIdentifier:  f.ContentIdentifier,
		InstanceIdentifier: f.InstanceIdentifier,
		ContentLocation:    f.ContentLocation,
		Hash:               f.Hash,
		HashAlgorithmID:    f.HashAlgorithmID,
		ExpirationDate:     f.ExpirationDate,
		Version:            f.Version,
	}
}

// FileMetadata is the content of a .metadata sidecar file
type FileMetadata struct {
	ContentIdentifier  string    `json:"contentIdentifier"`
	InstanceIdentifier string    `json:"instanceIdentifier,omitempty"`
	ContentLocation    string    `json:"contentLocation"`
	Hash               string    `json:"hash"`
	HashAlgorithmID    string    `json:"hashAlgorithmId"`
	ExpirationDate     time.Time `json:"expirationDate"`
	Version            int       `json:"version"`
}

// Configuration is the parsed result of one successful directory fetch
type Configuration struct {
	Location       Location
	Version        int
	ExpirationDate time.Time
	Files          []File
}

// HasContent reports whether the configuration lists a file with the given content identifier
func (c *Configuration) HasContent(contentID string) bool {
	if c == nil {
		return false
	}
	for _, f := range c.Files {
		if IsContentID(f.ContentIdentifier, contentID) {
			return true
		}
	}
	return false
}
