package globalconf

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// EscapeInstanceIdentifier turns an instance identifier into a single safe path element.
// Every byte outside [A-Za-z0-9._-] is percent-encoded, and identifiers made only of dots
// are fully encoded so they cannot refer to the current or parent directory.
func EscapeInstanceIdentifier(id string) string {
	if id == "" {
		return "_"
	}

	var b strings.Builder
	onlyDots := strings.Trim(id, ".") == ""
	for i := 0; i < len(id); i++ {
		c := id[i]
		if isUnreserved(c) && (c != '.' || !onlyDots) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.':
		return true
	}
	return false
}

// InstanceDir returns the directory holding the configuration of an instance
func InstanceDir(root, instanceIdentifier string) string {
	return filepath.Join(root, EscapeInstanceIdentifier(instanceIdentifier))
}

// FileName returns the local file name of a content part
func FileName(f File) (string, error) {
	var name string
	switch {
	case IsContentID(f.ContentIdentifier, ContentIDPrivateParameters):
		name = PrivateParametersFileName
	case IsContentID(f.ContentIdentifier, ContentIDSharedParameters):
		name = SharedParametersFileName
	case f.FileName != "":
		name = f.FileName
	default:
		name = lastSegment(f.ContentLocation)
	}

	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("cannot derive file name for content %s at %q", f.ContentIdentifier, f.ContentLocation)
	}
	return name, nil
}

// FilePath returns root / escaped instance identifier / file name for a content part.
// sourceInstance is used when the part does not declare an instance identifier.
func FilePath(root, sourceInstance string, f File) (string, error) {
	name, err := FileName(f)
	if err != nil {
		return "", err
	}
	instance := f.InstanceIdentifier
	if strings.TrimSpace(instance) == "" {
		instance = sourceInstance
	}
	return filepath.Join(InstanceDir(root, instance), name), nil
}

// MetadataPath returns the sidecar path for a content file path
func MetadataPath(contentPath string) string {
	return contentPath + MetadataSuffix
}

func lastSegment(contentLocation string) string {
	loc := contentLocation
	if u, err := url.Parse(contentLocation); err == nil {
		loc = u.Path
	}
	loc = strings.TrimRight(loc, "/")
	if i := strings.LastIndex(loc, "/"); i >= 0 {
		return loc[i+1:]
	}
	return loc
}
