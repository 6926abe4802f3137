package globalconf

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeInstanceIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		id       string
		expected string
	}{
		{name: "plain identifier", id: "EE", expected: "EE"},
		{name: "identifier with dash and dot", id: "FI-TEST.1", expected: "FI-TEST.1"},
		{name: "slash is escaped", id: "a/b", expected: "a%2Fb"},
		{name: "backslash is escaped", id: `a\b`, expected: "a%5Cb"},
		{name: "parent directory", id: "..", expected: "%2E%2E"},
		{name: "current directory", id: ".", expected: "%2E"},
		{name: "traversal attempt", id: "../etc", expected: "..%2Fetc"},
		{name: "space and colon", id: "A B:C", expected: "A%20B%3AC"},
		{name: "empty identifier", id: "", expected: "_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			escaped := EscapeInstanceIdentifier(tt.id)
			assert.Equal(t, tt.expected, escaped)
			assert.Equal(t, escaped, filepath.Base(escaped), "escaped identifier must be a single path element")
		})
	}
}

func TestFilePath(t *testing.T) {
	t.Parallel()

	root := filepath.Join("conf", "root")

	tests := []struct {
		name     string
		file     File
		expected string
		wantErr  bool
	}{
		{
			name:     "private parameters use fixed name",
			file:     File{ContentIdentifier: "PRIVATE-PARAMETERS", InstanceIdentifier: "EE", ContentLocation: "/V2/x/p.xml"},
			expected: filepath.Join(root, "EE", PrivateParametersFileName),
		},
		{
			name:     "shared parameters match case-insensitively",
			file:     File{ContentIdentifier: "shared-parameters", InstanceIdentifier: "FI", ContentLocation: "/V2/x/s.xml"},
			expected: filepath.Join(root, "FI", SharedParametersFileName),
		},
		{
			name:     "explicit file name wins over content location",
			file:     File{ContentIdentifier: "FOO", InstanceIdentifier: "EE", ContentLocation: "/V2/x/foo.bin", FileName: "bar.bin"},
			expected: filepath.Join(root, "EE", "bar.bin"),
		},
		{
			name:     "falls back to last content location segment",
			file:     File{ContentIdentifier: "FOO", InstanceIdentifier: "EE", ContentLocation: "/V2/20240101/foo.xml?x=1"},
			expected: filepath.Join(root, "EE", "foo.xml"),
		},
		{
			name:     "blank instance uses source instance",
			file:     File{ContentIdentifier: "FOO", ContentLocation: "foo.xml"},
			expected: filepath.Join(root, "SRC", "foo.xml"),
		},
		{
			name:     "file name cannot traverse",
			file:     File{ContentIdentifier: "FOO", InstanceIdentifier: "EE", FileName: "../../evil"},
			expected: filepath.Join(root, "EE", "evil"),
		},
		{
			name:    "no usable name",
			file:    File{ContentIdentifier: "FOO", InstanceIdentifier: "EE", ContentLocation: "/"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := FilePath(root, "SRC", tt.file)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p)
			assert.Equal(t, tt.expected+MetadataSuffix, MetadataPath(p))
		})
	}
}

func TestErrorCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorCodeOK, ErrorCode(nil))
	assert.Equal(t, ErrorCodeAnchorNotFound, ErrorCode(ErrAnchorNotFound))
	assert.Equal(t, ErrorCodeExpiredConf, ErrorCode(ErrExpiredConfiguration))
	assert.Equal(t, ErrorCodeInvalidSignatureValue, ErrorCode(ErrCertNotFound))
	assert.Equal(t, ErrorCodeMissingPrivateParams, ErrorCode(WithCode(ErrorCodeMissingPrivateParams, ErrMalformedConfiguration)))
	assert.Equal(t, ErrorCodeInternal, ErrorCode(assert.AnError))
}
