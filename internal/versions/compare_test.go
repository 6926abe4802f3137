package versions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNewerVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		candidate string
		current   string
		want      bool
	}{
		{name: "newer minor release", candidate: "v1.5.0", current: "v1.4.2", want: true},
		{name: "newer patch release", candidate: "1.4.3", current: "1.4.2", want: true},
		{name: "same release", candidate: "v1.4.2", current: "v1.4.2", want: false},
		{name: "older release", candidate: "v1.3.9", current: "v1.4.0", want: false},
		{name: "release after its prerelease", candidate: "v2.0.0", current: "v2.0.0-rc.1", want: true},
		{name: "prerelease before its release", candidate: "v2.0.0-rc.1", current: "v2.0.0", want: false},
		{name: "release supersedes a development build", candidate: "v1.0.0", current: "build-0123abcd", want: true},
		{name: "development build is never newer", candidate: "build-ffffffff", current: "v1.0.0", want: false},
		{name: "development builds are not ordered", candidate: "build-bbbbbbbb", current: "build-aaaaaaaa", want: false},
		{name: "empty candidate", candidate: "", current: "v1.0.0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsNewerVersion(tt.candidate, tt.current))
		})
	}
}
