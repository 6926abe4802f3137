package federation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_ShouldDownload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		allowed  string
		wantMode Mode
		accepted []string
		rejected []string
	}{
		{
			name:     "none",
			allowed:  "NONE",
			wantMode: ModeNone,
			accepted: []string{"EE"},
			rejected: []string{"FI", "foo"},
		},
		{
			name:     "empty means none",
			allowed:  "",
			wantMode: ModeNone,
			accepted: []string{"EE"},
			rejected: []string{"FI"},
		},
		{
			name:     "blank items only",
			allowed:  " , ,",
			wantMode: ModeNone,
			accepted: []string{"EE"},
			rejected: []string{"FI"},
		},
		{
			name:     "all",
			allowed:  "ALL",
			wantMode: ModeAll,
			accepted: []string{"EE", "FI", "anything"},
		},
		{
			name:     "all is case insensitive and beats a custom list",
			allowed:  "foo, all",
			wantMode: ModeAll,
			accepted: []string{"bar", "baz"},
		},
		{
			name:     "none anywhere wins over all",
			allowed:  "ALL, FI, none",
			wantMode: ModeNone,
			accepted: []string{"EE"},
			rejected: []string{"FI"},
		},
		{
			name:     "custom list",
			allowed:  "FOO, bar",
			wantMode: ModeCustom,
			accepted: []string{"EE", "FOO", "foo", "bar", "BAR", " Bar "},
			rejected: []string{"baz", "ee-other"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := NewFilter("EE", tt.allowed)
			assert.Equal(t, tt.wantMode, f.Mode())
			for _, id := range tt.accepted {
				assert.True(t, f.ShouldDownload(id), "expected %q to pass", id)
			}
			for _, id := range tt.rejected {
				assert.False(t, f.ShouldDownload(id), "expected %q to be rejected", id)
			}
		})
	}
}
