package download

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

func TestResult_Err(t *testing.T) {
	t.Parallel()

	refused := errors.New("connection refused")
	interrupted := context.Canceled

	tests := []struct {
		name      string
		result    func() *Result
		wantCount int
		wantLast  error
		wantAll   []error
	}{
		{
			name: "every location failure is kept",
			result: func() *Result {
				r := &Result{}
				r.addFailure(globalconf.Location{DownloadURL: "https://a.example/c"}, refused)
				r.addFailure(globalconf.Location{DownloadURL: "http://a.example/c"}, globalconf.ErrHashMismatch)
				return r
			},
			wantCount: 2,
			wantLast:  globalconf.ErrHashMismatch,
			wantAll:   []error{refused, globalconf.ErrHashMismatch},
		},
		{
			name: "fatal error follows the attempts",
			result: func() *Result {
				r := &Result{fatal: interrupted}
				r.addFailure(globalconf.Location{DownloadURL: "https://a.example/c"}, refused)
				return r
			},
			wantCount: 2,
			wantLast:  interrupted,
			wantAll:   []error{refused, interrupted},
		},
		{
			name:      "no locations",
			result:    func() *Result { return &Result{} },
			wantCount: 1,
			wantAll:   []error{errNoLocations},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := tt.result()
			err := r.Err()
			require.Error(t, err)
			assert.Len(t, multierr.Errors(err), tt.wantCount)
			for _, want := range tt.wantAll {
				assert.ErrorIs(t, err, want)
			}
			if tt.wantLast != nil {
				assert.ErrorIs(t, r.LastErr(), tt.wantLast)
			}
		})
	}
}

func TestResult_ErrOnSuccess(t *testing.T) {
	t.Parallel()

	r := &Result{Configuration: &globalconf.Configuration{}}
	r.addFailure(globalconf.Location{DownloadURL: "https://a.example/c"}, errors.New("refused"))
	assert.NoError(t, r.Err())
	assert.NoError(t, r.LastErr())
}
