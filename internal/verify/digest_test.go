package verify_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/globalconf-client/internal/globalconf"
	"github.com/stacklok/globalconf-client/internal/verify"
)

func TestHashBase64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		algorithmID string
		want        string
		wantErr     bool
	}{
		{
			name:        "sha256 uri",
			algorithmID: verify.DigestSHA256,
			want:        "LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=",
		},
		{
			name:        "sha256 short name",
			algorithmID: "sha-256",
			want:        "LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=",
		},
		{
			name:        "sha1",
			algorithmID: verify.DigestSHA1,
			want:        "qvTGHdzF6KLavt4PO0gs2a6pQ00=",
		},
		{
			name:        "unknown algorithm",
			algorithmID: "http://example.com/md5",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := verify.HashBase64(tt.algorithmID, []byte("hello"))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSum_AllAlgorithms(t *testing.T) {
	t.Parallel()

	lengths := map[string]int{
		verify.DigestSHA1:     20,
		verify.DigestSHA224:   28,
		verify.DigestSHA256:   32,
		verify.DigestSHA384:   48,
		verify.DigestSHA512:   64,
		verify.DigestSHA3_256: 32,
		verify.DigestSHA3_512: 64,
	}
	for id, size := range lengths {
		sum, err := verify.Sum(id, []byte("content"))
		require.NoError(t, err, id)
		assert.Len(t, sum, size, id)
	}
}

func TestContent(t *testing.T) {
	t.Parallel()

	data := []byte("<sharedParameters/>")
	hash, err := verify.HashBase64(verify.DigestSHA512, data)
	require.NoError(t, err)

	file := globalconf.File{
		ContentIdentifier: globalconf.ContentIDSharedParameters,
		ContentLocation:   "/V2/shared-params.xml",
		HashAlgorithmID:   verify.DigestSHA512,
		Hash:              hash,
	}

	tests := []struct {
		name    string
		content []byte
		mutate  func(f *globalconf.File)
		wantErr error
	}{
		{name: "matching content", content: data},
		{name: "modified content", content: []byte("<sharedParameters />"), wantErr: globalconf.ErrHashMismatch},
		{
			name:    "hash of another algorithm",
			content: data,
			mutate:  func(f *globalconf.File) { f.HashAlgorithmID = verify.DigestSHA256 },
			wantErr: globalconf.ErrHashMismatch,
		},
		{
			name:    "undecodable hash",
			content: data,
			mutate:  func(f *globalconf.File) { f.Hash = "not base64!" },
			wantErr: globalconf.ErrMalformedConfiguration,
		},
		{
			name:    "unknown algorithm",
			content: data,
			mutate:  func(f *globalconf.File) { f.HashAlgorithmID = "md5" },
			wantErr: globalconf.ErrMalformedConfiguration,
		},
		{
			name:    "truncated hash",
			content: data,
			mutate: func(f *globalconf.File) {
				raw, _ := base64.StdEncoding.DecodeString(hash)
				f.Hash = base64.StdEncoding.EncodeToString(raw[:10])
			},
			wantErr: globalconf.ErrHashMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := file
			if tt.mutate != nil {
				tt.mutate(&f)
			}
			err := verify.Content(tt.content, f)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
