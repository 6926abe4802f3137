package location

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

func noShuffle(int, func(i, j int)) {}

func reverseShuffle(n int, swap func(i, j int)) {
	for i := 0; i < n/2; i++ {
		swap(i, n-1-i)
	}
}

func urls(locs []globalconf.Location) []string {
	out := make([]string, 0, len(locs))
	for _, l := range locs {
		out = append(out, l.DownloadURL)
	}
	return out
}

func source(rawURLs ...string) globalconf.Source {
	src := globalconf.Source{InstanceIdentifier: "EE"}
	for _, u := range rawURLs {
		src.Locations = append(src.Locations, globalconf.Location{InstanceIdentifier: "EE", DownloadURL: u})
	}
	return src
}

func TestOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src      globalconf.Source
		last     string
		shuffle  Shuffler
		expected []string
	}{
		{
			name: "https variants precede plain http",
			src:  source("http://a.example/conf", "https://b.example/conf"),
			expected: []string{
				"https://a.example/conf",
				"https://b.example/conf",
				"http://a.example/conf",
			},
			shuffle: noShuffle,
		},
		{
			name: "https-native location is not duplicated",
			src:  source("https://b.example/conf"),
			expected: []string{
				"https://b.example/conf",
			},
			shuffle: noShuffle,
		},
		{
			name: "path and query are kept on the https variant",
			src:  source("http://a.example/internalconf?version=3"),
			expected: []string{
				"https://a.example/internalconf?version=3",
				"http://a.example/internalconf?version=3",
			},
			shuffle: noShuffle,
		},
		{
			name: "partitions are shuffled independently",
			src:  source("http://a.example/c", "http://b.example/c"),
			expected: []string{
				"https://b.example/c",
				"https://a.example/c",
				"http://b.example/c",
				"http://a.example/c",
			},
			shuffle: reverseShuffle,
		},
		{
			name: "last successful location goes first and is not repeated",
			src:  source("http://a.example/c", "http://b.example/c"),
			last: "http://b.example/c",
			expected: []string{
				"http://b.example/c",
				"https://a.example/c",
				"https://b.example/c",
				"http://a.example/c",
			},
			shuffle: noShuffle,
		},
		{
			name: "remembered https variant goes first",
			src:  source("http://a.example/c", "http://b.example/c"),
			last: "https://b.example/c",
			expected: []string{
				"https://b.example/c",
				"https://a.example/c",
				"http://a.example/c",
				"http://b.example/c",
			},
			shuffle: noShuffle,
		},
		{
			name: "remembered location no longer listed is ignored",
			src:  source("https://new.example/c"),
			last: "https://old.example/c",
			expected: []string{
				"https://new.example/c",
			},
			shuffle: noShuffle,
		},
		{
			name:     "unresolvable entries are dropped",
			src:      source("", "not a url", "http://a.example/c"),
			expected: []string{"https://a.example/c", "http://a.example/c"},
			shuffle:  noShuffle,
		},
		{
			name:     "no locations",
			src:      source(),
			expected: []string{},
			shuffle:  noShuffle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			table := NewLastSuccessTable()
			if tt.last != "" {
				table.Put(tt.src, globalconf.Location{InstanceIdentifier: "EE", DownloadURL: tt.last})
			}

			assert.Equal(t, tt.expected, urls(Order(tt.src, table, tt.shuffle)))
		})
	}
}

func TestOrder_LastSuccessUsesCurrentCertificates(t *testing.T) {
	t.Parallel()

	table := NewLastSuccessTable()
	old := globalconf.Source{
		InstanceIdentifier: "EE",
		Locations: []globalconf.Location{
			{InstanceIdentifier: "EE", DownloadURL: "https://a.example/c", VerificationCerts: [][]byte{[]byte("OLD-CERT")}},
		},
	}
	table.Put(old, old.Locations[0])

	rotated := globalconf.Source{
		InstanceIdentifier: "EE",
		Locations: []globalconf.Location{
			{InstanceIdentifier: "EE", DownloadURL: "https://a.example/c", VerificationCerts: [][]byte{[]byte("NEW-CERT")}},
		},
	}

	ordered := Order(rotated, table, noShuffle)
	require.Len(t, ordered, 1)
	assert.Equal(t, [][]byte{[]byte("NEW-CERT")}, ordered[0].VerificationCerts)
}

func TestOrder_RandomShuffleKeepsPartitions(t *testing.T) {
	t.Parallel()

	src := source("http://a.example/c", "http://b.example/c", "https://c.example/c", "http://d.example/c")

	for i := 0; i < 50; i++ {
		ordered := urls(Order(src, nil, nil))
		require.Len(t, ordered, 7)
		for _, u := range ordered[:4] {
			assert.Contains(t, u, "https://")
		}
		for _, u := range ordered[4:] {
			assert.Contains(t, u, "http://")
		}
	}
}

func TestLastSuccessTable(t *testing.T) {
	t.Parallel()

	table := NewLastSuccessTable()
	ee := source("http://a.example/c")
	fi := globalconf.Source{InstanceIdentifier: "FI"}

	_, ok := table.Get(ee)
	assert.False(t, ok)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			table.Put(ee, ee.Locations[0])
			_, _ = table.Get(fi)
		}()
	}
	wg.Wait()

	last, ok := table.Get(ee)
	require.True(t, ok)
	assert.Equal(t, "http://a.example/c", last)

	_, ok = table.Get(fi)
	assert.False(t, ok)

	table.Forget(ee, globalconf.Location{DownloadURL: "http://other.example/c"})
	_, ok = table.Get(ee)
	assert.True(t, ok, "forgetting another location keeps the entry")

	table.Forget(ee, ee.Locations[0])
	_, ok = table.Get(ee)
	assert.False(t, ok)

	var nilTable *LastSuccessTable
	nilTable.Put(ee, ee.Locations[0])
	_, ok = nilTable.Get(ee)
	assert.False(t, ok)
}
