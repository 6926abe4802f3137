package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ConfServer serves configuration directories and content files from memory
// and counts the requests made for every path.
type ConfServer struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string][]byte
	statuses map[string]int
	hits     map[string]int
	versions map[string][]string
}

// NewConfServer starts a server with keep-alives disabled. It is closed when the test ends.
func NewConfServer(t testing.TB) *ConfServer {
	t.Helper()

	s := &ConfServer{
		files:    make(map[string][]byte),
		statuses: make(map[string]int),
		hits:     make(map[string]int),
		versions: make(map[string][]string),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	s.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(s.Close)
	return s
}

func (s *ConfServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.versions[r.URL.Path] = append(s.versions[r.URL.Path], r.URL.Query().Get("version"))
	status, hasStatus := s.statuses[r.URL.Path]
	data, ok := s.files[r.URL.Path]
	s.mu.Unlock()

	if hasStatus {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}

// Set serves data at path
func (s *ConfServer) Set(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = data
}

// Remove stops serving path
func (s *ConfServer) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
}

// Fail makes path answer with status
func (s *ConfServer) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[path] = status
}

// Hits returns the number of requests made for path
func (s *ConfServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Versions returns the version query parameters requested for path, in order
func (s *ConfServer) Versions(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.versions[path]...)
}

// ResetHits clears the request counters
func (s *ConfServer) ResetHits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = make(map[string]int)
	s.versions = make(map[string][]string)
}

// Endpoint returns the absolute URL of path
func (s *ConfServer) Endpoint(path string) string {
	return s.URL + path
}
