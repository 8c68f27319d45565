// Package testutil provides an in-memory stand-in for the collection API
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	// Token and ClientID are the credentials the mock accepts
	Token    = "2-000000-42-mock"
	ClientID = "mock-client"
	// UserID is the id /me reports
	UserID int64 = 42
)

// MockAPI serves the likes, playlists and comments collections of one user
// with cursor pagination, full playlists and track audio. Requests without
// the expected credentials get 401, except for media downloads.
type MockAPI struct {
	Server *httptest.Server

	mu       sync.Mutex
	items    map[string][]map[string]interface{}
	tracks   map[int64][]int64
	failures map[string][]int
	requests map[string]int
}

var paths = map[string]string{
	"track_likes": "likes",
	"playlists":   "playlists",
	"comments":    "comments",
}

// NewMockAPI starts a server that is closed with the test
func NewMockAPI(t *testing.T) *MockAPI {
	t.Helper()

	m := &MockAPI{
		items:    make(map[string][]map[string]interface{}),
		tracks:   make(map[int64][]int64),
		failures: make(map[string][]int),
		requests: make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Server.Close)
	return m
}

// URL returns the server's base URL
func (m *MockAPI) URL() string {
	return m.Server.URL
}

// AddLikes adds liked tracks with the given ids
func (m *MockAPI) AddLikes(ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.items["likes"] = append(m.items["likes"], map[string]interface{}{
			"created_at": stamp(id),
			"kind":       "like",
			"track": map[string]interface{}{
				"id":    id,
				"title": fmt.Sprintf("track %d", id),
			},
		})
	}
}

// AddPlaylists adds playlists with the given ids
func (m *MockAPI) AddPlaylists(ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.items["playlists"] = append(m.items["playlists"], map[string]interface{}{
			"id":          id,
			"created_at":  stamp(id),
			"title":       fmt.Sprintf("playlist %d", id),
			"track_count": 0,
		})
	}
}

// AddLikesWithAudio adds liked tracks that offer a progressive high quality
// stream. Their audio is served as "audio <id>".
func (m *MockAPI) AddLikesWithAudio(ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.items["likes"] = append(m.items["likes"], map[string]interface{}{
			"created_at": stamp(id),
			"track": map[string]interface{}{
				"id":    id,
				"title": fmt.Sprintf("track %d", id),
				"media": map[string]interface{}{
					"transcodings": []map[string]interface{}{{
						"url":     fmt.Sprintf("%s/media/%d/stream/progressive", m.Server.URL, id),
						"preset":  "mp3_1_0",
						"format":  map[string]interface{}{"protocol": "progressive", "mime_type": "audio/mpeg"},
						"quality": "hq",
					}},
				},
			},
		})
	}
}

// SetPlaylistTracks sets the tracks the full representation of playlist id
// lists
func (m *MockAPI) SetPlaylistTracks(id int64, trackIDs ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks[id] = trackIDs
}

// AddComments adds comments with the given ids
func (m *MockAPI) AddComments(ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.items["comments"] = append(m.items["comments"], map[string]interface{}{
			"id":         id,
			"created_at": stamp(id),
			"body":       fmt.Sprintf("comment %d", id),
			"track_id":   id * 10,
		})
	}
}

// AddRaw appends an arbitrary item to a collection
func (m *MockAPI) AddRaw(kind string, item map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[kind] = append(m.items[kind], item)
}

// FailNext makes the next requests for kind answer with statuses, in order.
// "playlist" fails full playlist fetches.
func (m *MockAPI) FailNext(kind string, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[kind] = append(m.failures[kind], statuses...)
}

// Requests returns how many requests hit kind's collection. "playlist"
// counts full playlist fetches and "audio" media downloads.
func (m *MockAPI) Requests(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[kind]
}

func (m *MockAPI) handle(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/cdn/") {
		m.count("audio")
		fmt.Fprintf(w, "audio %s", strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/cdn/"), ".mp3"))
		return
	}

	if r.Header.Get("Authorization") != "OAuth "+Token || r.URL.Query().Get("client_id") != ClientID {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if r.URL.Path == "/me" {
		writeJSON(w, map[string]interface{}{"id": UserID, "username": "mock-user"})
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 2 && parts[0] == "playlists" {
		m.servePlaylist(w, r, parts[1])
		return
	}
	if len(parts) == 4 && parts[0] == "media" {
		writeJSON(w, map[string]interface{}{"url": fmt.Sprintf("%s/cdn/%s.mp3?sig=x", m.Server.URL, parts[1])})
		return
	}

	kind, ok := m.route(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	m.mu.Lock()
	m.requests[kind]++
	if queue := m.failures[kind]; len(queue) > 0 {
		status := queue[0]
		m.failures[kind] = queue[1:]
		m.mu.Unlock()
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		w.WriteHeader(status)
		return
	}
	items := m.items[kind]
	m.mu.Unlock()

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	var page []map[string]interface{}
	if offset < len(items) {
		page = items[offset:end]
	}

	var next interface{}
	if end < len(items) {
		next = fmt.Sprintf("%s%s?offset=%d&limit=%d", m.Server.URL, r.URL.Path, end, limit)
	}

	writeJSON(w, map[string]interface{}{
		"collection": append([]map[string]interface{}{}, page...),
		"next_href":  next,
	})
}

// servePlaylist answers the full representation of one playlist
func (m *MockAPI) servePlaylist(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	m.mu.Lock()
	m.requests["playlist"]++
	if queue := m.failures["playlist"]; len(queue) > 0 {
		status := queue[0]
		m.failures["playlist"] = queue[1:]
		m.mu.Unlock()
		w.WriteHeader(status)
		return
	}
	var summary map[string]interface{}
	for _, item := range m.items["playlists"] {
		if item["id"] == id {
			summary = item
		}
	}
	trackIDs := m.tracks[id]
	m.mu.Unlock()

	if summary == nil {
		http.NotFound(w, r)
		return
	}

	full := make(map[string]interface{}, len(summary)+1)
	for k, v := range summary {
		full[k] = v
	}
	tracks := make([]map[string]interface{}, 0, len(trackIDs))
	for _, tid := range trackIDs {
		tracks = append(tracks, map[string]interface{}{"id": tid, "title": fmt.Sprintf("track %d", tid)})
	}
	full["tracks"] = tracks
	full["track_count"] = len(tracks)
	writeJSON(w, full)
}

func (m *MockAPI) count(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[kind]++
}

// route maps /users/{id}/{collection} to a kind
func (m *MockAPI) route(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "users" || parts[1] != strconv.FormatInt(UserID, 10) {
		return "", false
	}
	kind, ok := paths[parts[2]]
	return kind, ok
}

func stamp(id int64) string {
	return fmt.Sprintf("2024-01-01T00:%02d:%02dZ", (id/60)%60, id%60)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
