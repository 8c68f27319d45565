package soundcloud

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zester/pkg/auth"
	errs "zester/pkg/errors"
	"zester/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *logger.TestLogger) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cred, err := auth.NewCredential("2-000000-111-abc", "test-client")
	require.NoError(t, err)

	log := logger.NewTestLogger()
	client := NewClient(cred, 5*time.Second, log)
	client.SetBaseURL(server.URL)
	return client, log
}

func TestNewClient(t *testing.T) {
	cred, err := auth.NewCredential("token", "client")
	require.NoError(t, err)

	client := NewClient(cred, 30*time.Second, nil)
	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
	assert.Equal(t, BaseURL, client.baseURL)
	assert.NotNil(t, client.logger)
	assert.Equal(t, DefaultUserAgent, client.headers["User-Agent"])
}

func TestFetchFirstPage(t *testing.T) {
	var got *http.Request
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Write([]byte(`{"collection":[]}`))
	})

	body, err := client.FetchPage(context.Background(), PageRequest{
		Endpoint: "/users/42/track_likes",
		PageSize: 50,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"collection":[]}`, string(body))

	require.NotNil(t, got)
	assert.Equal(t, "/users/42/track_likes", got.URL.Path)
	assert.Equal(t, "50", got.URL.Query().Get("limit"))
	assert.Equal(t, "1", got.URL.Query().Get("linked_partitioning"))
	assert.Equal(t, "test-client", got.URL.Query().Get("client_id"))
	assert.Equal(t, "OAuth 2-000000-111-abc", got.Header.Get("Authorization"))
	assert.Equal(t, DefaultUserAgent, got.Header.Get("User-Agent"))
}

func TestFetchCursorPageUsesCursorVerbatim(t *testing.T) {
	var got *http.Request
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Write([]byte(`{"collection":[]}`))
	})

	cursor := client.baseURL + "/users/42/track_likes?offset=2024-03-01T10%3A00%3A00.000Z%2Cuser-track-likes%2C000-0&limit=50&client_id=stale"
	_, err := client.FetchPage(context.Background(), PageRequest{
		Endpoint: "/ignored",
		Cursor:   cursor,
		PageSize: 10,
	})
	require.NoError(t, err)

	require.NotNil(t, got)
	q := got.URL.Query()
	assert.Equal(t, "/users/42/track_likes", got.URL.Path)
	assert.Equal(t, "2024-03-01T10:00:00.000Z,user-track-likes,000-0", q.Get("offset"))
	assert.Equal(t, "50", q.Get("limit"), "cursor parameters are not rewritten")
	assert.Equal(t, []string{"test-client"}, q["client_id"], "client id replaced, not duplicated")
	assert.Empty(t, q.Get("linked_partitioning"))
}

func TestFetchCursorPageKeepsRawQuery(t *testing.T) {
	var rawQuery string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		w.Write([]byte(`{"collection":[]}`))
	})

	query := "offset=a;b&limit=50&z=1&a=2"
	_, err := client.FetchPage(context.Background(), PageRequest{
		Cursor:   client.baseURL + "/users/42/track_likes?" + query,
		PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, query+"&client_id=test-client", rawQuery)
}

func TestFetchPageRejectsMalformedCursor(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.FetchPage(context.Background(), PageRequest{Cursor: "not a url"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeDecode))
}

func TestFetchPageStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		wantType   errs.ErrorType
		wantRetry  bool
		wantDelay  time.Duration
	}{
		{"unauthorized", http.StatusUnauthorized, "", errs.ErrorTypeAuth, false, 0},
		{"forbidden", http.StatusForbidden, "", errs.ErrorTypeAuth, false, 0},
		{"not found", http.StatusNotFound, "", errs.ErrorTypeAPI, false, 0},
		{"rate limited", http.StatusTooManyRequests, "7", errs.ErrorTypeAPI, true, 7 * time.Second},
		{"rate limited no hint", http.StatusTooManyRequests, "", errs.ErrorTypeAPI, true, 0},
		{"server error", http.StatusInternalServerError, "", errs.ErrorTypeServerError, true, 0},
		{"unavailable", http.StatusServiceUnavailable, "30", errs.ErrorTypeServerError, true, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, log := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			})

			_, err := client.FetchPage(context.Background(), PageRequest{Endpoint: "/users/1/playlists"})
			require.Error(t, err)

			e, ok := errs.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantType, e.Type)
			assert.Equal(t, tt.status, e.Code)
			assert.Equal(t, tt.wantRetry, e.Retryable())
			assert.Equal(t, tt.wantDelay, e.RetryAfter)
			assert.NotEmpty(t, log.GetMessages())
		})
	}
}

func TestFetchPageNetworkError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	client.SetBaseURL("http://127.0.0.1:1")

	_, err := client.FetchPage(context.Background(), PageRequest{Endpoint: "/users/1/comments"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeNetwork))
	assert.True(t, errs.IsRetryable(err))
}

func TestFetchPageTimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	client.httpClient.Timeout = 50 * time.Millisecond

	_, err := client.FetchPage(context.Background(), PageRequest{Endpoint: "/users/1/comments"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeNetwork), "per-attempt timeout is a network failure, got %v", err)
}

func TestFetchPageCancelled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.FetchPage(ctx, PageRequest{Endpoint: "/users/1/comments"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errs.IsRetryable(err))
}

func TestMe(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, MeEndpoint, r.URL.Path)
		w.Write([]byte(`{"id": 42, "username": "listener", "public_favorites_count": 12}`))
	})

	me, err := client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), me.ID)
	assert.Equal(t, "listener", me.Username)
	assert.Equal(t, 12, me.LikesCount)
}

func TestMeWithoutID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"username": "ghost"}`))
	})

	_, err := client.Me(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeDecode))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"0", 0},
		{"-3", 0},
		{"12", 12 * time.Second},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.value, now))
		})
	}
}

func TestEndpointFor(t *testing.T) {
	tests := []struct {
		kind    Kind
		userID  int64
		want    string
		wantErr bool
	}{
		{KindLikes, 42, "/users/42/track_likes", false},
		{KindPlaylists, 42, "/users/42/playlists", false},
		{KindComments, 42, "/users/42/comments", false},
		{Kind("reposts"), 42, "", true},
		{KindLikes, 0, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := EndpointFor(tt.kind, tt.userID)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Likes ")
	require.NoError(t, err)
	assert.Equal(t, KindLikes, k)

	_, err = ParseKind("followers")
	assert.Error(t, err)
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, ClampPageSize(0))
	assert.Equal(t, 25, ClampPageSize(25))
	assert.Equal(t, MaxPageSize, ClampPageSize(10000))
}

func TestPlaylistFetchesFullRepresentation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/playlists/77", r.URL.Path)
		assert.Equal(t, "test-client", r.URL.Query().Get("client_id"))
		w.Write([]byte(`{
			"id": 77, "created_at": "2024-03-01T10:00:00Z", "title": "night drive",
			"track_count": 2,
			"tracks": [{"id": 1, "title": "one"}, {"id": 2}]
		}`))
	})

	playlist, err := client.Playlist(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, int64(77), playlist.ID)
	assert.Equal(t, "night drive", playlist.Title)
	require.Len(t, playlist.Tracks, 2)
	assert.Equal(t, "one", playlist.Tracks[0].Title)
}

func TestPlaylistRejectsMalformedBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"created_at": "2024-03-01T10:00:00Z", "title": "no id"}`))
	})

	_, err := client.Playlist(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeDecode))
}

func TestStreamURLAndOpenMedia(t *testing.T) {
	var mediaAuth string
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media/1/stream/progressive":
			assert.Equal(t, "OAuth 2-000000-111-abc", r.Header.Get("Authorization"))
			w.Write([]byte(`{"url": "` + server.URL + `/cdn/1.mp3?sig=abc"}`))
		case "/cdn/1.mp3":
			mediaAuth = r.Header.Get("Authorization")
			assert.Equal(t, "abc", r.URL.Query().Get("sig"))
			w.Write([]byte("ID3 audio"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cred, err := auth.NewCredential("2-000000-111-abc", "test-client")
	require.NoError(t, err)
	client := NewClient(cred, 5*time.Second, logger.NewNopLogger())

	location, err := client.StreamURL(context.Background(), &Transcoding{URL: server.URL + "/media/1/stream/progressive"})
	require.NoError(t, err)

	body, err := client.OpenMedia(context.Background(), location)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)

	assert.Equal(t, "ID3 audio", string(data))
	assert.Empty(t, mediaAuth, "signed media locations get no credential")
}

func TestStreamURLWithoutLocation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := client.StreamURL(context.Background(), &Transcoding{URL: client.baseURL + "/media/1"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeDecode))
}

func TestOpenMediaClassifiesStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.OpenMedia(context.Background(), client.baseURL+"/cdn/x.mp3")
	require.Error(t, err)
	assert.True(t, errs.IsRetryable(err))
}
