package archiver

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zester/internal/testutil"
	"zester/pkg/audio"
	"zester/pkg/auth"
	"zester/pkg/crawler"
	errs "zester/pkg/errors"
	"zester/pkg/logger"
	"zester/pkg/ratelimit"
	"zester/pkg/retry"
	"zester/pkg/snapshot"
	"zester/pkg/soundcloud"
	"zester/pkg/storage"
)

// MockStore records saved snapshots in memory
type MockStore struct {
	mu        sync.Mutex
	saved     map[soundcloud.Kind]*snapshot.Snapshot
	saveError error
}

func NewMockStore() *MockStore {
	return &MockStore{saved: make(map[soundcloud.Kind]*snapshot.Snapshot)}
}

func (m *MockStore) SaveSnapshot(snap *snapshot.Snapshot, format storage.Format) (string, error) {
	if m.saveError != nil {
		return "", m.saveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[snap.Kind] = snap
	return string(snap.Kind) + format.Ext(), nil
}

func (m *MockStore) GetSavedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func newClient(t *testing.T, api *testutil.MockAPI) *soundcloud.Client {
	t.Helper()
	cred, err := auth.NewCredential(testutil.Token, testutil.ClientID)
	require.NoError(t, err)

	client := soundcloud.NewClient(cred, 5*time.Second, logger.NewNopLogger())
	client.SetBaseURL(api.URL())
	return client
}

func fastPolicy() *retry.Policy {
	return &retry.Policy{
		MaxAttempts:   3,
		Backoff:       &retry.ConstantBackoff{Delay: time.Millisecond},
		MaxRetryAfter: time.Millisecond,
		Logger:        logger.NewNopLogger(),
	}
}

func allJobs(t *testing.T) []CrawlJob {
	t.Helper()
	jobs, err := Jobs(soundcloud.AllKinds, testutil.UserID)
	require.NoError(t, err)
	return jobs
}

func TestJobs(t *testing.T) {
	jobs, err := Jobs([]soundcloud.Kind{soundcloud.KindComments, soundcloud.KindLikes, soundcloud.KindComments}, 7)
	require.NoError(t, err)

	assert.Equal(t, []CrawlJob{
		{Kind: soundcloud.KindComments, Endpoint: "/users/7/comments"},
		{Kind: soundcloud.KindLikes, Endpoint: "/users/7/track_likes"},
	}, jobs, "order kept and duplicates dropped")

	_, err = Jobs([]soundcloud.Kind{"reposts"}, 7)
	assert.Error(t, err)
}

func TestRunArchivesAllCollections(t *testing.T) {
	api := testutil.NewMockAPI(t)
	api.AddLikes(1, 2, 3, 4, 5)
	api.AddPlaylists(10, 11)
	api.AddComments(20, 21, 22)

	store := NewMockStore()
	pool := NewWorkerPool(context.Background(), 3, newClient(t, api), store, Options{
		PageSize: 2,
		Format:   storage.FormatJSON,
		Policy:   fastPolicy(),
		Limiter:  ratelimit.NewSlidingWindow(100, time.Minute, time.Second),
	}, logger.NewNopLogger())

	results := Run(pool, allJobs(t))
	require.Len(t, results, 3)
	assert.Empty(t, Failed(results))

	assert.Equal(t, soundcloud.KindLikes, results[0].Job.Kind)
	assert.Equal(t, 5, results[0].Count)
	assert.Equal(t, "likes.json", results[0].Path)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, results[0].Snapshot.IDs())
	assert.Equal(t, 2, results[1].Count)
	assert.Equal(t, 3, results[2].Count)
	assert.Equal(t, 3, api.Requests("likes"), "five likes in pages of two")

	runIDs := map[string]bool{}
	for _, r := range results {
		runIDs[r.Snapshot.RunID] = true
	}
	require.Len(t, runIDs, 1, "one run id per run")
	_, err := uuid.Parse(pool.RunID())
	assert.NoError(t, err)
	assert.Equal(t, 3, store.GetSavedCount())
}

func TestRunIsolatesFailures(t *testing.T) {
	api := testutil.NewMockAPI(t)
	api.AddLikes(1, 2)
	api.AddPlaylists(10)
	api.AddComments(20)
	api.AddRaw("comments", map[string]interface{}{"id": 21, "created_at": "2024-01-01T00:00:00Z"})
	api.FailNext("playlists", http.StatusNotFound)

	store := NewMockStore()
	pool := NewWorkerPool(context.Background(), 2, newClient(t, api), store, Options{
		Policy: fastPolicy(),
	}, logger.NewNopLogger())

	results := Run(pool, allJobs(t))
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.Equal(t, 2, results[0].Count)

	assert.False(t, results[1].Success)
	assert.True(t, errs.Is(results[1].Error, errs.ErrorTypeAPI))
	assert.Nil(t, results[1].Snapshot)

	assert.False(t, results[2].Success)
	assert.True(t, errs.Is(results[2].Error, errs.ErrorTypeDecode))

	assert.Len(t, Failed(results), 2)
	assert.Equal(t, 1, store.GetSavedCount(), "only complete snapshots are stored")
}

func TestRunRetriesThroughRateLimiting(t *testing.T) {
	api := testutil.NewMockAPI(t)
	api.AddLikes(1, 2, 3)
	api.FailNext("likes", http.StatusTooManyRequests, http.StatusTooManyRequests)

	var paused atomic.Int32
	pool := NewWorkerPool(context.Background(), 1, newClient(t, api), NewMockStore(), Options{
		Policy: fastPolicy(),
		OnEvent: func(e crawler.Event) {
			if e.Type == crawler.EventBackoffPaused {
				paused.Add(1)
			}
		},
	}, logger.NewNopLogger())

	jobs, err := Jobs([]soundcloud.Kind{soundcloud.KindLikes}, testutil.UserID)
	require.NoError(t, err)

	results := Run(pool, jobs)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Error)
	assert.Equal(t, 3, results[0].Count)
	assert.Equal(t, int32(2), paused.Load())
	assert.Equal(t, 3, api.Requests("likes"))
}

func TestRunRejectsBadCredentials(t *testing.T) {
	api := testutil.NewMockAPI(t)
	api.AddLikes(1)

	cred, err := auth.NewCredential("wrong-token", testutil.ClientID)
	require.NoError(t, err)
	client := soundcloud.NewClient(cred, time.Second, logger.NewNopLogger())
	client.SetBaseURL(api.URL())

	pool := NewWorkerPool(context.Background(), 1, client, NewMockStore(), Options{Policy: fastPolicy()}, logger.NewNopLogger())
	jobs, err := Jobs([]soundcloud.Kind{soundcloud.KindLikes}, testutil.UserID)
	require.NoError(t, err)

	results := Run(pool, jobs)
	require.Len(t, results, 1)
	assert.True(t, errs.Is(results[0].Error, errs.ErrorTypeAuth))
}

func TestRunSaveFailure(t *testing.T) {
	api := testutil.NewMockAPI(t)
	api.AddComments(1)

	store := NewMockStore()
	store.saveError = errors.New("disk full")
	pool := NewWorkerPool(context.Background(), 1, newClient(t, api), store, Options{Policy: fastPolicy()}, logger.NewNopLogger())

	jobs, err := Jobs([]soundcloud.Kind{soundcloud.KindComments}, testutil.UserID)
	require.NoError(t, err)

	results := Run(pool, jobs)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error.Error(), "disk full")
	assert.Equal(t, 1, results[0].Count, "the crawl itself completed")
}

func TestRunCancelled(t *testing.T) {
	api := testutil.NewMockAPI(t)
	api.AddLikes(1)
	api.AddComments(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMockStore()
	pool := NewWorkerPool(ctx, 2, newClient(t, api), store, Options{Policy: fastPolicy()}, logger.NewNopLogger())

	results := Run(pool, allJobs(t))
	require.Len(t, results, 3)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.ErrorIs(t, r.Error, context.Canceled)
	}
	assert.Equal(t, 0, store.GetSavedCount())
}

func TestRunPerCollectionLimiters(t *testing.T) {
	api := testutil.NewMockAPI(t)
	api.AddLikes(1)
	api.AddPlaylists(2)

	var built atomic.Int32
	pool := NewWorkerPool(context.Background(), 2, newClient(t, api), NewMockStore(), Options{
		Policy: fastPolicy(),
		NewLimiter: func() (ratelimit.Limiter, error) {
			built.Add(1)
			return ratelimit.NewSlidingWindow(5, time.Minute, time.Second), nil
		},
	}, logger.NewNopLogger())

	jobs, err := Jobs([]soundcloud.Kind{soundcloud.KindLikes, soundcloud.KindPlaylists}, testutil.UserID)
	require.NoError(t, err)

	results := Run(pool, jobs)
	assert.Empty(t, Failed(results))
	assert.Equal(t, int32(2), built.Load())
}

func TestRunWritesFiles(t *testing.T) {
	api := testutil.NewMockAPI(t)
	api.AddLikes(1, 2)

	dir := t.TempDir()
	manager, err := storage.NewManager(dir, false)
	require.NoError(t, err)

	pool := NewWorkerPool(context.Background(), 1, newClient(t, api), manager, Options{
		Format: storage.FormatNDJSON,
		Policy: fastPolicy(),
	}, logger.NewNopLogger())

	jobs, err := Jobs([]soundcloud.Kind{soundcloud.KindLikes}, testutil.UserID)
	require.NoError(t, err)

	results := Run(pool, jobs)
	require.True(t, results[0].Success)
	assert.Equal(t, filepath.Join(dir, "likes.ndjson"), results[0].Path)

	_, err = os.Stat(results[0].Path)
	assert.NoError(t, err)
}

func TestWorkerPoolQueue(t *testing.T) {
	api := testutil.NewMockAPI(t)
	pool := NewWorkerPool(context.Background(), 0, newClient(t, api), NewMockStore(), Options{}, logger.NewNopLogger())

	assert.Equal(t, 1, pool.GetActiveWorkers(), "at least one worker")
	assert.Equal(t, 0, pool.GetQueueSize())

	require.NoError(t, pool.Submit(CrawlJob{Kind: soundcloud.KindLikes}))
	require.NoError(t, pool.Submit(CrawlJob{Kind: soundcloud.KindPlaylists}))
	assert.Equal(t, 2, pool.GetQueueSize(), "queued until workers start")

	pool.Cancel()
	assert.Error(t, pool.Submit(CrawlJob{Kind: soundcloud.KindComments}), "a full queue of a cancelled pool rejects jobs")
}

func TestRunLogsQueuedJobs(t *testing.T) {
	api := testutil.NewMockAPI(t)
	api.AddLikes(1)
	api.AddComments(2)

	log := logger.NewTestLogger()
	pool := NewWorkerPool(context.Background(), 2, newClient(t, api), NewMockStore(), Options{Policy: fastPolicy()}, log)

	jobs, err := Jobs([]soundcloud.Kind{soundcloud.KindLikes, soundcloud.KindComments}, testutil.UserID)
	require.NoError(t, err)
	Run(pool, jobs)

	var queued []logger.LogMessage
	for _, m := range log.GetMessagesByLevel("DEBUG") {
		if m.Message == "job queued" {
			queued = append(queued, m)
		}
	}
	require.Len(t, queued, 2)
	for _, m := range queued {
		assert.Equal(t, 2, m.Fields["num_workers"])
		assert.Contains(t, m.Fields, "queue_size")
	}
}

func TestRunExpandsPlaylists(t *testing.T) {
	api := testutil.NewMockAPI(t)
	api.AddPlaylists(10, 11)
	api.SetPlaylistTracks(10, 100, 101, 102)
	api.SetPlaylistTracks(11, 110)
	api.FailNext("playlist", http.StatusBadGateway)

	client := newClient(t, api)
	var mu sync.Mutex
	var events []crawler.EventType
	pool := NewWorkerPool(context.Background(), 1, client, NewMockStore(), Options{
		Policy:    fastPolicy(),
		Playlists: client,
		OnEvent: func(e crawler.Event) {
			mu.Lock()
			events = append(events, e.Type)
			mu.Unlock()
		},
	}, logger.NewNopLogger())

	jobs, err := Jobs([]soundcloud.Kind{soundcloud.KindPlaylists}, testutil.UserID)
	require.NoError(t, err)

	results := Run(pool, jobs)
	require.True(t, results[0].Success, "%v", results[0].Error)

	first := results[0].Snapshot.Records[0].(*soundcloud.Playlist)
	assert.Equal(t, 3, first.TrackCount)
	require.Len(t, first.Tracks, 3)
	assert.Equal(t, int64(100), first.Tracks[0].ID)
	assert.Len(t, results[0].Snapshot.Records[1].(*soundcloud.Playlist).Tracks, 1)
	assert.Equal(t, 3, api.Requests("playlist"), "one retry after the bad gateway")

	assert.Equal(t, []crawler.EventType{
		crawler.EventPageFetched, crawler.EventDone,
		crawler.EventExpandStarted,
		crawler.EventPlaylistStarted, crawler.EventBackoffPaused, crawler.EventPlaylistExpanded,
		crawler.EventPlaylistStarted, crawler.EventPlaylistExpanded,
	}, events)
}

func TestRunExpansionFailureStoresNothing(t *testing.T) {
	api := testutil.NewMockAPI(t)
	api.AddPlaylists(10)
	api.FailNext("playlist", http.StatusNotFound)

	client := newClient(t, api)
	store := NewMockStore()
	pool := NewWorkerPool(context.Background(), 1, client, store, Options{
		Policy:    fastPolicy(),
		Playlists: client,
	}, logger.NewNopLogger())

	jobs, err := Jobs([]soundcloud.Kind{soundcloud.KindPlaylists}, testutil.UserID)
	require.NoError(t, err)

	results := Run(pool, jobs)
	assert.False(t, results[0].Success)
	assert.True(t, errs.Is(results[0].Error, errs.ErrorTypeAPI))
	assert.Equal(t, 0, store.GetSavedCount())
}

func TestRunDownloadsLikedAudio(t *testing.T) {
	api := testutil.NewMockAPI(t)
	api.AddLikesWithAudio(1, 2)
	api.AddLikes(3)

	dir := t.TempDir()
	manager, err := storage.NewManager(dir, false)
	require.NoError(t, err)

	client := newClient(t, api)
	downloader := audio.NewDownloader(client, manager, audio.Options{
		Policy: fastPolicy(),
		Logger: logger.NewNopLogger(),
	})
	pool := NewWorkerPool(context.Background(), 2, client, manager, Options{
		Policy: fastPolicy(),
		Audio:  downloader,
	}, logger.NewNopLogger())

	results := Run(pool, allJobs(t))
	require.True(t, results[0].Success)
	require.NoError(t, results[0].AudioErr)
	require.NotNil(t, results[0].Audio)
	assert.Equal(t, 2, results[0].Audio.Saved)
	assert.Equal(t, 1, results[0].Audio.Skipped)
	assert.Nil(t, results[2].Audio, "only likes carry audio")

	data, err := os.ReadFile(filepath.Join(dir, storage.AudioDir, "2-track-2.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "audio 2", string(data))
	assert.Equal(t, 2, api.Requests("audio"))
}
