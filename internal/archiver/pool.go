package archiver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zester/pkg/audio"
	"zester/pkg/crawler"
	"zester/pkg/logger"
	"zester/pkg/ratelimit"
	"zester/pkg/retry"
	"zester/pkg/snapshot"
	"zester/pkg/soundcloud"
	"zester/pkg/storage"
)

// CrawlJob is one collection to archive
type CrawlJob struct {
	Kind     soundcloud.Kind
	Endpoint string
}

// CrawlResult is the outcome of one job. Path is set only when a snapshot
// was written.
type CrawlResult struct {
	Job      CrawlJob
	Success  bool
	Error    error
	Duration time.Duration
	Count    int
	Path     string
	Snapshot *snapshot.Snapshot
	// Audio reports the audio step of a likes job; AudioErr does not fail
	// the job
	Audio    *audio.Summary
	AudioErr error
}

// SnapshotStore persists completed snapshots
type SnapshotStore interface {
	SaveSnapshot(snap *snapshot.Snapshot, format storage.Format) (string, error)
}

// Options configures how each job is crawled
type Options struct {
	PageSize  int
	PageDelay time.Duration
	Format    storage.Format
	Policy    *retry.Policy
	// Limiter is shared by every job when set
	Limiter ratelimit.Limiter
	// NewLimiter builds a private limiter per job when Limiter is nil
	NewLimiter func() (ratelimit.Limiter, error)
	// OnEvent observes crawl progress from every worker
	OnEvent func(crawler.Event)
	// Playlists, when set, fetches every playlist in full before the
	// playlists snapshot is stored
	Playlists crawler.PlaylistFetcher
	// Audio, when set, downloads liked tracks once the likes snapshot is
	// stored
	Audio *audio.Downloader
	// RunID tags all snapshots of the run
	RunID string
}

// WorkerPool crawls independent collections concurrently. Jobs share only
// the fetcher's credential and, when configured, one limiter.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan CrawlJob
	resultQueue chan CrawlResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     crawler.Fetcher
	store       SnapshotStore
	assembler   *snapshot.Assembler
	opts        Options
	logger      logger.Logger
}

// NewWorkerPool creates a pool whose crawls end when ctx does
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	fetcher crawler.Fetcher,
	store SnapshotStore,
	opts Options,
	log logger.Logger,
) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)

	if log == nil {
		log = logger.GetLogger()
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if opts.Format == "" {
		opts.Format = storage.FormatJSON
	}

	assembler := snapshot.NewAssembler()
	if opts.RunID != "" {
		assembler.RunID = opts.RunID
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan CrawlJob, numWorkers*2),
		resultQueue: make(chan CrawlResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		fetcher:     fetcher,
		store:       store,
		assembler:   assembler,
		opts:        opts,
		logger:      log.WithField("component", "archiver"),
	}
}

// RunID returns the id stamped on every snapshot of this pool
func (wp *WorkerPool) RunID() string {
	return wp.assembler.RunID
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
		"run_id":      wp.assembler.RunID,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued jobs to finish and closes Results. Results must be
// drained concurrently.
func (wp *WorkerPool) Stop() {
	wp.logger.Info("Stopping worker pool...")

	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Info("Worker pool stopped")
}

// Cancel aborts running crawls. Their results report the context error.
func (wp *WorkerPool) Cancel() {
	wp.cancel()
}

// Submit queues a job
func (wp *WorkerPool) Submit(job CrawlJob) error {
	select {
	case wp.jobQueue <- job:
		wp.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"kind": string(job.Kind),
		})
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Results returns the result channel
func (wp *WorkerPool) Results() <-chan CrawlResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.DebugWithFields("Worker started", map[string]interface{}{
		"worker_id": id,
	})

	// every job yields a result; after cancellation they fail fast
	for job := range wp.jobQueue {
		wp.resultQueue <- wp.processJob(job, id)
	}

	wp.logger.DebugWithFields("Worker stopping - job queue closed", map[string]interface{}{
		"worker_id": id,
	})
}

// processJob crawls one collection and stores its snapshot
func (wp *WorkerPool) processJob(job CrawlJob, workerID int) CrawlResult {
	start := time.Now()
	result := CrawlResult{Job: job}

	log := wp.logger.WithFields(map[string]interface{}{
		"worker_id": workerID,
		"kind":      string(job.Kind),
	})
	log.Debug("Worker processing job")

	limiter, err := wp.limiterFor()
	if err != nil {
		result.Error = fmt.Errorf("rate limiter: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	c := crawler.New(job.Kind, job.Endpoint, wp.fetcher, crawler.Options{
		Limiter:   limiter,
		Policy:    wp.opts.Policy,
		PageSize:  wp.opts.PageSize,
		PageDelay: wp.opts.PageDelay,
		Logger:    log,
		OnEvent:   wp.opts.OnEvent,
	})

	snap, err := wp.assembler.Assemble(c.Records(wp.ctx), job.Kind)
	if err != nil {
		result.Error = fmt.Errorf("crawl %s: %w", job.Kind, err)
		result.Duration = time.Since(start)

		log.ErrorWithFields("Worker failed to crawl collection", map[string]interface{}{
			"error":    err.Error(),
			"state":    c.State().String(),
			"duration": result.Duration,
		})
		return result
	}
	if job.Kind == soundcloud.KindPlaylists && wp.opts.Playlists != nil {
		expander := crawler.NewExpander(wp.opts.Playlists, crawler.Options{
			Limiter:   limiter,
			Policy:    wp.opts.Policy,
			PageDelay: wp.opts.PageDelay,
			Logger:    log,
			OnEvent:   wp.opts.OnEvent,
		})
		if err := expander.Expand(wp.ctx, snap.Records); err != nil {
			result.Error = fmt.Errorf("crawl %s: %w", job.Kind, err)
			result.Duration = time.Since(start)

			log.ErrorWithFields("Worker failed to expand playlists", map[string]interface{}{
				"error":    err.Error(),
				"duration": result.Duration,
			})
			return result
		}
	}
	result.Snapshot = snap
	result.Count = snap.Count

	path, err := wp.store.SaveSnapshot(snap, wp.opts.Format)
	if err != nil {
		result.Error = fmt.Errorf("save %s: %w", job.Kind, err)
		result.Duration = time.Since(start)

		log.ErrorWithFields("Worker failed to save snapshot", map[string]interface{}{
			"error":   err.Error(),
			"records": result.Count,
		})
		return result
	}

	result.Path = path
	result.Success = true

	if job.Kind == soundcloud.KindLikes && wp.opts.Audio != nil {
		result.Audio, result.AudioErr = wp.opts.Audio.Download(wp.ctx, audio.LikedTracks(snap.Records))
		if result.AudioErr != nil {
			log.WarnWithFields("Worker finished audio with failures", map[string]interface{}{
				"error": result.AudioErr.Error(),
			})
		}
	}
	result.Duration = time.Since(start)

	log.InfoWithFields("Worker completed job successfully", map[string]interface{}{
		"records":  result.Count,
		"path":     path,
		"duration": result.Duration,
	})
	return result
}

func (wp *WorkerPool) limiterFor() (ratelimit.Limiter, error) {
	if wp.opts.Limiter != nil {
		return wp.opts.Limiter, nil
	}
	if wp.opts.NewLimiter != nil {
		return wp.opts.NewLimiter()
	}
	return ratelimit.Unlimited{}, nil
}

// GetQueueSize returns the current number of jobs in the queue
func (wp *WorkerPool) GetQueueSize() int {
	return len(wp.jobQueue)
}

// GetActiveWorkers returns the number of workers
func (wp *WorkerPool) GetActiveWorkers() int {
	return wp.numWorkers
}
