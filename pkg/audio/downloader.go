// Package audio saves the audio of liked tracks next to their snapshot.
package audio

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"zester/pkg/crawler"
	"zester/pkg/logger"
	"zester/pkg/ratelimit"
	"zester/pkg/retry"
	"zester/pkg/soundcloud"
)

// Source resolves and opens track media
type Source interface {
	StreamURL(ctx context.Context, tc *soundcloud.Transcoding) (string, error)
	OpenMedia(ctx context.Context, location string) (io.ReadCloser, error)
}

// Store persists audio files
type Store interface {
	AudioExists(name string) bool
	SaveAudio(name string, r io.Reader) (string, error)
}

// Options tunes a download run. Zero values select defaults.
type Options struct {
	// Limiter gates every stream lookup, retries included
	Limiter ratelimit.Limiter
	// Policy decides retries of a failed track
	Policy *retry.Policy
	// Delay is an extra pause between successive tracks
	Delay time.Duration
	// Overwrite downloads tracks whose file already exists
	Overwrite bool
	// OnEvent observes progress
	OnEvent func(crawler.Event)
	// Sleep performs the delay; defaults to retry.Wait
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger logger.Logger
}

// Summary counts the outcome of a download run
type Summary struct {
	Saved    int
	Existing int
	Skipped  int
	Failed   int
	Paths    []string
}

// Downloader fetches the progressive high quality stream of each track
type Downloader struct {
	source    Source
	store     Store
	limiter   ratelimit.Limiter
	policy    *retry.Policy
	delay     time.Duration
	overwrite bool
	sleep     func(ctx context.Context, d time.Duration) error
	onEvent   func(crawler.Event)
	logger    logger.Logger
}

// NewDownloader creates a downloader writing into store
func NewDownloader(source Source, store Store, opts Options) *Downloader {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "audio")

	d := &Downloader{
		source:    source,
		store:     store,
		limiter:   opts.Limiter,
		delay:     opts.Delay,
		overwrite: opts.Overwrite,
		sleep:     opts.Sleep,
		onEvent:   opts.OnEvent,
		logger:    log,
	}
	if d.limiter == nil {
		d.limiter = ratelimit.Unlimited{}
	}
	if d.sleep == nil {
		d.sleep = retry.Wait
	}
	d.policy = crawler.ObservedPolicy(opts.Policy, soundcloud.KindLikes, log, d.emit)
	return d
}

// LikedTracks returns the tracks of likes in order
func LikedTracks(records []soundcloud.Record) []soundcloud.Track {
	tracks := make([]soundcloud.Track, 0, len(records))
	for _, r := range records {
		if like, ok := r.(*soundcloud.Like); ok {
			tracks = append(tracks, like.Track)
		}
	}
	return tracks
}

// Download saves every track in order. A track without a usable stream is
// skipped; a track that still fails after retries is counted and the run
// goes on. The returned error joins every track failure, or is the context
// error when the run was cancelled.
func (d *Downloader) Download(ctx context.Context, tracks []soundcloud.Track) (*Summary, error) {
	summary := &Summary{}
	total := len(tracks)
	d.emit(crawler.Event{Type: crawler.EventAudioQueued, Kind: soundcloud.KindLikes, Total: total})
	logger.LogComponentStart(d.logger, "audio", map[string]interface{}{
		"tracks": total,
	})

	var failures []error
	fetched := false
	for i := range tracks {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		track := &tracks[i]
		base := crawler.Event{Kind: soundcloud.KindLikes, ItemID: track.ID, Title: track.Title, Count: i, Total: total}

		tc, err := track.AudioTranscoding()
		if err != nil {
			summary.Skipped++
			tracksTotal.WithLabelValues("skipped").Inc()
			d.logger.DebugWithFields("track has no downloadable stream", map[string]interface{}{
				"track_id": track.ID,
			})
			d.emitAs(crawler.EventTrackSkipped, base, "", err)
			continue
		}

		name := FileName(track, tc)
		if !d.overwrite && d.store.AudioExists(name) {
			summary.Existing++
			tracksTotal.WithLabelValues("existing").Inc()
			d.emitAs(crawler.EventTrackSkipped, base, "", errExists)
			continue
		}

		if fetched && d.delay > 0 {
			if err := d.sleep(ctx, d.delay); err != nil {
				return summary, err
			}
		}
		fetched = true

		d.emitAs(crawler.EventTrackStarted, base, "", nil)
		path, err := d.save(ctx, tc, name)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failed++
			tracksTotal.WithLabelValues("failed").Inc()
			d.logger.ErrorWithFields("track download failed", map[string]interface{}{
				"track_id": track.ID,
				"error":    err.Error(),
			})
			failures = append(failures, fmt.Errorf("track %d: %w", track.ID, err))
			d.emitAs(crawler.EventTrackSkipped, base, "", err)
			continue
		}

		summary.Saved++
		summary.Paths = append(summary.Paths, path)
		tracksTotal.WithLabelValues("saved").Inc()
		d.logger.DebugWithFields("track saved", map[string]interface{}{
			"track_id": track.ID,
			"path":     path,
		})
		base.Count = i + 1
		d.emitAs(crawler.EventTrackSaved, base, path, nil)
	}

	d.logger.InfoWithFields("audio download finished", map[string]interface{}{
		"saved":    summary.Saved,
		"existing": summary.Existing,
		"skipped":  summary.Skipped,
		"failed":   summary.Failed,
	})
	return summary, stderrors.Join(failures...)
}

// save resolves the stream and copies it into the store. Every attempt
// starts over from the stream lookup, since media locations expire.
func (d *Downloader) save(ctx context.Context, tc *soundcloud.Transcoding, name string) (string, error) {
	return retry.Do(ctx, d.policy, func(ctx context.Context) (string, error) {
		if err := d.limiter.Admit(ctx); err != nil {
			return "", err
		}
		location, err := d.source.StreamURL(ctx, tc)
		if err != nil {
			return "", err
		}

		body, err := d.source.OpenMedia(ctx, location)
		if err != nil {
			return "", err
		}
		defer body.Close()
		return d.store.SaveAudio(name, body)
	})
}

var errExists = stderrors.New("audio file already exists")

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// FileName names a track's audio file after its id and title
func FileName(track *soundcloud.Track, tc *soundcloud.Transcoding) string {
	slug := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(track.Title), "-"), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	if slug == "" {
		return fmt.Sprintf("%d%s", track.ID, tc.Extension())
	}
	return fmt.Sprintf("%d-%s%s", track.ID, slug, tc.Extension())
}

func (d *Downloader) emitAs(t crawler.EventType, base crawler.Event, path string, err error) {
	base.Type = t
	base.Path = path
	base.Err = err
	d.emit(base)
}

func (d *Downloader) emit(e crawler.Event) {
	if d.onEvent != nil {
		d.onEvent(e)
	}
}
