package crawler

import (
	"context"
	"fmt"
	"time"

	errs "zester/pkg/errors"
	"zester/pkg/logger"
	"zester/pkg/ratelimit"
	"zester/pkg/retry"
	"zester/pkg/soundcloud"
)

// PlaylistFetcher returns the full representation of one playlist
type PlaylistFetcher interface {
	Playlist(ctx context.Context, id int64) (*soundcloud.Playlist, error)
}

// Expander replaces the playlist summaries of a finished playlists crawl
// with their full representation, one request per playlist. Requests go
// through the same limiter and retry policy as page fetches.
type Expander struct {
	fetcher PlaylistFetcher
	limiter ratelimit.Limiter
	policy  *retry.Policy
	delay   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	onEvent func(Event)
	logger  logger.Logger
}

// NewExpander creates an expander. Decoder and PageSize in opts are unused.
func NewExpander(fetcher PlaylistFetcher, opts Options) *Expander {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithFields(map[string]interface{}{
		"component": "expander",
		"kind":      string(soundcloud.KindPlaylists),
	})

	e := &Expander{
		fetcher: fetcher,
		limiter: opts.Limiter,
		delay:   opts.PageDelay,
		sleep:   opts.Sleep,
		onEvent: opts.OnEvent,
		logger:  log,
	}
	if e.limiter == nil {
		e.limiter = ratelimit.Unlimited{}
	}
	if e.sleep == nil {
		e.sleep = retry.Wait
	}
	e.policy = ObservedPolicy(opts.Policy, soundcloud.KindPlaylists, log, e.emit)
	return e
}

// Expand fetches each playlist in records, in order, and replaces it in
// place. The first failure stops the expansion, is reported as an
// EventFailed and is returned; records is then partially expanded and must
// not be stored.
func (e *Expander) Expand(ctx context.Context, records []soundcloud.Record) error {
	if err := e.expand(ctx, records); err != nil {
		e.emit(Event{Type: EventFailed, Kind: soundcloud.KindPlaylists, Err: err})
		return err
	}
	return nil
}

func (e *Expander) expand(ctx context.Context, records []soundcloud.Record) error {
	total := len(records)
	e.emit(Event{Type: EventExpandStarted, Kind: soundcloud.KindPlaylists, Total: total})
	logger.LogComponentStart(e.logger, "expander", map[string]interface{}{
		"playlists": total,
	})

	for i, record := range records {
		summary, ok := record.(*soundcloud.Playlist)
		if !ok {
			return errs.NewDecodeError(fmt.Sprintf("%s record in playlist expansion", record.RecordKind()), nil)
		}
		if i > 0 && e.delay > 0 {
			if err := e.sleep(ctx, e.delay); err != nil {
				return err
			}
		}

		e.emit(Event{
			Type:   EventPlaylistStarted,
			Kind:   soundcloud.KindPlaylists,
			ItemID: summary.ID,
			Title:  summary.Title,
			Count:  i,
			Total:  total,
		})

		full, err := e.fetch(ctx, summary.ID)
		if err != nil {
			e.logger.ErrorWithFields("playlist expansion failed", map[string]interface{}{
				"playlist_id": summary.ID,
				"error":       err.Error(),
			})
			return fmt.Errorf("expand playlist %d: %w", summary.ID, err)
		}
		if full.ID != summary.ID {
			return errs.NewDecodeError(fmt.Sprintf("playlist %d answered with playlist %d", summary.ID, full.ID), nil)
		}
		records[i] = full
		playlistsExpanded.Inc()

		e.logger.DebugWithFields("playlist expanded", map[string]interface{}{
			"playlist_id": full.ID,
			"tracks":      len(full.Tracks),
		})
		e.emit(Event{
			Type:   EventPlaylistExpanded,
			Kind:   soundcloud.KindPlaylists,
			ItemID: full.ID,
			Title:  full.Title,
			Count:  i + 1,
			Total:  total,
		})
	}

	e.logger.InfoWithFields("playlists expanded", map[string]interface{}{
		"playlists": total,
	})
	return nil
}

func (e *Expander) fetch(ctx context.Context, id int64) (*soundcloud.Playlist, error) {
	return retry.Do(ctx, e.policy, func(ctx context.Context) (*soundcloud.Playlist, error) {
		start := time.Now()
		if err := e.limiter.Admit(ctx); err != nil {
			return nil, err
		}
		admissionWait.Observe(time.Since(start).Seconds())
		return e.fetcher.Playlist(ctx, id)
	})
}

func (e *Expander) emit(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}
