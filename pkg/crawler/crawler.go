package crawler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	errs "zester/pkg/errors"
	"zester/pkg/logger"
	"zester/pkg/ratelimit"
	"zester/pkg/retry"
	"zester/pkg/soundcloud"
)

var (
	// ErrAlreadyConsumed is yielded when a crawler's records are ranged over
	// a second time. Start a new crawler for another pass.
	ErrAlreadyConsumed = errors.New("crawler: records already consumed")

	// ErrAborted is the terminal error of a crawl whose consumer stopped early
	ErrAborted = errors.New("crawler: consumer stopped before the collection was exhausted")
)

// State is the lifecycle position of a crawl
type State int32

const (
	StateInit State = iota
	StateFetching
	StateDecoding
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateFetching:
		return "fetching"
	case StateDecoding:
		return "decoding"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Fetcher returns the raw body of one page
type Fetcher interface {
	FetchPage(ctx context.Context, req soundcloud.PageRequest) ([]byte, error)
}

// Options tunes a crawl. Zero values select defaults.
type Options struct {
	// Limiter gates every request attempt, retries included
	Limiter ratelimit.Limiter
	// Policy decides retries of a failed page
	Policy *retry.Policy
	// Decoder turns page bodies into records
	Decoder soundcloud.Decoder
	// PageSize is requested on the first page
	PageSize int
	// PageDelay is an extra pause between successive pages
	PageDelay time.Duration
	// Logger for crawl progress
	Logger logger.Logger
	// OnEvent observes progress. It runs on the consuming goroutine.
	OnEvent func(Event)
	// Sleep performs the page delay; defaults to retry.Wait
	Sleep func(ctx context.Context, d time.Duration) error
}

// Crawler walks one collection endpoint page by page. Its records are a
// lazy sequence that can be consumed once.
type Crawler struct {
	kind     soundcloud.Kind
	endpoint string
	fetcher  Fetcher
	limiter  ratelimit.Limiter
	policy   *retry.Policy
	decoder  soundcloud.Decoder
	pageSize int
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	onEvent  func(Event)
	logger   logger.Logger

	consumed atomic.Bool
	state    atomic.Int32

	mu  sync.Mutex
	err error
}

// New creates a crawler for the collection of kind served at endpoint
func New(kind soundcloud.Kind, endpoint string, fetcher Fetcher, opts Options) *Crawler {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithFields(map[string]interface{}{
		"component": "crawler",
		"kind":      string(kind),
	})

	c := &Crawler{
		kind:     kind,
		endpoint: endpoint,
		fetcher:  fetcher,
		limiter:  opts.Limiter,
		decoder:  opts.Decoder,
		pageSize: soundcloud.ClampPageSize(opts.PageSize),
		delay:    opts.PageDelay,
		sleep:    opts.Sleep,
		onEvent:  opts.OnEvent,
		logger:   log,
	}
	if c.limiter == nil {
		c.limiter = ratelimit.Unlimited{}
	}
	if c.decoder == nil {
		c.decoder = soundcloud.NewEntityDecoder()
	}
	if c.sleep == nil {
		c.sleep = retry.Wait
	}
	c.policy = ObservedPolicy(opts.Policy, kind, log, c.emit)
	return c
}

// ObservedPolicy copies p so that each pause is logged and reported to emit
// as an EventBackoffPaused, without touching a policy shared with other
// crawls. A nil p selects retry.DefaultPolicy.
func ObservedPolicy(p *retry.Policy, kind soundcloud.Kind, log logger.Logger, emit func(Event)) *retry.Policy {
	if p == nil {
		p = retry.DefaultPolicy()
	}
	wrapped := *p
	if wrapped.Logger == nil {
		wrapped.Logger = log
	}
	onRetry := p.OnRetry
	wrapped.OnRetry = func(attempt int, err error, delay time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
		logger.LogBackoff(log, string(kind), attempt, delay, err)
		if emit != nil {
			emit(Event{Type: EventBackoffPaused, Kind: kind, Attempt: attempt, Delay: delay, Err: err})
		}
	}
	return &wrapped
}

// Kind returns the collection kind being crawled
func (c *Crawler) Kind() soundcloud.Kind {
	return c.kind
}

// State returns the current lifecycle state
func (c *Crawler) State() State {
	return State(c.state.Load())
}

// Err returns the terminal error of a failed crawl
func (c *Crawler) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Records returns the crawl as a lazy sequence. Pages are fetched as the
// consumer asks for records. A failure is yielded once as the final pair and
// ends the sequence. Ranging a second time yields only ErrAlreadyConsumed.
func (c *Crawler) Records(ctx context.Context) iter.Seq2[soundcloud.Record, error] {
	return func(yield func(soundcloud.Record, error) bool) {
		if !c.consumed.CompareAndSwap(false, true) {
			yield(nil, ErrAlreadyConsumed)
			return
		}
		c.run(ctx, yield)
	}
}

func (c *Crawler) run(ctx context.Context, yield func(soundcloud.Record, error) bool) {
	logger.LogComponentStart(c.logger, "crawler", map[string]interface{}{
		"endpoint":  c.endpoint,
		"page_size": c.pageSize,
	})

	seen := make(map[int64]struct{})
	cursors := make(map[string]struct{})
	cursor := ""
	pages, total := 0, 0

	for {
		if err := ctx.Err(); err != nil {
			c.fail(err, yield)
			return
		}
		if pages > 0 && c.delay > 0 {
			if err := c.sleep(ctx, c.delay); err != nil {
				c.fail(err, yield)
				return
			}
		}

		page, err := c.fetch(ctx, cursor)
		if err != nil {
			c.fail(err, yield)
			return
		}
		pages++
		pagesFetched.WithLabelValues(string(c.kind)).Inc()

		emitted := 0
		for _, record := range page.Items {
			if record.RecordKind() != c.kind {
				c.fail(errs.NewDecodeError(fmt.Sprintf("page %d holds a %s record in a %s crawl",
					pages, record.RecordKind(), c.kind), nil), yield)
				return
			}
			id := record.RecordID()
			if _, dup := seen[id]; dup {
				duplicatesDropped.WithLabelValues(string(c.kind)).Inc()
				c.logger.DebugWithFields("dropped repeated record", map[string]interface{}{
					"id":   id,
					"page": pages,
				})
				continue
			}
			seen[id] = struct{}{}
			emitted++
			total++
			recordsEmitted.WithLabelValues(string(c.kind)).Inc()

			if !yield(record, nil) {
				c.abort()
				return
			}
		}

		logger.LogCrawlProgress(c.logger, string(c.kind), pages, total)
		c.emit(Event{Type: EventPageFetched, Kind: c.kind, Page: pages, Count: emitted, Total: total})

		if !page.HasNext() {
			c.finish(pages, total)
			return
		}
		if _, repeated := cursors[page.NextCursor]; repeated || page.NextCursor == cursor {
			c.fail(errs.NewDecodeError(fmt.Sprintf("cursor cycle after page %d", pages), nil), yield)
			return
		}
		cursors[page.NextCursor] = struct{}{}
		cursor = page.NextCursor
	}
}

// fetch retrieves and decodes one page, retrying per policy. Each attempt
// is admitted by the limiter first.
func (c *Crawler) fetch(ctx context.Context, cursor string) (*soundcloud.PageResponse, error) {
	req := soundcloud.PageRequest{
		Endpoint: c.endpoint,
		Cursor:   cursor,
		PageSize: c.pageSize,
	}

	return retry.Do(ctx, c.policy, func(ctx context.Context) (*soundcloud.PageResponse, error) {
		start := time.Now()
		if err := c.limiter.Admit(ctx); err != nil {
			return nil, err
		}
		admissionWait.Observe(time.Since(start).Seconds())

		c.setState(StateFetching)
		raw, err := c.fetcher.FetchPage(ctx, req)
		if err != nil {
			return nil, err
		}

		c.setState(StateDecoding)
		return c.decoder.Decode(raw, c.kind)
	})
}

func (c *Crawler) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Crawler) finish(pages, total int) {
	c.setState(StateDone)
	crawlsTotal.WithLabelValues(string(c.kind), "done").Inc()
	c.logger.InfoWithFields("crawl finished", map[string]interface{}{
		"pages":   pages,
		"records": total,
	})
	c.emit(Event{Type: EventDone, Kind: c.kind, Page: pages, Total: total})
}

// fail records a terminal error and hands it to the consumer
func (c *Crawler) fail(err error, yield func(soundcloud.Record, error) bool) {
	c.terminate(err, "failed")
	c.logger.WithError(err).Error("crawl failed")
	yield(nil, err)
}

// abort records that the consumer stopped ranging. yield must not be
// called again.
func (c *Crawler) abort() {
	c.terminate(ErrAborted, "aborted")
	logger.LogComponentStop(c.logger, "crawler", "consumer stopped ranging")
}

func (c *Crawler) terminate(err error, result string) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()

	c.setState(StateFailed)
	crawlsTotal.WithLabelValues(string(c.kind), result).Inc()
	c.emit(Event{Type: EventFailed, Kind: c.kind, Err: err})
}

func (c *Crawler) emit(e Event) {
	if c.onEvent != nil {
		c.onEvent(e)
	}
}
