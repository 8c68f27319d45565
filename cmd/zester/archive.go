package main

import (
	"context"
	"fmt"
	"os"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"zester/internal/archiver"
	"zester/pkg/audio"
	"zester/pkg/auth"
	"zester/pkg/config"
	"zester/pkg/crawler"
	"zester/pkg/logger"
	"zester/pkg/metrics"
	"zester/pkg/ratelimit"
	"zester/pkg/retry"
	"zester/pkg/soundcloud"
	"zester/pkg/storage"
	"zester/pkg/ui"
	"zester/pkg/ui/tui"
)

var (
	outputDir   string
	format      string
	overwrite   bool
	account     string
	userID      int64
	pageSize    int
	pageDelay   time.Duration
	concurrent  int
	rateLimit   int
	redisAddr   string
	metricsAddr string
	noExpand    bool
	withAudio   bool
	useTUI      bool
)

// archiveCmd represents the archive command
var archiveCmd = &cobra.Command{
	Use:   "archive [likes|playlists|comments]...",
	Short: "Snapshot collections of the authenticated account",
	Long: `Crawl one or more collections of the authenticated SoundCloud account
and write each as a snapshot file.

Without arguments the collections from the configuration are archived
(likes, playlists and comments by default). A collection that fails
does not stop the others; the command exits non-zero if any failed.`,
	Example: `  # Archive everything with the default account
  zester archive

  # Only likes, as NDJSON
  zester archive likes --format ndjson

  # Share a rate limit budget with other machines
  zester archive --redis-addr localhost:6379

  # Also download the audio of liked tracks, with the full-screen display
  zester archive likes --audio --tui`,
	ValidArgs: []string{"likes", "playlists", "comments"},
	Args:      cobra.OnlyValidArgs,
	Run:       runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)

	archiveCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for snapshots")
	archiveCmd.Flags().StringVarP(&format, "format", "f", "", "snapshot format (json, yaml, ndjson)")
	archiveCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing snapshots instead of writing timestamped files")
	archiveCmd.Flags().StringVarP(&account, "account", "a", "", "stored account to use")
	archiveCmd.Flags().Int64Var(&userID, "user-id", 0, "user whose collections to crawl (default: the authenticated user)")
	archiveCmd.Flags().IntVar(&pageSize, "page-size", 0, "items requested per page (max 500)")
	archiveCmd.Flags().DurationVar(&pageDelay, "page-delay", -1, "pause between pages of one collection")
	archiveCmd.Flags().IntVar(&concurrent, "concurrent", 0, "collections crawled at the same time")
	archiveCmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests per rate limit window")
	archiveCmd.Flags().StringVar(&redisAddr, "redis-addr", "", "share the rate limit through this Redis server")
	archiveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	archiveCmd.Flags().BoolVar(&noExpand, "no-expand", false, "keep playlist summaries instead of fetching each playlist in full")
	archiveCmd.Flags().BoolVar(&withAudio, "audio", false, "download the audio of liked tracks into the output directory")
	archiveCmd.Flags().BoolVar(&useTUI, "tui", false, "show progress in a full-screen terminal interface")
}

func runArchive(cmd *cobra.Command, args []string) {
	flags := globalFlags()
	flags["output"] = outputDir
	flags["format"] = format
	flags["overwrite"] = overwrite
	flags["account"] = account
	flags["user-id"] = userID
	flags["page-size"] = pageSize
	flags["concurrent"] = concurrent
	flags["rate-limit"] = rateLimit
	flags["redis-addr"] = redisAddr
	flags["metrics-addr"] = metricsAddr
	flags["no-expand"] = noExpand
	flags["audio"] = withAudio
	if cmd.Flags().Changed("page-delay") {
		flags["page-delay"] = pageDelay
	}
	if len(args) > 0 {
		flags["collections"] = args
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	logger.Version = version
	var logOutput io.Writer = os.Stderr
	if useTUI {
		logOutput = io.Discard
	}
	if err := logger.InitializeWithWriter(&cfg.Logging, logOutput); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(1)
	}
	log := logger.WithField("component", "cli")

	kinds := make([]soundcloud.Kind, 0, len(cfg.Archive.Collections))
	for _, name := range cfg.Archive.Collections {
		kind, err := soundcloud.ParseKind(name)
		if err != nil {
			ui.PrintError("Invalid collection", err.Error())
			os.Exit(1)
		}
		kinds = append(kinds, kind)
	}

	cred, storedUserID, err := resolveCredential(cfg)
	if err != nil {
		ui.PrintError("No usable credentials", err.Error())
		fmt.Println("\nRun 'zester auth login' to store an account, or set ZESTER_OAUTH_TOKEN and ZESTER_CLIENT_ID.")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	client := soundcloud.NewClient(cred, cfg.SoundCloud.RequestTimeout, log)
	client.SetBaseURL(cfg.SoundCloud.BaseURL)
	if cfg.SoundCloud.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.SoundCloud.UserAgent)
	}

	uid := cfg.SoundCloud.UserID
	if uid == 0 {
		uid = storedUserID
	}
	if uid == 0 {
		me, err := client.Me(ctx)
		if err != nil {
			ui.PrintError("Failed to resolve the authenticated user", err.Error())
			os.Exit(1)
		}
		uid = me.ID
		if !quiet && !useTUI {
			ui.PrintInfo("Account", me.Username)
		}
	}

	jobs, err := archiver.Jobs(kinds, uid)
	if err != nil {
		ui.PrintError("Invalid archive request", err.Error())
		os.Exit(1)
	}

	outputFormat, err := storage.ParseFormat(cfg.Output.Format)
	if err != nil {
		ui.PrintError("Invalid output format", err.Error())
		os.Exit(1)
	}

	store, err := storage.NewManager(cfg.Output.Directory, cfg.Output.Overwrite)
	if err != nil {
		ui.PrintError("Failed to prepare output directory", err.Error())
		os.Exit(1)
	}

	limiterOpts, closeRedis := limiterOptions(cfg)
	defer closeRedis()

	opts := archiver.Options{
		PageSize:  cfg.SoundCloud.PageSize,
		PageDelay: cfg.Archive.PageDelay,
		Format:    outputFormat,
		Policy:    retryPolicy(cfg, log),
	}
	if cfg.RateLimit.Scope == "per_collection" {
		opts.NewLimiter = func() (ratelimit.Limiter, error) {
			return ratelimit.New(limiterOpts)
		}
	} else {
		opts.Limiter, err = ratelimit.New(limiterOpts)
		if err != nil {
			ui.PrintError("Invalid rate limit", err.Error())
			os.Exit(1)
		}
	}

	var (
		display  *ui.ProgressDisplay
		terminal *tui.TUI
	)
	switch {
	case useTUI:
		terminal = tui.NewTUI(kinds)
		opts.OnEvent = terminal.Observe
	case !quiet:
		display = ui.NewProgressDisplay(kinds, verbose)
		opts.OnEvent = display.Observe
	default:
		opts.OnEvent = eventLogger(log)
	}

	if cfg.Archive.ExpandPlaylists {
		opts.Playlists = client
	}
	if cfg.Archive.Audio {
		audioLimiter := opts.Limiter
		if audioLimiter == nil {
			if audioLimiter, err = ratelimit.New(limiterOpts); err != nil {
				ui.PrintError("Invalid rate limit", err.Error())
				os.Exit(1)
			}
		}
		opts.Audio = audio.NewDownloader(client, store, audio.Options{
			Limiter:   audioLimiter,
			Policy:    opts.Policy,
			Delay:     cfg.Archive.PageDelay,
			Overwrite: cfg.Output.Overwrite,
			OnEvent:   opts.OnEvent,
			Logger:    log,
		})
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address, log); err != nil {
				log.WithError(err).Warn("metrics endpoint stopped")
			}
		}()
	}

	log.InfoWithFields("Starting archive run", map[string]interface{}{
		"user_id":     uid,
		"collections": cfg.Archive.Collections,
		"output":      store.GetOutputDir(),
		"format":      string(outputFormat),
		"expand":      cfg.Archive.ExpandPlaylists,
		"audio":       cfg.Archive.Audio,
	})

	pool := archiver.NewWorkerPool(ctx, cfg.Archive.Concurrency, client, store, opts, log)

	var results []archiver.CrawlResult
	if terminal != nil {
		results, err = runWithTUI(terminal, cancelRun, func() []archiver.CrawlResult {
			return archiver.Run(pool, jobs)
		})
		if err != nil {
			log.WithError(err).Warn("terminal interface stopped")
		}
	} else {
		results = archiver.Run(pool, jobs)
	}

	if display != nil {
		display.Complete()
	}
	if !quiet || terminal != nil {
		printResults(results)
	}

	if failed := archiver.Failed(results); len(failed) > 0 {
		for _, r := range failed {
			ui.PrintError(fmt.Sprintf("%s failed", r.Job.Kind), r.Error.Error())
		}
		os.Exit(1)
	}
}

// resolveCredential prefers credentials from config or environment, then the
// credential store. The returned user id is the stored account's, if any.
func resolveCredential(cfg *config.Config) (auth.Credential, int64, error) {
	if cfg.SoundCloud.OAuthToken != "" || cfg.SoundCloud.ClientID != "" {
		cred, err := auth.NewCredential(cfg.SoundCloud.OAuthToken, cfg.SoundCloud.ClientID)
		return cred, 0, err
	}

	manager, err := auth.NewManager()
	if err != nil {
		return auth.Credential{}, 0, err
	}
	cred, acct, err := manager.Credential(cfg.SoundCloud.Account)
	if err != nil {
		return auth.Credential{}, 0, err
	}
	return cred, acct.UserID, nil
}

// limiterOptions maps the rate limit config onto limiter options. The
// returned func closes the Redis client, if one was opened.
func limiterOptions(cfg *config.Config) (ratelimit.Options, func()) {
	opts := ratelimit.Options{
		Algorithm: cfg.RateLimit.Algorithm,
		Requests:  cfg.RateLimit.Requests,
		Window:    cfg.RateLimit.Window,
		Burst:     cfg.RateLimit.Burst,
		MaxWait:   cfg.RateLimit.MaxWait,
		RedisKey:  cfg.RateLimit.RedisKey,
	}
	if opts.Algorithm != ratelimit.AlgorithmRedis {
		return opts, func() {}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
	opts.Redis = rdb
	return opts, func() { _ = rdb.Close() }
}

func retryPolicy(cfg *config.Config, log logger.Logger) *retry.Policy {
	return &retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
			JitterFactor: cfg.Retry.Jitter,
		},
		MaxRetryAfter: cfg.Retry.MaxRetryAfter,
		Logger:        log,
	}
}

// runWithTUI runs the archive while the terminal interface is shown. When
// the user quits first, the run is cancelled and its results awaited.
func runWithTUI(terminal *tui.TUI, cancel context.CancelFunc, run func() []archiver.CrawlResult) ([]archiver.CrawlResult, error) {
	runDone := make(chan []archiver.CrawlResult, 1)
	go func() {
		runDone <- run()
	}()

	tuiDone := make(chan error, 1)
	go func() {
		tuiDone <- terminal.Start()
	}()

	select {
	case results := <-runDone:
		terminal.Stop()
		return results, <-tuiDone
	case err := <-tuiDone:
		cancel()
		return <-runDone, err
	}
}

func printResults(results []archiver.CrawlResult) {
	for _, r := range results {
		if !r.Success {
			continue
		}
		fmt.Printf("  %s %-10s %6d records  %s\n", ui.Green("✓"), r.Job.Kind, r.Count, ui.Dim(r.Path))
		if r.Audio != nil {
			fmt.Printf("  %s %-10s %6d saved, %d existing, %d without stream, %d failed  %s\n",
				ui.Green("♪"), "audio", r.Audio.Saved, r.Audio.Existing, r.Audio.Skipped, r.Audio.Failed,
				ui.Dim(storage.AudioDir))
		}
		if r.AudioErr != nil {
			ui.PrintWarning("Some tracks were not downloaded", r.AudioErr.Error())
		}
	}
}

// eventLogger reports failed collections through the log when no display
// is attached
func eventLogger(log logger.Logger) func(crawler.Event) {
	return func(e crawler.Event) {
		if e.Type == crawler.EventFailed {
			log.WithError(e.Err).WithField("kind", string(e.Kind)).Warn("collection failed")
		}
	}
}
