package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/letterdigest/internal/app"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

type flagValues struct {
	configPath string
	envFiles   []string

	mailDir     string
	dsn         string
	outputDir   string
	pdf         bool
	llmBaseURL  string
	llmModel    string
	llmKey      string
	llmCache    bool
	dryRun      bool
	cacheDir    string
	cacheMaxAge time.Duration
	cacheClear  bool
	interval    time.Duration
	lookback    time.Duration
	crawl       bool
	verbose     bool
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	root, code := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if *code == exitOK {
			*code = exitFailure
		}
		fmt.Fprintln(os.Stderr, err)
	}
	return *code
}

func newRootCmd() (*cobra.Command, *int) {
	var fv flagValues
	code := exitOK

	root := &cobra.Command{
		Use:           "letterdigest",
		Short:         "letterdigest: summarize newsletters into a deduplicated digest",
		Version:       app.BuildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&fv.configPath, "config", "", "Path to YAML/JSON config file")
	pf.StringSliceVar(&fv.envFiles, "env-file", []string{".env"}, "Dotenv files to load before reading the environment")
	pf.StringVar(&fv.mailDir, "mail.dir", "", "Directory of .eml/.json messages")
	pf.StringVar(&fv.dsn, "db", "", "Database DSN (postgres URL or sqlite path)")
	pf.StringVar(&fv.outputDir, "output", "", "Directory for digests")
	pf.BoolVar(&fv.pdf, "pdf", false, "Also render each digest as PDF")
	pf.StringVar(&fv.llmBaseURL, "llm.base", "", "OpenAI-compatible base URL")
	pf.StringVar(&fv.llmModel, "llm.model", "", "Model name")
	pf.StringVar(&fv.llmKey, "llm.key", "", "API key")
	pf.BoolVar(&fv.llmCache, "llm.cache-only", false, "Serve summaries from cache only")
	pf.BoolVar(&fv.dryRun, "dry-run", false, "Render digests offline without calling the model")
	pf.StringVar(&fv.cacheDir, "cache.dir", "", "Cache directory")
	pf.DurationVar(&fv.cacheMaxAge, "cache.maxAge", 0, "Purge cache entries older than this")
	pf.BoolVar(&fv.cacheClear, "cache.clear", false, "Clear the cache before running")
	pf.DurationVar(&fv.interval, "interval", 0, "Schedule interval for serve")
	pf.DurationVar(&fv.lookback, "lookback", 0, "History window for cross-summary deduplication")
	pf.BoolVar(&fv.crawl, "crawl", true, "Resolve article links to their final URLs")
	pf.BoolVarP(&fv.verbose, "verbose", "v", false, "Verbose logging")

	build := func(cmd *cobra.Command) (*app.App, error) {
		if err := app.LoadEnvFiles(fv.envFiles...); err != nil {
			code = exitConfig
			return nil, err
		}
		cfg, err := app.LoadConfig(fv.configPath)
		if err != nil {
			code = exitConfig
			return nil, fmt.Errorf("load config: %w", err)
		}
		applyFlags(cmd, &cfg, fv)
		if cfg.Verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			code = exitConfig
			return nil, err
		}
		return a, nil
	}

	runBatch := func(force bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			rep, err := a.Run(cmd.Context(), force)
			if errors.Is(err, app.ErrNoItems) {
				log.Info().Msg("no new content")
				return nil
			}
			if err != nil {
				return err
			}
			log.Info().Str("batch", rep.BatchID).Int("signed", rep.Signed).Str("digest", a.LastDigestPath()).Msg("done")
			return nil
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Process new messages once and write a digest",
		Args:  cobra.NoArgs,
		RunE:  runBatch(false),
	})
	root.AddCommand(&cobra.Command{
		Use:   "force",
		Short: "Reprocess all messages, including ones already handled",
		Args:  cobra.NoArgs,
		RunE:  runBatch(true),
	})
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run on a schedule; SIGUSR1 triggers a forced batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			usr1 := make(chan os.Signal, 1)
			signal.Notify(usr1, syscall.SIGUSR1)
			defer signal.Stop(usr1)
			force := make(chan struct{})
			go func() {
				for {
					select {
					case <-usr1:
						select {
						case force <- struct{}{}:
						case <-ctx.Done():
							return
						}
					case <-ctx.Done():
						return
					}
				}
			}()
			return a.Serve(ctx, force)
		},
	})
	root.SetContext(context.Background())
	return root, &code
}

// applyFlags overlays flags the user set explicitly, giving them precedence
// over environment and file values.
func applyFlags(cmd *cobra.Command, cfg *app.Config, fv flagValues) {
	changed := cmd.Flags().Changed
	if changed("mail.dir") {
		cfg.MailDir = fv.mailDir
	}
	if changed("db") {
		cfg.DatabaseDSN = fv.dsn
	}
	if changed("output") {
		cfg.OutputDir = fv.outputDir
	}
	if changed("pdf") {
		cfg.EnablePDF = fv.pdf
	}
	if changed("llm.base") {
		cfg.LLMBaseURL = fv.llmBaseURL
	}
	if changed("llm.model") {
		cfg.LLMModel = fv.llmModel
	}
	if changed("llm.key") {
		cfg.LLMAPIKey = fv.llmKey
	}
	if changed("llm.cache-only") {
		cfg.LLMCacheOnly = fv.llmCache
	}
	if changed("dry-run") {
		cfg.DryRun = fv.dryRun
	}
	if changed("cache.dir") {
		cfg.CacheDir = fv.cacheDir
	}
	if changed("cache.maxAge") {
		cfg.CacheMaxAge = fv.cacheMaxAge
	}
	if changed("cache.clear") {
		cfg.CacheClear = fv.cacheClear
	}
	if changed("interval") {
		cfg.Interval = fv.interval
	}
	if changed("lookback") {
		cfg.Lookback = fv.lookback
	}
	if changed("crawl") {
		cfg.Crawl = fv.crawl
	}
	if changed("verbose") {
		cfg.Verbose = fv.verbose
	}
}
