// Package app wires configuration, storage, mail, article resolution and
// summarization into runnable digest jobs.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/letterdigest/internal/cache"
	"github.com/hyperifyio/letterdigest/internal/crawl"
	"github.com/hyperifyio/letterdigest/internal/dedup"
	"github.com/hyperifyio/letterdigest/internal/fetch"
	"github.com/hyperifyio/letterdigest/internal/mail"
	"github.com/hyperifyio/letterdigest/internal/pipeline"
	"github.com/hyperifyio/letterdigest/internal/store"
	"github.com/hyperifyio/letterdigest/internal/summarize"
)

// App owns the long-lived resources of one process.
type App struct {
	cfg       Config
	store     *store.Store
	mailbox   mail.Mailbox
	processor *pipeline.Processor
	writer    *DigestWriter
}

// ErrNoItems is returned when a run finds nothing new to summarize.
var ErrNoItems = pipeline.ErrNoItems

// New validates cfg and builds the application.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DatabaseDSN, store.Options{
		Attempts:       cfg.RetryAttempts,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
		Timeout:        cfg.StoreTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var pages *cache.PageCache
	var summaries *cache.SummaryCache
	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		pages = &cache.PageCache{Dir: filepath.Join(cfg.CacheDir, "pages"), StrictPerms: cfg.CacheStrictPerms}
		summaries = &cache.SummaryCache{Dir: filepath.Join(cfg.CacheDir, "summaries"), StrictPerms: cfg.CacheStrictPerms}
		if cfg.CacheMaxAge > 0 {
			now := time.Now()
			for _, dir := range []string{pages.Dir, summaries.Dir} {
				if n, err := cache.PurgeByAge(dir, cfg.CacheMaxAge, now); err != nil {
					log.Warn().Err(err).Str("dir", dir).Msg("cache purge failed")
				} else if n > 0 {
					log.Info().Int("removed", n).Str("dir", dir).Msg("cache purged")
				}
			}
		}
	}

	var sum summarize.Summarizer
	if cfg.DryRun {
		sum = summarize.Offline{}
	} else {
		client := summarize.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, newHTTPClient(5*time.Minute))
		preflight(ctx, client)
		sum = &summarize.LLM{
			Client:               client,
			Model:                cfg.LLMModel,
			Cache:                summaries,
			ReservedOutputTokens: cfg.ReservedOutputTokens,
			Temperature:          0.2,
			SystemPrompt:         cfg.SystemPrompt,
			CacheOnly:            cfg.LLMCacheOnly,
		}
	}

	var resolver pipeline.Resolver
	if cfg.Crawl {
		resolver = &crawl.Resolver{
			Fetcher: &fetch.Client{
				HTTPClient:        newHTTPClient(0),
				UserAgent:         cfg.UserAgent,
				MaxAttempts:       2,
				PerRequestTimeout: 15 * time.Second,
				Cache:             pages,
				MaxConcurrent:     cfg.CrawlConcurrency,
			},
			Concurrency: cfg.CrawlConcurrency,
		}
	}

	writer := &DigestWriter{
		Dir:       cfg.OutputDir,
		PDF:       cfg.EnablePDF,
		Model:     cfg.LLMModel,
		BaseURL:   cfg.LLMBaseURL,
		DryRun:    cfg.DryRun,
		PageCache: pages != nil && cfg.Crawl,
		LLMCache:  summaries != nil && !cfg.DryRun,
	}
	a := &App{
		cfg:     cfg,
		store:   st,
		mailbox: mail.DirMailbox{Dir: cfg.MailDir, MaxBytes: cfg.MaxMessageBytes},
		processor: &pipeline.Processor{
			Store: st,
			Dedup: &dedup.Deduplicator{
				History:    st,
				Lookback:   cfg.Lookback,
				Thresholds: cfg.Thresholds,
			},
			Summarizer: sum,
			Resolver:   resolver,
			Publisher:  writer,
		},
		writer: writer,
	}
	return a, nil
}

// preflight lists models to surface connectivity problems early. Failure
// only warns; the summary call reports the real error.
func preflight(ctx context.Context, client *openai.Client) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	models, err := client.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
		return
	}
	log.Info().Int("count", len(models.Models)).Msg("LLM models available")
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

// LastDigestPath returns the file written by the most recent successful run.
func (a *App) LastDigestPath() string {
	return a.writer.LastPath
}

// Run fetches mail and processes one batch. Force includes messages that
// were already processed.
func (a *App) Run(ctx context.Context, force bool) (*pipeline.Report, error) {
	sch := pipeline.NewScheduler(a.mailbox, a.processor, a.cfg.Interval)
	return sch.RunOnce(ctx, pipeline.RunOptions{Force: force})
}

// Serve runs batches every configured interval until ctx ends. Each value
// received on force triggers an extra forced batch.
func (a *App) Serve(ctx context.Context, force <-chan struct{}) error {
	sch := pipeline.NewScheduler(a.mailbox, a.processor, a.cfg.Interval)
	sch.Start(ctx)
	for {
		select {
		case <-ctx.Done():
			sch.Stop()
			return nil
		case _, ok := <-force:
			if !ok {
				force = nil
				continue
			}
			log.Info().Msg("forced batch requested")
			sch.Force()
		}
	}
}
