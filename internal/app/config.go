package app

import (
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/hyperifyio/letterdigest/internal/dedup"
    "github.com/hyperifyio/letterdigest/internal/store"
)

// Config holds runtime configuration for the application.
type Config struct {
    // Mail
    MailDir         string
    MaxMessageBytes int64

    // Persistence
    DatabaseDSN         string
    RetryAttempts       int
    RetryInitialBackoff time.Duration
    RetryMaxBackoff     time.Duration
    StoreTimeout        time.Duration

    // Output
    OutputDir string
    EnablePDF bool

    // LLM
    LLMBaseURL           string
    LLMModel             string
    LLMAPIKey            string
    LLMCacheOnly         bool
    ReservedOutputTokens int
    SystemPrompt         string

    // Deduplication
    Lookback   time.Duration
    Thresholds dedup.Thresholds

    // Article resolution
    Crawl            bool
    UserAgent        string
    CrawlConcurrency int

    // Cache
    CacheDir         string
    CacheMaxAge      time.Duration
    CacheClear       bool
    CacheStrictPerms bool

    // Behavior
    Interval time.Duration
    DryRun   bool
    Verbose  bool
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
    return Config{
        MailDir:              "mail",
        MaxMessageBytes:      25 << 20,
        DatabaseDSN:          "letterdigest.db",
        RetryAttempts:        store.DefaultAttempts,
        RetryInitialBackoff:  store.DefaultInitialBackoff,
        RetryMaxBackoff:      store.DefaultMaxBackoff,
        StoreTimeout:         store.DefaultTimeout,
        OutputDir:            "digests",
        ReservedOutputTokens: 4096,
        Lookback:             dedup.DefaultLookback,
        Thresholds:           dedup.DefaultThresholds(),
        Crawl:                true,
        UserAgent:            "letterdigest/1.0 (+https://github.com/hyperifyio/letterdigest)",
        CrawlConcurrency:     4,
        CacheDir:             ".letterdigest-cache",
        Interval:             time.Hour,
    }
}

// ValidateConfig rejects configurations the pipeline cannot run with. The
// LLM model may be omitted in dry-run mode.
func ValidateConfig(cfg Config) error {
    if strings.TrimSpace(cfg.DatabaseDSN) == "" {
        return errors.New("config: database dsn is required (or set DATABASE_URL)")
    }
    if strings.TrimSpace(cfg.MailDir) == "" {
        return errors.New("config: mail dir is required")
    }
    if strings.TrimSpace(cfg.OutputDir) == "" {
        return errors.New("config: output dir is required")
    }
    if !cfg.DryRun && strings.TrimSpace(cfg.LLMModel) == "" {
        return errors.New("config: llm.model is required (or set LLM_MODEL)")
    }
    if cfg.Lookback <= 0 || cfg.Interval <= 0 {
        return errors.New("config: lookback and interval must be positive")
    }
    if cfg.RetryAttempts <= 0 || cfg.RetryInitialBackoff <= 0 || cfg.RetryMaxBackoff <= 0 || cfg.StoreTimeout <= 0 {
        return errors.New("config: store retry settings must be positive")
    }
    for name, v := range map[string]float64{
        "batchTitle":     cfg.Thresholds.BatchTitle,
        "batchContent":   cfg.Thresholds.BatchContent,
        "historyTitle":   cfg.Thresholds.HistoryTitle,
        "historyContent": cfg.Thresholds.HistoryContent,
    } {
        if v <= 0 || v > 1 {
            return fmt.Errorf("config: threshold %s must be in (0,1], got %v", name, v)
        }
    }
    if cfg.CrawlConcurrency < 0 || cfg.MaxMessageBytes < 0 {
        return errors.New("config: negative limits are not allowed")
    }
    return nil
}
