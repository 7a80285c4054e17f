package app

import (
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/rs/zerolog/log"
)

// ApplyEnvOverrides overrides cfg fields whose environment variable is set.
// It runs after the config file so env wins over the file while flags,
// applied last, win over both.
func ApplyEnvOverrides(cfg *Config) {
    if cfg == nil { return }

    setStr := func(dst *string, key string) {
        if v := strings.TrimSpace(os.Getenv(key)); v != "" { *dst = v }
    }
    setDur := func(dst *time.Duration, key string) {
        s := strings.TrimSpace(os.Getenv(key))
        if s == "" { return }
        d, err := time.ParseDuration(s)
        if err != nil {
            log.Warn().Str("env", key).Str("value", s).Msg("ignoring invalid duration")
            return
        }
        *dst = d
    }
    setInt := func(dst *int, key string) {
        s := strings.TrimSpace(os.Getenv(key))
        if s == "" { return }
        n, err := strconv.Atoi(s)
        if err != nil {
            log.Warn().Str("env", key).Str("value", s).Msg("ignoring invalid integer")
            return
        }
        *dst = n
    }
    setFloat := func(dst *float64, key string) {
        s := strings.TrimSpace(os.Getenv(key))
        if s == "" { return }
        f, err := strconv.ParseFloat(s, 64)
        if err != nil {
            log.Warn().Str("env", key).Str("value", s).Msg("ignoring invalid number")
            return
        }
        *dst = f
    }
    // booleans accept 1/true/yes/on and 0/false/no/off
    setBool := func(dst *bool, key string) {
        switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
        case "1", "true", "yes", "on":
            *dst = true
        case "0", "false", "no", "off":
            *dst = false
        }
    }

    setStr(&cfg.MailDir, "MAIL_DIR")
    if s := strings.TrimSpace(os.Getenv("MAIL_MAX_BYTES")); s != "" {
        if n, err := strconv.ParseInt(s, 10, 64); err == nil { cfg.MaxMessageBytes = n }
    }

    setStr(&cfg.DatabaseDSN, "DATABASE_URL")
    setInt(&cfg.RetryAttempts, "STORE_RETRY_ATTEMPTS")
    setDur(&cfg.RetryInitialBackoff, "STORE_RETRY_INITIAL")
    setDur(&cfg.RetryMaxBackoff, "STORE_RETRY_MAX")
    setDur(&cfg.StoreTimeout, "STORE_TIMEOUT")

    setStr(&cfg.OutputDir, "OUTPUT_DIR")
    setBool(&cfg.EnablePDF, "ENABLE_PDF")

    setStr(&cfg.LLMBaseURL, "LLM_BASE_URL")
    setStr(&cfg.LLMModel, "LLM_MODEL")
    setStr(&cfg.LLMAPIKey, "LLM_API_KEY")
    setBool(&cfg.LLMCacheOnly, "LLM_CACHE_ONLY")
    setInt(&cfg.ReservedOutputTokens, "LLM_RESERVED_OUTPUT_TOKENS")

    setDur(&cfg.Lookback, "DEDUP_LOOKBACK")
    setFloat(&cfg.Thresholds.BatchTitle, "DEDUP_BATCH_TITLE")
    setFloat(&cfg.Thresholds.BatchContent, "DEDUP_BATCH_CONTENT")
    setFloat(&cfg.Thresholds.HistoryTitle, "DEDUP_HISTORY_TITLE")
    setFloat(&cfg.Thresholds.HistoryContent, "DEDUP_HISTORY_CONTENT")

    setBool(&cfg.Crawl, "CRAWL")
    setStr(&cfg.UserAgent, "CRAWL_USER_AGENT")
    setInt(&cfg.CrawlConcurrency, "CRAWL_CONCURRENCY")

    setStr(&cfg.CacheDir, "CACHE_DIR")
    setDur(&cfg.CacheMaxAge, "CACHE_MAX_AGE")
    setBool(&cfg.CacheClear, "CACHE_CLEAR")
    setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")

    setDur(&cfg.Interval, "SCHEDULE_INTERVAL")
    setBool(&cfg.DryRun, "DRY_RUN")
    setBool(&cfg.Verbose, "VERBOSE")
}

// LoadConfig builds the configuration from defaults, an optional file and the
// environment. Flags are applied by the caller.
func LoadConfig(path string) (Config, error) {
    cfg := Defaults()
    if strings.TrimSpace(path) != "" {
        fc, err := LoadConfigFile(path)
        if err != nil {
            return cfg, err
        }
        ApplyFileConfig(&cfg, fc)
    }
    ApplyEnvOverrides(&cfg)
    return cfg, nil
}
