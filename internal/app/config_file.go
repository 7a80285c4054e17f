package app

import (
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "time"

    yaml "gopkg.in/yaml.v3"
)

// FileConfig is the YAML or JSON configuration file schema.
type FileConfig struct {
    Mail struct {
        Dir      string `yaml:"dir" json:"dir"`
        MaxBytes int64  `yaml:"maxBytes" json:"maxBytes"`
    } `yaml:"mail" json:"mail"`

    Database struct {
        DSN            string        `yaml:"dsn" json:"dsn"`
        RetryAttempts  int           `yaml:"retryAttempts" json:"retryAttempts"`
        InitialBackoff time.Duration `yaml:"initialBackoff" json:"initialBackoff"`
        MaxBackoff     time.Duration `yaml:"maxBackoff" json:"maxBackoff"`
        Timeout        time.Duration `yaml:"timeout" json:"timeout"`
    } `yaml:"database" json:"database"`

    Output    string `yaml:"output" json:"output"`
    EnablePDF bool   `yaml:"enablePDF" json:"enablePDF"`

    LLM struct {
        BaseURL        string `yaml:"base" json:"base"`
        Model          string `yaml:"model" json:"model"`
        APIKey         string `yaml:"key" json:"key"`
        CacheOnly      bool   `yaml:"cacheOnly" json:"cacheOnly"`
        ReservedOutput int    `yaml:"reservedOutputTokens" json:"reservedOutputTokens"`
        SystemPrompt   string `yaml:"systemPrompt" json:"systemPrompt"`
    } `yaml:"llm" json:"llm"`

    Dedup struct {
        Lookback       time.Duration `yaml:"lookback" json:"lookback"`
        BatchTitle     float64       `yaml:"batchTitle" json:"batchTitle"`
        BatchContent   float64       `yaml:"batchContent" json:"batchContent"`
        HistoryTitle   float64       `yaml:"historyTitle" json:"historyTitle"`
        HistoryContent float64       `yaml:"historyContent" json:"historyContent"`
    } `yaml:"dedup" json:"dedup"`

    Crawl struct {
        Enable      *bool  `yaml:"enable" json:"enable"`
        UserAgent   string `yaml:"userAgent" json:"userAgent"`
        Concurrency int    `yaml:"concurrency" json:"concurrency"`
    } `yaml:"crawl" json:"crawl"`

    Cache struct {
        Dir         string        `yaml:"dir" json:"dir"`
        MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
        Clear       bool          `yaml:"clear" json:"clear"`
        StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
    } `yaml:"cache" json:"cache"`

    Interval time.Duration `yaml:"interval" json:"interval"`
    DryRun   bool          `yaml:"dryRun" json:"dryRun"`
    Verbose  bool          `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig. Unknown extensions are
// tried as YAML and then JSON.
func LoadConfigFile(path string) (FileConfig, error) {
    var fc FileConfig
    b, err := os.ReadFile(path)
    if err != nil {
        return fc, err
    }
    switch filepath.Ext(path) {
    case ".yaml", ".yml":
        if err := yaml.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse yaml: %w", err)
        }
    case ".json":
        if err := json.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse json: %w", err)
        }
    default:
        if err := yaml.Unmarshal(b, &fc); err != nil {
            if jerr := json.Unmarshal(b, &fc); jerr != nil {
                return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
            }
        }
    }
    return fc, nil
}

// ApplyFileConfig overlays every value the file sets onto cfg. Zero values
// in the file leave cfg untouched.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
    if cfg == nil { return }
    setStr := func(dst *string, v string) { if v != "" { *dst = v } }
    setDur := func(dst *time.Duration, v time.Duration) { if v > 0 { *dst = v } }
    setInt := func(dst *int, v int) { if v > 0 { *dst = v } }
    setF := func(dst *float64, v float64) { if v > 0 { *dst = v } }
    setTrue := func(dst *bool, v bool) { if v { *dst = true } }

    setStr(&cfg.MailDir, fc.Mail.Dir)
    if fc.Mail.MaxBytes > 0 { cfg.MaxMessageBytes = fc.Mail.MaxBytes }

    setStr(&cfg.DatabaseDSN, fc.Database.DSN)
    setInt(&cfg.RetryAttempts, fc.Database.RetryAttempts)
    setDur(&cfg.RetryInitialBackoff, fc.Database.InitialBackoff)
    setDur(&cfg.RetryMaxBackoff, fc.Database.MaxBackoff)
    setDur(&cfg.StoreTimeout, fc.Database.Timeout)

    setStr(&cfg.OutputDir, fc.Output)
    setTrue(&cfg.EnablePDF, fc.EnablePDF)

    setStr(&cfg.LLMBaseURL, fc.LLM.BaseURL)
    setStr(&cfg.LLMModel, fc.LLM.Model)
    setStr(&cfg.LLMAPIKey, fc.LLM.APIKey)
    setTrue(&cfg.LLMCacheOnly, fc.LLM.CacheOnly)
    setInt(&cfg.ReservedOutputTokens, fc.LLM.ReservedOutput)
    setStr(&cfg.SystemPrompt, fc.LLM.SystemPrompt)

    setDur(&cfg.Lookback, fc.Dedup.Lookback)
    setF(&cfg.Thresholds.BatchTitle, fc.Dedup.BatchTitle)
    setF(&cfg.Thresholds.BatchContent, fc.Dedup.BatchContent)
    setF(&cfg.Thresholds.HistoryTitle, fc.Dedup.HistoryTitle)
    setF(&cfg.Thresholds.HistoryContent, fc.Dedup.HistoryContent)

    if fc.Crawl.Enable != nil { cfg.Crawl = *fc.Crawl.Enable }
    setStr(&cfg.UserAgent, fc.Crawl.UserAgent)
    setInt(&cfg.CrawlConcurrency, fc.Crawl.Concurrency)

    setStr(&cfg.CacheDir, fc.Cache.Dir)
    setDur(&cfg.CacheMaxAge, fc.Cache.MaxAge)
    setTrue(&cfg.CacheClear, fc.Cache.Clear)
    setTrue(&cfg.CacheStrictPerms, fc.Cache.StrictPerms)

    setDur(&cfg.Interval, fc.Interval)
    setTrue(&cfg.DryRun, fc.DryRun)
    setTrue(&cfg.Verbose, fc.Verbose)
}
