package app

import (
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"
)

func TestLoadEnvFiles_LoadsKeyValues(t *testing.T) {
    t.Setenv("FOO", "")
    t.Setenv("BAR", "")

    dir := t.TempDir()
    envPath := filepath.Join(dir, ".env.test")
    content := "\n# sample dotenv file\nFOO=alpha\nBAR=\"beta\"\n"
    if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
        t.Fatalf("write dotenv: %v", err)
    }
    if err := LoadEnvFiles(envPath, filepath.Join(dir, "missing.env")); err != nil {
        t.Fatalf("LoadEnvFiles error: %v", err)
    }
    if got := os.Getenv("FOO"); got != "alpha" {
        t.Fatalf("FOO=%q, want alpha", got)
    }
    if got := os.Getenv("BAR"); got != "beta" {
        t.Fatalf("BAR=%q, want beta", got)
    }
}

func TestLoadEnvFiles_OverrideOrder(t *testing.T) {
    t.Setenv("K", "")
    dir := t.TempDir()
    a := filepath.Join(dir, ".env.a")
    b := filepath.Join(dir, ".env.b")
    if err := os.WriteFile(a, []byte("K=first\n"), 0o600); err != nil { t.Fatalf("write a: %v", err) }
    if err := os.WriteFile(b, []byte("K=second\n"), 0o600); err != nil { t.Fatalf("write b: %v", err) }
    if err := LoadEnvFiles(a, b); err != nil {
        t.Fatalf("LoadEnvFiles error: %v", err)
    }
    if got := os.Getenv("K"); got != "second" {
        t.Fatalf("override order failed: got %q, want second", got)
    }
}

func TestLoadConfig_PrecedenceEnvOverFileOverDefaults(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, "letterdigest.yaml")
    yaml := strings.Join([]string{
        "mail:",
        "  dir: /srv/mail",
        "database:",
        "  dsn: file.db",
        "  timeout: 10s",
        "llm:",
        "  model: file-model",
        "dedup:",
        "  lookback: 72h",
        "  historyTitle: 0.95",
        "crawl:",
        "  enable: false",
        "",
    }, "\n")
    if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
        t.Fatalf("write config: %v", err)
    }
    t.Setenv("LLM_MODEL", "env-model")
    t.Setenv("DATABASE_URL", "")
    t.Setenv("STORE_TIMEOUT", "not-a-duration")

    cfg, err := LoadConfig(path)
    if err != nil {
        t.Fatalf("LoadConfig: %v", err)
    }
    if cfg.MailDir != "/srv/mail" || cfg.DatabaseDSN != "file.db" {
        t.Fatalf("file values not applied: %+v", cfg)
    }
    if cfg.LLMModel != "env-model" {
        t.Fatalf("env should win over file, got %q", cfg.LLMModel)
    }
    if cfg.StoreTimeout != 10*time.Second {
        t.Fatalf("invalid env duration should be ignored, got %v", cfg.StoreTimeout)
    }
    if cfg.Lookback != 72*time.Hour || cfg.Thresholds.HistoryTitle != 0.95 {
        t.Fatalf("dedup settings not applied: %+v", cfg)
    }
    if cfg.Thresholds.BatchTitle != 0.80 || cfg.OutputDir != "digests" {
        t.Fatalf("defaults should remain for unset values: %+v", cfg)
    }
    if cfg.Crawl {
        t.Fatalf("crawl.enable=false should disable crawling")
    }
}

func TestLoadConfigFile_JSON(t *testing.T) {
    path := filepath.Join(t.TempDir(), "cfg.json")
    if err := os.WriteFile(path, []byte(`{"output":"out","dryRun":true,"llm":{"base":"http://localhost:11434/v1"}}`), 0o600); err != nil {
        t.Fatalf("write: %v", err)
    }
    fc, err := LoadConfigFile(path)
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    cfg := Defaults()
    ApplyFileConfig(&cfg, fc)
    if cfg.OutputDir != "out" || !cfg.DryRun || cfg.LLMBaseURL != "http://localhost:11434/v1" {
        t.Fatalf("unexpected config: %+v", cfg)
    }
}

func TestApplyEnvOverrides_BooleansAndThresholds(t *testing.T) {
    t.Setenv("DRY_RUN", "yes")
    t.Setenv("CRAWL", "off")
    t.Setenv("DEDUP_HISTORY_CONTENT", "0.7")
    cfg := Defaults()
    ApplyEnvOverrides(&cfg)
    if !cfg.DryRun || cfg.Crawl || cfg.Thresholds.HistoryContent != 0.7 {
        t.Fatalf("unexpected overrides: %+v", cfg)
    }
}

func TestValidateConfig(t *testing.T) {
    cfg := Defaults()
    cfg.DryRun = true
    if err := ValidateConfig(cfg); err != nil {
        t.Fatalf("defaults in dry-run should validate: %v", err)
    }
    bad := cfg
    bad.DatabaseDSN = " "
    if ValidateConfig(bad) == nil {
        t.Fatalf("missing dsn should fail")
    }
    bad = cfg
    bad.Lookback = 0
    if ValidateConfig(bad) == nil {
        t.Fatalf("zero lookback should fail")
    }
    bad = cfg
    bad.Thresholds.HistoryTitle = 1.2
    if ValidateConfig(bad) == nil {
        t.Fatalf("threshold above 1 should fail")
    }
    bad = cfg
    bad.DryRun = false
    if err := ValidateConfig(bad); err == nil || !strings.Contains(err.Error(), "llm.model") {
        t.Fatalf("model required outside dry-run, got %v", err)
    }
}
