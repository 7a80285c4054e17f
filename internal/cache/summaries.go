package cache

import (
    "context"
    "os"
    "path/filepath"
    "time"
)

// SummaryCache stores model output keyed by model and prompt digest.
type SummaryCache struct {
    Dir         string
    StrictPerms bool
}

// KeyFor builds the cache key for a model and its full prompt.
func KeyFor(model, prompt string) string {
    return digest(model, prompt)
}

func (c *SummaryCache) pathFor(key string) string {
    return filepath.Join(c.Dir, key+".json")
}

// Get returns the cached bytes for key. A hit refreshes the file's mtime so
// age-based purging keeps entries that are still in use.
func (c *SummaryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
    if err := ensureDir(c.Dir, c.StrictPerms); err != nil {
        return nil, false, err
    }
    p := c.pathFor(key)
    b, err := os.ReadFile(p)
    if err != nil {
        return nil, false, nil
    }
    now := time.Now()
    _ = os.Chtimes(p, now, now)
    return b, true, nil
}

// Save writes data under key.
func (c *SummaryCache) Save(_ context.Context, key string, data []byte) error {
    if err := ensureDir(c.Dir, c.StrictPerms); err != nil {
        return err
    }
    _, fmode := dirPerms(c.StrictPerms)
    return os.WriteFile(c.pathFor(key), data, fmode)
}
