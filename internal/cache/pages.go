package cache

import (
    "context"
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "time"
)

// PageEntry is the metadata stored next to a cached page body. FinalURL is
// where redirects ended, which the article resolver needs on a cache hit.
type PageEntry struct {
    URL          string    `json:"url"`
    FinalURL     string    `json:"final_url"`
    ContentType  string    `json:"content_type"`
    ETag         string    `json:"etag"`
    LastModified string    `json:"last_modified"`
    SavedAt      time.Time `json:"saved_at"`
}

// PageCache stores pages as <sha256(url)>.meta.json and <sha256(url)>.body.
type PageCache struct {
    Dir         string
    StrictPerms bool
}

func (c *PageCache) paths(url string) (meta, body string) {
    key := digest(url)
    return filepath.Join(c.Dir, key+".meta.json"), filepath.Join(c.Dir, key+".body")
}

// LoadMeta returns the entry for url, or an error when absent.
func (c *PageCache) LoadMeta(_ context.Context, url string) (*PageEntry, error) {
    if err := ensureDir(c.Dir, c.StrictPerms); err != nil {
        return nil, err
    }
    metaPath, _ := c.paths(url)
    b, err := os.ReadFile(metaPath)
    if err != nil {
        return nil, err
    }
    var e PageEntry
    if err := json.Unmarshal(b, &e); err != nil {
        return nil, fmt.Errorf("decode page meta: %w", err)
    }
    return &e, nil
}

// LoadBody returns the cached body for url.
func (c *PageCache) LoadBody(_ context.Context, url string) ([]byte, error) {
    if err := ensureDir(c.Dir, c.StrictPerms); err != nil {
        return nil, err
    }
    _, bodyPath := c.paths(url)
    return os.ReadFile(bodyPath)
}

// Save writes body and then metadata, so a readable meta file always has
// its body.
func (c *PageCache) Save(_ context.Context, e PageEntry, body []byte) error {
    if err := ensureDir(c.Dir, c.StrictPerms); err != nil {
        return err
    }
    _, fmode := dirPerms(c.StrictPerms)
    metaPath, bodyPath := c.paths(e.URL)
    if err := os.WriteFile(bodyPath, body, fmode); err != nil {
        return fmt.Errorf("write body: %w", err)
    }
    if e.SavedAt.IsZero() {
        e.SavedAt = time.Now().UTC()
    }
    b, err := json.Marshal(e)
    if err != nil {
        return fmt.Errorf("encode meta: %w", err)
    }
    tmp := metaPath + ".tmp"
    if err := os.WriteFile(tmp, b, fmode); err != nil {
        return fmt.Errorf("write meta: %w", err)
    }
    return os.Rename(tmp, metaPath)
}
