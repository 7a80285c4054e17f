package cache

import (
    "encoding/json"
    "errors"
    "io/fs"
    "os"
    "path/filepath"
    "strings"
    "time"
)

// ClearDir removes dir and everything under it, then recreates it empty.
func ClearDir(dir string) error {
    if strings.TrimSpace(dir) == "" {
        return errors.New("empty dir")
    }
    if err := os.RemoveAll(dir); err != nil {
        return err
    }
    return os.MkdirAll(dir, 0o755)
}

// PurgeByAge removes entries older than maxAge from dir and its
// subdirectories. Page entries age by their SavedAt stamp and take their body
// with them; summary entries age by modification time. A missing dir is not
// an error.
func PurgeByAge(dir string, maxAge time.Duration, now time.Time) (int, error) {
    if maxAge <= 0 {
        return 0, nil
    }
    if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
        return 0, nil
    }
    removed := 0
    err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
        if err != nil {
            return err
        }
        if d.IsDir() {
            return nil
        }
        name := d.Name()
        switch {
        case strings.HasSuffix(name, ".meta.json"):
            b, err := os.ReadFile(path)
            if err != nil {
                return nil
            }
            var e PageEntry
            if err := json.Unmarshal(b, &e); err != nil {
                return nil
            }
            if now.Sub(e.SavedAt) <= maxAge {
                return nil
            }
            removed++
            _ = os.Remove(path)
            _ = os.Remove(strings.TrimSuffix(path, ".meta.json") + ".body")
        case strings.HasSuffix(name, ".json"):
            info, err := d.Info()
            if err != nil || now.Sub(info.ModTime()) <= maxAge {
                return nil
            }
            removed++
            _ = os.Remove(path)
        }
        return nil
    })
    return removed, err
}
