package app

import (
    "path/filepath"
    "strings"
    "time"
)

// deriveDigestPath returns a stable, sortable file name for a digest under
// dir: digest-<UTC timestamp>-<batch prefix>.html.
func deriveDigestPath(dir string, batchID string, at time.Time) string {
    root := strings.TrimSpace(dir)
    if root == "" { root = "digests" }
    short := strings.ReplaceAll(batchID, "-", "")
    if len(short) > 8 { short = short[:8] }
    if short == "" { short = "batch" }
    name := "digest-" + at.UTC().Format("20060102T150405Z") + "-" + short + ".html"
    return filepath.Join(root, name)
}

func derivePDFPath(htmlPath string) string {
    return strings.TrimSuffix(htmlPath, filepath.Ext(htmlPath)) + ".pdf"
}
