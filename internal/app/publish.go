package app

import (
    "context"
    "fmt"
    "html"
    "os"
    "path/filepath"
    "time"

    "github.com/dustin/go-humanize"
    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/letterdigest/internal/pipeline"
)

// DigestWriter publishes digests to disk as HTML with a JSON manifest
// sidecar and, optionally, a PDF rendering.
type DigestWriter struct {
    Dir       string
    PDF       bool
    Model     string
    BaseURL   string
    DryRun    bool
    PageCache bool
    LLMCache  bool

    // LastPath is the HTML path of the most recent digest.
    LastPath string
}

const digestTemplate = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body>
<h1>%s</h1>
%s
</body></html>
`

// Publish implements pipeline.Publisher.
func (w *DigestWriter) Publish(ctx context.Context, d pipeline.Digest) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    at := d.CreatedAt
    if at.IsZero() {
        at = time.Now().UTC()
    }
    meta := manifestMeta{
        BatchID:     d.BatchID,
        Model:       w.Model,
        LLMBaseURL:  w.BaseURL,
        DryRun:      w.DryRun,
        ItemCount:   len(d.Items),
        PageCache:   w.PageCache,
        LLMCache:    w.LLMCache,
        Version:     BuildVersion,
        GeneratedAt: at,
    }
    path := deriveDigestPath(w.Dir, d.BatchID, at)
    if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
        return fmt.Errorf("create output dir: %w", err)
    }
    title := "Newsletter digest " + at.Format("2006-01-02")
    body := appendFooter(d.HTML, meta)
    doc := fmt.Sprintf(digestTemplate, html.EscapeString(title), html.EscapeString(title), body)
    if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
        return fmt.Errorf("write digest: %w", err)
    }

    manifest, err := marshalManifestJSON(meta, buildManifestEntries(d.Items))
    if err != nil {
        return fmt.Errorf("encode manifest: %w", err)
    }
    if err := os.WriteFile(deriveManifestSidecarPath(path), manifest, 0o644); err != nil {
        return fmt.Errorf("write manifest: %w", err)
    }
    if w.PDF {
        if err := writeDigestPDF(body, derivePDFPath(path)); err != nil {
            log.Warn().Err(err).Str("path", derivePDFPath(path)).Msg("pdf rendering failed")
        }
    }
    w.LastPath = path
    log.Info().Str("path", path).Str("size", humanize.Bytes(uint64(len(doc)))).Int("items", len(d.Items)).Msg("digest written")
    return nil
}
