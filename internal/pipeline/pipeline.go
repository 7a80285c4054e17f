// Package pipeline drives one batch of newsletters from raw messages to a
// sent digest: extraction, persistence, deduplication, summarization and
// signing.
package pipeline

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/letterdigest/internal/crawl"
    "github.com/hyperifyio/letterdigest/internal/dedup"
    "github.com/hyperifyio/letterdigest/internal/extract"
    "github.com/hyperifyio/letterdigest/internal/mail"
    "github.com/hyperifyio/letterdigest/internal/store"
    "github.com/hyperifyio/letterdigest/internal/summarize"
)

// ErrNoItems indicates a batch had nothing left to summarize.
var ErrNoItems = errors.New("no items to summarize")

// Store is the persistence the processor needs.
type Store interface {
    GetOrCreateMessage(ctx context.Context, msg mail.RawMessage) (store.Message, bool, error)
    IsProcessed(ctx context.Context, messageID string) (bool, error)
    SaveContent(ctx context.Context, rec store.ContentRecord) error
    MarkExcluded(ctx context.Context, messageID, reason string) error
    MarkSummarized(ctx context.Context, batchID string, messageIDs []string) error
}

// Resolver follows article links. crawl.Resolver implements it.
type Resolver interface {
    ResolveAll(ctx context.Context, urls []string) map[string]crawl.Resolution
}

// Digest is the summarized output of a batch.
type Digest struct {
    BatchID   string
    HTML      string
    Items     []Item
    CreatedAt time.Time
}

// Publisher delivers a digest. Signatures are written only after Publish
// succeeds.
type Publisher interface {
    Publish(ctx context.Context, d Digest) error
}

// RunOptions tune a single batch.
type RunOptions struct {
    // Force reprocesses messages that were already handled.
    Force bool
}

// Report summarizes a finished batch.
type Report struct {
    BatchID    string
    Fetched    int
    Skipped    int
    Failed     int
    Duplicates int
    Signed     int
    Items      []Item
    Digest     string
}

// Processor runs batches one at a time.
type Processor struct {
    Store      Store
    Dedup      *dedup.Deduplicator
    Summarizer summarize.Summarizer
    Resolver   Resolver
    Publisher  Publisher
    Now        func() time.Time

    mu sync.Mutex
}

func (p *Processor) now() time.Time {
    if p.Now != nil {
        return p.Now()
    }
    return time.Now().UTC()
}

// ProcessBatch handles msgs end to end. Per-message failures are logged and
// the message is skipped; concurrent callers are serialized.
func (p *Processor) ProcessBatch(ctx context.Context, msgs []mail.RawMessage, opt RunOptions) (*Report, error) {
    p.mu.Lock()
    defer p.mu.Unlock()

    rep := &Report{Fetched: len(msgs)}
    items := p.extractAll(ctx, msgs, opt, rep)
    p.resolve(ctx, items)
    items = p.persist(ctx, items, rep)
    if len(items) == 0 {
        return rep, ErrNoItems
    }

    cands := make([]dedup.Candidate, len(items))
    byKey := make(map[string]*Item, len(items))
    for i := range items {
        cands[i] = dedup.Candidate{Key: items[i].SourceMessageID, Title: items[i].Title, Text: items[i].Text}
        byKey[items[i].SourceMessageID] = &items[i]
    }
    batch := p.Dedup.Run(ctx, cands)
    rep.BatchID = batch.ID
    for _, d := range batch.Decisions {
        if d.State != dedup.StateIntraBatchDuplicate && d.State != dedup.StateCrossSummaryDuplicate {
            continue
        }
        rep.Duplicates++
        it := byKey[d.Candidate.Key]
        it.Excluded, it.ExcludedReason = true, string(d.State)
        log.Info().Str("message_id", it.SourceMessageID).Str("state", string(d.State)).Str("matched", d.MatchedKey).
            Float64("title", d.TitleScore).Float64("content", d.ContentScore).Msg("pipeline: duplicate excluded")
        if err := p.Store.MarkExcluded(ctx, it.SourceMessageID, it.ExcludedReason); err != nil {
            log.Warn().Err(err).Str("message_id", it.SourceMessageID).Msg("pipeline: mark excluded failed")
        }
    }
    rep.Items = items

    var included []Item
    for _, c := range batch.Included() {
        included = append(included, *byKey[c.Key])
    }
    if len(included) == 0 {
        return rep, ErrNoItems
    }

    html, err := p.Summarizer.Summarize(ctx, Blocks(included))
    if err != nil {
        return rep, fmt.Errorf("summarize: %w", err)
    }
    rep.Digest = html

    if p.Publisher != nil {
        d := Digest{BatchID: batch.ID, HTML: html, Items: included, CreatedAt: p.now()}
        if err := p.Publisher.Publish(ctx, d); err != nil {
            return rep, fmt.Errorf("publish: %w", err)
        }
    }
    sent := make([]string, len(included))
    for i, it := range included {
        sent[i] = it.SourceMessageID
    }
    if err := p.Store.MarkSummarized(ctx, batch.ID, sent); err != nil {
        log.Warn().Err(err).Str("batch", batch.ID).Msg("pipeline: mark summarized failed; items will be offered again")
    }
    rep.Signed = p.Dedup.Record(ctx, batch, sent)
    log.Info().Str("batch", batch.ID).Int("fetched", rep.Fetched).Int("included", len(included)).
        Int("duplicates", rep.Duplicates).Int("signed", rep.Signed).Msg("pipeline: batch complete")
    return rep, nil
}

func (p *Processor) extractAll(ctx context.Context, msgs []mail.RawMessage, opt RunOptions, rep *Report) []Item {
    items := make([]Item, 0, len(msgs))
    for _, m := range msgs {
        if m.MessageID == "" {
            log.Warn().Str("subject", m.Subject).Msg("pipeline: message without id; skipping")
            rep.Failed++
            continue
        }
        if !opt.Force {
            done, err := p.Store.IsProcessed(ctx, m.MessageID)
            if err != nil {
                log.Warn().Err(err).Str("message_id", m.MessageID).Msg("pipeline: processed check failed; skipping")
                rep.Failed++
                continue
            }
            if done {
                rep.Skipped++
                continue
            }
        }
        if _, _, err := p.Store.GetOrCreateMessage(ctx, m); err != nil {
            log.Warn().Err(err).Str("message_id", m.MessageID).Msg("pipeline: record message failed; skipping")
            rep.Failed++
            continue
        }
        items = append(items, Extract(m))
    }
    return items
}

// resolve fans out article resolution and applies results in item order.
func (p *Processor) resolve(ctx context.Context, items []Item) {
    if p.Resolver == nil {
        return
    }
    var urls []string
    seen := map[string]bool{}
    for i := range items {
        if u := items[i].crawlTarget(); u != "" && !seen[u] {
            seen[u] = true
            urls = append(urls, u)
        }
    }
    if len(urls) == 0 {
        return
    }
    res := p.Resolver.ResolveAll(ctx, urls)
    for i := range items {
        r, ok := res[items[i].crawlTarget()]
        if !ok {
            continue
        }
        if r.IsAd {
            log.Debug().Str("url", r.URL).Msg("pipeline: resolved page looks sponsored; ignoring")
            continue
        }
        items[i].candidates.Crawled = r.Best()
        items[i].prioritize()
    }
}

func (p *Processor) persist(ctx context.Context, items []Item, rep *Report) []Item {
    kept := items[:0]
    for _, it := range items {
        rec := store.ContentRecord{
            MessageID:   it.SourceMessageID,
            ContentType: string(it.ContentType),
            CleanedBody: it.CleanedBody,
            IsForwarded: it.IsForwarded,
            Strategy:    it.Strategy,
            Degraded:    it.Degraded,
            Links:       it.Links,
        }
        if err := p.Store.SaveContent(ctx, rec); err != nil {
            log.Warn().Err(err).Str("message_id", it.SourceMessageID).Msg("pipeline: save content failed; skipping for this cycle")
            rep.Failed++
            continue
        }
        kept = append(kept, it)
    }
    return kept
}

// Blocks converts items into summarizer input. HTML bodies are rendered as
// Markdown to save prompt space.
func Blocks(items []Item) []summarize.Block {
    out := make([]summarize.Block, 0, len(items))
    for _, it := range items {
        body := it.CleanedBody
        if it.ContentType == extract.HTML {
            body = extract.Markdown(body)
        }
        out = append(out, summarize.Block{
            Source:        it.Sender,
            Title:         it.Title,
            Date:          it.ReceivedAt,
            Body:          body,
            PrimaryURL:    it.Primary,
            SecondaryURLs: it.Secondary,
        })
    }
    return out
}
