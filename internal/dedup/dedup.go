// Package dedup filters near-duplicate stories within a batch and against
// the signatures of stories already sent in recent summaries.
package dedup

import (
    "context"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"
)

// DefaultLookback is the trailing window of history consulted.
const DefaultLookback = 7 * 24 * time.Hour

// State is the position of a candidate in the dedup lifecycle.
type State string

const (
    StateIncluded              State = "included"
    StateIntraBatchDuplicate   State = "intra-batch-duplicate"
    StateCrossSummaryDuplicate State = "cross-summary-duplicate"
    StateSigned                State = "signed"
)

// Candidate is one extracted item offered for inclusion.
type Candidate struct {
    Key   string
    Title string
    Text  string
}

// Signature is the persisted fingerprint of a story included in a summary.
type Signature struct {
    NormalizedTitle string
    Fingerprint     string
    BatchID         string
    MessageID       string
    CreatedAt       time.Time
}

// History stores signatures. Implementations bound their own retries and
// timeouts.
type History interface {
    SignaturesSince(ctx context.Context, since time.Time) ([]Signature, error)
    InsertSignature(ctx context.Context, sig Signature) error
}

// Thresholds configure both phases. The batch phase requires both scores to
// exceed their limits; the history phase drops on either score reaching its
// limit.
type Thresholds struct {
    BatchTitle     float64
    BatchContent   float64
    HistoryTitle   float64
    HistoryContent float64
}

// DefaultThresholds returns the production limits.
func DefaultThresholds() Thresholds {
    return Thresholds{BatchTitle: 0.80, BatchContent: 0.85, HistoryTitle: 0.90, HistoryContent: 0.80}
}

// Decision records what happened to one candidate.
type Decision struct {
    Candidate    Candidate
    State        State
    MatchedKey   string
    TitleScore   float64
    ContentScore float64

    title       string
    fingerprint string
}

// Batch is the result of one deduplication pass.
type Batch struct {
    ID        string
    Decisions []Decision
}

// Included returns the candidates that survived both phases, in input order.
func (b *Batch) Included() []Candidate {
    var out []Candidate
    for _, d := range b.Decisions {
        if d.State == StateIncluded || d.State == StateSigned {
            out = append(out, d.Candidate)
        }
    }
    return out
}

// Deduplicator runs the two phases. Zero fields fall back to defaults.
type Deduplicator struct {
    History    History
    Lookback   time.Duration
    Thresholds Thresholds

    TitleSimilarity   func(a, b string) float64
    ContentSimilarity func(a, b string) float64
    Now               func() time.Time
}

func (d *Deduplicator) now() time.Time {
    if d.Now != nil {
        return d.Now()
    }
    return time.Now().UTC()
}

func (d *Deduplicator) thresholds() Thresholds {
    if d.Thresholds == (Thresholds{}) {
        return DefaultThresholds()
    }
    return d.Thresholds
}

func (d *Deduplicator) scores(titleA, fpA, titleB, fpB string) (float64, float64) {
    ts, cs := TitleSimilarity, ContentSimilarity
    if d.TitleSimilarity != nil {
        ts = d.TitleSimilarity
    }
    if d.ContentSimilarity != nil {
        cs = d.ContentSimilarity
    }
    return ts(titleA, titleB), cs(fpA, fpB)
}

// Run deduplicates items and returns a batch with a fresh id. Failure to read
// history skips the cross-summary phase; it never fails the batch.
func (d *Deduplicator) Run(ctx context.Context, items []Candidate) *Batch {
    th := d.thresholds()
    b := &Batch{ID: uuid.NewString(), Decisions: make([]Decision, len(items))}
    for i, c := range items {
        b.Decisions[i] = Decision{Candidate: c, State: StateIncluded, title: Normalize(c.Title), fingerprint: Fingerprint(c.Text)}
    }

    // intra-batch: first seen wins
    for i := range b.Decisions {
        cur := &b.Decisions[i]
        for j := 0; j < i; j++ {
            prev := b.Decisions[j]
            if prev.State != StateIncluded {
                continue
            }
            t, c := d.scores(cur.title, cur.fingerprint, prev.title, prev.fingerprint)
            if t > th.BatchTitle && c > th.BatchContent {
                cur.State, cur.MatchedKey, cur.TitleScore, cur.ContentScore = StateIntraBatchDuplicate, prev.Candidate.Key, t, c
                log.Info().Str("key", cur.Candidate.Key).Str("kept", prev.Candidate.Key).Float64("title", t).Float64("content", c).Msg("dedup: dropped in-batch duplicate")
                break
            }
        }
    }

    history := d.history(ctx)
    for i := range b.Decisions {
        cur := &b.Decisions[i]
        if cur.State != StateIncluded {
            continue
        }
        for _, sig := range history {
            t, c := d.scores(cur.title, cur.fingerprint, sig.NormalizedTitle, sig.Fingerprint)
            if t >= th.HistoryTitle || c >= th.HistoryContent {
                cur.State, cur.MatchedKey, cur.TitleScore, cur.ContentScore = StateCrossSummaryDuplicate, sig.MessageID, t, c
                log.Info().Str("key", cur.Candidate.Key).Str("batch", sig.BatchID).Float64("title", t).Float64("content", c).Msg("dedup: dropped story already summarized")
                break
            }
        }
    }
    return b
}

// history loads signatures inside the lookback window, or nil when history is
// unavailable.
func (d *Deduplicator) history(ctx context.Context) []Signature {
    if d.History == nil {
        return nil
    }
    lookback := d.Lookback
    if lookback <= 0 {
        lookback = DefaultLookback
    }
    since := d.now().Add(-lookback)
    sigs, err := d.History.SignaturesSince(ctx, since)
    if err != nil {
        log.Warn().Err(err).Msg("dedup: history unavailable; skipping cross-summary check")
        return nil
    }
    out := sigs[:0:0]
    for _, s := range sigs {
        if !s.CreatedAt.Before(since) {
            out = append(out, s)
        }
    }
    log.Debug().Int("signatures", len(out)).Time("since", since).Msg("dedup: loaded history")
    return out
}

// Record writes a signature for every included decision whose key is in
// sent, marking it signed. Call it only once the summary containing those
// items has been produced. Insert failures are logged and skipped. It
// returns the number of signatures written.
func (d *Deduplicator) Record(ctx context.Context, b *Batch, sent []string) int {
    if d.History == nil || b == nil {
        return 0
    }
    want := make(map[string]struct{}, len(sent))
    for _, k := range sent {
        want[k] = struct{}{}
    }
    n := 0
    for i := range b.Decisions {
        cur := &b.Decisions[i]
        if cur.State != StateIncluded {
            continue
        }
        if _, ok := want[cur.Candidate.Key]; !ok {
            continue
        }
        sig := Signature{
            NormalizedTitle: cur.title,
            Fingerprint:     cur.fingerprint,
            BatchID:         b.ID,
            MessageID:       cur.Candidate.Key,
            CreatedAt:       d.now(),
        }
        if err := d.History.InsertSignature(ctx, sig); err != nil {
            log.Warn().Err(err).Str("key", cur.Candidate.Key).Msg("dedup: signature not recorded")
            continue
        }
        cur.State = StateSigned
        n++
    }
    return n
}
