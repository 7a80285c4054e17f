package store

import (
    "context"
    "errors"
    "path/filepath"
    "testing"
    "time"

    "github.com/hyperifyio/letterdigest/internal/dedup"
    "github.com/hyperifyio/letterdigest/internal/links"
    "github.com/hyperifyio/letterdigest/internal/mail"
)

func openTestStore(t *testing.T) *Store {
    t.Helper()
    s, err := Open(filepath.Join(t.TempDir(), "digest.db"), Options{Sleep: func(context.Context, time.Duration) error { return nil }})
    if err != nil {
        t.Fatalf("open: %v", err)
    }
    t.Cleanup(func() { _ = s.Close() })
    return s
}

func TestGetOrCreateMessage_IsIdempotent(t *testing.T) {
    s := openTestStore(t)
    ctx := context.Background()
    msg := mail.RawMessage{MessageID: "m-1", Subject: "Issue 1", Sender: "a@example.com", ReceivedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}

    first, created, err := s.GetOrCreateMessage(ctx, msg)
    if err != nil || !created {
        t.Fatalf("first call: created=%v err=%v", created, err)
    }
    second, created, err := s.GetOrCreateMessage(ctx, msg)
    if err != nil || created {
        t.Fatalf("second call: created=%v err=%v", created, err)
    }
    if first.ID != second.ID || second.Subject != "Issue 1" {
        t.Fatalf("expected same record: %+v vs %+v", first, second)
    }
}

func TestSaveContent_StoresLinksAndReplaces(t *testing.T) {
    s := openTestStore(t)
    ctx := context.Background()
    if _, _, err := s.GetOrCreateMessage(ctx, mail.RawMessage{MessageID: "m-1"}); err != nil {
        t.Fatalf("message: %v", err)
    }
    rec := ContentRecord{
        MessageID:   "m-1",
        ContentType: "html",
        CleanedBody: "<p>story</p>",
        Strategy:    "marker",
        Links: []links.Link{
            {URL: "https://e.com/a", Title: "A", Tier: links.TierPrimary},
            {URL: "https://e.com/", Title: "root", Tier: links.TierRejected, Reason: links.ReasonRootDomain},
        },
    }
    if err := s.SaveContent(ctx, rec); err != nil {
        t.Fatalf("save: %v", err)
    }
    done, err := s.IsProcessed(ctx, "m-1")
    if err != nil || done {
        t.Fatalf("stored but unsent content must not count as processed: %v %v", done, err)
    }
    got, err := s.LoadContent(ctx, "m-1")
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if len(got.Links) != 2 || got.Links[0].URL != "https://e.com/a" || got.Links[1].Reason != links.ReasonRootDomain {
        t.Fatalf("unexpected links: %+v", got.Links)
    }

    rec.CleanedBody = "<p>again</p>"
    rec.Links = rec.Links[:1]
    if err := s.SaveContent(ctx, rec); err != nil {
        t.Fatalf("resave: %v", err)
    }
    got, err = s.LoadContent(ctx, "m-1")
    if err != nil || got.CleanedBody != "<p>again</p>" || len(got.Links) != 1 {
        t.Fatalf("expected replaced content: %+v %v", got, err)
    }

    if err := s.MarkExcluded(ctx, "m-1", string(dedup.StateCrossSummaryDuplicate)); err != nil {
        t.Fatalf("mark excluded: %v", err)
    }
    got, _ = s.LoadContent(ctx, "m-1")
    if !got.Excluded || got.ExcludedReason != "cross-summary-duplicate" {
        t.Fatalf("expected excluded: %+v", got)
    }
    if done, err := s.IsProcessed(ctx, "m-1"); err != nil || !done {
        t.Fatalf("excluded content should count as processed: %v %v", done, err)
    }
}

func TestMarkSummarized_FinishesMessages(t *testing.T) {
    s := openTestStore(t)
    ctx := context.Background()
    for _, id := range []string{"m-1", "m-2"} {
        if _, _, err := s.GetOrCreateMessage(ctx, mail.RawMessage{MessageID: id}); err != nil {
            t.Fatalf("message: %v", err)
        }
        if err := s.SaveContent(ctx, ContentRecord{MessageID: id, ContentType: "text", CleanedBody: "story " + id}); err != nil {
            t.Fatalf("save: %v", err)
        }
    }
    if err := s.MarkSummarized(ctx, "batch-1", []string{"m-1"}); err != nil {
        t.Fatalf("mark summarized: %v", err)
    }
    if done, err := s.IsProcessed(ctx, "m-1"); err != nil || !done {
        t.Fatalf("expected m-1 processed: %v %v", done, err)
    }
    if done, err := s.IsProcessed(ctx, "m-2"); err != nil || done {
        t.Fatalf("expected m-2 pending: %v %v", done, err)
    }
    got, err := s.LoadContent(ctx, "m-1")
    if err != nil || !got.Summarized || got.SummaryBatchID != "batch-1" {
        t.Fatalf("unexpected content: %+v %v", got, err)
    }
    if err := s.MarkSummarized(ctx, "batch-2", nil); err != nil {
        t.Fatalf("empty mark should be a no-op: %v", err)
    }
}

func TestIsProcessed_UnknownMessage(t *testing.T) {
    s := openTestStore(t)
    done, err := s.IsProcessed(context.Background(), "nope")
    if err != nil || done {
        t.Fatalf("expected unprocessed: %v %v", done, err)
    }
}

func TestSignatures_Window(t *testing.T) {
    s := openTestStore(t)
    ctx := context.Background()
    now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
    for _, sig := range []dedup.Signature{
        {NormalizedTitle: "old", Fingerprint: "old", BatchID: "b0", MessageID: "m0", CreatedAt: now.Add(-8 * 24 * time.Hour)},
        {NormalizedTitle: "edge", Fingerprint: "edge", BatchID: "b1", MessageID: "m1", CreatedAt: now.Add(-(6*24*time.Hour + 23*time.Hour))},
        {NormalizedTitle: "new", Fingerprint: "new", BatchID: "b2", MessageID: "m2", CreatedAt: now.Add(-time.Hour)},
    } {
        if err := s.InsertSignature(ctx, sig); err != nil {
            t.Fatalf("insert: %v", err)
        }
    }
    got, err := s.SignaturesSince(ctx, now.Add(-dedup.DefaultLookback))
    if err != nil {
        t.Fatalf("since: %v", err)
    }
    if len(got) != 2 || got[0].MessageID != "m1" || got[1].MessageID != "m2" {
        t.Fatalf("unexpected window: %+v", got)
    }
    if got[1].BatchID != "b2" || got[1].Fingerprint != "new" {
        t.Fatalf("fields not round-tripped: %+v", got[1])
    }
}

func TestOpen_RejectsEmptyDSN(t *testing.T) {
    if _, err := Open("  ", Options{}); err == nil {
        t.Fatalf("expected error for empty dsn")
    }
}

func TestDSNDetection(t *testing.T) {
    for _, dsn := range []string{"postgres://u:p@localhost/db", "postgresql://localhost/db", "host=localhost user=u dbname=d"} {
        if !isPostgresDSN(dsn) {
            t.Fatalf("expected postgres: %s", dsn)
        }
    }
    if isPostgresDSN("/var/lib/digest.db") {
        t.Fatalf("file path should be sqlite")
    }
    if got := sqliteDSN("sqlite://digest.db"); got != "digest.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)" {
        t.Fatalf("unexpected sqlite dsn: %s", got)
    }
    if got := sqliteDSN("digest.db?_pragma=busy_timeout(1)"); got != "digest.db?_pragma=busy_timeout(1)" {
        t.Fatalf("explicit pragmas must be kept: %s", got)
    }
}

func TestStoreTx_RetriesLockedThenFails(t *testing.T) {
    s := openTestStore(t)
    calls := 0
    err := s.retry.run(context.Background(), "ping", func() error {
        calls++
        return errors.New("database is locked (5) (SQLITE_BUSY)")
    })
    if !errors.Is(err, ErrLocked) || calls != DefaultAttempts {
        t.Fatalf("expected ErrLocked after %d calls, got %v after %d", DefaultAttempts, err, calls)
    }
}
