package pipeline

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/hyperifyio/letterdigest/internal/mail"
    "github.com/hyperifyio/letterdigest/internal/summarize"
)

type countingMailbox struct {
    msgs  []mail.RawMessage
    calls chan struct{}
}

func (c *countingMailbox) Fetch(context.Context) ([]mail.RawMessage, error) {
    c.calls <- struct{}{}
    return c.msgs, nil
}

func waitCall(t *testing.T, ch chan struct{}) {
    t.Helper()
    select {
    case <-ch:
    case <-time.After(5 * time.Second):
        t.Fatalf("timed out waiting for a batch")
    }
}

func TestScheduler_RunsImmediatelyAndOnForce(t *testing.T) {
    s := openStore(t)
    mb := &countingMailbox{msgs: sampleBatch()[:1], calls: make(chan struct{}, 4)}
    p := newProcessor(t, s, summarize.Offline{})
    sch := NewScheduler(mb, p, time.Hour)
    sch.Start(context.Background())
    waitCall(t, mb.calls)
    sch.Force()
    waitCall(t, mb.calls)
    sch.Stop()
}

type brokenMailbox struct{}

func (brokenMailbox) Fetch(context.Context) ([]mail.RawMessage, error) {
    return nil, errors.New("imap unreachable")
}

func TestScheduler_RunOnceReportsFetchError(t *testing.T) {
    sch := NewScheduler(brokenMailbox{}, &Processor{}, time.Hour)
    if _, err := sch.RunOnce(context.Background(), RunOptions{}); err == nil {
        t.Fatalf("expected fetch error")
    }
}
