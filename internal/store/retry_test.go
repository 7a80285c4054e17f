package store

import (
    "context"
    "errors"
    "fmt"
    "testing"
    "time"

    "github.com/jackc/pgx/v5/pgconn"
)

func TestIsLockError(t *testing.T) {
    locked := []error{
        errors.New("database is locked"),
        errors.New("SQLITE_BUSY: cannot commit"),
        errors.New("database table is locked: links"),
        fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"}),
        &pgconn.PgError{Code: "55P03"},
        &pgconn.PgError{Code: "40001"},
        fmt.Errorf("op: %w", ErrLocked),
    }
    for _, err := range locked {
        if !IsLockError(err) {
            t.Fatalf("expected lock error: %v", err)
        }
    }
    for _, err := range []error{nil, errors.New("no such table"), &pgconn.PgError{Code: "23505"}} {
        if IsLockError(err) {
            t.Fatalf("did not expect lock error: %v", err)
        }
    }
}

func TestRetrier_BackoffDoublesAndCaps(t *testing.T) {
    var waits []time.Duration
    r := retrier{attempts: 5, initial: 2 * time.Second, max: 5 * time.Second, sleep: func(_ context.Context, d time.Duration) error {
        waits = append(waits, d)
        return nil
    }}
    calls := 0
    err := r.run(context.Background(), "op", func() error {
        calls++
        if calls < 4 {
            return errors.New("database is locked")
        }
        return nil
    })
    if err != nil {
        t.Fatalf("expected success on the fourth attempt: %v", err)
    }
    want := []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second}
    if len(waits) != len(want) {
        t.Fatalf("unexpected waits: %v", waits)
    }
    for i := range want {
        if waits[i] != want[i] {
            t.Fatalf("wait %d: want %v got %v", i, want[i], waits[i])
        }
    }
}

func TestRetrier_NonLockErrorIsNotRetried(t *testing.T) {
    r := retrier{attempts: 5, initial: time.Millisecond, sleep: func(context.Context, time.Duration) error {
        t.Fatalf("must not sleep")
        return nil
    }}
    calls := 0
    boom := errors.New("constraint failed")
    err := r.run(context.Background(), "op", func() error { calls++; return boom })
    if !errors.Is(err, boom) || calls != 1 || errors.Is(err, ErrLocked) {
        t.Fatalf("expected single failing call, got %v after %d", err, calls)
    }
}

func TestRetrier_StopsWhenContextCancelled(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    r := retrier{attempts: 3, initial: time.Hour, sleep: sleepCtx}
    err := r.run(ctx, "op", func() error { return errors.New("database is locked") })
    if !errors.Is(err, context.Canceled) {
        t.Fatalf("expected cancellation, got %v", err)
    }
}
