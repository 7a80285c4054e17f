package store

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/jackc/pgx/v5/pgconn"
    "github.com/rs/zerolog/log"
)

// ErrLocked reports that a store operation kept failing on lock contention.
var ErrLocked = errors.New("store: locked")

// postgres SQLSTATEs for serialization failure, deadlock and lock not available
var pgLockCodes = map[string]bool{"40001": true, "40P01": true, "55P03": true}

var sqliteLockMessages = []string{"database is locked", "sqlite_busy", "database table is locked"}

// IsLockError reports whether err stems from lock contention.
func IsLockError(err error) bool {
    if err == nil {
        return false
    }
    if errors.Is(err, ErrLocked) {
        return true
    }
    var pgErr *pgconn.PgError
    if errors.As(err, &pgErr) {
        return pgLockCodes[pgErr.Code]
    }
    msg := strings.ToLower(err.Error())
    for _, m := range sqliteLockMessages {
        if strings.Contains(msg, m) {
            return true
        }
    }
    return false
}

// retrier runs an operation with bounded exponential backoff on lock errors.
type retrier struct {
    attempts int
    initial  time.Duration
    max      time.Duration
    sleep    func(ctx context.Context, d time.Duration) error
}

func sleepCtx(ctx context.Context, d time.Duration) error {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}

// run calls fn until it succeeds, fails with a non-lock error, or the attempt
// budget is spent. A per-attempt deadline that expires while the caller's
// context is still live counts as contention.
func (r retrier) run(ctx context.Context, op string, fn func() error) error {
    backoff := r.initial
    var err error
    for attempt := 1; attempt <= r.attempts; attempt++ {
        err = fn()
        if err == nil {
            return nil
        }
        retryable := IsLockError(err) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil)
        if !retryable {
            return fmt.Errorf("%s: %w", op, err)
        }
        if attempt == r.attempts {
            break
        }
        log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", backoff).Msg("store: lock contention; retrying")
        if serr := r.sleep(ctx, backoff); serr != nil {
            return fmt.Errorf("%s: %w", op, serr)
        }
        backoff *= 2
        if r.max > 0 && backoff > r.max {
            backoff = r.max
        }
    }
    return fmt.Errorf("%s after %d attempts: %w (last error: %v)", op, r.attempts, ErrLocked, err)
}
