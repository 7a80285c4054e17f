package pipeline

import (
    "context"
    "errors"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/letterdigest/internal/mail"
)

// Scheduler fetches mail and processes a batch on every tick. Force
// requests run an extra batch that includes already-processed messages.
type Scheduler struct {
    Mailbox   mail.Mailbox
    Processor *Processor
    Interval  time.Duration

    force    chan struct{}
    stopChan chan struct{}
    done     chan struct{}
}

// NewScheduler returns a scheduler that runs every interval.
func NewScheduler(mb mail.Mailbox, p *Processor, interval time.Duration) *Scheduler {
    return &Scheduler{
        Mailbox:   mb,
        Processor: p,
        Interval:  interval,
        force:     make(chan struct{}, 1),
        stopChan:  make(chan struct{}),
        done:      make(chan struct{}),
    }
}

// Start runs one batch immediately and then one per tick until Stop or ctx
// cancellation.
func (s *Scheduler) Start(ctx context.Context) {
    log.Info().Dur("interval", s.Interval).Msg("scheduler: starting")
    go func() {
        defer close(s.done)
        s.RunOnce(ctx, RunOptions{})

        ticker := time.NewTicker(s.Interval)
        defer ticker.Stop()
        for {
            select {
            case <-ticker.C:
                s.RunOnce(ctx, RunOptions{})
            case <-s.force:
                s.RunOnce(ctx, RunOptions{Force: true})
            case <-s.stopChan:
                log.Info().Msg("scheduler: stopped")
                return
            case <-ctx.Done():
                log.Info().Msg("scheduler: context done")
                return
            }
        }
    }()
}

// Force queues a forced batch. Requests made while one is pending collapse.
func (s *Scheduler) Force() {
    select {
    case s.force <- struct{}{}:
    default:
    }
}

// Stop ends the loop and waits for a running batch to finish.
func (s *Scheduler) Stop() {
    close(s.stopChan)
    <-s.done
}

// RunOnce fetches and processes one batch, logging the outcome.
func (s *Scheduler) RunOnce(ctx context.Context, opt RunOptions) (*Report, error) {
    msgs, err := s.Mailbox.Fetch(ctx)
    if err != nil {
        log.Error().Err(err).Msg("scheduler: fetch failed")
        return nil, err
    }
    rep, err := s.Processor.ProcessBatch(ctx, msgs, opt)
    switch {
    case errors.Is(err, ErrNoItems):
        log.Info().Int("fetched", len(msgs)).Bool("force", opt.Force).Msg("scheduler: nothing new to summarize")
    case err != nil:
        log.Error().Err(err).Bool("force", opt.Force).Msg("scheduler: batch failed")
    }
    return rep, err
}
