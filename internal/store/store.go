// Package store persists messages, extracted content, links and content
// signatures with gorm on postgres or sqlite. Every operation runs in a short
// transaction with its own timeout and is retried on lock contention, since
// the scheduler and a forced run may share one database.
package store

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/glebarez/sqlite"
    "github.com/google/uuid"
    "gorm.io/driver/postgres"
    "gorm.io/gorm"
    "gorm.io/gorm/clause"

    "github.com/hyperifyio/letterdigest/internal/dedup"
    "github.com/hyperifyio/letterdigest/internal/links"
    "github.com/hyperifyio/letterdigest/internal/mail"
)

// Options tune retries and timeouts. Zero values use the defaults below.
type Options struct {
    Attempts       int
    InitialBackoff time.Duration
    MaxBackoff     time.Duration
    Timeout        time.Duration
    // Sleep replaces the backoff wait, mainly for tests.
    Sleep func(ctx context.Context, d time.Duration) error
}

const (
    DefaultAttempts       = 5
    DefaultInitialBackoff = 2 * time.Second
    DefaultMaxBackoff     = 30 * time.Second
    DefaultTimeout        = 30 * time.Second
)

// Store is the persisted store used by the pipeline and the deduplicator.
type Store struct {
    db      *gorm.DB
    retry   retrier
    timeout time.Duration
}

var _ dedup.History = (*Store)(nil)

// Open connects to dsn. postgres:// and postgresql:// URLs and key=value
// strings containing host= select postgres; anything else is a sqlite file
// path, optionally prefixed with sqlite://.
func Open(dsn string, opt Options) (*Store, error) {
    dsn = strings.TrimSpace(dsn)
    if dsn == "" {
        return nil, errors.New("store: empty dsn")
    }
    var dialector gorm.Dialector
    isSQLite := false
    if isPostgresDSN(dsn) {
        dialector = postgres.Open(dsn)
    } else {
        dialector = sqlite.Open(sqliteDSN(dsn))
        isSQLite = true
    }
    db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger()})
    if err != nil {
        return nil, fmt.Errorf("open database: %w", err)
    }
    if isSQLite {
        sqlDB, err := db.DB()
        if err != nil {
            return nil, fmt.Errorf("database handle: %w", err)
        }
        // one writer per process; other processes wait on busy_timeout
        sqlDB.SetMaxOpenConns(1)
    }
    return New(db, opt)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB, opt Options) (*Store, error) {
    if opt.Attempts <= 0 {
        opt.Attempts = DefaultAttempts
    }
    if opt.InitialBackoff <= 0 {
        opt.InitialBackoff = DefaultInitialBackoff
    }
    if opt.MaxBackoff <= 0 {
        opt.MaxBackoff = DefaultMaxBackoff
    }
    if opt.Timeout <= 0 {
        opt.Timeout = DefaultTimeout
    }
    if opt.Sleep == nil {
        opt.Sleep = sleepCtx
    }
    s := &Store{
        db:      db,
        retry:   retrier{attempts: opt.Attempts, initial: opt.InitialBackoff, max: opt.MaxBackoff, sleep: opt.Sleep},
        timeout: opt.Timeout,
    }
    if err := s.retry.run(context.Background(), "migrate", func() error {
        return db.AutoMigrate(&Message{}, &Content{}, &Link{}, &Signature{})
    }); err != nil {
        return nil, err
    }
    return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
    sqlDB, err := s.db.DB()
    if err != nil {
        return err
    }
    return sqlDB.Close()
}

func isPostgresDSN(dsn string) bool {
    lower := strings.ToLower(dsn)
    return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") || strings.Contains(lower, "host=")
}

func sqliteDSN(dsn string) string {
    dsn = strings.TrimPrefix(dsn, "sqlite://")
    if strings.Contains(dsn, "_pragma=") {
        return dsn
    }
    sep := "?"
    if strings.Contains(dsn, "?") {
        sep = "&"
    }
    return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// tx runs fn in a transaction bounded by the store timeout, retrying on
// lock contention.
func (s *Store) tx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
    return s.retry.run(ctx, op, func() error {
        cctx, cancel := context.WithTimeout(ctx, s.timeout)
        defer cancel()
        return s.db.WithContext(cctx).Transaction(fn)
    })
}

// GetOrCreateMessage returns the record for msg.MessageID, creating it on
// first sight. created reports whether this call inserted it.
func (s *Store) GetOrCreateMessage(ctx context.Context, msg mail.RawMessage) (rec Message, created bool, err error) {
    err = s.tx(ctx, "get or create message", func(tx *gorm.DB) error {
        rec = Message{
            ID:         uuid.NewString(),
            MessageID:  msg.MessageID,
            Subject:    msg.Subject,
            Sender:     msg.Sender,
            ReceivedAt: msg.ReceivedAt.UTC(),
        }
        res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "message_id"}}, DoNothing: true}).Create(&rec)
        if res.Error != nil {
            return res.Error
        }
        created = res.RowsAffected == 1
        var got Message
        if err := tx.Where("message_id = ?", msg.MessageID).First(&got).Error; err != nil {
            return err
        }
        rec = got
        return nil
    })
    return rec, created, err
}

// IsProcessed reports whether messageID is finished: its content was sent
// in a published digest or filtered as a duplicate. Stored content that never
// reached a digest is picked up again by the next batch.
func (s *Store) IsProcessed(ctx context.Context, messageID string) (bool, error) {
    var n int64
    err := s.tx(ctx, "check processed", func(tx *gorm.DB) error {
        return tx.Model(&Content{}).Where("message_id = ? AND (summarized = ? OR excluded = ?)", messageID, true, true).Count(&n).Error
    })
    return n > 0, err
}

// ContentRecord is the extracted item handed to SaveContent.
type ContentRecord struct {
    MessageID   string
    ContentType string
    CleanedBody string
    IsForwarded bool
    Strategy    string
    Degraded    bool
    Links       []links.Link
}

// SaveContent stores an item and its links in one transaction, replacing any
// earlier extraction of the same message.
func (s *Store) SaveContent(ctx context.Context, rec ContentRecord) error {
    return s.tx(ctx, "save content", func(tx *gorm.DB) error {
        var old []Content
        if err := tx.Where("message_id = ?", rec.MessageID).Find(&old).Error; err != nil {
            return err
        }
        for _, c := range old {
            if err := tx.Where("content_id = ?", c.ID).Delete(&Link{}).Error; err != nil {
                return err
            }
            if err := tx.Delete(&Content{}, "id = ?", c.ID).Error; err != nil {
                return err
            }
        }
        row := Content{
            ID:          uuid.NewString(),
            MessageID:   rec.MessageID,
            ContentType: rec.ContentType,
            CleanedBody: rec.CleanedBody,
            IsForwarded: rec.IsForwarded,
            Strategy:    rec.Strategy,
            Degraded:    rec.Degraded,
        }
        for i, l := range rec.Links {
            row.Links = append(row.Links, Link{URL: l.URL, Position: i, Title: l.Title, Tier: string(l.Tier), Reason: l.Reason})
        }
        if err := tx.Create(&row).Error; err != nil {
            return err
        }
        now := time.Now().UTC()
        return tx.Model(&Message{}).Where("message_id = ?", rec.MessageID).Update("processed_at", &now).Error
    })
}

// LoadContent returns the stored item for messageID with its links ordered.
func (s *Store) LoadContent(ctx context.Context, messageID string) (Content, error) {
    var c Content
    err := s.tx(ctx, "load content", func(tx *gorm.DB) error {
        return tx.Preload("Links", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
            Where("message_id = ?", messageID).First(&c).Error
    })
    return c, err
}

// MarkExcluded flags a stored item as filtered by the deduplicator.
func (s *Store) MarkExcluded(ctx context.Context, messageID, reason string) error {
    return s.tx(ctx, "mark excluded", func(tx *gorm.DB) error {
        return tx.Model(&Content{}).Where("message_id = ?", messageID).
            Updates(map[string]interface{}{"excluded": true, "excluded_reason": reason}).Error
    })
}

// MarkSummarized records that the items of messageIDs went out in batchID.
func (s *Store) MarkSummarized(ctx context.Context, batchID string, messageIDs []string) error {
    if len(messageIDs) == 0 {
        return nil
    }
    return s.tx(ctx, "mark summarized", func(tx *gorm.DB) error {
        return tx.Model(&Content{}).Where("message_id IN ?", messageIDs).
            Updates(map[string]interface{}{"summarized": true, "summary_batch_id": batchID}).Error
    })
}

// SignaturesSince returns signatures created at or after since, oldest first.
func (s *Store) SignaturesSince(ctx context.Context, since time.Time) ([]dedup.Signature, error) {
    var rows []Signature
    err := s.tx(ctx, "load signatures", func(tx *gorm.DB) error {
        return tx.Where("created_at >= ?", since.UTC()).Order("created_at asc, id asc").Find(&rows).Error
    })
    if err != nil {
        return nil, err
    }
    out := make([]dedup.Signature, 0, len(rows))
    for _, r := range rows {
        out = append(out, dedup.Signature{
            NormalizedTitle: r.NormalizedTitle,
            Fingerprint:     r.Fingerprint,
            BatchID:         r.BatchID,
            MessageID:       r.MessageID,
            CreatedAt:       r.CreatedAt.UTC(),
        })
    }
    return out, nil
}

// InsertSignature appends one signature.
func (s *Store) InsertSignature(ctx context.Context, sig dedup.Signature) error {
    row := Signature{
        NormalizedTitle: sig.NormalizedTitle,
        Fingerprint:     sig.Fingerprint,
        BatchID:         sig.BatchID,
        MessageID:       sig.MessageID,
        CreatedAt:       sig.CreatedAt.UTC(),
    }
    return s.tx(ctx, "insert signature", func(tx *gorm.DB) error {
        return tx.Create(&row).Error
    })
}
