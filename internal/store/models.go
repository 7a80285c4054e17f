package store

import "time"

// Message records every raw message the pipeline has seen.
type Message struct {
    ID          string `gorm:"primaryKey"`
    MessageID   string `gorm:"uniqueIndex;not null"`
    Subject     string
    Sender      string
    ReceivedAt  time.Time
    ProcessedAt *time.Time
    CreatedAt   time.Time
    UpdatedAt   time.Time
}

func (Message) TableName() string { return "messages" }

// Content is the extracted item of one message.
type Content struct {
    ID             string `gorm:"primaryKey"`
    MessageID      string `gorm:"uniqueIndex;not null"`
    ContentType    string
    CleanedBody    string `gorm:"type:text"`
    IsForwarded    bool
    Strategy       string
    Degraded       bool
    Excluded       bool
    ExcludedReason string
    Summarized     bool   `gorm:"index"`
    SummaryBatchID string
    CreatedAt      time.Time
    Links          []Link `gorm:"foreignKey:ContentID;constraint:OnDelete:CASCADE"`
}

func (Content) TableName() string { return "contents" }

// Link is a ranked URL of a content item. URLs are unique per content.
type Link struct {
    ID        uint   `gorm:"primaryKey"`
    ContentID string `gorm:"uniqueIndex:idx_link_content_url;not null"`
    URL       string `gorm:"uniqueIndex:idx_link_content_url;not null"`
    Position  int
    Title     string
    Tier      string
    Reason    string
}

func (Link) TableName() string { return "links" }

// Signature is an append-only fingerprint of a summarized story.
type Signature struct {
    ID              uint   `gorm:"primaryKey"`
    NormalizedTitle string
    Fingerprint     string    `gorm:"type:text"`
    BatchID         string    `gorm:"index;not null"`
    MessageID       string    `gorm:"index"`
    CreatedAt       time.Time `gorm:"index;not null"`
}

func (Signature) TableName() string { return "content_signatures" }
