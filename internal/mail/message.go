// Package mail defines the raw newsletter message shape consumed by the
// extraction pipeline and the mailbox adapters that produce it.
package mail

import (
    "context"
    "strings"
    "time"

    "github.com/hyperifyio/letterdigest/internal/tree"
)

// Forward markers recognised in message bodies.
const (
    GmailForwardMarker = "---------- Forwarded message ---------"
    AppleForwardMarker = "Begin forwarded message:"
)

// Metadata headers that may carry the newsletter's own URL, in priority order.
var MetadataHeaders = []string{"Archived-At", "X-Newsletter-URL", "List-Post", "List-Archive"}

// RawMessage is a fetched message. Values are never modified after the
// mailbox returns them.
type RawMessage struct {
    MessageID         string
    Subject           string
    Sender            string
    ReceivedAt        time.Time
    BodyHTML          string
    BodyText          string
    ExplicitForwarded bool
    // Headers holds the subset of MetadataHeaders present on the message.
    Headers map[string]string
    // Payload is set by adapters that could not map the source onto the
    // body fields. Nil for ordinary messages.
    Payload tree.Value
}

// Mailbox supplies raw messages. It does not mark messages read.
type Mailbox interface {
    Fetch(ctx context.Context) ([]RawMessage, error)
}

// DetectForwarded reports whether a message embeds a prior message.
func DetectForwarded(subject string, explicit bool, bodyHTML, bodyText string) bool {
    if explicit {
        return true
    }
    if strings.HasPrefix(subject, "Fwd:") {
        return true
    }
    if strings.Contains(strings.ToLower(subject), "forwarded message") {
        return true
    }
    for _, body := range []string{bodyHTML, bodyText} {
        if strings.Contains(body, GmailForwardMarker) || strings.Contains(body, AppleForwardMarker) {
            return true
        }
    }
    return false
}

// IsForwarded applies DetectForwarded to m.
func (m RawMessage) IsForwarded() bool {
    return DetectForwarded(m.Subject, m.ExplicitForwarded, m.BodyHTML, m.BodyText)
}

// MetadataURL returns the first http(s) URL found in the metadata headers.
// List-* headers wrap their value in angle brackets.
func (m RawMessage) MetadataURL() string {
    for _, h := range MetadataHeaders {
        v := strings.TrimSpace(m.Headers[h])
        if v == "" {
            continue
        }
        for _, part := range strings.Split(v, ",") {
            part = strings.Trim(strings.TrimSpace(part), "<>")
            lower := strings.ToLower(part)
            if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
                return part
            }
        }
    }
    return ""
}
