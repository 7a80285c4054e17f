package mail

import (
    "bytes"
    "context"
    "fmt"
    netmail "net/mail"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/dustin/go-humanize"
    "github.com/jhillyerd/enmime/v2"
    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/letterdigest/internal/tree"
)

// DirMailbox reads messages from a directory. Files ending in .eml are parsed
// as RFC 822 messages; files ending in .json are treated as exported payloads
// of arbitrary shape. Other files are ignored.
type DirMailbox struct {
    Dir string
    // MaxBytes skips files larger than this size. Zero means no limit.
    MaxBytes int64
}

// Fetch returns all readable messages in lexical file order. Files that fail
// to parse are logged and skipped.
func (d DirMailbox) Fetch(ctx context.Context) ([]RawMessage, error) {
    entries, err := os.ReadDir(d.Dir)
    if err != nil {
        return nil, fmt.Errorf("read mailbox dir: %w", err)
    }
    names := make([]string, 0, len(entries))
    for _, e := range entries {
        if e.IsDir() {
            continue
        }
        ext := strings.ToLower(filepath.Ext(e.Name()))
        if ext == ".eml" || ext == ".json" {
            names = append(names, e.Name())
        }
    }
    sort.Strings(names)

    var out []RawMessage
    for _, name := range names {
        if err := ctx.Err(); err != nil {
            return out, err
        }
        path := filepath.Join(d.Dir, name)
        info, err := os.Stat(path)
        if err != nil {
            log.Warn().Err(err).Str("file", name).Msg("mailbox: stat failed; skipping")
            continue
        }
        if d.MaxBytes > 0 && info.Size() > d.MaxBytes {
            log.Warn().Str("file", name).Str("size", humanize.Bytes(uint64(info.Size()))).Msg("mailbox: file too large; skipping")
            continue
        }
        data, err := os.ReadFile(path)
        if err != nil {
            log.Warn().Err(err).Str("file", name).Msg("mailbox: read failed; skipping")
            continue
        }
        var msg RawMessage
        if strings.EqualFold(filepath.Ext(name), ".json") {
            msg, err = ParseJSON(data)
        } else {
            msg, err = ParseEML(data)
        }
        if err != nil {
            log.Warn().Err(err).Str("file", name).Msg("mailbox: parse failed; skipping")
            continue
        }
        if msg.MessageID == "" {
            msg.MessageID = strings.TrimSuffix(name, filepath.Ext(name))
        }
        if msg.ReceivedAt.IsZero() {
            msg.ReceivedAt = info.ModTime().UTC()
        }
        log.Debug().Str("file", name).Str("message_id", msg.MessageID).Str("size", humanize.Bytes(uint64(len(data)))).Msg("mailbox: loaded")
        out = append(out, msg)
    }
    return out, nil
}

// ParseEML converts an RFC 822 message into a RawMessage.
func ParseEML(data []byte) (RawMessage, error) {
    env, err := enmime.ReadEnvelope(bytes.NewReader(data))
    if err != nil {
        return RawMessage{}, fmt.Errorf("read envelope: %w", err)
    }
    msg := RawMessage{
        MessageID: strings.Trim(strings.TrimSpace(env.GetHeader("Message-Id")), "<>"),
        Subject:   env.GetHeader("Subject"),
        BodyHTML:  env.HTML,
        BodyText:  env.Text,
        Headers:   map[string]string{},
    }
    if addrs, err := env.AddressList("From"); err == nil && len(addrs) > 0 {
        msg.Sender = addrs[0].Address
    } else {
        msg.Sender = env.GetHeader("From")
    }
    if d := env.GetHeader("Date"); d != "" {
        if t, err := netmail.ParseDate(d); err == nil {
            msg.ReceivedAt = t.UTC()
        }
    }
    for _, h := range MetadataHeaders {
        if v := env.GetHeader(h); v != "" {
            msg.Headers[h] = v
        }
    }
    if v := strings.ToLower(env.GetHeader("X-Forwarded")); v == "true" || v == "yes" || v == "1" {
        msg.ExplicitForwarded = true
    }
    return msg, nil
}

// ParseJSON maps an exported JSON payload onto a RawMessage. Well-known keys
// fill the matching fields; when neither body field is present the whole
// payload is attached so callers can search it for content.
func ParseJSON(data []byte) (RawMessage, error) {
    v, err := tree.FromJSON(data)
    if err != nil {
        return RawMessage{}, err
    }
    m, ok := v.(tree.Map)
    if !ok {
        return RawMessage{Payload: v}, nil
    }
    str := func(keys ...string) string {
        for _, k := range keys {
            if val, ok := m.Get(k); ok {
                if s, ok := val.(tree.String); ok {
                    return string(s)
                }
            }
        }
        return ""
    }
    msg := RawMessage{
        MessageID: str("message_id", "messageId", "id"),
        Subject:   str("subject"),
        Sender:    str("sender", "from"),
        BodyHTML:  str("body_html", "html"),
        BodyText:  str("body_text", "text"),
        Headers:   map[string]string{},
    }
    if ts := str("received_at", "date"); ts != "" {
        if t, err := time.Parse(time.RFC3339, ts); err == nil {
            msg.ReceivedAt = t.UTC()
        } else if t, err := netmail.ParseDate(ts); err == nil {
            msg.ReceivedAt = t.UTC()
        }
    }
    switch strings.ToLower(str("forwarded", "explicit_forwarded")) {
    case "true", "1", "yes":
        msg.ExplicitForwarded = true
    }
    if u := str("url", "web_url", "canonical_url"); u != "" {
        msg.Headers["X-Newsletter-URL"] = u
    }
    if msg.BodyHTML == "" && msg.BodyText == "" {
        msg.Payload = m
    }
    return msg, nil
}
