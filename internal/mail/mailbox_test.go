package mail

import (
    "context"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/hyperifyio/letterdigest/internal/tree"
)

const sampleEML = "From: Weekly News <news@example.com>\r\n" +
    "To: reader@example.com\r\n" +
    "Subject: Fwd: Issue 42\r\n" +
    "Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n" +
    "Message-ID: <issue-42@example.com>\r\n" +
    "Archived-At: <https://news.example.com/issues/42>\r\n" +
    "MIME-Version: 1.0\r\n" +
    "Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
    "\r\n" +
    "--b1\r\n" +
    "Content-Type: text/plain; charset=utf-8\r\n" +
    "\r\n" +
    "Plain body\r\n" +
    "--b1\r\n" +
    "Content-Type: text/html; charset=utf-8\r\n" +
    "\r\n" +
    "<html><body><p>HTML body</p></body></html>\r\n" +
    "--b1--\r\n"

func TestParseEML(t *testing.T) {
    msg, err := ParseEML([]byte(sampleEML))
    if err != nil {
        t.Fatalf("parse: %v", err)
    }
    if msg.MessageID != "issue-42@example.com" {
        t.Fatalf("unexpected message id: %q", msg.MessageID)
    }
    if msg.Sender != "news@example.com" || msg.Subject != "Fwd: Issue 42" {
        t.Fatalf("unexpected sender/subject: %q %q", msg.Sender, msg.Subject)
    }
    if !strings.Contains(msg.BodyHTML, "HTML body") || !strings.Contains(msg.BodyText, "Plain body") {
        t.Fatalf("bodies not parsed: html=%q text=%q", msg.BodyHTML, msg.BodyText)
    }
    if msg.ReceivedAt.Year() != 2006 {
        t.Fatalf("date not parsed: %v", msg.ReceivedAt)
    }
    if msg.MetadataURL() != "https://news.example.com/issues/42" {
        t.Fatalf("archived-at not captured: %+v", msg.Headers)
    }
    if !msg.IsForwarded() {
        t.Fatalf("expected forwarded by subject")
    }
}

func TestParseJSON_KnownFieldsAndPayloadFallback(t *testing.T) {
    msg, err := ParseJSON([]byte(`{"message_id":"m1","subject":"Hello","body_html":"<p>x</p>","forwarded":true,"url":"https://e.com/a"}`))
    if err != nil {
        t.Fatalf("parse: %v", err)
    }
    if msg.MessageID != "m1" || msg.BodyHTML != "<p>x</p>" || !msg.ExplicitForwarded {
        t.Fatalf("unexpected message: %+v", msg)
    }
    if msg.Payload != nil {
        t.Fatalf("payload should not be attached when a body exists")
    }
    if msg.MetadataURL() != "https://e.com/a" {
        t.Fatalf("url field not mapped: %+v", msg.Headers)
    }

    msg, err = ParseJSON([]byte(`{"id":"m2","subject":"Odd","data":{"parts":[{"content":"the real newsletter text lives here"}]}}`))
    if err != nil {
        t.Fatalf("parse: %v", err)
    }
    if msg.Payload == nil {
        t.Fatalf("expected payload for body-less message")
    }
    if got := tree.Largest(msg.Payload, 0); got != "the real newsletter text lives here" {
        t.Fatalf("unexpected payload search result: %q", got)
    }
}

func TestDirMailbox_FetchSkipsBrokenFiles(t *testing.T) {
    dir := t.TempDir()
    write := func(name, body string) {
        if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
            t.Fatalf("write %s: %v", name, err)
        }
    }
    write("01-issue.eml", sampleEML)
    write("02-export.json", `{"subject":"Exported","body_text":"text body"}`)
    write("03-broken.json", `{"subject":`)
    write("notes.txt", "ignored")

    msgs, err := DirMailbox{Dir: dir}.Fetch(context.Background())
    if err != nil {
        t.Fatalf("fetch: %v", err)
    }
    if len(msgs) != 2 {
        t.Fatalf("expected 2 messages, got %d", len(msgs))
    }
    if msgs[0].MessageID != "issue-42@example.com" {
        t.Fatalf("unexpected first message: %q", msgs[0].MessageID)
    }
    if msgs[1].MessageID != "02-export" {
        t.Fatalf("expected file name as fallback id, got %q", msgs[1].MessageID)
    }
    if msgs[1].ReceivedAt.IsZero() {
        t.Fatalf("expected mod time as fallback received time")
    }
}

func TestDirMailbox_MissingDir(t *testing.T) {
    if _, err := (DirMailbox{Dir: filepath.Join(t.TempDir(), "nope")}).Fetch(context.Background()); err == nil {
        t.Fatalf("expected error for missing directory")
    }
}
