package links

import (
    "net/url"
    "strings"
)

// MaxSecondary caps the secondary sources handed to the summarizer.
const MaxSecondary = 3

// Rejection reasons.
const (
    ReasonRootDomain  = "root-domain"
    ReasonTracking    = "tracking"
    ReasonUnsubscribe = "unsubscribe"
    ReasonOverflow    = "overflow"
)

// Candidates are the URL sources considered for one content item, in
// priority order.
type Candidates struct {
    // Canonical is the item's own URL, e.g. its web version.
    Canonical string
    // Crawled is the URL the article resolver landed on.
    Crawled string
    // Metadata is a URL taken from message headers or payload fields.
    Metadata string
    // Content holds the links extracted from the cleaned body.
    Content []Link
}

// Selection is the ranked outcome of Prioritize.
type Selection struct {
    Primary   string
    Secondary []string
    // Links lists every candidate once, in candidate order, with its tier.
    Links []Link
}

var trackingHosts = []string{
    "mail.beehiiv.com",
    "link.mail.beehiiv.com",
    "email.mailchimpapp.com",
    "mailchi.mp",
    "list-manage.com",
    "click.convertkit-mail.com",
    "track.constantcontact.com",
    "links.substack.com",
    "email.mg.substack.com",
    "notifications.substack.com",
    "tracking.mailerlite.com",
    "sendgrid.net",
}

var trackingPaths = []string{"/redirect/", "/track/", "/click?", "/ss/c/", "referrer="}

var unsubscribeHints = []string{"unsubscribe", "optout", "opt-out", "manage-subscription", "email-preferences", "/preferences"}

var webVersionHints = []string{"view in browser", "view in your browser", "view online", "view this email", "web version", "read online", "open in browser"}

// IsTrackingURL reports whether raw points at a mail-platform redirector or
// click tracker rather than at the article itself.
func IsTrackingURL(raw string) bool {
    if raw == "" {
        return false
    }
    lower := strings.ToLower(raw)
    if u, err := url.Parse(lower); err == nil {
        host := u.Hostname()
        for _, h := range trackingHosts {
            if host == h || strings.HasSuffix(host, "."+h) {
                return true
            }
        }
    }
    for _, p := range trackingPaths {
        if strings.Contains(lower, p) {
            return true
        }
    }
    return false
}

// IsUnsubscribe reports links that manage the subscription instead of
// pointing at content.
func IsUnsubscribe(l Link) bool {
    lowerURL := strings.ToLower(l.URL)
    lowerTitle := strings.ToLower(l.Title)
    for _, h := range unsubscribeHints {
        if strings.Contains(lowerURL, h) {
            return true
        }
    }
    return strings.Contains(lowerTitle, "unsubscribe") || strings.Contains(lowerTitle, "preferences")
}

// WebVersion returns the first "view in browser" style link, which is the
// newsletter's own canonical URL.
func WebVersion(found []Link) string {
    for _, l := range found {
        title := strings.ToLower(l.Title)
        for _, h := range webVersionHints {
            if strings.Contains(title, h) && !IsTrackingURL(l.URL) {
                return l.URL
            }
        }
    }
    return ""
}

// Prioritize picks the primary source (the first acceptable of canonical,
// crawled, metadata and content URLs) and up to MaxSecondary further
// acceptable URLs. Root-domain, tracking and unsubscribe URLs are never
// selected; they remain in Selection.Links as rejected.
func Prioritize(c Candidates) Selection {
    pool := make([]Link, 0, 3+len(c.Content))
    for _, raw := range []string{c.Canonical, c.Crawled, c.Metadata} {
        if strings.TrimSpace(raw) != "" {
            pool = append(pool, Link{URL: raw})
        }
    }
    pool = append(pool, c.Content...)

    var sel Selection
    seen := map[string]struct{}{}
    for _, l := range pool {
        norm, err := Normalize(l.URL)
        if err != nil {
            continue
        }
        if _, ok := seen[norm]; ok {
            continue
        }
        seen[norm] = struct{}{}
        l.URL = norm
        if l.Title == "" {
            l.Title = norm
        }
        l.Tier, l.Reason = TierRejected, rejection(l)
        if l.Reason == "" {
            switch {
            case sel.Primary == "":
                l.Tier = TierPrimary
                sel.Primary = l.URL
            case len(sel.Secondary) < MaxSecondary:
                l.Tier = TierSecondary
                sel.Secondary = append(sel.Secondary, l.URL)
            default:
                l.Reason = ReasonOverflow
            }
        }
        sel.Links = append(sel.Links, l)
    }
    return sel
}

func rejection(l Link) string {
    switch {
    case IsRootDomain(l.URL):
        return ReasonRootDomain
    case IsTrackingURL(l.URL):
        return ReasonTracking
    case IsUnsubscribe(l):
        return ReasonUnsubscribe
    }
    return ""
}
