package extract

import (
    "strings"
    "testing"

    "github.com/PuerkitoBio/goquery"
)

// filler returns exactly n bytes of escape-free prose.
func filler(n int) string {
    const words = "Readers learned about the new release and its improvements. "
    s := strings.Repeat(words, n/len(words)+1)
    return s[:n]
}

// padElement wraps filler text in open/close so the element is n bytes long.
func padElement(open, close string, n int) string {
    return open + filler(n-len(open)-len(close)) + close
}

func newTestPass(t *testing.T, html string) *pass {
    t.Helper()
    doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
    if err != nil {
        t.Fatalf("parse: %v", err)
    }
    stripStructural(doc)
    return newPass(doc)
}

func outer(t *testing.T, s *goquery.Selection) string {
    t.Helper()
    if s == nil || s.Length() == 0 {
        return ""
    }
    h, err := goquery.OuterHtml(s)
    if err != nil {
        t.Fatalf("outer html: %v", err)
    }
    return h
}

func TestLocate_ForwardScenarioResolvedByMarker(t *testing.T) {
    cruft := padElement(`<div class="banner">`, `</div>`, 400)
    quote := padElement(`<blockquote>---------- Forwarded message ---------<p>`, `</p></blockquote>`, 600)
    raw := cruft + quote
    if len(raw) != 1000 || strings.Index(raw, "----------") < 400 {
        t.Fatalf("fixture layout wrong: len=%d", len(raw))
    }

    res := Locate(raw, true)
    if !res.OK() {
        t.Fatalf("unexpected degraded result: %s", res.Reason)
    }
    if res.Strategy != StrategyMarker {
        t.Fatalf("expected marker strategy, got %q", res.Strategy)
    }
    if res.Content != quote {
        t.Fatalf("expected the blockquote verbatim\nwant %q\ngot  %q", quote, res.Content)
    }
}

func TestLocate_HeaderOnlyMarkerTakesNextContainer(t *testing.T) {
    header := `<div>---------- Forwarded message ---------<br/>From: Alice &lt;alice@example.com&gt;<br/>Date: Mon, Jan 2<br/>Subject: Issue 7</div>`
    quote := padElement(`<blockquote><p>`, `</p></blockquote>`, 600)
    raw := `<div class="top">Company banner</div>` + header + quote

    res := Locate(raw, true)
    if res.Strategy != StrategyMarker || res.Content != quote {
        t.Fatalf("expected sibling blockquote via marker, got %q: %q", res.Strategy, res.Content)
    }
}

func storyParagraphs(n int) string {
    var b strings.Builder
    for i := 0; i < n; i++ {
        b.WriteString("<p>The central bank held rates steady and signalled a slower pace of cuts.</p>")
    }
    return b.String()
}

func TestLocate_GmailForwardSkipsLineBreaks(t *testing.T) {
    raw := `<div dir="ltr"><br><br><div class="gmail_quote">` +
        `<div dir="ltr" class="gmail_attr">---------- Forwarded message ---------<br>` +
        `From: <strong class="gmail_sendername" dir="auto">Daily Brief</strong> <span dir="auto">&lt;news@brief.example&gt;</span><br>` +
        `Date: Mon, 3 Mar 2025 at 07:00<br>Subject: Markets today<br>To: &lt;reader@example.com&gt;<br></div>` +
        `<br><br><div>` + storyParagraphs(10) + `</div></div></div>`

    res := Locate(raw, true)
    if res.Strategy != StrategyMarker {
        t.Fatalf("expected marker strategy, got %q", res.Strategy)
    }
    if strings.Count(res.Content, "central bank") != 10 {
        t.Fatalf("story missing from region: %q", res.Content)
    }
    if strings.Contains(res.Content, "Forwarded message") {
        t.Fatalf("forward header should not be the region: %q", res.Content)
    }
}

func TestLocate_AppleForwardSkipsHeaderSiblings(t *testing.T) {
    raw := `<div><br><blockquote type="cite"><div>Begin forwarded message:</div>` +
        `<br class="Apple-interchange-newline">` +
        `<div style="margin: 0px;"><span><b>From: </b></span><span>Daily Brief &lt;news@brief.example&gt;</span></div>` +
        `<div style="margin: 0px;"><span><b>Subject: </b></span><span>Markets today</span></div>` +
        `<div style="margin: 0px;"><span><b>Date: </b></span><span>3 March 2025 at 07:00</span></div>` +
        `<br><div><div>` + storyParagraphs(8) + `</div></div></blockquote></div>`

    res := Locate(raw, true)
    if res.Strategy != StrategyMarker {
        t.Fatalf("expected marker strategy, got %q", res.Strategy)
    }
    if strings.Count(res.Content, "central bank") != 8 {
        t.Fatalf("story missing from region: %q", res.Content)
    }
    if strings.Contains(res.Content, "Begin forwarded message") || strings.Contains(res.Content, "Subject: ") {
        t.Fatalf("header blocks should not be part of the region: %q", res.Content)
    }
}

func TestLocate_HeaderOnlyMarkerFallsBackToParent(t *testing.T) {
    raw := `<blockquote id="quoted"><div>---------- Forwarded message ---------<br>From: Alice &lt;alice@example.com&gt;</div>` +
        storyParagraphs(5) + `</blockquote>`
    res := Locate(raw, true)
    if res.Strategy != StrategyMarker {
        t.Fatalf("expected marker strategy, got %q", res.Strategy)
    }
    if !strings.Contains(res.Content, `id="quoted"`) || strings.Count(res.Content, "central bank") != 5 {
        t.Fatalf("expected the parent container, got %q", res.Content)
    }
}

func TestLocate_MarkerBeatsLargerBlockquote(t *testing.T) {
    fwd := `<div id="fwd">---------- Forwarded message ---------` + padElement(`<p>`, `</p>`, 300) + `</div>`
    other := padElement(`<blockquote>`, `</blockquote>`, 900)
    res := Locate(fwd+other, true)
    if res.Strategy != StrategyMarker {
        t.Fatalf("expected marker strategy, got %q", res.Strategy)
    }
    if !strings.Contains(res.Content, `id="fwd"`) || strings.Contains(res.Content, "<blockquote>") {
        t.Fatalf("region should derive from the marker ancestor: %q", res.Content)
    }
}

func TestLocate_FallsThroughToBlockquote(t *testing.T) {
    quote := padElement(`<blockquote>`, `</blockquote>`, 400)
    res := Locate(`<div>Hi there</div>`+quote, true)
    if res.Strategy != StrategyBlockquote || res.Content != quote {
        t.Fatalf("expected blockquote strategy, got %q: %q", res.Strategy, res.Content)
    }
}

func TestLocate_ForwardedWithoutRegionUsesDocument(t *testing.T) {
    res := Locate(`<p>short note</p>`, true)
    if res.Strategy != StrategyDocument || res.Content != "<p>short note</p>" {
        t.Fatalf("expected whole document, got %q: %q", res.Strategy, res.Content)
    }
}

func TestStrategy_LargestBlockquote(t *testing.T) {
    small := padElement(`<blockquote id="a">`, `</blockquote>`, 300)
    big := padElement(`<blockquote id="b">`, `</blockquote>`, 500)
    p := newTestPass(t, small+big)
    if got := outer(t, largestBlockquote(p)); got != big {
        t.Fatalf("expected larger blockquote, got %q", got)
    }
    p = newTestPass(t, `<blockquote>tiny</blockquote>`)
    if largestBlockquote(p) != nil {
        t.Fatalf("blockquotes under the minimum size must not qualify")
    }
}

func TestStrategy_LargestLateDivSkipsLeadingDivs(t *testing.T) {
    lead := padElement(`<div id="lead">`, `</div>`, 1000)
    target := padElement(`<div id="target">`, `</div>`, 900)
    html := lead + `<div>a</div><div>b</div>` + target + `<div>c</div>`
    p := newTestPass(t, html)
    if got := outer(t, largestLateDiv(p)); got != target {
        t.Fatalf("expected target div, got %q", got)
    }

    html = padElement(`<p>`, `</p>`, 3000) + `<div>a</div><div>b</div><div>c</div><div>d</div><div>e</div>`
    if largestLateDiv(newTestPass(t, html)) != nil {
        t.Fatalf("divs below the document share must not qualify")
    }
}

func TestStrategy_LinkDenseDiv(t *testing.T) {
    html := `<div id="few"><a href="/1">1</a><a href="/2">2</a></div>` +
        `<div id="many"><a href="/1">1</a><a href="/2">2</a><a href="/3">3</a><a href="/4">4</a></div>`
    got := linkDenseDiv(newTestPass(t, html))
    if id, _ := got.Attr("id"); id != "many" {
        t.Fatalf("expected link dense div, got %q", id)
    }
    html = `<div><a href="/1">1</a><a href="/2">2</a><a href="/3">3</a></div>`
    if linkDenseDiv(newTestPass(t, html)) != nil {
        t.Fatalf("three links must not qualify")
    }
}

func TestStrategy_AppleSibling(t *testing.T) {
    body := padElement(`<div id="body">`, `</div>`, 300)
    p := newTestPass(t, `<p>Begin forwarded message:</p>`+body)
    if got := outer(t, appleSibling(p)); got != body {
        t.Fatalf("expected sibling after apple marker, got %q", got)
    }
    p = newTestPass(t, `<p>Begin forwarded message:</p><div>small</div>`)
    if appleSibling(p) != nil {
        t.Fatalf("small sibling must not qualify")
    }
}

func TestStripNestedForwards_RemovesSmallOlderMessage(t *testing.T) {
    nested := `<div id="old">-----Original Message-----<p>older thread</p></div>`
    html := `<blockquote id="region">` + filler(800) + nested + `</blockquote>`
    p := newTestPass(t, html)
    region := p.bodySel().Find("#region")
    stripNestedForwards(p, region)
    if region.Find("#old").Length() != 0 {
        t.Fatalf("expected nested forward to be removed")
    }
    if !strings.Contains(region.Text(), filler(800)) {
        t.Fatalf("region content must survive")
    }
}

func TestStripNestedForwards_KeepsDominantChain(t *testing.T) {
    nested := `<div id="chain">-----Original Message-----` + padElement(`<p>`, `</p>`, 900) + `</div>`
    html := `<blockquote id="region"><p>fyi</p>` + nested + `</blockquote>`
    p := newTestPass(t, html)
    region := p.bodySel().Find("#region")
    stripNestedForwards(p, region)
    if region.Find("#chain").Length() != 1 {
        t.Fatalf("nested section covering most of the region must be kept")
    }
}

func TestLocate_NonForwardedPicksDenseContainer(t *testing.T) {
    var items strings.Builder
    for i := 0; i < 6; i++ {
        items.WriteString("<p>" + filler(80) + "</p>")
    }
    main := `<div id="main">` + items.String() + `</div>`
    raw := `<div id="top"><span>logo</span></div>` + main + `<div id="tail">bye</div>`

    res := Locate(raw, false)
    if res.Strategy != StrategyContainer || res.Content != main {
        t.Fatalf("expected dense container, got %q: %q", res.Strategy, res.Content)
    }
}

func TestLocate_NonForwardedSparseFallsBackToDocument(t *testing.T) {
    raw := `<div><p>one</p><p>two</p></div>`
    res := Locate(raw, false)
    if res.Strategy != StrategyDocument || res.Content != raw {
        t.Fatalf("expected whole document, got %q: %q", res.Strategy, res.Content)
    }
}

func TestLocate_StructuralStripAndScrub(t *testing.T) {
    raw := `<html><head><style>p{}</style><meta charset="utf-8"/></head><body>` +
        `<script>track()</script>` +
        `<div class="Unsubscribe-Block">Leave list</div>` +
        `<div class="ad sponsor-slot">Buy now</div>` +
        `<div id="content"><div class="email-header">Logo</div><p>Story</p><div role="contentinfo">Address</div><span id="page-footer">foot</span></div>` +
        `</body></html>`
    res := Locate(raw, false)
    for _, unwanted := range []string{"track()", "Leave list", "Buy now", "Logo", "Address", "foot", "p{}"} {
        if strings.Contains(res.Content, unwanted) {
            t.Fatalf("did not expect %q in %q", unwanted, res.Content)
        }
    }
    if !strings.Contains(res.Content, "Story") {
        t.Fatalf("expected story to survive: %q", res.Content)
    }
}

func TestLocate_Idempotent(t *testing.T) {
    raw := `<div class="banner">Top</div><div>---------- Forwarded message ---------<br/>From: A</div>` +
        padElement(`<blockquote><p>`, `</p></blockquote>`, 500)
    a := Locate(raw, true)
    b := Locate(raw, true)
    if a != b {
        t.Fatalf("expected identical results:\n%+v\n%+v", a, b)
    }
}

func TestLocate_UnterminatedTagFailsOpen(t *testing.T) {
    for _, forwarded := range []bool{false, true} {
        res := Locate(`<div><p>Hello world <b class="x`, forwarded)
        if strings.TrimSpace(res.Content) == "" {
            t.Fatalf("expected non-empty output, got %+v", res)
        }
    }
}

func TestLocate_PlainText(t *testing.T) {
    plain := "Hello reader,\nthis is the issue."
    if res := Locate(plain, false); res.Content != plain || res.Strategy != StrategyText {
        t.Fatalf("plain text should pass through: %+v", res)
    }
    fwd := "fyi\n\n---------- Forwarded message ---------\nFrom: Bob <bob@example.com>\nDate: Mon\nSubject: News\nTo: me\n\nThe real story."
    if res := Locate(fwd, true); res.Content != "The real story." || res.Strategy != StrategyTextForward {
        t.Fatalf("expected forwarded text body, got %+v", res)
    }
    headerOnly := "---------- Forwarded message ---------\nFrom: Bob"
    if res := Locate(headerOnly, true); res.Content != headerOnly {
        t.Fatalf("expected original text when nothing follows the header, got %+v", res)
    }
}

func TestDegradedResultKeepsOriginal(t *testing.T) {
    r := degraded("<p>orig</p>", "boom")
    if r.OK() || r.Content != "<p>orig</p>" || r.Reason != "boom" {
        t.Fatalf("unexpected degraded result: %+v", r)
    }
}
