package extract

import (
    "strings"

    "github.com/PuerkitoBio/goquery"
    "golang.org/x/net/html"

    "github.com/hyperifyio/letterdigest/internal/mail"
)

// marker is a forward boundary searched for in text nodes. Strong markers
// are unambiguous client boilerplate; the weaker ones only locate regions.
type marker struct {
    text   string
    strong bool
    quote  bool
}

// forwardMarkers in priority order.
var forwardMarkers = []marker{
    {text: mail.GmailForwardMarker, strong: true},
    {text: mail.AppleForwardMarker, strong: true},
    {text: "-----Original Message-----", strong: true},
    {text: "From: "},
    {quote: true},
}

func (m marker) matches(s string) bool {
    if !m.quote {
        return strings.Contains(s, m.text)
    }
    for _, line := range strings.Split(s, "\n") {
        if strings.HasPrefix(strings.TrimSpace(line), ">") {
            return true
        }
    }
    return false
}

// strategy proposes a candidate region or returns nil.
type strategy struct {
    name string
    find func(p *pass) *goquery.Selection
}

// forwardedStrategies run in order; the first non-nil region wins.
var forwardedStrategies = []strategy{
    {StrategyMarker, markerRegion},
    {StrategyBlockquote, largestBlockquote},
    {StrategyLargestDiv, largestLateDiv},
    {StrategyLinkDenseDiv, linkDenseDiv},
    {StrategyAppleSibling, appleSibling},
}

// pass carries per-call state for one Locate invocation.
type pass struct {
    doc     *goquery.Document
    body    *html.Node
    texts   []*html.Node
    sizes   map[*html.Node]int
    docSize int
}

func newPass(doc *goquery.Document) *pass {
    p := &pass{doc: doc, sizes: map[*html.Node]int{}}
    if b := doc.Find("body"); b.Length() > 0 {
        p.body = b.Get(0)
    }
    if p.body == nil {
        return p
    }
    var walk func(*html.Node)
    walk = func(n *html.Node) {
        if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
            p.texts = append(p.texts, n)
        }
        for c := n.FirstChild; c != nil; c = c.NextSibling {
            walk(c)
        }
    }
    walk(p.body)
    p.docSize = p.size(p.body)
    return p
}

func (p *pass) bodySel() *goquery.Selection {
    return p.doc.FindNodes(p.body)
}

// size is the serialized byte length of n, memoized for the pass. Sizes are
// computed before any removal inside a region.
func (p *pass) size(n *html.Node) int {
    if v, ok := p.sizes[n]; ok {
        return v
    }
    var c byteCounter
    _ = html.Render(&c, n)
    p.sizes[n] = int(c)
    return int(c)
}

type byteCounter int

func (c *byteCounter) Write(b []byte) (int, error) {
    *c += byteCounter(len(b))
    return len(b), nil
}

func isContainer(n *html.Node) bool {
    if n == nil || n.Type != html.ElementNode {
        return false
    }
    switch strings.ToLower(n.Data) {
    case "div", "blockquote", "table", "td", "body":
        return true
    }
    return false
}

// containerAncestor walks at most maxAncestorLevels parents of n looking for
// a container element. Reaching stop ends the walk without a match.
func containerAncestor(n, stop *html.Node) *html.Node {
    cur := n.Parent
    for i := 0; cur != nil && i < maxAncestorLevels; i++ {
        if cur == stop {
            return nil
        }
        if isContainer(cur) {
            return cur
        }
        cur = cur.Parent
    }
    return nil
}

// markerRegion finds the highest priority marker and returns its container.
// A container holding only the forward header is replaced by the largest
// following container sibling, which is where clients place the quoted
// message, or else by its own parent container.
func markerRegion(p *pass) *goquery.Selection {
    for _, m := range forwardMarkers {
        for _, t := range p.texts {
            if !m.matches(t.Data) {
                continue
            }
            c := containerAncestor(t, nil)
            if c == nil {
                continue
            }
            if m.strong && headerOnly(c, m.text) {
                return p.doc.FindNodes(expandHeader(p, c))
            }
            return p.doc.FindNodes(c)
        }
    }
    return nil
}

// expandHeader moves a header-only region to the quoted message.
func expandHeader(p *pass, header *html.Node) *html.Node {
    if sib := largestContainerSibling(p, header); sib != nil {
        return sib
    }
    if parent := containerAncestor(header, nil); parent != nil && p.size(parent) > p.size(header) {
        return parent
    }
    return header
}

func headerOnly(n *html.Node, markerText string) bool {
    text := strings.Replace(nodeText(n), markerText, "", 1)
    for _, line := range strings.Split(text, "\n") {
        line = strings.TrimSpace(line)
        if line == "" || headerLine.MatchString(line) {
            continue
        }
        return false
    }
    return true
}

// largestContainerSibling skips text, line breaks and inline elements
// between the header and the quoted message.
func largestContainerSibling(p *pass, n *html.Node) *html.Node {
    var best *html.Node
    bestSize := minRegionBytes - 1
    for s := n.NextSibling; s != nil; s = s.NextSibling {
        if !isContainer(s) {
            continue
        }
        if sz := p.size(s); sz > bestSize {
            best, bestSize = s, sz
        }
    }
    return best
}

func largestBlockquote(p *pass) *goquery.Selection {
    var best *html.Node
    bestSize := minRegionBytes
    p.bodySel().Find("blockquote").Each(func(_ int, s *goquery.Selection) {
        n := s.Get(0)
        if sz := p.size(n); sz > bestSize {
            best, bestSize = n, sz
        }
    })
    if best == nil {
        return nil
    }
    return p.doc.FindNodes(best)
}

// largestLateDiv skips the leading divs, which usually hold banners and the
// forward header, then accepts the largest remaining div if it dominates.
func largestLateDiv(p *pass) *goquery.Selection {
    divs := p.bodySel().Find("div").Nodes
    skip := int(float64(len(divs)) * skipLeadingDivs)
    var best *html.Node
    bestSize := 0
    for _, n := range divs[skip:] {
        if sz := p.size(n); sz > bestSize {
            best, bestSize = n, sz
        }
    }
    if best == nil || float64(bestSize) < minDocumentShare*float64(p.docSize) {
        return nil
    }
    return p.doc.FindNodes(best)
}

func linkDenseDiv(p *pass) *goquery.Selection {
    var best *goquery.Selection
    most := minLinkDenseAnchor
    p.bodySel().Find("div").Each(func(_ int, s *goquery.Selection) {
        if n := s.Find("a").Length(); n > most {
            best, most = s, n
        }
    })
    return best
}

func appleSibling(p *pass) *goquery.Selection {
    for _, t := range p.texts {
        if !strings.Contains(t.Data, mail.AppleForwardMarker) || t.Parent == nil {
            continue
        }
        for s := t.Parent.NextSibling; s != nil; s = s.NextSibling {
            if s.Type != html.ElementNode {
                continue
            }
            if p.size(s) >= minRegionBytes {
                return p.doc.FindNodes(s)
            }
            break
        }
    }
    return nil
}

// stripNestedForwards removes earlier messages quoted inside the region.
// A nested container is only removed while it is clearly a part of the
// region, so a region that is itself one long forward chain survives.
func stripNestedForwards(p *pass, region *goquery.Selection) {
    root := region.Get(0)
    limit := nestedStripShare * float64(p.size(root))
    seen := map[*html.Node]bool{}
    var drop []*html.Node
    for _, t := range p.texts {
        if !within(t, root) || !hasStrongMarker(t.Data) {
            continue
        }
        c := containerAncestor(t, root)
        if c == nil || c == root || seen[c] {
            continue
        }
        seen[c] = true
        if float64(p.size(c)) < limit {
            drop = append(drop, c)
        }
    }
    for _, n := range drop {
        if n.Parent != nil {
            n.Parent.RemoveChild(n)
        }
    }
}

func hasStrongMarker(s string) bool {
    for _, m := range forwardMarkers {
        if m.strong && strings.Contains(s, m.text) {
            return true
        }
    }
    return false
}

func within(n, root *html.Node) bool {
    for cur := n.Parent; cur != nil; cur = cur.Parent {
        if cur == root {
            return true
        }
    }
    return false
}

// densestContainer picks the largest div, table or td carrying enough
// content-bearing elements, provided it covers enough of the document.
func (p *pass) densestContainer() *goquery.Selection {
    var best *html.Node
    bestSize := 0
    p.bodySel().Find("div, table, td").Each(func(_ int, s *goquery.Selection) {
        n := s.Get(0)
        sz := p.size(n)
        if sz <= minRegionBytes || sz <= bestSize {
            return
        }
        if s.Find("p, a, h1, h2, h3, h4, h5, h6, li").Length() < minContentNodes {
            return
        }
        best, bestSize = n, sz
    })
    if best == nil || float64(bestSize) < minDocumentShare*float64(p.docSize) {
        return nil
    }
    return p.doc.FindNodes(best)
}
