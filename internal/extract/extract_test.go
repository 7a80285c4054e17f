package extract

import (
    "strings"
    "testing"
)

func TestPlainText_SkipsBoilerplateAndKeepsStructure(t *testing.T) {
    html := `<!doctype html>
    <html>
      <head><title>Issue 12</title></head>
      <body>
        <nav>Nav should be ignored</nav>
        <div id="cookie-consent">Accept cookies</div>
        <h1>Main Heading</h1>
        <p>This is the main content paragraph.</p>
        <ul><li>First item</li><li>Second item</li></ul>
        <footer>Footer text</footer>
      </body>
    </html>`

    text := PlainText(html)
    for _, want := range []string{"Main Heading", "This is the main content paragraph.", "First item", "Second item"} {
        if !strings.Contains(text, want) {
            t.Fatalf("expected %q in %q", want, text)
        }
    }
    for _, unwanted := range []string{"Nav should be ignored", "Accept cookies", "Footer text", "Issue 12"} {
        if strings.Contains(text, unwanted) {
            t.Fatalf("did not expect %q in %q", unwanted, text)
        }
    }
}

func TestPlainText_PreservesCode(t *testing.T) {
    text := PlainText(`<article><pre><code>print("hello")
print("world")</code></pre></article>`)
    if !strings.Contains(text, "print(\"hello\")\nprint(\"world\")") {
        t.Fatalf("expected code block content to be preserved; got: %q", text)
    }
}

func TestMarkdown_ConvertsHeadingsAndLinks(t *testing.T) {
    md := Markdown(`<h1>Title</h1><p>Body with <a href="https://example.com/story">a link</a>.</p>`)
    if !strings.Contains(md, "Title") || !strings.Contains(md, "https://example.com/story") {
        t.Fatalf("unexpected markdown: %q", md)
    }
    if strings.Contains(md, "<p>") {
        t.Fatalf("markdown should not contain html tags: %q", md)
    }
}
