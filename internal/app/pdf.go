package app

import (
    "bufio"
    "regexp"
    "strings"

    "github.com/jung-kurt/gofpdf"

    "github.com/hyperifyio/letterdigest/internal/extract"
)

var mdLinkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// writeDigestPDF renders the digest as a simple PDF: headings, paragraphs
// and clickable links. Layout is line based.
func writeDigestPDF(digestHTML string, outPath string) error {
    markdown := extract.Markdown(digestHTML)
    pdf := gofpdf.New("P", "mm", "A4", "")
    tr := pdf.UnicodeTranslatorFromDescriptor("")
    pdf.SetFont("Helvetica", "", 11)
    pdf.AddPage()

    scanner := bufio.NewScanner(strings.NewReader(markdown))
    scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
    for scanner.Scan() {
        s := strings.TrimSpace(scanner.Text())
        if s == "" {
            pdf.Ln(4)
            continue
        }
        if strings.HasPrefix(s, "#") {
            level := 0
            for level < len(s) && s[level] == '#' { level++ }
            text := strings.TrimSpace(s[level:])
            if text == "" { continue }
            size := 15.0
            if level >= 2 { size = 13.0 }
            if level >= 3 { size = 11.5 }
            pdf.SetFont("Helvetica", "B", size)
            pdf.MultiCell(0, 7, tr(text), "", "L", false)
            pdf.SetFont("Helvetica", "", 11)
            continue
        }
        if s == "---" || s == "* * *" {
            y := pdf.GetY() + 2
            pdf.Line(10, y, 200, y)
            pdf.Ln(5)
            continue
        }
        parts := mdLinkRe.FindAllStringSubmatchIndex(s, -1)
        if len(parts) == 0 {
            pdf.MultiCell(0, 5, tr(s), "", "L", false)
            continue
        }
        pos := 0
        for _, m := range parts {
            if m[0] > pos {
                pdf.Write(5, tr(s[pos:m[0]]))
            }
            text, url := s[m[2]:m[3]], s[m[4]:m[5]]
            pdf.WriteLinkString(5, tr(text), url)
            pos = m[1]
        }
        if pos < len(s) {
            pdf.Write(5, tr(s[pos:]))
        }
        pdf.Ln(6)
    }
    if err := scanner.Err(); err != nil {
        return err
    }
    return pdf.OutputFileAndClose(outPath)
}
