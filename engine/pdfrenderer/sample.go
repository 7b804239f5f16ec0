package pdfrenderer

import (
	"bytes"
	"fmt"
	"strings"
)

// Sample pages are US letter
const (
	SamplePageWidth  = 612
	SamplePageHeight = 792
)

// SampleDocument builds a well formed PDF with the given number of pages,
// each carrying a line of text naming its page number. The cross reference
// table is computed so strict parsers accept it too. Used by the startup
// self check and by tests.
func SampleDocument(pages int, title string) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	// catalog 1, pages 2, font 3, info 4, then a page and content pair per page
	kids := make([]string, pages)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 5+i*2)
	}

	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	obj(fmt.Sprintf("<< /Title (%s) /Producer (dtools) >>", escapePDFString(title)))

	for i := range pages {
		contentObj := 6 + i*2
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>",
			SamplePageWidth, SamplePageHeight, contentObj))
		content := fmt.Sprintf("BT\n/F1 24 Tf\n72 700 Td\n(Page %d) Tj\nET", i+1)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 4 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return buf.Bytes()
}

// CorruptSample claims to be a PDF but cannot be parsed
func CorruptSample() []byte {
	return []byte("%PDF-1.4\nthis is not really a pdf document\n%%EOF\n")
}

func escapePDFString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(s)
}
