package extractor

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"contractforge/internal/apperr"
)

// ========== DetectFormat ==========

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name, mime string
		want       Format
	}{
		{"contract.docx", "", FormatWord},
		{"upload", mimeDOCX, FormatWord},
		{"Contract.PDF", "", FormatPDF},
		{"blob", "application/pdf; charset=binary", FormatPDF},
		{"scan.jpg", "image/jpeg", FormatImage},
		{"scan.png", "", FormatImage},
		{"notes.txt", "text/plain", FormatUnknown},
		{"legacy.doc", "application/msword", FormatUnknown},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.name, tt.mime); got != tt.want {
			t.Errorf("DetectFormat(%q, %q) = %d, want %d", tt.name, tt.mime, got, tt.want)
		}
	}
}

func TestImageMIMEType(t *testing.T) {
	if got := ImageMIMEType("a.png", "image/webp"); got != "image/webp" {
		t.Errorf("declared type = %q, want image/webp", got)
	}
	if got := ImageMIMEType("a.png", ""); got != "image/png" {
		t.Errorf("from extension = %q, want image/png", got)
	}
	if got := ImageMIMEType("noext", ""); got != "image/png" {
		t.Errorf("fallback = %q, want image/png", got)
	}
}

// ========== ClassifyPDF ==========

func TestClassifyPDF_Boundary(t *testing.T) {
	exactly := strings.Repeat("a", 50)
	above := strings.Repeat("a", 51)

	if got := ClassifyPDF([]string{exactly}, DefaultTextThreshold); got != KindScannedPDF {
		t.Errorf("avg 50 = %v, want pdf-scanned", got)
	}
	if got := ClassifyPDF([]string{above}, DefaultTextThreshold); got != KindTextPDF {
		t.Errorf("avg 51 = %v, want pdf-text", got)
	}
}

func TestClassifyPDF_Average(t *testing.T) {
	// 120 + 0 + 0 = 120 / 3 = 40
	pages := []string{strings.Repeat("x", 120), "", "   "}
	if got := ClassifyPDF(pages, DefaultTextThreshold); got != KindScannedPDF {
		t.Errorf("sparse pdf = %v, want pdf-scanned", got)
	}
}

func TestClassifyPDF_WhitespaceOnly(t *testing.T) {
	pages := []string{strings.Repeat(" \n\t", 100)}
	if got := ClassifyPDF(pages, DefaultTextThreshold); got != KindScannedPDF {
		t.Errorf("whitespace page = %v, want pdf-scanned", got)
	}
}

func TestClassifyPDF_CountsRunes(t *testing.T) {
	// 30 two-byte runes is 60 bytes but only 30 characters.
	pages := []string{strings.Repeat("é", 30)}
	if got := ClassifyPDF(pages, 40); got != KindScannedPDF {
		t.Errorf("multibyte page = %v, want pdf-scanned", got)
	}
}

func TestClassifyPDF_NoPages(t *testing.T) {
	if got := ClassifyPDF(nil, DefaultTextThreshold); got != KindScannedPDF {
		t.Errorf("no pages = %v, want pdf-scanned", got)
	}
}

// ========== Classify ==========

func TestClassify_Unsupported(t *testing.T) {
	_, err := Classify(Source{Name: "notes.txt", MIMEType: "text/plain"}, DefaultTextThreshold)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
	if !strings.Contains(err.Error(), "PDF, Word document (.docx), or image") {
		t.Errorf("message %q should name the supported types", err.Error())
	}
}

func TestClassify_WordAndImage(t *testing.T) {
	c, err := Classify(Source{Name: "a.docx"}, DefaultTextThreshold)
	if err != nil || c.Kind != KindWord {
		t.Errorf("docx = %v, %v; want docx", c.Kind, err)
	}
	c, err = Classify(Source{Name: "a.jpeg", MIMEType: "image/jpeg"}, DefaultTextThreshold)
	if err != nil || c.Kind != KindImage || c.PageCount != 1 {
		t.Errorf("image = %+v, %v; want image with 1 page", c, err)
	}
}

func TestClassify_CorruptPDF(t *testing.T) {
	_, err := Classify(Source{Name: "a.pdf", Data: []byte("not a pdf")}, DefaultTextThreshold)
	if err == nil {
		t.Fatal("expected error for corrupt pdf")
	}
	if apperr.KindOf(err) != apperr.KindInvalid {
		t.Errorf("kind = %v, want invalid", apperr.KindOf(err))
	}
}

func TestClassify_TruncatedPDF(t *testing.T) {
	data := readFixture(t, "text.pdf")
	_, err := Classify(Source{Name: "a.pdf", Data: data[:len(data)/2]}, DefaultTextThreshold)
	if apperr.KindOf(err) != apperr.KindInvalid {
		t.Errorf("err = %v, want invalid", err)
	}
}

func TestClassify_TextPDF(t *testing.T) {
	cls, err := Classify(Source{Name: "contract.pdf", Data: readFixture(t, "text.pdf")}, DefaultTextThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cls.Kind != KindTextPDF {
		t.Errorf("kind = %v, want pdf-text", cls.Kind)
	}
	if cls.PageCount != 1 || len(cls.PageTexts) != 1 {
		t.Errorf("pages = %d/%d, want 1", cls.PageCount, len(cls.PageTexts))
	}
}

func TestClassify_ScannedPDF(t *testing.T) {
	cls, err := Classify(Source{Name: "scan.pdf", MIMEType: "application/pdf", Data: readFixture(t, "scanned.pdf")}, DefaultTextThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cls.Kind != KindScannedPDF {
		t.Errorf("kind = %v, want pdf-scanned", cls.Kind)
	}
	if cls.PageCount != 3 {
		t.Errorf("page count = %d, want 3", cls.PageCount)
	}
}

// The fixture's only page sits exactly on the threshold when the threshold
// equals its character count.
func TestClassify_TextPDFThresholdIsStrict(t *testing.T) {
	data := readFixture(t, "text.pdf")
	n := float64(utf8.RuneCountInString(fixtureText))

	cls, err := Classify(Source{Name: "c.pdf", Data: data}, n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cls.Kind != KindScannedPDF {
		t.Errorf("threshold %v: kind = %v, want pdf-scanned", n, cls.Kind)
	}

	cls, err = Classify(Source{Name: "c.pdf", Data: data}, n-1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cls.Kind != KindTextPDF {
		t.Errorf("threshold %v: kind = %v, want pdf-text", n-1, cls.Kind)
	}
}

// ========== ReadPDFText ==========

const fixtureText = "Master Services Agreement between Acme Corp and xxxx_CLIENT\nThe Client shall pay every invoice within thirty days."

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestReadPDFText(t *testing.T) {
	pages, err := ReadPDFText(readFixture(t, "text.pdf"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(pages))
	}
	if pages[0] != fixtureText {
		t.Errorf("page 1 = %q, want %q", pages[0], fixtureText)
	}
}

func TestReadPDFText_NoTextLayer(t *testing.T) {
	pages, err := ReadPDFText(readFixture(t, "scanned.pdf"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("pages = %d, want 3", len(pages))
	}
	for i, p := range pages {
		if p != "" {
			t.Errorf("page %d = %q, want empty", i+1, p)
		}
	}
}

func TestKindString(t *testing.T) {
	want := map[Kind]string{
		KindWord:       "docx",
		KindImage:      "image",
		KindTextPDF:    "pdf-text",
		KindScannedPDF: "pdf-scanned",
		KindUnknown:    "unknown",
	}
	for k, s := range want {
		if k.String() != s {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), s)
		}
	}
}

// ========== JoinPages ==========

func TestJoinPages(t *testing.T) {
	got := JoinPages([]string{"first", "second"})
	want := "<!-- PAGE 1 -->\nfirst\n\n<!-- PAGE 2 -->\nsecond"
	if got != want {
		t.Errorf("JoinPages = %q, want %q", got, want)
	}
}

func TestJoinPages_Empty(t *testing.T) {
	if got := JoinPages(nil); got != "" {
		t.Errorf("JoinPages(nil) = %q, want empty", got)
	}
}

// ========== documentXMLToHTML ==========

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func wrapBody(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><w:document ` + wordNS + `><w:body>` + body + `</w:body></w:document>`
}

func TestDocumentXMLToHTML_HeadingsAndRuns(t *testing.T) {
	body := `<w:p><w:pPr><w:pStyle w:val="Title"/></w:pPr><w:r><w:t>Service Agreement</w:t></w:r></w:p>` +
		`<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>1. Scope</w:t></w:r></w:p>` +
		`<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>Client:</w:t></w:r><w:r><w:t xml:space="preserve"> Acme &amp; Co</w:t></w:r></w:p>`

	got, err := documentXMLToHTML(wrapBody(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `<h1 class="document-title">Service Agreement</h1><h2>1. Scope</h2><p><strong>Client:</strong> Acme &amp; Co</p>`
	if got != want {
		t.Errorf("html =\n%s\nwant\n%s", got, want)
	}
}

func TestDocumentXMLToHTML_Lists(t *testing.T) {
	item := func(text string) string {
		return `<w:p><w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr></w:pPr><w:r><w:t>` + text + `</w:t></w:r></w:p>`
	}
	body := item("one") + item("two") + `<w:p><w:r><w:t>after</w:t></w:r></w:p>`

	got, err := documentXMLToHTML(wrapBody(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `<ul><li>one</li><li>two</li></ul><p>after</p>`
	if got != want {
		t.Errorf("html = %q, want %q", got, want)
	}
}

func TestDocumentXMLToHTML_Table(t *testing.T) {
	body := `<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Party</w:t></w:r></w:p></w:tc>` +
		`<w:tc><w:p><w:r><w:t>Role</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`

	got, err := documentXMLToHTML(wrapBody(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `<table><tr><td><p>Party</p></td><td><p>Role</p></td></tr></table>`
	if got != want {
		t.Errorf("html = %q, want %q", got, want)
	}
}

func TestDocumentXMLToHTML_TextBoxKeepsOuterParagraph(t *testing.T) {
	body := `<w:p><w:r><w:t xml:space="preserve">Before box </w:t></w:r>` +
		`<w:r><w:pict><w:txbxContent><w:p><w:r><w:t>Boxed note</w:t></w:r></w:p></w:txbxContent></w:pict></w:r>` +
		`<w:r><w:t>after box</w:t></w:r></w:p>`

	got, err := documentXMLToHTML(wrapBody(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `<p>Boxed note</p><p>Before box after box</p>`
	if got != want {
		t.Errorf("html = %q, want %q", got, want)
	}
}

func TestDocumentXMLToHTML_TextBoxInsideFormattedRun(t *testing.T) {
	body := `<w:p><w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">Lead </w:t>` +
		`<w:pict><w:txbxContent><w:p><w:r><w:t>Inner</w:t></w:r></w:p></w:txbxContent></w:pict>` +
		`<w:t>tail</w:t></w:r></w:p>`

	got, err := documentXMLToHTML(wrapBody(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `<p>Inner</p><p><strong>Lead </strong><strong>tail</strong></p>`
	if got != want {
		t.Errorf("html = %q, want %q", got, want)
	}
}

func TestDocumentXMLToHTML_DisabledBoldAndEmptyParagraphs(t *testing.T) {
	body := `<w:p></w:p><w:p><w:r><w:rPr><w:b w:val="0"/><w:i/></w:rPr><w:t>note</w:t></w:r></w:p>`

	got, err := documentXMLToHTML(wrapBody(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "<p><em>note</em></p>" {
		t.Errorf("html = %q", got)
	}
}

func TestDocumentXMLToHTML_Malformed(t *testing.T) {
	if _, err := documentXMLToHTML("<w:document><w:body>"); err == nil {
		t.Error("expected error for truncated xml")
	}
}

func TestDocxHeadingLevel(t *testing.T) {
	tests := map[string]int{
		"Title":     1,
		"Subtitle":  2,
		"Heading1":  1,
		"heading 3": 3,
		"Titre2":    2,
		"Heading7":  0,
		"Normal":    0,
		"":          0,
	}
	for style, want := range tests {
		if got := docxHeadingLevel(style); got != want {
			t.Errorf("docxHeadingLevel(%q) = %d, want %d", style, got, want)
		}
	}
}

// ========== WordToHTML ==========

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml":          `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"word/document.xml":            documentXML,
		"word/_rels/document.xml.rels": `<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestWordToHTML(t *testing.T) {
	data := buildDocx(t, wrapBody(`<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Terms</w:t></w:r></w:p>`))

	got, err := WordToHTML(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "<h1>Terms</h1>" {
		t.Errorf("html = %q, want <h1>Terms</h1>", got)
	}
}

func TestWordToHTML_NotAZip(t *testing.T) {
	if _, err := WordToHTML([]byte("plain text")); err == nil {
		t.Error("expected error for non-zip input")
	}
}

// ========== Rasterizer ==========

func TestNewRasterizer_DPI(t *testing.T) {
	if DetectRasterizer() == "" {
		t.Skip("no pdftoppm or magick on PATH")
	}
	r, err := NewRasterizer([]byte("%PDF-1.4"), 2.5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()
	if r.DPI() != 180 {
		t.Errorf("DPI = %d, want 180", r.DPI())
	}
}

func TestUnsupportedKind(t *testing.T) {
	_, err := Classify(Source{Name: "x.bin"}, DefaultTextThreshold)
	if apperr.KindOf(err) != apperr.KindUnsupported {
		t.Errorf("kind = %v, want unsupported", apperr.KindOf(err))
	}
}
