package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"contractforge/internal/contract"
	"contractforge/internal/extractor"
	"contractforge/internal/llm"
	"contractforge/internal/pacer"
)

func docxBytes(t *testing.T, body string) []byte {
	t.Helper()
	doc := `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"word/document.xml":            doc,
		"word/_rels/document.xml.rels": `<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`,
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// ========== Import ==========

func TestImport_Word(t *testing.T) {
	b := script(ok(`{"title":"Supply Agreement","html":"<h1>Supply Agreement</h1><p>xxxx_CLIENT_NAME owes xxxx_AMOUNT</p>"}`))
	o := newTestOrchestrator(b)
	src := extractor.Source{
		Name: "supply.docx",
		Data: docxBytes(t, `<w:p><w:pPr><w:pStyle w:val="Title"/></w:pPr><w:r><w:t>Supply Agreement</w:t></w:r></w:p>`),
	}

	var stages []Stage
	tpl, err := o.Import(context.Background(), src, func(p Progress) { stages = append(stages, p.Stage) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tpl.Category != contract.CategoryImported {
		t.Errorf("category = %q, want Imported", tpl.Category)
	}
	if tpl.Description != "Imported from Word document with text extraction." {
		t.Errorf("description = %q", tpl.Description)
	}
	if diff := cmp.Diff([]string{"xxxx_CLIENT_NAME", "xxxx_AMOUNT"}, tpl.Placeholders); diff != "" {
		t.Errorf("placeholders (-want +got):\n%s", diff)
	}
	wantStages := []Stage{StageClassifying, StageExtracting, StageReconstructing, StageDone}
	if diff := cmp.Diff(wantStages, stages); diff != "" {
		t.Errorf("stages (-want +got):\n%s", diff)
	}

	prompt := b.calls()[0].Prompt
	if !strings.Contains(prompt, `<h1 class="document-title">Supply Agreement</h1>`) {
		t.Errorf("reconstruction prompt should carry the converted html:\n%s", prompt)
	}
}

func TestImport_Image(t *testing.T) {
	b := script(
		ok("<p>Scanned xxxx_DATE</p>"),
		ok(`{"title":"","html":"<p style=\"font-size:9pt\">Scanned xxxx_DATE</p>"}`),
	)
	o := newTestOrchestrator(b)

	tpl, err := o.Import(context.Background(), extractor.Source{Name: "scan.jpg", MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Title != contract.DefaultImportTitle {
		t.Errorf("title = %q, want default", tpl.Title)
	}
	if tpl.Content != "<p>Scanned xxxx_DATE</p>" {
		t.Errorf("content = %q", tpl.Content)
	}
	if tpl.Description != "Imported from image using AI vision OCR." {
		t.Errorf("description = %q", tpl.Description)
	}

	calls := b.calls()
	if calls[0].Task != llm.TaskVision || calls[0].Image.MIMEType != "image/jpeg" {
		t.Errorf("vision request = %+v", calls[0])
	}
	if !strings.Contains(calls[0].Prompt, "Page 1 of 1") {
		t.Error("image is page 1 of 1")
	}
}

func TestImport_Unsupported(t *testing.T) {
	b := script()
	o := newTestOrchestrator(b)

	_, err := o.Import(context.Background(), extractor.Source{Name: "notes.txt", MIMEType: "text/plain"}, nil)
	if !errors.Is(err, extractor.ErrUnsupported) {
		t.Errorf("err = %v, want unsupported", err)
	}
	if len(b.calls()) != 0 {
		t.Error("unsupported input must not reach the backend")
	}
}

func TestImport_BackendFailureSurfacesOnce(t *testing.T) {
	b := script(fail(errors.New("upstream unavailable")))
	o := newTestOrchestrator(b)

	_, err := o.Import(context.Background(), extractor.Source{Name: "scan.png", MIMEType: "image/png", Data: []byte{1}}, nil)
	if err == nil || !strings.Contains(err.Error(), "upstream unavailable") {
		t.Errorf("err = %v", err)
	}
}

func pdfFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestImport_TextPDF(t *testing.T) {
	b := script(ok(`{"title":"Master Services Agreement","html":"<h1>Master Services Agreement</h1><p>xxxx_CLIENT pays</p>"}`))
	r := &fakeRenderer{}
	o := newTestOrchestrator(b, WithRenderer(func([]byte) (PageRenderer, error) { return r, nil }))

	var stages []Stage
	tpl, err := o.Import(context.Background(), extractor.Source{Name: "msa.pdf", Data: pdfFixture(t, "text.pdf")},
		func(p Progress) { stages = append(stages, p.Stage) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tpl.Description != "Imported from text-based PDF with format reconstruction." {
		t.Errorf("description = %q", tpl.Description)
	}
	if tpl.Title != "Master Services Agreement" {
		t.Errorf("title = %q", tpl.Title)
	}
	wantStages := []Stage{StageClassifying, StageExtracting, StageReconstructing, StageDone}
	if diff := cmp.Diff(wantStages, stages); diff != "" {
		t.Errorf("stages (-want +got):\n%s", diff)
	}
	if len(r.rendered) != 0 {
		t.Errorf("text pdf must not be rendered, got pages %v", r.rendered)
	}

	calls := b.calls()
	if len(calls) != 1 || calls[0].Task != llm.TaskDocument || calls[0].Image != nil {
		t.Fatalf("calls = %+v, want one text reconstruction", calls)
	}
	prompt := calls[0].Prompt
	if !strings.Contains(prompt, "<!-- PAGE 1 -->\nMaster Services Agreement between Acme Corp and xxxx_CLIENT") {
		t.Errorf("reconstruction prompt should carry the page-marked text layer:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Text-based PDF") {
		t.Errorf("reconstruction prompt should name the source type:\n%s", prompt)
	}
}

// With a zero threshold any text at all takes the text path, while pages with
// no text layer still go to vision.
func TestImport_ZeroThreshold(t *testing.T) {
	b := script(ok(`{"title":"MSA","html":"<p>x</p>"}`))
	o := newTestOrchestrator(b, WithTextThreshold(0))
	if _, err := o.Import(context.Background(), extractor.Source{Name: "msa.pdf", Data: pdfFixture(t, "text.pdf")}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls := b.calls(); len(calls) != 1 || calls[0].Task != llm.TaskDocument {
		t.Errorf("calls = %+v, want one text reconstruction", calls)
	}

	cls, err := extractor.Classify(extractor.Source{Name: "scan.pdf", Data: pdfFixture(t, "scanned.pdf")}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cls.Kind != extractor.KindScannedPDF {
		t.Errorf("kind = %v, want pdf-scanned", cls.Kind)
	}
}

func TestImport_ScannedPDF(t *testing.T) {
	b := script(
		ok("<p>one</p>"),
		ok("<p>two</p>"),
		ok("<p>three</p>"),
		ok(`{"title":"Lease","html":"<div class=\"document-container\"><p>one</p><p>two</p><p>three</p></div>"}`),
	)
	r := &fakeRenderer{}
	o := newTestOrchestrator(b, WithRenderer(func([]byte) (PageRenderer, error) { return r, nil }))

	tpl, err := o.Import(context.Background(), extractor.Source{Name: "lease.pdf", Data: pdfFixture(t, "scanned.pdf")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Description != "Imported from scanned PDF using AI vision." {
		t.Errorf("description = %q", tpl.Description)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, r.rendered); diff != "" {
		t.Errorf("render order (-want +got):\n%s", diff)
	}
	calls := b.calls()
	if len(calls) != 4 {
		t.Fatalf("calls = %d, want 3 pages + assembly", len(calls))
	}
	for i := 0; i < 3; i++ {
		if calls[i].Task != llm.TaskVision {
			t.Errorf("call %d task = %v, want vision", i, calls[i].Task)
		}
	}
	if !strings.Contains(calls[3].Prompt, "<!-- PAGE 3 START -->") {
		t.Errorf("assembly prompt missing page 3:\n%s", calls[3].Prompt)
	}
}

// timedBackend sleeps on vision calls and records when each call starts and
// ends.
type timedBackend struct {
	visionDelay time.Duration

	mu     sync.Mutex
	starts []time.Time
	ends   []time.Time
	tasks  []llm.Task
}

func (b *timedBackend) Name() string { return "timed" }

func (b *timedBackend) Generate(ctx context.Context, req llm.Request) (string, error) {
	b.mu.Lock()
	b.starts = append(b.starts, time.Now())
	b.tasks = append(b.tasks, req.Task)
	b.mu.Unlock()

	reply := `{"title":"Lease","html":"<p>all</p>"}`
	if req.Task == llm.TaskVision {
		time.Sleep(b.visionDelay)
		reply = "<p>page</p>"
	}

	b.mu.Lock()
	b.ends = append(b.ends, time.Now())
	b.mu.Unlock()
	return reply, ctx.Err()
}

func TestImport_ScannedPagesKeepQuietPeriod(t *testing.T) {
	const interval = 60 * time.Millisecond
	b := &timedBackend{visionDelay: 2 * interval}
	o := newTestOrchestrator(b,
		WithRenderer(func([]byte) (PageRenderer, error) { return &fakeRenderer{}, nil }),
		WithPacer(pacer.IntervalFactory(interval)),
	)

	if _, err := o.Import(context.Background(), extractor.Source{Name: "lease.pdf", Data: pdfFixture(t, "scanned.pdf")}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.starts) != 4 {
		t.Fatalf("calls = %d, want 4", len(b.starts))
	}
	for i := 0; i < 2; i++ {
		gap := b.starts[i+1].Sub(b.ends[i])
		if gap < interval-10*time.Millisecond {
			t.Errorf("gap end(call %d) -> start(call %d) = %v, want >= %v", i+1, i+2, gap, interval)
		}
	}
	if b.tasks[3] != llm.TaskDocument {
		t.Errorf("last call task = %v, want document assembly", b.tasks[3])
	}
	if gap := b.starts[3].Sub(b.ends[2]); gap >= interval {
		t.Errorf("assembly waited %v after the last page, want no pause", gap)
	}
}
