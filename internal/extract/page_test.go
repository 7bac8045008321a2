package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeDocument serves canned text per page and can simulate failing pages.
type fakeDocument struct {
	pages  []string
	broken map[int]bool
	closed bool
}

func (d *fakeDocument) NumPages() int { return len(d.pages) }

func (d *fakeDocument) PageText(i int) (string, error) {
	if d.broken[i] {
		return "", errors.New("damaged page stream")
	}
	return d.pages[i], nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

// fakeRasterizer writes an empty placeholder image so cleanup has a real
// directory to remove.
type fakeRasterizer struct {
	err error
}

func (r *fakeRasterizer) RasterizePage(ctx context.Context, docPath string, page, dpi int) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	dir, err := os.MkdirTemp("", "extract-test-")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "page-1.png")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// fakeEngine returns canned OCR output, or an error for every language.
type fakeEngine struct {
	text string
	err  error
}

func (e *fakeEngine) Recognize(ctx context.Context, imagePath, lang string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return e.text, nil
}

func meaningfulPage() string {
	return strings.Repeat("The appliance must be connected to a grounded outlet. ", 5)
}

func TestExtractPageDirectTextPreferred(t *testing.T) {
	doc := &fakeDocument{pages: []string{meaningfulPage()}}
	ext := &Extractor{
		Rasterizer: &fakeRasterizer{},
		Engine:     &fakeEngine{text: "ocr should not be consulted"},
		Options:    DefaultOptions(),
	}

	res := ext.ExtractPage(context.Background(), doc, "manual.pdf", 0)
	if res.UsedOCR {
		t.Error("OCR should not run when the text layer is meaningful")
	}
	if res.Failed {
		t.Error("Page with a good text layer should not be marked failed")
	}
	if !strings.Contains(res.Text, "grounded outlet") {
		t.Errorf("Expected direct text, got %q", res.Text)
	}
}

func TestExtractPageOCRFallback(t *testing.T) {
	doc := &fakeDocument{pages: []string{""}}
	ocrOut := strings.Repeat("Recovered from the scanned image. ", 3)
	ext := &Extractor{
		Rasterizer: &fakeRasterizer{},
		Engine:     &fakeEngine{text: ocrOut},
		Options:    DefaultOptions(),
	}

	res := ext.ExtractPage(context.Background(), doc, "manual.pdf", 0)
	if !res.UsedOCR {
		t.Error("Expected OCR fallback for a textless page")
	}
	if !strings.Contains(res.Text, "scanned image") {
		t.Errorf("Expected OCR text, got %q", res.Text)
	}
}

func TestExtractPageSparseTextSkipsOCR(t *testing.T) {
	// Long enough to clear the OCR trigger floor but below the
	// meaningfulness floor: kept as-is, no OCR attempt.
	sparse := "Model VD-4821 Serial 99281-B rev 2 page header text"
	doc := &fakeDocument{pages: []string{sparse}}
	ext := &Extractor{
		Rasterizer: &fakeRasterizer{},
		Engine:     &fakeEngine{text: "ocr output that must not appear"},
		Options:    DefaultOptions(),
	}

	res := ext.ExtractPage(context.Background(), doc, "manual.pdf", 0)
	if res.UsedOCR {
		t.Error("OCR should not run for a sparse but present text layer")
	}
	if res.Text != Normalize(sparse) {
		t.Errorf("Sparse direct text should be kept, got %q", res.Text)
	}
}

// The trigger floor counts runes: a near-empty Turkish text layer packs two
// bytes per accented rune, and byte counting would overstate it past the
// floor and skip OCR exactly for the primary OCR language.
func TestExtractPageTriggerFloorCountsRunes(t *testing.T) {
	direct := strings.Repeat("ışık çok güçlü ", 3) // 44 runes after trim, 60+ bytes
	doc := &fakeDocument{pages: []string{direct}}
	ocrOut := strings.Repeat("Cihazı çalıştırmadan önce kılavuzu okuyun. ", 2)
	ext := &Extractor{
		Rasterizer: &fakeRasterizer{},
		Engine:     &fakeEngine{text: ocrOut},
		Options:    DefaultOptions(),
	}

	res := ext.ExtractPage(context.Background(), doc, "manual.pdf", 0)
	if !res.UsedOCR {
		t.Error("Expected OCR for a text layer under the trigger floor in runes")
	}
	if !strings.Contains(res.Text, "kılavuzu") {
		t.Errorf("Expected OCR text, got %q", res.Text)
	}
}

func TestExtractPageBothPathsFail(t *testing.T) {
	doc := &fakeDocument{pages: []string{""}, broken: map[int]bool{0: true}}
	ext := &Extractor{
		Rasterizer: &fakeRasterizer{err: errors.New("pdftoppm missing")},
		Engine:     &fakeEngine{},
		Options:    DefaultOptions(),
	}

	res := ext.ExtractPage(context.Background(), doc, "manual.pdf", 0)
	if res.Text != "" {
		t.Errorf("Expected empty text when both paths fail, got %q", res.Text)
	}
	if res.UsedOCR {
		t.Error("Failed OCR must not be reported as used")
	}
	if !res.Failed {
		t.Error("Page should be marked failed when the text layer errored and OCR produced nothing")
	}
}

func TestExtractPageOCRDisabled(t *testing.T) {
	doc := &fakeDocument{pages: []string{""}}
	opts := DefaultOptions()
	opts.OCREnabled = false
	ext := &Extractor{
		Rasterizer: &fakeRasterizer{},
		Engine:     &fakeEngine{text: strings.Repeat("should not appear ", 5)},
		Options:    opts,
	}

	res := ext.ExtractPage(context.Background(), doc, "manual.pdf", 0)
	if res.UsedOCR || res.Text != "" {
		t.Errorf("OCR disabled: expected empty direct result, got %+v", res)
	}
}
