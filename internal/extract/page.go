package extract

import (
	"context"
	"log"
	"time"
	"unicode/utf8"
)

const (
	// ocrTriggerFloor separates "essentially textless" pages from merely terse
	// ones; only the former justify the cost of rasterize+OCR.
	ocrTriggerFloor = 50

	// ocrAcceptFloor is the minimum normalized OCR output worth keeping.
	ocrAcceptFloor = 30
)

// Options bundles the tunables for page and document extraction.
type Options struct {
	MaxDuration time.Duration // wall-clock budget for a whole document
	MaxChars    int           // output size budget for a whole document
	MinLength   int           // meaningfulness length floor per page
	LetterRatio float64       // meaningfulness alphabetic ratio

	OCREnabled          bool
	OCRResolution       int
	OCRLanguages        string
	OCRFallbackLanguage string
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxDuration:         120 * time.Second,
		MaxChars:            400_000,
		MinLength:           150,
		LetterRatio:         0.20,
		OCREnabled:          true,
		OCRResolution:       200,
		OCRLanguages:        "tur+eng",
		OCRFallbackLanguage: "eng",
	}
}

// PageResult is the outcome of extracting one page. Degraded outcomes are
// values here, not errors: a failed page carries empty text and Failed=true
// so callers are never forced into error handling for ordinary fallbacks.
type PageResult struct {
	Text    string
	UsedOCR bool
	Failed  bool
}

// Extractor acquires text for single pages, preferring the document's text
// layer and falling back to OCR only for essentially textless pages.
type Extractor struct {
	Rasterizer Rasterizer
	Engine     OCREngine
	Options    Options
}

// ExtractPage returns the best available text for the zero-based page index.
// It never returns an error: per-page extraction and OCR faults degrade to
// empty text so a single damaged page cannot abort the document.
func (e *Extractor) ExtractPage(ctx context.Context, doc Document, docPath string, page int) PageResult {
	raw, err := doc.PageText(page)
	if err != nil {
		log.Printf("⚠️ [EXTRACT] Page %d text layer failed: %v", page+1, err)
		raw = ""
	}
	direct := Normalize(raw)

	if Meaningful(direct, e.Options.MinLength, e.Options.LetterRatio) {
		return PageResult{Text: direct, UsedOCR: false, Failed: err != nil && direct == ""}
	}

	// OCR only when the text layer is essentially absent, not merely sparse.
	// Rune counts, not bytes: Turkish text is full of multi-byte runes.
	if e.Options.OCREnabled && utf8.RuneCountInString(direct) < ocrTriggerFloor {
		ocrText := Normalize(runOCR(ctx, e.Rasterizer, e.Engine, docPath, page, e.Options))
		if utf8.RuneCountInString(ocrText) > ocrAcceptFloor {
			return PageResult{Text: ocrText, UsedOCR: true}
		}
	}

	// Keep whatever the text layer gave us, even if short or empty; pages are
	// never silently dropped.
	return PageResult{Text: direct, UsedOCR: false, Failed: err != nil && direct == ""}
}
