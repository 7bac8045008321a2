package extract

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"
)

// PageBlock is one page's contribution to an extracted document.
type PageBlock struct {
	Page    int // zero-based
	Text    string
	UsedOCR bool
	Failed  bool
}

// ExtractedDocument is the result of running the pipeline over one document.
// Constructed fresh on every request; callers cache if they need to.
type ExtractedDocument struct {
	SourcePath     string
	TotalPages     int
	PagesProcessed int
	Pages          []PageBlock
	UsedOCR        bool
	CharCount      int
	Truncated      bool
	Body           string
}

const noTextPlaceholder = "[no text could be extracted from this page]"

// Pipeline drives per-page extraction across a whole document under a
// wall-clock and output-size budget.
type Pipeline struct {
	Extractor *Extractor

	// Open overrides document opening; tests substitute fakes. Nil means OpenPDF.
	Open func(path string) (Document, error)
}

// NewPipeline builds a pipeline with the given OCR collaborators and options.
func NewPipeline(ras Rasterizer, engine OCREngine, opts Options) *Pipeline {
	return &Pipeline{
		Extractor: &Extractor{Rasterizer: ras, Engine: engine, Options: opts},
	}
}

// Extract opens the document at path and concatenates per-page text blocks,
// each introduced by a page banner, under the configured budgets. Budget
// exhaustion is a reported truncation, never an error; an undecryptable
// document is the only fatal outcome.
func (p *Pipeline) Extract(ctx context.Context, path string) (*ExtractedDocument, error) {
	open := p.Open
	if open == nil {
		open = OpenPDF
	}

	doc, err := open(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	opts := p.Extractor.Options
	total := doc.NumPages()
	start := time.Now()

	result := &ExtractedDocument{
		SourcePath: path,
		TotalPages: total,
	}

	var body strings.Builder
	truncNotice := ""

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			truncNotice = fmt.Sprintf("\n[Content truncated - request cancelled after page %d/%d]", i, total)
			result.Truncated = true
			break
		}

		if elapsed := time.Since(start); elapsed >= opts.MaxDuration {
			truncNotice = fmt.Sprintf("\n[Content truncated - time budget exceeded after page %d/%d]", i, total)
			result.Truncated = true
			break
		}

		page := p.Extractor.ExtractPage(ctx, doc, path, i)
		text := page.Text
		if text == "" {
			text = noTextPlaceholder
		}

		// The banner survives even for empty pages so document structure
		// stays inspectable.
		body.WriteString(fmt.Sprintf("\n--- Page %d/%d ---\n", i+1, total))
		body.WriteString(text)
		body.WriteString("\n")

		result.Pages = append(result.Pages, PageBlock{
			Page:    i,
			Text:    page.Text,
			UsedOCR: page.UsedOCR,
			Failed:  page.Failed,
		})
		result.PagesProcessed++
		if page.UsedOCR {
			result.UsedOCR = true
		}

		if opts.MaxChars > 0 && body.Len() > opts.MaxChars {
			truncNotice = "\n[Content truncated - size limit reached]"
			result.Truncated = true
			break
		}
	}

	if truncNotice != "" {
		body.WriteString(truncNotice)
		body.WriteString("\n")
	}

	ocrNote := "no"
	if result.UsedOCR {
		ocrNote = "yes"
	}
	header := fmt.Sprintf("=== %s ===\nPages processed: %d/%d | OCR used: %s\n",
		filepath.Base(path), result.PagesProcessed, total, ocrNote)

	result.Body = header + body.String()
	result.CharCount = len(result.Body)

	log.Printf("📄 [EXTRACT] %s: %d/%d pages, %d chars, ocr=%v, truncated=%v (%v)",
		filepath.Base(path), result.PagesProcessed, total, result.CharCount,
		result.UsedOCR, result.Truncated, time.Since(start).Round(time.Millisecond))

	return result, nil
}
