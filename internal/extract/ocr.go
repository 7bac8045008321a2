package extract

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Rasterizer renders a single document page to an image file for OCR.
type Rasterizer interface {
	// RasterizePage renders the zero-based page of the document at docPath to
	// an image at the given resolution and returns the image path. The caller
	// removes the file when done.
	RasterizePage(ctx context.Context, docPath string, page int, dpi int) (string, error)
}

// OCREngine recognizes text in a page image. The engine itself is an external
// collaborator; only its invocation contract lives here.
type OCREngine interface {
	// Recognize returns the plain text found in the image using the given
	// language hint (e.g. "tur+eng").
	Recognize(ctx context.Context, imagePath string, lang string) (string, error)
}

// PopplerRasterizer shells out to pdftoppm.
type PopplerRasterizer struct {
	// Binary overrides the pdftoppm executable path. Empty means $PATH lookup.
	Binary string
}

func (r *PopplerRasterizer) RasterizePage(ctx context.Context, docPath string, page int, dpi int) (string, error) {
	bin := r.Binary
	if bin == "" {
		bin = "pdftoppm"
	}

	dir, err := os.MkdirTemp("", "voltdesk-ocr-")
	if err != nil {
		return "", fmt.Errorf("failed to create raster dir: %w", err)
	}
	prefix := filepath.Join(dir, "page")

	pageNum := strconv.Itoa(page + 1) // pdftoppm pages are 1-based
	cmd := exec.CommandContext(ctx, bin,
		"-png",
		"-r", strconv.Itoa(dpi),
		"-f", pageNum,
		"-l", pageNum,
		docPath, prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("pdftoppm failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}

	// pdftoppm names the output page-<n>.png with zero padding that depends on
	// the document's page count; glob instead of guessing.
	matches, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(matches) == 0 {
		os.RemoveAll(dir)
		return "", fmt.Errorf("pdftoppm produced no image for page %d", page+1)
	}
	return matches[0], nil
}

// TesseractEngine shells out to the tesseract CLI.
type TesseractEngine struct {
	// Binary overrides the tesseract executable path. Empty means $PATH lookup.
	Binary string
}

func (e *TesseractEngine) Recognize(ctx context.Context, imagePath string, lang string) (string, error) {
	bin := e.Binary
	if bin == "" {
		bin = "tesseract"
	}

	cmd := exec.CommandContext(ctx, bin, imagePath, "stdout", "-l", lang)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract failed for %s: %w", lang, err)
	}
	return string(out), nil
}

// runOCR rasterizes a single page and recognizes it, trying the combined
// language hint first and falling back to the default language. Any failure
// degrades to empty text; OCR problems never abort a document.
func runOCR(ctx context.Context, ras Rasterizer, engine OCREngine, docPath string, page int, opts Options) string {
	if ras == nil || engine == nil {
		return ""
	}

	imagePath, err := ras.RasterizePage(ctx, docPath, page, opts.OCRResolution)
	if err != nil {
		log.Printf("⚠️ [EXTRACT] Page %d rasterization failed: %v", page+1, err)
		return ""
	}
	defer os.RemoveAll(filepath.Dir(imagePath))

	text, err := engine.Recognize(ctx, imagePath, opts.OCRLanguages)
	if err != nil {
		log.Printf("⚠️ [EXTRACT] OCR (%s) failed on page %d, retrying with %s: %v",
			opts.OCRLanguages, page+1, opts.OCRFallbackLanguage, err)
		text, err = engine.Recognize(ctx, imagePath, opts.OCRFallbackLanguage)
		if err != nil {
			log.Printf("⚠️ [EXTRACT] OCR fallback failed on page %d: %v", page+1, err)
			return ""
		}
	}
	return text
}
