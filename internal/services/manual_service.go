package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"voltdesk/internal/catalog"
	"voltdesk/internal/extract"
	"voltdesk/internal/logging"
)

// ErrManualTimeout means extraction exceeded the outer request bound. The
// pipeline keeps its own internal budget; this bound protects the caller
// independently and is a recoverable "try again" outcome.
var ErrManualTimeout = errors.New("manual extraction timed out")

// ManualResult is a located and extracted product manual.
type ManualResult struct {
	Record    catalog.ManualRecord
	Content   string
	UsedOCR   bool
	Truncated bool
	FromCache bool
}

// ManualService resolves product references to manuals and extracts their
// text. Extraction runs off the request goroutine under an outer timeout;
// results are cached by resolved path since extraction of a large scanned
// manual can take minutes.
type ManualService struct {
	locator  *catalog.Locator
	pipeline *extract.Pipeline
	cache    *gocache.Cache
	timeout  time.Duration
	metrics  *Metrics
}

// NewManualService wires the locator and extraction pipeline together.
func NewManualService(locator *catalog.Locator, pipeline *extract.Pipeline, cacheTTL, timeout time.Duration, metrics *Metrics) *ManualService {
	return &ManualService{
		locator:  locator,
		pipeline: pipeline,
		cache:    gocache.New(cacheTTL, 10*time.Minute),
		timeout:  timeout,
		metrics:  metrics,
	}
}

// Find resolves a free-text product reference without extracting.
func (s *ManualService) Find(ctx context.Context, query string) (*catalog.ManualRecord, error) {
	return s.locator.Find(ctx, query)
}

// GetManualContent locates the manual for the product reference and returns
// its extracted text. Not-found outcomes (no catalog match, manual file
// missing) surface as catalog.ErrNotFound; callers render them as normal
// "I couldn't find that manual" content.
func (s *ManualService) GetManualContent(ctx context.Context, query string) (*ManualResult, error) {
	record, err := s.locator.Find(ctx, query)
	if err != nil {
		return nil, err
	}
	path, err := s.locator.ResolvePath(record)
	if err != nil {
		return nil, err
	}

	if cached, ok := s.cache.Get(path); ok {
		s.metrics.RecordManualCache(true)
		result := cached.(*ManualResult)
		out := *result
		out.FromCache = true
		return &out, nil
	}
	s.metrics.RecordManualCache(false)

	doc, err := s.extractWithTimeout(ctx, path)
	if err != nil {
		return nil, err
	}

	for _, page := range doc.Pages {
		s.metrics.RecordPageExtracted(page.UsedOCR)
	}
	if doc.Truncated {
		s.metrics.RecordTruncation("budget")
	}
	logging.WithDocument(slog.Default(), path, doc.PagesProcessed).Info("manual extracted",
		"chars", doc.CharCount, "ocr", doc.UsedOCR, "truncated", doc.Truncated)

	result := &ManualResult{
		Record:    *record,
		Content:   doc.Body,
		UsedOCR:   doc.UsedOCR,
		Truncated: doc.Truncated,
	}
	s.cache.Set(path, result, gocache.DefaultExpiration)
	return result, nil
}

// extractWithTimeout runs the pipeline on its own goroutine under the outer
// request bound. The pipeline yields between pages, so cancellation takes
// effect at the next page boundary; the caller stops waiting immediately.
func (s *ManualService) extractWithTimeout(ctx context.Context, path string) (*extract.ExtractedDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type outcome struct {
		doc *extract.ExtractedDocument
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		doc, err := s.pipeline.Extract(ctx, path)
		done <- outcome{doc, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("extraction failed for %s: %w", path, out.err)
		}
		return out.doc, nil
	case <-ctx.Done():
		log.Printf("⏱️ [MANUAL] Extraction of %s exceeded the %s request bound", path, s.timeout)
		return nil, ErrManualTimeout
	}
}

// InvalidateCache drops any cached extraction for the resolved path, e.g.
// after a manual file is replaced.
func (s *ManualService) InvalidateCache(record *catalog.ManualRecord) {
	if path, err := s.locator.ResolvePath(record); err == nil {
		s.cache.Delete(path)
	}
}
