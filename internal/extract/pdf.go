package extract

import (
	"errors"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
)

// ErrDocumentEncrypted is returned when a document cannot be opened even with
// an empty-password decrypt attempt. This is the only fatal per-document fault.
var ErrDocumentEncrypted = errors.New("document is encrypted and could not be decrypted")

// Document is a page-addressable source of text. The PDF reader implements it;
// tests substitute fakes.
type Document interface {
	NumPages() int
	// PageText returns the raw text layer of the zero-based page index.
	PageText(i int) (string, error)
	Close() error
}

type pdfDocument struct {
	file   *os.File
	reader *pdf.Reader
}

// OpenPDF opens the document at path. Encrypted documents get a single
// empty-password decrypt attempt before the open fails.
func OpenPDF(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat document: %w", err)
	}

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		// Retry once assuming an owner-locked document with no user password.
		reader, err = pdf.NewReaderEncrypted(f, info.Size(), func() string { return "" })
		if err != nil {
			f.Close()
			if errors.Is(err, pdf.ErrInvalidPassword) {
				return nil, fmt.Errorf("%w: %s", ErrDocumentEncrypted, path)
			}
			return nil, fmt.Errorf("failed to read document %s: %w", path, err)
		}
	}

	return &pdfDocument{file: f, reader: reader}, nil
}

func (d *pdfDocument) NumPages() int {
	return d.reader.NumPage()
}

func (d *pdfDocument) PageText(i int) (text string, err error) {
	// The underlying reader panics on malformed page content streams; a single
	// damaged page must not abort the whole document.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("page %d: text extraction panicked: %v", i, r)
		}
	}()

	page := d.reader.Page(i + 1) // ledongthuc/pdf pages are 1-based
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func (d *pdfDocument) Close() error {
	return d.file.Close()
}
