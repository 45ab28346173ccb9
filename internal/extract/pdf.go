// Package extract pulls plain text out of PDF documents page by page.
//
// Extraction is deliberately forgiving: a page that cannot be parsed is
// skipped, and a document that cannot be parsed at all yields no text rather
// than an error. Callers treat empty output as "nothing extracted" and
// degrade accordingly.
package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// MaxPages bounds generic text extraction.
	MaxPages = 100
	// MaxPagesSummary bounds the summarization path, kept low so page-by-page
	// model calls finish in reasonable time.
	MaxPagesSummary = 15
	// MaxPagesIndex bounds the knowledge-base indexing path.
	MaxPagesIndex = 200

	// maxTextSize caps concatenated output.
	maxTextSize = 5 << 20 // 5MB

	truncationMarker = "\n\n[Text truncated due to size limits...]"
)

// Page is the extracted text of a single document page. Number is 1-based
// and refers to the page's position in the original document, so gaps appear
// where unreadable or empty pages were skipped.
type Page struct {
	Number int
	Text   string
}

// Pages extracts per-page text from the raw bytes of a PDF, visiting at most
// maxPages pages. Pages that fail to parse or contain no text are skipped.
// An unparseable document returns nil.
func Pages(doc []byte, maxPages int) []Page {
	if maxPages <= 0 {
		maxPages = MaxPages
	}

	reader, err := openReader(doc)
	if err != nil {
		slog.Warn("unparseable document", "error", err)
		return nil
	}

	total := reader.NumPage()
	pages := make([]Page, 0, min(total, maxPages))
	for i := 1; i <= total && i <= maxPages; i++ {
		text, err := pageText(reader, i)
		if err != nil {
			slog.Debug("skipping unreadable page", "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages
}

// Text extracts the document's text with pages separated by a blank line.
// Output beyond the size cap is truncated with a marker appended. The same
// degraded-case contract as Pages applies: unreadable input yields "".
func Text(doc []byte, maxPages int) string {
	pages := Pages(doc, maxPages)
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Text
	}

	result := strings.Join(parts, "\n\n")
	if len(result) > maxTextSize {
		result = result[:maxTextSize] + truncationMarker
	}
	return result
}

// openReader guards against panics inside the pdf library on malformed input.
func openReader(doc []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader, err = nil, fmt.Errorf("pdf reader panic: %v", r)
		}
	}()
	return pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
}

// pageText extracts one page's plain text, converting library panics on
// malformed page content into errors so a bad page never aborts the document.
func pageText(reader *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d panic: %v", n, r)
		}
	}()

	page := reader.Page(n)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d is null", n)
	}
	return page.GetPlainText(nil)
}
