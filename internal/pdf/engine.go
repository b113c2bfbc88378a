// Package pdf provides the page-level document engine the processors run
// on. The Engine interface keeps the pipeline testable; CPUEngine is the
// production implementation backed by pdfcpu and mupdf.
package pdf

import (
	"context"

	"github.com/loandoc/pipeline/internal/geometry"
)

// Box is an opaque redaction box in page-space coordinates, with an
// optional label painted over the fill.
type Box struct {
	Rect  geometry.Rect
	Label string
}

// Engine performs page-level operations on PDF byte buffers. Page indices
// are 0-based throughout.
type Engine interface {
	// PageCount returns the number of pages in doc.
	PageCount(ctx context.Context, doc []byte) (int, error)

	// PageSizes returns the media box dimensions of every page, in points.
	PageSizes(ctx context.Context, doc []byte) ([]geometry.Size, error)

	// Redact paints the given boxes and rasterizes every affected page so
	// that no text or vector content under a box survives in the output.
	// Unaffected pages are left untouched.
	Redact(ctx context.Context, doc []byte, boxes map[int][]Box) ([]byte, error)

	// Rotate sets the display rotation metadata of the given pages.
	Rotate(ctx context.Context, doc []byte, angles map[int]int) ([]byte, error)

	// RemovePages removes the given pages. Callers are responsible for
	// never removing every page.
	RemovePages(ctx context.Context, doc []byte, pages []int) ([]byte, error)

	// ExtractRange returns a new document holding pages [start, end).
	ExtractRange(ctx context.Context, doc []byte, start, end int) ([]byte, error)
}
