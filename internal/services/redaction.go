package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loandoc/pipeline/internal/geometry"
	"github.com/loandoc/pipeline/internal/models"
	"github.com/loandoc/pipeline/internal/pdf"
)

// RedactionResult is the outcome of applying a batch of redactions.
type RedactionResult struct {
	Doc        []byte
	AppliedIDs []string
	Warnings   []string
}

// RedactionProcessor paints opaque boxes over page regions and destroys the
// content beneath them. Affected pages leave the processor as rasters; no
// text or vector content under a box survives.
type RedactionProcessor struct {
	engine pdf.Engine
}

func NewRedactionProcessor(engine pdf.Engine) *RedactionProcessor {
	return &RedactionProcessor{engine: engine}
}

// Process applies every pending redaction it can and reports the rest as
// warnings. A bad page index or geometry skips that redaction, never the
// document.
func (p *RedactionProcessor) Process(ctx context.Context, doc []byte, redactions []models.Redaction) (*RedactionResult, error) {
	res := &RedactionResult{Doc: doc}

	sizes, err := p.engine.PageSizes(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("redaction: failed to read page sizes: %w", err)
	}

	boxes := map[int][]pdf.Box{}
	for _, r := range redactions {
		if r.Applied {
			// The orchestrator only hands over pending work; an applied
			// redaction slipping through must stay a no-op.
			continue
		}
		if r.PageIndex < 0 || r.PageIndex >= len(sizes) {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("redaction %s: page %d out of range [0, %d), skipped", r.ID, r.PageIndex, len(sizes)))
			continue
		}
		rect, err := geometry.Remap(r.Rect, r.DrawOrientation, sizes[r.PageIndex])
		if err != nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("redaction %s: %v, skipped", r.ID, err))
			continue
		}
		boxes[r.PageIndex] = append(boxes[r.PageIndex], pdf.Box{Rect: rect, Label: r.Label})
		res.AppliedIDs = append(res.AppliedIDs, r.ID)
	}

	if len(boxes) == 0 {
		return res, nil
	}

	out, err := p.engine.Redact(ctx, doc, boxes)
	if err != nil {
		return nil, fmt.Errorf("redaction: failed to apply boxes: %w", err)
	}
	res.Doc = out

	for _, w := range res.Warnings {
		slog.Warn("Redaction skipped.", "detail", w)
	}
	return res, nil
}
