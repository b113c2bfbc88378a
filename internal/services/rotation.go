package services

import (
	"context"
	"fmt"

	"github.com/loandoc/pipeline/internal/geometry"
	"github.com/loandoc/pipeline/internal/models"
	"github.com/loandoc/pipeline/internal/pdf"
)

// RotationResult is the outcome of applying a batch of page rotations.
type RotationResult struct {
	Doc        []byte
	AppliedIDs []string
	Warnings   []string
}

// RotationProcessor sets page rotation metadata. Rotation affects display
// orientation only; geometry downstream stays in the content frame.
type RotationProcessor struct {
	engine pdf.Engine
}

func NewRotationProcessor(engine pdf.Engine) *RotationProcessor {
	return &RotationProcessor{engine: engine}
}

// Process applies each valid rotation and skips invalid angles or page
// indices per item, surfacing them as warnings.
func (p *RotationProcessor) Process(ctx context.Context, doc []byte, rotations []models.Rotation) (*RotationResult, error) {
	res := &RotationResult{Doc: doc}

	pageCount, err := p.engine.PageCount(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("rotation: failed to get page count: %w", err)
	}

	angles := map[int]int{}
	for _, r := range rotations {
		if r.Applied {
			continue
		}
		if !geometry.ValidOrientation(r.Angle) {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("rotation %s: invalid angle %d, skipped", r.ID, r.Angle))
			continue
		}
		if r.PageIndex < 0 || r.PageIndex >= pageCount {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("rotation %s: page %d out of range [0, %d), skipped", r.ID, r.PageIndex, pageCount))
			continue
		}
		angles[r.PageIndex] = r.Angle
		res.AppliedIDs = append(res.AppliedIDs, r.ID)
	}

	if len(angles) == 0 {
		return res, nil
	}

	out, err := p.engine.Rotate(ctx, doc, angles)
	if err != nil {
		return nil, fmt.Errorf("rotation: failed to rotate pages: %w", err)
	}
	res.Doc = out
	return res, nil
}
