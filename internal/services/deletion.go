package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/loandoc/pipeline/internal/models"
	"github.com/loandoc/pipeline/internal/pdf"
)

// DeletionResult is the outcome of applying a batch of page deletions.
type DeletionResult struct {
	Doc          []byte
	AppliedIDs   []string
	Warnings     []string
	NewPageCount int
	// AllDeleted means every page was marked for deletion. No zero-page
	// document is produced; Doc holds the original bytes and the document
	// must be retired by the caller.
	AllDeleted bool
}

// DeletionProcessor removes pages and recomputes the page count.
type DeletionProcessor struct {
	engine pdf.Engine
}

func NewDeletionProcessor(engine pdf.Engine) *DeletionProcessor {
	return &DeletionProcessor{engine: engine}
}

// Process removes the valid target pages, highest index first so earlier
// removals never invalidate later indices. Out-of-range targets are skipped
// with a warning.
func (p *DeletionProcessor) Process(ctx context.Context, doc []byte, deletions []models.Deletion) (*DeletionResult, error) {
	res := &DeletionResult{Doc: doc}

	pageCount, err := p.engine.PageCount(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("deletion: failed to get page count: %w", err)
	}
	res.NewPageCount = pageCount

	targets := map[int]bool{}
	for _, d := range deletions {
		if d.Applied {
			continue
		}
		if d.PageIndex < 0 || d.PageIndex >= pageCount {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("deletion %s: page %d out of range [0, %d), skipped", d.ID, d.PageIndex, pageCount))
			continue
		}
		targets[d.PageIndex] = true
		res.AppliedIDs = append(res.AppliedIDs, d.ID)
	}

	if len(targets) == 0 {
		return res, nil
	}

	if len(targets) == pageCount {
		res.AllDeleted = true
		return res, nil
	}

	pages := make([]int, 0, len(targets))
	for p := range targets {
		pages = append(pages, p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(pages)))

	out, err := p.engine.RemovePages(ctx, doc, pages)
	if err != nil {
		return nil, fmt.Errorf("deletion: failed to remove pages %v: %w", pages, err)
	}
	res.Doc = out
	res.NewPageCount = pageCount - len(pages)
	return res, nil
}
