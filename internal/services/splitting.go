package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loandoc/pipeline/internal/config"
	"github.com/loandoc/pipeline/internal/models"
	"github.com/loandoc/pipeline/internal/paths"
	"github.com/loandoc/pipeline/internal/pdf"
)

// SplitRange is a contiguous page range [Start, End) owned by Break, or by
// no break for the implicit leading range inheriting the parent's
// classification.
type SplitRange struct {
	Start int
	End   int
	Break *models.Break
}

// ComputeSplitRanges turns sorted break points into contiguous,
// non-overlapping ranges whose union is exactly [0, pageCount). Breaks must
// be pending, in-range and unique by page index.
func ComputeSplitRanges(breaks []models.Break, pageCount int) []SplitRange {
	if len(breaks) == 0 {
		return nil
	}
	sorted := make([]models.Break, len(breaks))
	copy(sorted, breaks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PageIndex < sorted[j].PageIndex })

	var ranges []SplitRange
	if sorted[0].PageIndex > 0 {
		ranges = append(ranges, SplitRange{Start: 0, End: sorted[0].PageIndex})
	}
	for i := range sorted {
		end := pageCount
		if i+1 < len(sorted) {
			end = sorted[i+1].PageIndex
		}
		b := sorted[i]
		ranges = append(ranges, SplitRange{Start: b.PageIndex, End: end, Break: &b})
	}
	return ranges
}

// SplitChild is one document created by a split.
type SplitChild struct {
	ID      int64
	Generic bool
	Data    []byte
}

// SplitOutcome is the result of the splitting step.
type SplitOutcome struct {
	// RenameOnly means the single break at page 0 reclassified the document
	// in place; no children exist and the bytes were not altered.
	RenameOnly bool
	// ResultStatus is the parent's terminal status after a rename-only
	// outcome.
	ResultStatus models.DocumentStatus
	Children     []SplitChild
	Warnings     []string
}

// Split reports whether child documents were created.
func (o *SplitOutcome) Split() bool { return len(o.Children) > 0 }

// SplittingProcessor computes split ranges from breaks, creates child
// documents and links each break to its result. It is the only processor
// that persists on its own: children are durably stored before any break is
// linked, and a failed extraction aborts the whole step with nothing linked.
type SplittingProcessor struct {
	engine     pdf.Engine
	store      DocumentStore
	objects    ObjectStore
	leadSource config.LeadRangeSource
}

func NewSplittingProcessor(engine pdf.Engine, store DocumentStore, objects ObjectStore, leadSource config.LeadRangeSource) *SplittingProcessor {
	return &SplittingProcessor{engine: engine, store: store, objects: objects, leadSource: leadSource}
}

// Process applies the pending breaks to the document.
func (p *SplittingProcessor) Process(ctx context.Context, doc *models.Document, data []byte, breaks []models.Break) (*SplitOutcome, error) {
	out := &SplitOutcome{}

	pageCount, err := p.engine.PageCount(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("splitting: failed to get page count: %w", err)
	}

	seen := map[int]bool{}
	var pending []models.Break
	for _, b := range breaks {
		if b.Processed() {
			// Already consumed into a result document; never reprocess.
			continue
		}
		if b.PageIndex < 0 || b.PageIndex >= pageCount {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("break %s: page %d out of range [0, %d), skipped", b.ID, b.PageIndex, pageCount))
			continue
		}
		if seen[b.PageIndex] {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("break %s: duplicate break at page %d, skipped", b.ID, b.PageIndex))
			continue
		}
		seen[b.PageIndex] = true
		pending = append(pending, b)
	}
	if len(pending) == 0 {
		return out, nil
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].PageIndex < pending[j].PageIndex })

	// A single break at page 0 reclassifies the whole document in place.
	// A single break anywhere else is a real split producing two ranges.
	if len(pending) == 1 && pending[0].PageIndex == 0 {
		return p.renameOnly(ctx, doc, pending[0], out)
	}

	ranges := ComputeSplitRanges(pending, pageCount)

	// Extract every range before writing anything remote, so a corrupt
	// range aborts the whole step with no partial children.
	type childWork struct {
		rng  SplitRange
		data []byte
		doc  models.Document
	}
	work := make([]childWork, 0, len(ranges))
	for _, rng := range ranges {
		childData, err := p.engine.ExtractRange(ctx, data, rng.Start, rng.End)
		if err != nil {
			return nil, fmt.Errorf("splitting: failed to extract pages [%d, %d): %w", rng.Start, rng.End, err)
		}
		child := models.Document{
			LoanID:        doc.LoanID,
			ParentID:      doc.ID,
			FileName:      doc.FileName,
			FileExtension: doc.FileExtension,
			PageCount:     rng.End - rng.Start,
			CreatedAt:     time.Now(),
		}
		p.classifyChild(&child, doc, rng.Break)
		work = append(work, childWork{rng: rng, data: childData, doc: child})
	}

	created := make([]int64, 0, len(work))
	var linked []string
	cleanup := func() {
		// Unlink first so no break points at a child about to be deleted;
		// an orphaned link would hide the break from the pending set forever.
		for _, breakID := range linked {
			if err := p.store.UnlinkBreak(ctx, doc.ID, breakID); err != nil {
				slog.Warn("Failed to unlink break during cleanup.", "breakId", breakID, "error", err)
			}
		}
		for _, id := range created {
			for _, stage := range paths.Stages {
				if err := p.objects.Delete(ctx, paths.Document(id, stage)); err != nil {
					slog.Warn("Failed to clean up child object.", "childId", id, "stage", stage, "error", err)
				}
			}
			if err := p.store.DeleteDocument(ctx, id); err != nil {
				slog.Warn("Failed to clean up child record.", "childId", id, "error", err)
			}
		}
	}

	for i := range work {
		id, err := p.store.CreateDocument(ctx, &work[i].doc)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("splitting: failed to create child document: %w", err)
		}
		work[i].doc.ID = id
		created = append(created, id)
	}

	// Children are written to every stage path under their own id. The
	// writes are conditional on absence so a replayed split that already
	// persisted a child does not rewrite it.
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(8)
	for i := range work {
		child := work[i]
		for _, stage := range paths.Stages {
			stage := stage
			eg.Go(func() error {
				key := paths.Document(child.doc.ID, stage)
				if err := p.objects.UploadIfAbsent(gctx, key, child.data); err != nil {
					return fmt.Errorf("child %d: %w", child.doc.ID, err)
				}
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		cleanup()
		return nil, fmt.Errorf("splitting: failed to persist children: %w", err)
	}

	// Only now, with every child durable, link breaks to their results.
	for _, c := range work {
		if c.rng.Break == nil {
			continue
		}
		if err := p.store.LinkBreak(ctx, doc.ID, c.rng.Break.ID, c.doc.ID); err != nil {
			cleanup()
			return nil, fmt.Errorf("splitting: failed to link break %s: %w", c.rng.Break.ID, err)
		}
		linked = append(linked, c.rng.Break.ID)
	}

	for _, c := range work {
		out.Children = append(out.Children, SplitChild{
			ID:      c.doc.ID,
			Generic: c.rng.Break != nil && c.rng.Break.Classification().IsGeneric(),
			Data:    c.data,
		})
	}
	return out, nil
}

func (p *SplittingProcessor) renameOnly(ctx context.Context, doc *models.Document, b models.Break, out *SplitOutcome) (*SplitOutcome, error) {
	cls := b.Classification()
	if err := p.store.SetClassification(ctx, doc.ID, cls); err != nil {
		return nil, fmt.Errorf("splitting: failed to reclassify document: %w", err)
	}
	if err := p.store.LinkBreak(ctx, doc.ID, b.ID, doc.ID); err != nil {
		return nil, fmt.Errorf("splitting: failed to link rename-only break: %w", err)
	}
	out.RenameOnly = true
	if cls.IsGeneric() {
		out.ResultStatus = models.StatusNeedsWork
	} else {
		out.ResultStatus = models.StatusProduction
	}
	return out, nil
}

// classifyChild sets a child's classification and status from its owning
// break, or inherits from the parent for the implicit leading range.
func (p *SplittingProcessor) classifyChild(child *models.Document, parent *models.Document, b *models.Break) {
	if b == nil {
		if p.leadSource == config.LeadRangeAuto && parent.AutoClassificationName != "" {
			child.AutoClassificationName = parent.AutoClassificationName
			child.Status = models.StatusNeedsWork
			return
		}
		if parent.ClassificationID != 0 {
			child.ClassificationID = parent.ClassificationID
			child.ClassificationName = parent.ClassificationName
			child.Status = models.StatusProduction
			return
		}
		child.AutoClassificationName = parent.AutoClassificationName
		child.Status = models.StatusNeedsWork
		return
	}
	if cls := b.Classification(); !cls.IsGeneric() {
		child.ClassificationID = cls.SentinelID()
		child.ClassificationName = cls.Name()
		child.Status = models.StatusProduction
		return
	}
	child.Status = models.StatusNeedsWork
}
