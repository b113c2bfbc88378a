package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loandoc/pipeline/internal/config"
	"github.com/loandoc/pipeline/internal/lock"
	"github.com/loandoc/pipeline/internal/models"
	"github.com/loandoc/pipeline/internal/paths"
	"github.com/loandoc/pipeline/internal/pdf"
)

// Options bounds a pipeline run.
type Options struct {
	LockTTL    time.Duration
	RunTimeout time.Duration
}

// Orchestrator drives a document through the manipulation pipeline:
// Redaction → Rotation → Deletion → Splitting, in that order. Redaction runs
// first because rasterization changes the page representation the later
// steps act on; splitting runs last because it terminates the pipeline.
type Orchestrator struct {
	store     DocumentStore
	objects   ObjectStore
	engine    pdf.Engine
	locker    Locker
	reporter  ProgressReporter
	suggester Suggester
	opts      Options

	redaction *RedactionProcessor
	rotation  *RotationProcessor
	deletion  *DeletionProcessor
	splitting *SplittingProcessor
}

// NewOrchestrator wires the four processors. suggester may be nil.
func NewOrchestrator(store DocumentStore, objects ObjectStore, engine pdf.Engine, locker Locker, reporter ProgressReporter, suggester Suggester, leadSource config.LeadRangeSource, opts Options) *Orchestrator {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 15 * time.Minute
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 10 * time.Minute
	}
	return &Orchestrator{
		store:     store,
		objects:   objects,
		engine:    engine,
		locker:    locker,
		reporter:  reporter,
		suggester: suggester,
		opts:      opts,
		redaction: NewRedactionProcessor(engine),
		rotation:  NewRotationProcessor(engine),
		deletion:  NewDeletionProcessor(engine),
		splitting: NewSplittingProcessor(engine, store, objects, leadSource),
	}
}

// Start acquires the document lock and launches the run asynchronously
// (fire-and-poll). On contention it fails fast with ErrAlreadyProcessing;
// callers poll the session for the outcome.
func (o *Orchestrator) Start(ctx context.Context, docID int64, sessionID string) error {
	release, err := o.acquire(ctx, docID, sessionID)
	if err != nil {
		return err
	}
	go func() {
		_ = o.execute(context.WithoutCancel(ctx), docID, sessionID, release)
	}()
	return nil
}

// Run executes the pipeline synchronously. Used by tests and operational
// retries; Start is the service entry point.
func (o *Orchestrator) Run(ctx context.Context, docID int64, sessionID string) error {
	release, err := o.acquire(ctx, docID, sessionID)
	if err != nil {
		return err
	}
	return o.execute(ctx, docID, sessionID, release)
}

func (o *Orchestrator) acquire(ctx context.Context, docID int64, sessionID string) (func(context.Context) error, error) {
	release, err := o.locker.Acquire(ctx, docID, o.opts.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrAlreadyLocked) {
			o.reporter.Report(ctx, models.ProgressUpdate{
				SessionID:  sessionID,
				DocumentID: docID,
				Status:     models.ProgressError,
				Message:    "already processing",
				Error:      ErrAlreadyProcessing.Error(),
			})
			return nil, ErrAlreadyProcessing
		}
		return nil, fmt.Errorf("failed to lock document %d: %w", docID, err)
	}
	return release, nil
}

func (o *Orchestrator) execute(ctx context.Context, docID int64, sessionID string, release func(context.Context) error) error {
	logCtx := slog.With("documentId", docID, "sessionId", sessionID)
	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := release(relCtx); err != nil {
			logCtx.Error("Failed to release document lock.", "error", err)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, o.opts.RunTimeout)
	defer cancel()

	var transitioned bool
	err := o.run(runCtx, logCtx, docID, sessionID, &transitioned)
	if err == nil {
		return nil
	}

	message := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		message = fmt.Sprintf("run exceeded maximum duration of %s", o.opts.RunTimeout)
	}
	logCtx.Error("Manipulation run failed.", "error", err)

	// The run context may already be dead; roll back on a fresh one so the
	// document is never left in Processing.
	rbCtx, rbCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer rbCancel()
	if transitioned {
		if serr := o.store.SetStatus(rbCtx, docID, models.StatusPendingManipulation); serr != nil {
			logCtx.Error("CRITICAL: Failed to roll document back to PendingManipulation.", "error", serr)
		}
	}
	o.reporter.Report(rbCtx, models.ProgressUpdate{
		SessionID:  sessionID,
		DocumentID: docID,
		Status:     models.ProgressError,
		Message:    message,
		Error:      message,
	})
	return err
}

func (o *Orchestrator) run(ctx context.Context, logCtx *slog.Logger, docID int64, sessionID string, transitioned *bool) error {
	report := func(status models.ProgressStatus, progress int, message string, result map[string]any) {
		o.reporter.Report(ctx, models.ProgressUpdate{
			SessionID:  sessionID,
			DocumentID: docID,
			Status:     status,
			Progress:   progress,
			Message:    message,
			Result:     result,
		})
	}

	report(models.ProgressStarting, 0, "loading document", nil)
	doc, err := o.store.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	if doc.Deleted {
		return fmt.Errorf("document %d: %w", docID, ErrDocumentDeleted)
	}
	anns, err := o.store.PendingAnnotations(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to load pending annotations: %w", err)
	}
	if anns.Empty() {
		logCtx.Info("No pending annotations. Nothing to do.")
		report(models.ProgressCompleted, 100, "no pending annotations", map[string]any{"noop": true})
		return nil
	}

	if err := o.store.SetStatus(ctx, docID, models.StatusProcessing); err != nil {
		return fmt.Errorf("failed to transition document to Processing: %w", err)
	}
	*transitioned = true

	report(models.ProgressStarting, 5, "backing up document", nil)
	originalKey := paths.Document(docID, paths.StageOriginal)
	if err := o.objects.Copy(ctx, originalKey, paths.Document(docID, paths.StageBackup)); err != nil {
		return fmt.Errorf("failed to back up document: %w", err)
	}
	data, err := o.objects.Download(ctx, originalKey)
	if err != nil {
		return fmt.Errorf("failed to download document: %w", err)
	}

	var warnings []string
	var appliedRedactions, appliedRotations, appliedDeletions []string
	newPageCount := -1

	if len(anns.Redactions) > 0 {
		report(models.ProgressProcessing, 25, "applying redactions", nil)
		res, err := o.redaction.Process(ctx, data, anns.Redactions)
		if err != nil {
			return err
		}
		data = res.Doc
		warnings = append(warnings, res.Warnings...)
		appliedRedactions = res.AppliedIDs
	}

	if len(anns.Rotations) > 0 {
		report(models.ProgressProcessing, 45, "applying rotations", nil)
		res, err := o.rotation.Process(ctx, data, anns.Rotations)
		if err != nil {
			return err
		}
		data = res.Doc
		warnings = append(warnings, res.Warnings...)
		appliedRotations = res.AppliedIDs
	}

	if len(anns.Deletions) > 0 {
		report(models.ProgressProcessing, 60, "applying deletions", nil)
		res, err := o.deletion.Process(ctx, data, anns.Deletions)
		if err != nil {
			return err
		}
		warnings = append(warnings, res.Warnings...)
		if res.AllDeleted {
			// Never produce a zero-page document: retire the record and
			// leave the bytes untouched.
			if err := o.store.MarkDeletionsApplied(ctx, docID, res.AppliedIDs); err != nil {
				return fmt.Errorf("failed to mark deletions applied: %w", err)
			}
			if err := o.store.MarkDeleted(ctx, docID); err != nil {
				return fmt.Errorf("failed to mark document deleted: %w", err)
			}
			logCtx.Info("All pages deleted. Document retired.")
			report(models.ProgressCompleted, 100, "all pages deleted; document retired",
				map[string]any{"deleted": true, "warnings": warnings})
			return nil
		}
		data = res.Doc
		appliedDeletions = res.AppliedIDs
		newPageCount = res.NewPageCount
	}

	var split *SplitOutcome
	if len(anns.Breaks) > 0 {
		report(models.ProgressProcessing, 80, "splitting document", nil)
		split, err = o.splitting.Process(ctx, doc, data, anns.Breaks)
		if err != nil {
			return err
		}
		warnings = append(warnings, split.Warnings...)
	}

	if split != nil && split.Split() {
		// Children hold the content now; the parent's stored bytes stay as
		// they were and the record is retired.
		if err := o.markApplied(ctx, docID, appliedRedactions, appliedRotations, appliedDeletions); err != nil {
			return err
		}
		if err := o.store.SetStatus(ctx, docID, models.StatusObsolete); err != nil {
			return fmt.Errorf("failed to mark document obsolete: %w", err)
		}
		o.suggestChildren(ctx, logCtx, split)
		ids := make([]int64, len(split.Children))
		for i, c := range split.Children {
			ids[i] = c.ID
		}
		logCtx.Info("Manipulation complete: document split.", "childCount", len(ids))
		report(models.ProgressCompleted, 100, fmt.Sprintf("split into %d documents", len(ids)),
			map[string]any{"childDocumentIds": ids, "warnings": warnings})
		return nil
	}

	report(models.ProgressProcessing, 90, "persisting document", nil)
	processingKey := paths.Document(docID, paths.StageProcessing)
	if err := o.objects.Upload(ctx, processingKey, data); err != nil {
		return fmt.Errorf("failed to persist processed bytes: %w", err)
	}
	if err := o.objects.Copy(ctx, processingKey, originalKey); err != nil {
		return fmt.Errorf("failed to promote processed bytes: %w", err)
	}

	// Byte state is durable; only now advertise applied flags and status.
	if err := o.markApplied(ctx, docID, appliedRedactions, appliedRotations, appliedDeletions); err != nil {
		return err
	}
	if newPageCount >= 0 {
		if err := o.store.SetPageCount(ctx, docID, newPageCount); err != nil {
			return fmt.Errorf("failed to persist page count: %w", err)
		}
	}
	if len(appliedRedactions) > 0 {
		if err := o.store.MarkRedacted(ctx, docID); err != nil {
			return fmt.Errorf("failed to flag document redacted: %w", err)
		}
	}

	status := models.StatusProcessed
	result := map[string]any{"warnings": warnings}
	if split != nil && split.RenameOnly {
		status = split.ResultStatus
		result["renameOnly"] = true
	}
	if err := o.store.SetStatus(ctx, docID, status); err != nil {
		return fmt.Errorf("failed to finalize document status: %w", err)
	}
	logCtx.Info("Manipulation complete.", "status", status)
	report(models.ProgressCompleted, 100, "manipulation complete", result)
	return nil
}

func (o *Orchestrator) markApplied(ctx context.Context, docID int64, redactions, rotations, deletions []string) error {
	if len(redactions) > 0 {
		if err := o.store.MarkRedactionsApplied(ctx, docID, redactions); err != nil {
			return fmt.Errorf("failed to mark redactions applied: %w", err)
		}
	}
	if len(rotations) > 0 {
		if err := o.store.MarkRotationsApplied(ctx, docID, rotations); err != nil {
			return fmt.Errorf("failed to mark rotations applied: %w", err)
		}
	}
	if len(deletions) > 0 {
		if err := o.store.MarkDeletionsApplied(ctx, docID, deletions); err != nil {
			return fmt.Errorf("failed to mark deletions applied: %w", err)
		}
	}
	return nil
}

// suggestChildren asks the classifier for a label for each generic child.
// Best-effort: a failed suggestion never fails the run.
func (o *Orchestrator) suggestChildren(ctx context.Context, logCtx *slog.Logger, split *SplitOutcome) {
	if o.suggester == nil {
		return
	}
	for _, c := range split.Children {
		if !c.Generic {
			continue
		}
		firstPage, err := o.engine.ExtractRange(ctx, c.Data, 0, 1)
		if err != nil {
			logCtx.Warn("Failed to extract first page for classification suggestion.", "childId", c.ID, "error", err)
			continue
		}
		name, err := o.suggester.SuggestClassification(ctx, firstPage)
		if err != nil || name == "" {
			logCtx.Warn("Classification suggestion unavailable.", "childId", c.ID, "error", err)
			continue
		}
		if err := o.store.SetAutoClassification(ctx, c.ID, name); err != nil {
			logCtx.Warn("Failed to store classification suggestion.", "childId", c.ID, "error", err)
		}
	}
}
