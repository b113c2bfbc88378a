package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loandoc/pipeline/internal/config"
	"github.com/loandoc/pipeline/internal/geometry"
	"github.com/loandoc/pipeline/internal/models"
	"github.com/loandoc/pipeline/internal/paths"
)

type orchestratorFixture struct {
	orch     *Orchestrator
	store    *fakeStore
	objects  *fakeObjects
	locker   *fakeLocker
	reporter *fakeReporter
	engine   *fakeEngine
	doc      *models.Document
}

func newOrchestratorFixture(t *testing.T, pageCount int) *orchestratorFixture {
	t.Helper()
	doc := &models.Document{
		ID:            1,
		LoanID:        42,
		FileName:      "stack.pdf",
		FileExtension: "pdf",
		PageCount:     pageCount,
		Status:        models.StatusPendingManipulation,
	}
	f := &orchestratorFixture{
		store:    newFakeStore(doc),
		objects:  newFakeObjects(),
		locker:   newFakeLocker(),
		reporter: &fakeReporter{},
		engine:   &fakeEngine{},
		doc:      doc,
	}
	f.objects.blobs[paths.Document(doc.ID, paths.StageOriginal)] = encodeDoc(pageTokens(pageCount))
	f.orch = NewOrchestrator(f.store, f.objects, f.engine, f.locker, f.reporter, nil,
		config.LeadRangeManual, Options{LockTTL: time.Minute, RunTimeout: 30 * time.Second})
	return f
}

func TestOrchestratorNoopWhenNothingPending(t *testing.T) {
	f := newOrchestratorFixture(t, 3)

	err := f.orch.Run(context.Background(), f.doc.ID, "sess-1")
	require.NoError(t, err)

	assert.Empty(t, f.store.statuses(f.doc.ID), "an idle document never changes status")
	last := f.reporter.last()
	assert.Equal(t, models.ProgressCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, true, last.Result["noop"])
}

func TestOrchestratorFullRunPersistsThenFinalizes(t *testing.T) {
	f := newOrchestratorFixture(t, 5)
	f.store.pending = models.AnnotationSet{
		Redactions: []models.Redaction{{
			ID: "red-1", PageIndex: 0,
			Rect: geometry.Rect{X: 10, Y: 10, Width: 50, Height: 20},
		}},
		Rotations: []models.Rotation{{ID: "rot-1", PageIndex: 1, Angle: 90}},
		Deletions: []models.Deletion{{ID: "del-1", PageIndex: 4}},
	}

	err := f.orch.Run(context.Background(), f.doc.ID, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, []models.DocumentStatus{
		models.StatusProcessing,
		models.StatusProcessed,
	}, f.store.statuses(f.doc.ID))

	assert.Equal(t, []string{"red-1"}, f.store.appliedRedactions)
	assert.Equal(t, []string{"rot-1"}, f.store.appliedRotations)
	assert.Equal(t, []string{"del-1"}, f.store.appliedDeletions)
	assert.Equal(t, 4, f.store.docs[f.doc.ID].PageCount)
	assert.True(t, f.store.docs[f.doc.ID].Redacted)

	// The backup holds the pre-run bytes; original and processing hold the
	// manipulated bytes.
	backup, ok := f.objects.get(paths.Document(f.doc.ID, paths.StageBackup))
	require.True(t, ok)
	assert.Equal(t, encodeDoc(pageTokens(5)), backup)

	want := []string{"p0+R1", "p1+rot90", "p2", "p3"}
	original, ok := f.objects.get(paths.Document(f.doc.ID, paths.StageOriginal))
	require.True(t, ok)
	assert.Equal(t, want, decodeDoc(original))
	processing, ok := f.objects.get(paths.Document(f.doc.ID, paths.StageProcessing))
	require.True(t, ok)
	assert.Equal(t, want, decodeDoc(processing))

	last := f.reporter.last()
	assert.Equal(t, models.ProgressCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)
}

func TestOrchestratorProgressIsMonotonic(t *testing.T) {
	f := newOrchestratorFixture(t, 3)
	f.store.pending = models.AnnotationSet{
		Rotations: []models.Rotation{{ID: "rot-1", PageIndex: 0, Angle: 180}},
	}

	require.NoError(t, f.orch.Run(context.Background(), f.doc.ID, "sess-1"))

	prev := -1
	for _, u := range f.reporter.all() {
		assert.GreaterOrEqual(t, u.Progress, prev)
		prev = u.Progress
	}
	assert.Equal(t, 100, prev)
}

func TestOrchestratorLockContention(t *testing.T) {
	f := newOrchestratorFixture(t, 3)
	_, err := f.locker.Acquire(context.Background(), f.doc.ID, time.Minute)
	require.NoError(t, err)

	err = f.orch.Run(context.Background(), f.doc.ID, "sess-2")
	require.ErrorIs(t, err, ErrAlreadyProcessing)

	assert.Empty(t, f.store.statuses(f.doc.ID))
	last := f.reporter.last()
	assert.Equal(t, models.ProgressError, last.Status)
}

func TestOrchestratorReleasesLockAfterRun(t *testing.T) {
	f := newOrchestratorFixture(t, 3)

	require.NoError(t, f.orch.Run(context.Background(), f.doc.ID, "sess-1"))

	// A second run must be able to take the lock again.
	release, err := f.locker.Acquire(context.Background(), f.doc.ID, time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}

func TestOrchestratorRollsBackOnFailure(t *testing.T) {
	f := newOrchestratorFixture(t, 3)
	f.engine.failRedact = errors.New("raster failed")
	f.store.pending = models.AnnotationSet{
		Redactions: []models.Redaction{{
			ID: "red-1", PageIndex: 0,
			Rect: geometry.Rect{X: 1, Y: 1, Width: 5, Height: 5},
		}},
	}

	err := f.orch.Run(context.Background(), f.doc.ID, "sess-1")
	require.Error(t, err)

	assert.Equal(t, []models.DocumentStatus{
		models.StatusProcessing,
		models.StatusPendingManipulation,
	}, f.store.statuses(f.doc.ID))

	// Nothing was marked applied and the original bytes are untouched.
	assert.Empty(t, f.store.appliedRedactions)
	original, ok := f.objects.get(paths.Document(f.doc.ID, paths.StageOriginal))
	require.True(t, ok)
	assert.Equal(t, encodeDoc(pageTokens(3)), original)

	last := f.reporter.last()
	assert.Equal(t, models.ProgressError, last.Status)
	assert.NotEmpty(t, last.Error)
}

func TestOrchestratorBackupFailureRollsBack(t *testing.T) {
	f := newOrchestratorFixture(t, 3)
	f.store.pending = models.AnnotationSet{
		Rotations: []models.Rotation{{ID: "rot-1", PageIndex: 0, Angle: 90}},
	}
	delete(f.objects.blobs, paths.Document(f.doc.ID, paths.StageOriginal))

	err := f.orch.Run(context.Background(), f.doc.ID, "sess-1")
	require.Error(t, err)
	assert.Equal(t, []models.DocumentStatus{
		models.StatusProcessing,
		models.StatusPendingManipulation,
	}, f.store.statuses(f.doc.ID))
}

func TestOrchestratorRunTimeoutRollsBack(t *testing.T) {
	f := newOrchestratorFixture(t, 3)
	f.orch = NewOrchestrator(f.store, f.objects, f.engine, f.locker, f.reporter, nil,
		config.LeadRangeManual, Options{LockTTL: time.Minute, RunTimeout: 50 * time.Millisecond})
	f.engine.redactHook = func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.store.pending = models.AnnotationSet{
		Redactions: []models.Redaction{{
			ID: "red-1", PageIndex: 0,
			Rect: geometry.Rect{X: 1, Y: 1, Width: 5, Height: 5},
		}},
	}

	err := f.orch.Run(context.Background(), f.doc.ID, "sess-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, []models.DocumentStatus{
		models.StatusProcessing,
		models.StatusPendingManipulation,
	}, f.store.statuses(f.doc.ID))

	last := f.reporter.last()
	assert.Equal(t, models.ProgressError, last.Status)
	assert.Contains(t, last.Error, "exceeded maximum duration")
}

func TestOrchestratorRefusesDeletedDocument(t *testing.T) {
	f := newOrchestratorFixture(t, 3)
	f.doc.Deleted = true
	f.store.pending = models.AnnotationSet{
		Rotations: []models.Rotation{{ID: "rot-1", PageIndex: 0, Angle: 90}},
	}

	err := f.orch.Run(context.Background(), f.doc.ID, "sess-1")
	require.ErrorIs(t, err, ErrDocumentDeleted)
	assert.Empty(t, f.store.statuses(f.doc.ID))
}

func TestOrchestratorNoRollbackWhenDocumentMissing(t *testing.T) {
	f := newOrchestratorFixture(t, 3)

	err := f.orch.Run(context.Background(), 999, "sess-1")
	require.Error(t, err)
	// The failure precedes the Processing transition, so no status is ever
	// written, not even a rollback.
	assert.Empty(t, f.store.statuses(999))
	assert.Equal(t, models.ProgressError, f.reporter.last().Status)
}

func TestOrchestratorAllPagesDeletedRetiresDocument(t *testing.T) {
	f := newOrchestratorFixture(t, 2)
	f.store.pending = models.AnnotationSet{
		Deletions: []models.Deletion{
			{ID: "d0", PageIndex: 0},
			{ID: "d1", PageIndex: 1},
		},
	}

	err := f.orch.Run(context.Background(), f.doc.ID, "sess-1")
	require.NoError(t, err)

	doc := f.store.docs[f.doc.ID]
	assert.True(t, doc.Deleted)
	assert.Equal(t, models.StatusDeleted, doc.Status)
	assert.ElementsMatch(t, []string{"d0", "d1"}, f.store.appliedDeletions)

	// The stored bytes were never replaced with a zero-page document.
	original, ok := f.objects.get(paths.Document(f.doc.ID, paths.StageOriginal))
	require.True(t, ok)
	assert.Equal(t, encodeDoc(pageTokens(2)), original)

	last := f.reporter.last()
	assert.Equal(t, models.ProgressCompleted, last.Status)
	assert.Equal(t, true, last.Result["deleted"])
}

func TestOrchestratorSplitRetiresParent(t *testing.T) {
	f := newOrchestratorFixture(t, 6)
	f.store.pending = models.AnnotationSet{
		Breaks: []models.Break{
			{ID: "b3", PageIndex: 3, ClassificationID: 2, ClassificationName: "W-2"},
		},
	}

	err := f.orch.Run(context.Background(), f.doc.ID, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, []models.DocumentStatus{
		models.StatusProcessing,
		models.StatusObsolete,
	}, f.store.statuses(f.doc.ID))

	children := f.store.childDocs(f.doc.ID)
	require.Len(t, children, 2)

	last := f.reporter.last()
	assert.Equal(t, models.ProgressCompleted, last.Status)
	ids, ok := last.Result["childDocumentIds"].([]int64)
	require.True(t, ok)
	assert.Len(t, ids, 2)
}

func TestOrchestratorRenameOnlyFinalizesInPlace(t *testing.T) {
	f := newOrchestratorFixture(t, 4)
	f.store.pending = models.AnnotationSet{
		Breaks: []models.Break{
			{ID: "b0", PageIndex: 0, ClassificationID: 3, ClassificationName: "Promissory Note"},
		},
	}

	err := f.orch.Run(context.Background(), f.doc.ID, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, []models.DocumentStatus{
		models.StatusProcessing,
		models.StatusProduction,
	}, f.store.statuses(f.doc.ID))
	assert.Equal(t, f.doc.ID, f.store.linkedBreaks["b0"])
	assert.Empty(t, f.store.childDocs(f.doc.ID))
}

type fakeSuggester struct {
	name string
	seen [][]byte
}

func (s *fakeSuggester) SuggestClassification(ctx context.Context, firstPage []byte) (string, error) {
	s.seen = append(s.seen, firstPage)
	return s.name, nil
}

func TestOrchestratorSuggestsForGenericChildren(t *testing.T) {
	f := newOrchestratorFixture(t, 6)
	suggester := &fakeSuggester{name: "Bank Statement"}
	f.orch = NewOrchestrator(f.store, f.objects, f.engine, f.locker, f.reporter, suggester,
		config.LeadRangeManual, Options{LockTTL: time.Minute, RunTimeout: 30 * time.Second})
	f.store.pending = models.AnnotationSet{
		Breaks: []models.Break{
			{ID: "named", PageIndex: 2, ClassificationID: 2, ClassificationName: "W-2"},
			{ID: "generic", PageIndex: 4, ClassificationID: -1},
		},
	}

	err := f.orch.Run(context.Background(), f.doc.ID, "sess-1")
	require.NoError(t, err)

	// Only the generic child was classified; the named one was left alone.
	require.Len(t, suggester.seen, 1)
	assert.Len(t, f.store.autoNames, 1)
	for _, name := range f.store.autoNames {
		assert.Equal(t, "Bank Statement", name)
	}
}
