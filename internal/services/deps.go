// Package services contains the manipulation pipeline: the four annotation
// processors and the orchestrator that sequences them. All I/O goes through
// the narrow interfaces below so the pipeline is testable without GCP.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/loandoc/pipeline/internal/models"
)

// ErrAlreadyProcessing is returned when a run is requested for a document
// that is already locked by an in-flight run.
var ErrAlreadyProcessing = errors.New("document is already processing")

// ErrDocumentDeleted is returned when a run is requested for a retired
// document.
var ErrDocumentDeleted = errors.New("document is deleted")

// DocumentStore is the metadata side of the pipeline: document records,
// their pending annotations and the applied/linked bookkeeping.
type DocumentStore interface {
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	CreateDocument(ctx context.Context, doc *models.Document) (int64, error)
	DeleteDocument(ctx context.Context, id int64) error
	SetStatus(ctx context.Context, id int64, status models.DocumentStatus) error
	SetPageCount(ctx context.Context, id int64, pageCount int) error
	SetClassification(ctx context.Context, id int64, c models.Classification) error
	SetAutoClassification(ctx context.Context, id int64, name string) error
	MarkRedacted(ctx context.Context, id int64) error
	MarkDeleted(ctx context.Context, id int64) error

	PendingAnnotations(ctx context.Context, docID int64) (models.AnnotationSet, error)
	MarkRedactionsApplied(ctx context.Context, docID int64, ids []string) error
	MarkRotationsApplied(ctx context.Context, docID int64, ids []string) error
	MarkDeletionsApplied(ctx context.Context, docID int64, ids []string) error
	LinkBreak(ctx context.Context, docID int64, breakID string, resultDocID int64) error
	UnlinkBreak(ctx context.Context, docID int64, breakID string) error
}

// ObjectStore is the byte side of the pipeline, keyed by the paths package.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	UploadIfAbsent(ctx context.Context, key string, data []byte) error
	Copy(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, key string) error
}

// Locker grants the per-document exclusive lock for the duration of a run.
type Locker interface {
	Acquire(ctx context.Context, docID int64, ttl time.Duration) (func(context.Context) error, error)
}

// ProgressReporter delivers discrete progress updates keyed by session id.
type ProgressReporter interface {
	Report(ctx context.Context, u models.ProgressUpdate)
}

// Suggester proposes a classification for an unclassified document from its
// first page. Suggestions are best-effort and never fail a run.
type Suggester interface {
	SuggestClassification(ctx context.Context, firstPage []byte) (string, error)
}
