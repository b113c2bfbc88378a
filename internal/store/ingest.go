package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/loandoc/pipeline/internal/models"
)

// SaveAnnotations persists one annotation batch into the document's
// subcollections. Records carrying an id upsert the existing annotation;
// records without one are created. Breaks that already produced a result
// document are immutable and reject any further edit.
func (s *Store) SaveAnnotations(ctx context.Context, batch models.AnnotationBatch) error {
	ref := s.docRef(batch.DocumentID)
	now := time.Now()

	for _, r := range batch.Redactions {
		r.CreatedAt = pickTime(r.CreatedAt, now)
		if err := s.upsert(ctx, ref.Collection(colRedactions), r.ID, r); err != nil {
			return fmt.Errorf("failed to save redaction: %w", err)
		}
	}
	for _, r := range batch.Rotations {
		r.CreatedAt = pickTime(r.CreatedAt, now)
		if err := s.upsert(ctx, ref.Collection(colRotations), r.ID, r); err != nil {
			return fmt.Errorf("failed to save rotation: %w", err)
		}
	}
	for _, d := range batch.Deletions {
		d.CreatedAt = pickTime(d.CreatedAt, now)
		if err := s.upsert(ctx, ref.Collection(colDeletions), d.ID, d); err != nil {
			return fmt.Errorf("failed to save deletion: %w", err)
		}
	}
	for _, b := range batch.Breaks {
		b.CreatedAt = pickTime(b.CreatedAt, now)
		b.Descriptor = models.BuildBreakDescriptor(b.ClassificationName, b.ClassificationID, b.Date, b.Comments)
		if err := s.saveBreak(ctx, ref.Collection(colBreaks), b); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, col *firestore.CollectionRef, id string, data any) error {
	doc := col.NewDoc()
	if id != "" {
		doc = col.Doc(id)
	}
	_, err := doc.Set(ctx, data)
	return err
}

func (s *Store) saveBreak(ctx context.Context, col *firestore.CollectionRef, b models.Break) error {
	if b.ID == "" {
		if _, err := col.NewDoc().Set(ctx, b); err != nil {
			return fmt.Errorf("failed to save break: %w", err)
		}
		return nil
	}
	ref := col.Doc(b.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var existing models.Break
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			if existing.Processed() {
				return fmt.Errorf("break %s already produced document %d and cannot be edited", b.ID, existing.ResultDocumentID)
			}
		case status.Code(err) == codes.NotFound:
			// New break supplied with a client-chosen id.
		default:
			return err
		}
		return tx.Set(ref, b)
	})
	if err != nil {
		return fmt.Errorf("failed to save break %s: %w", b.ID, err)
	}
	return nil
}

func pickTime(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}
