// Package store implements the pipeline's metadata interfaces on Firestore.
// Documents are keyed by an int64 id allocated from a counter document;
// annotations live in per-document subcollections.
package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/loandoc/pipeline/internal/models"
)

const (
	colRedactions = "redactions"
	colRotations  = "rotations"
	colDeletions  = "deletions"
	colBreaks     = "breaks"

	countersCollection  = "counters"
	documentsCounterDoc = "documents"
)

// Store holds the Firestore client and collection names.
type Store struct {
	client    *firestore.Client
	documents string
	sessions  string
}

// New creates a Store over the given collections.
func New(client *firestore.Client, documentsCollection, sessionsCollection string) *Store {
	return &Store{client: client, documents: documentsCollection, sessions: sessionsCollection}
}

func (s *Store) docRef(id int64) *firestore.DocumentRef {
	return s.client.Collection(s.documents).Doc(strconv.FormatInt(id, 10))
}

// GetDocument loads one document record.
func (s *Store) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	snap, err := s.docRef(id).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %d: %w", id, err)
	}
	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %d: %w", id, err)
	}
	doc.ID = id
	return &doc, nil
}

// CreateDocument allocates the next document id from the counter and writes
// the record, both in one transaction.
func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) (int64, error) {
	counter := s.client.Collection(countersCollection).Doc(documentsCounterDoc)
	var id int64
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		next := int64(1)
		snap, err := tx.Get(counter)
		switch {
		case err == nil:
			v, err := snap.DataAt("next")
			if err != nil {
				return fmt.Errorf("failed to read document counter: %w", err)
			}
			next = v.(int64)
		case status.Code(err) == codes.NotFound:
			// First document ever: the counter starts here.
		default:
			return fmt.Errorf("failed to load document counter: %w", err)
		}
		id = next
		if err := tx.Set(counter, map[string]any{"next": next + 1}); err != nil {
			return err
		}
		return tx.Set(s.docRef(id), doc)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create document: %w", err)
	}
	return id, nil
}

// DeleteDocument removes a document record. Only the splitting cleanup path
// uses this; documents are otherwise retired, never deleted.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	if _, err := s.docRef(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	return nil
}

func (s *Store) updateDocument(ctx context.Context, id int64, updates []firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: time.Now()})
	if _, err := s.docRef(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update document %d: %w", id, err)
	}
	return nil
}

// SetStatus transitions the document's lifecycle status.
func (s *Store) SetStatus(ctx context.Context, id int64, st models.DocumentStatus) error {
	return s.updateDocument(ctx, id, []firestore.Update{{Path: "status", Value: st}})
}

// SetPageCount persists a recomputed page count.
func (s *Store) SetPageCount(ctx context.Context, id int64, pageCount int) error {
	return s.updateDocument(ctx, id, []firestore.Update{{Path: "pageCount", Value: pageCount}})
}

// SetClassification sets the manual classification; the Generic variant
// clears it.
func (s *Store) SetClassification(ctx context.Context, id int64, c models.Classification) error {
	if c.IsGeneric() {
		return s.updateDocument(ctx, id, []firestore.Update{
			{Path: "classificationId", Value: firestore.Delete},
			{Path: "classificationName", Value: firestore.Delete},
		})
	}
	return s.updateDocument(ctx, id, []firestore.Update{
		{Path: "classificationId", Value: c.SentinelID()},
		{Path: "classificationName", Value: c.Name()},
	})
}

// SetAutoClassification stores a suggested classification name.
func (s *Store) SetAutoClassification(ctx context.Context, id int64, name string) error {
	return s.updateDocument(ctx, id, []firestore.Update{{Path: "autoClassificationName", Value: name}})
}

// MarkRedacted flags the document as carrying applied redactions.
func (s *Store) MarkRedacted(ctx context.Context, id int64) error {
	return s.updateDocument(ctx, id, []firestore.Update{{Path: "redacted", Value: true}})
}

// MarkDeleted retires a document whose every page was deleted.
func (s *Store) MarkDeleted(ctx context.Context, id int64) error {
	return s.updateDocument(ctx, id, []firestore.Update{
		{Path: "deleted", Value: true},
		{Path: "status", Value: models.StatusDeleted},
	})
}

func (s *Store) eachDoc(ctx context.Context, q firestore.Query, fn func(*firestore.DocumentSnapshot) error) error {
	iter := q.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}

// PendingAnnotations loads every annotation not yet applied or linked,
// ordered by page index.
func (s *Store) PendingAnnotations(ctx context.Context, docID int64) (models.AnnotationSet, error) {
	var set models.AnnotationSet
	ref := s.docRef(docID)

	err := s.eachDoc(ctx, ref.Collection(colRedactions).Where("applied", "==", false), func(snap *firestore.DocumentSnapshot) error {
		var r models.Redaction
		if err := snap.DataTo(&r); err != nil {
			return err
		}
		r.ID, r.DocumentID = snap.Ref.ID, docID
		set.Redactions = append(set.Redactions, r)
		return nil
	})
	if err != nil {
		return set, fmt.Errorf("failed to load pending redactions: %w", err)
	}

	err = s.eachDoc(ctx, ref.Collection(colRotations).Where("applied", "==", false), func(snap *firestore.DocumentSnapshot) error {
		var r models.Rotation
		if err := snap.DataTo(&r); err != nil {
			return err
		}
		r.ID, r.DocumentID = snap.Ref.ID, docID
		set.Rotations = append(set.Rotations, r)
		return nil
	})
	if err != nil {
		return set, fmt.Errorf("failed to load pending rotations: %w", err)
	}

	err = s.eachDoc(ctx, ref.Collection(colDeletions).Where("applied", "==", false), func(snap *firestore.DocumentSnapshot) error {
		var d models.Deletion
		if err := snap.DataTo(&d); err != nil {
			return err
		}
		d.ID, d.DocumentID = snap.Ref.ID, docID
		set.Deletions = append(set.Deletions, d)
		return nil
	})
	if err != nil {
		return set, fmt.Errorf("failed to load pending deletions: %w", err)
	}

	err = s.eachDoc(ctx, ref.Collection(colBreaks).Where("resultDocumentId", "==", 0), func(snap *firestore.DocumentSnapshot) error {
		var b models.Break
		if err := snap.DataTo(&b); err != nil {
			return err
		}
		b.ID, b.DocumentID = snap.Ref.ID, docID
		set.Breaks = append(set.Breaks, b)
		return nil
	})
	if err != nil {
		return set, fmt.Errorf("failed to load pending breaks: %w", err)
	}

	sort.Slice(set.Redactions, func(i, j int) bool { return set.Redactions[i].PageIndex < set.Redactions[j].PageIndex })
	sort.Slice(set.Rotations, func(i, j int) bool { return set.Rotations[i].PageIndex < set.Rotations[j].PageIndex })
	sort.Slice(set.Deletions, func(i, j int) bool { return set.Deletions[i].PageIndex < set.Deletions[j].PageIndex })
	sort.Slice(set.Breaks, func(i, j int) bool { return set.Breaks[i].PageIndex < set.Breaks[j].PageIndex })
	return set, nil
}

func (s *Store) markApplied(ctx context.Context, docID int64, collection string, ids []string) error {
	ref := s.docRef(docID)
	for _, id := range ids {
		_, err := ref.Collection(collection).Doc(id).Update(ctx, []firestore.Update{{Path: "applied", Value: true}})
		if err != nil {
			return fmt.Errorf("failed to mark %s %s applied: %w", collection, id, err)
		}
	}
	return nil
}

func (s *Store) MarkRedactionsApplied(ctx context.Context, docID int64, ids []string) error {
	return s.markApplied(ctx, docID, colRedactions, ids)
}

func (s *Store) MarkRotationsApplied(ctx context.Context, docID int64, ids []string) error {
	return s.markApplied(ctx, docID, colRotations, ids)
}

func (s *Store) MarkDeletionsApplied(ctx context.Context, docID int64, ids []string) error {
	return s.markApplied(ctx, docID, colDeletions, ids)
}

// UnlinkBreak clears a break's result document, returning it to the pending
// set. Only the splitting cleanup path uses this, to undo links whose result
// documents were rolled back.
func (s *Store) UnlinkBreak(ctx context.Context, docID int64, breakID string) error {
	ref := s.docRef(docID).Collection(colBreaks).Doc(breakID)
	_, err := ref.Update(ctx, []firestore.Update{{Path: "resultDocumentId", Value: int64(0)}})
	if err != nil {
		return fmt.Errorf("failed to unlink break %s: %w", breakID, err)
	}
	return nil
}

// LinkBreak records a break's result document. A break that already has a
// result is immutable; linking it again to a different result fails.
func (s *Store) LinkBreak(ctx context.Context, docID int64, breakID string, resultDocID int64) error {
	ref := s.docRef(docID).Collection(colBreaks).Doc(breakID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var b models.Break
		if err := snap.DataTo(&b); err != nil {
			return err
		}
		if b.Processed() && b.ResultDocumentID != resultDocID {
			return fmt.Errorf("break already linked to document %d", b.ResultDocumentID)
		}
		return tx.Update(ref, []firestore.Update{{Path: "resultDocumentId", Value: resultDocID}})
	})
	if err != nil {
		return fmt.Errorf("failed to link break %s: %w", breakID, err)
	}
	return nil
}
