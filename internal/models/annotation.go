package models

import (
	"time"

	"github.com/loandoc/pipeline/internal/geometry"
)

// Redaction is a request to paint an opaque box over a page region and
// destroy the content beneath it. Rect is in the page's content frame;
// DrawOrientation records the visual rotation the page had when the box was
// drawn, so the rectangle can be remapped before application.
type Redaction struct {
	ID              string        `firestore:"-" json:"id"`
	DocumentID      int64         `firestore:"-" json:"documentId"`
	PageIndex       int           `firestore:"pageIndex" json:"pageIndex"`
	Rect            geometry.Rect `firestore:"rect" json:"rect"`
	Label           string        `firestore:"label,omitempty" json:"label,omitempty"`
	DrawOrientation int           `firestore:"drawOrientation" json:"drawOrientation"`
	Applied         bool          `firestore:"applied" json:"applied"`
	CreatedAt       time.Time     `firestore:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// Rotation sets a page's display rotation. Angle must be 0, 90, 180 or 270.
type Rotation struct {
	ID         string    `firestore:"-" json:"id"`
	DocumentID int64     `firestore:"-" json:"documentId"`
	PageIndex  int       `firestore:"pageIndex" json:"pageIndex"`
	Angle      int       `firestore:"angle" json:"angle"`
	Applied    bool      `firestore:"applied" json:"applied"`
	CreatedAt  time.Time `firestore:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// Deletion removes a page from the document.
type Deletion struct {
	ID         string    `firestore:"-" json:"id"`
	DocumentID int64     `firestore:"-" json:"documentId"`
	PageIndex  int       `firestore:"pageIndex" json:"pageIndex"`
	Applied    bool      `firestore:"applied" json:"applied"`
	CreatedAt  time.Time `firestore:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// Break marks a classification boundary at PageIndex. A break whose
// ResultDocumentID is non-zero has been processed and is immutable.
type Break struct {
	ID                 string    `firestore:"-" json:"id"`
	DocumentID         int64     `firestore:"-" json:"documentId"`
	PageIndex          int       `firestore:"pageIndex" json:"pageIndex"`
	ClassificationID   int64     `firestore:"classificationId" json:"classificationId"`
	ClassificationName string    `firestore:"classificationName,omitempty" json:"classificationName,omitempty"`
	Date               string    `firestore:"date,omitempty" json:"date,omitempty"`
	Comments           string    `firestore:"comments,omitempty" json:"comments,omitempty"`
	Descriptor         string    `firestore:"descriptor,omitempty" json:"descriptor,omitempty"`
	// ResultDocumentID stays 0 until the break is processed. Stored without
	// omitempty so pending breaks are queryable by equality.
	ResultDocumentID int64     `firestore:"resultDocumentId" json:"resultDocumentId,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// Classification returns the break's target as a tagged variant.
func (b Break) Classification() Classification {
	return ClassificationFromSentinel(b.ClassificationID, b.ClassificationName)
}

// Processed reports whether the break has already been consumed into a
// split result. Processed breaks must never be edited or reprocessed.
func (b Break) Processed() bool { return b.ResultDocumentID != 0 }

// AnnotationSet is everything still pending against one document.
type AnnotationSet struct {
	Redactions []Redaction
	Rotations  []Rotation
	Deletions  []Deletion
	Breaks     []Break
}

// Empty reports whether there is no pending work of any kind.
func (s AnnotationSet) Empty() bool {
	return len(s.Redactions) == 0 && len(s.Rotations) == 0 &&
		len(s.Deletions) == 0 && len(s.Breaks) == 0
}
