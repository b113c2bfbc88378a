package models

import "time"

// DocumentStatus is the lifecycle status of a document. It always reflects
// the furthest pipeline stage the document has reached.
type DocumentStatus string

const (
	StatusPendingManipulation DocumentStatus = "PendingManipulation"
	StatusProcessing          DocumentStatus = "Processing"
	StatusProcessed           DocumentStatus = "Processed"
	StatusProduction          DocumentStatus = "Production"
	StatusNeedsWork           DocumentStatus = "NeedsWork"
	StatusObsolete            DocumentStatus = "Obsolete"
	StatusDeleted             DocumentStatus = "Deleted"
)

// Document is the metadata record for one versioned binary artifact. The
// bytes themselves live in object storage under the keys produced by the
// paths package; only the orchestrator mutates status and page count.
type Document struct {
	ID                     int64          `firestore:"-" json:"id"`
	LoanID                 int64          `firestore:"loanId,omitempty" json:"loanId,omitempty"`
	ParentID               int64          `firestore:"parentId,omitempty" json:"parentId,omitempty"`
	FileName               string         `firestore:"fileName,omitempty" json:"fileName,omitempty"`
	FileExtension          string         `firestore:"fileExtension,omitempty" json:"fileExtension,omitempty"`
	PageCount              int            `firestore:"pageCount" json:"pageCount"`
	Status                 DocumentStatus `firestore:"status" json:"status"`
	ClassificationID       int64          `firestore:"classificationId,omitempty" json:"classificationId,omitempty"`
	ClassificationName     string         `firestore:"classificationName,omitempty" json:"classificationName,omitempty"`
	AutoClassificationName string         `firestore:"autoClassificationName,omitempty" json:"autoClassificationName,omitempty"`
	Corrupted              bool           `firestore:"corrupted,omitempty" json:"corrupted,omitempty"`
	Redacted               bool           `firestore:"redacted,omitempty" json:"redacted,omitempty"`
	Deleted                bool           `firestore:"deleted,omitempty" json:"deleted,omitempty"`
	CreatedAt              time.Time      `firestore:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt              time.Time      `firestore:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}
