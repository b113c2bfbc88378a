// Package paths maps (document id, lifecycle stage) to object-storage keys.
// The layout is bit-exact and load-bearing: downstream consumers address
// documents as {stage}/{document-id}.pdf.
package paths

import "fmt"

// Stage identifies one of the object-storage namespaces a document's bytes
// live under during its lifecycle.
type Stage string

const (
	// StageOriginal is the working copy read by the UI and the pipeline.
	StageOriginal Stage = "original"
	// StageProcessing holds the in-progress copy written during a run.
	StageProcessing Stage = "processing"
	// StageProduction holds the finalized copy.
	StageProduction Stage = "production"
	// StageBackup holds the pre-mutation snapshot taken before a run.
	StageBackup Stage = "backup"
)

// Stages lists every document stage, in lifecycle order.
var Stages = []Stage{StageOriginal, StageProcessing, StageProduction, StageBackup}

// Document returns the storage key for a document's bytes at the given stage.
func Document(docID int64, stage Stage) string {
	return fmt.Sprintf("%s/%d.pdf", stage, docID)
}

// Thumbnail returns the storage key reserved for a document's thumbnail.
func Thumbnail(docID int64) string {
	return fmt.Sprintf("thumbnails/%d.png", docID)
}
