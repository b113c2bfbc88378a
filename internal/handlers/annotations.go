package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loandoc/pipeline/internal/models"
	"github.com/loandoc/pipeline/internal/store"
)

// AnnotationsHandler ingests annotation batches over HTTP. The CloudEvent
// ingress is the primary path; this endpoint serves the annotation UI's
// direct saves.
type AnnotationsHandler struct {
	store *store.Store
}

func NewAnnotationsHandler(s *store.Store) *AnnotationsHandler {
	return &AnnotationsHandler{store: s}
}

// ServeHTTP handles POST /documents/{id}/annotations.
func (h *AnnotationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "save_annotations",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	docID, ok := documentID(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("document_id", docID))

	var batch models.AnnotationBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, "invalid annotation batch", http.StatusBadRequest)
		return
	}
	// The path owns the document id; ignore any id in the body.
	batch.DocumentID = docID

	if err := h.store.SaveAnnotations(ctx, batch); err != nil {
		span.RecordError(err)
		if strings.Contains(err.Error(), "cannot be edited") {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		slog.Error("Failed to save annotation batch.", "documentId", docID, "error", err)
		http.Error(w, "failed to save annotations", http.StatusInternalServerError)
		return
	}

	slog.Info("Annotation batch saved.",
		"documentId", docID,
		"redactions", len(batch.Redactions),
		"rotations", len(batch.Rotations),
		"deletions", len(batch.Deletions),
		"breaks", len(batch.Breaks))
	w.WriteHeader(http.StatusNoContent)
}
