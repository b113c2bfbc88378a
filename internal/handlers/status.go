package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/loandoc/pipeline/internal/store"
)

// SessionHandler serves session records for run polling.
type SessionHandler struct {
	store *store.Store
}

func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// ServeHTTP handles GET /sessions/{id}.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "get_session")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("session_id", id))

	session, err := h.store.GetSession(ctx, id)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		span.RecordError(err)
		slog.Error("Failed to load session.", "sessionId", id, "error", err)
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// DocumentHandler serves document records.
type DocumentHandler struct {
	store *store.Store
}

func NewDocumentHandler(s *store.Store) *DocumentHandler {
	return &DocumentHandler{store: s}
}

// ServeHTTP handles GET /documents/{id}.
func (h *DocumentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "get_document")
	defer span.End()

	docID, ok := documentID(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("document_id", docID))

	doc, err := h.store.GetDocument(ctx, docID)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		span.RecordError(err)
		slog.Error("Failed to load document.", "documentId", docID, "error", err)
		http.Error(w, "failed to load document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
