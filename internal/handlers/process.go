// Package handlers exposes the manipulator's HTTP surface: dispatching runs,
// ingesting annotation batches and polling documents and sessions.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loandoc/pipeline/internal/models"
	"github.com/loandoc/pipeline/internal/services"
	"github.com/loandoc/pipeline/internal/store"
)

var tracer = otel.Tracer("loandoc-handlers")

// ProcessHandler dispatches manipulation runs.
type ProcessHandler struct {
	store        *store.Store
	orchestrator *services.Orchestrator
}

// NewProcessHandler creates the dispatch handler.
func NewProcessHandler(s *store.Store, o *services.Orchestrator) *ProcessHandler {
	return &ProcessHandler{store: s, orchestrator: o}
}

// ServeHTTP handles POST /documents/{id}/process. It creates a processing
// session, starts the run asynchronously and returns 202 with the session id
// for polling. A document already being processed yields 409.
func (h *ProcessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "dispatch_manipulation",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	docID, ok := documentID(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("document_id", docID))

	// A dispatch may name an existing session (workflow retries reuse the
	// session created at ingress); otherwise one is created here.
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		session, err := h.store.CreateSession(ctx, docID, models.KindManipulation)
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to create processing session.", "documentId", docID, "error", err)
			http.Error(w, "failed to create processing session", http.StatusInternalServerError)
			return
		}
		sessionID = session.ID
	}
	span.SetAttributes(attribute.String("session_id", sessionID))

	if err := h.orchestrator.Start(ctx, docID, sessionID); err != nil {
		if errors.Is(err, services.ErrAlreadyProcessing) {
			writeJSON(w, http.StatusConflict, models.DispatchResponse{
				SessionID:  sessionID,
				DocumentID: docID,
				Status:     "conflict",
			})
			return
		}
		span.RecordError(err)
		slog.Error("Failed to start manipulation run.", "documentId", docID, "error", err)
		http.Error(w, "failed to start manipulation run", http.StatusInternalServerError)
		return
	}

	slog.Info("Manipulation run dispatched.", "documentId", docID, "sessionId", sessionID)
	writeJSON(w, http.StatusAccepted, models.DispatchResponse{
		SessionID:  sessionID,
		DocumentID: docID,
		Status:     "accepted",
	})
}

func documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "document id must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response.", "error", err)
	}
}
