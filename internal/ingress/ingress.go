// Package ingress is the event-driven front door of the pipeline. It persists
// annotation batches from the annotation UI and dispatches manipulation runs
// by launching the processing workflow.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/loandoc/pipeline/internal/config"
	"github.com/loandoc/pipeline/internal/gcp"
	"github.com/loandoc/pipeline/internal/models"
	"github.com/loandoc/pipeline/internal/store"
)

// Event types routed to this function.
const (
	EventAnnotationBatch     = "com.loandoc.annotation.batch"
	EventManipulationRequest = "com.loandoc.manipulation.requested"
)

// Function holds the ingress function's long-lived clients.
type Function struct {
	store            *store.Store
	executionsClient *executions.Client
	config           *config.Config
}

// New initializes the ingress function's clients.
func New(ctx context.Context) (*Function, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	fsClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}

	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}

	return &Function{
		store:            store.New(fsClient, cfg.DocumentsCollection, cfg.SessionsCollection),
		executionsClient: executionsClient,
		config:           cfg,
	}, nil
}

// Handle routes one CloudEvent by type.
func (f *Function) Handle(ctx context.Context, eventType string, data []byte) error {
	switch eventType {
	case EventAnnotationBatch:
		return f.handleAnnotationBatch(ctx, data)
	case EventManipulationRequest:
		return f.handleManipulationRequest(ctx, data)
	default:
		// Unknown types are logged and dropped; returning an error would only
		// make the event bus redeliver something we will never handle.
		slog.Warn("Ignoring event of unknown type.", "type", eventType)
		return nil
	}
}

func (f *Function) handleAnnotationBatch(ctx context.Context, data []byte) error {
	var batch models.AnnotationBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		slog.Error("Failed to unmarshal annotation batch.", "error", err, "data", string(data))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	logCtx := slog.With("documentId", batch.DocumentID)

	if err := f.store.SaveAnnotations(ctx, batch); err != nil {
		logCtx.Error("Failed to save annotation batch.", "error", err)
		return err
	}
	logCtx.Info("Annotation batch saved.",
		"redactions", len(batch.Redactions),
		"rotations", len(batch.Rotations),
		"deletions", len(batch.Deletions),
		"breaks", len(batch.Breaks))
	return nil
}

func (f *Function) handleManipulationRequest(ctx context.Context, data []byte) error {
	var req models.ManipulationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Error("Failed to unmarshal manipulation request.", "error", err, "data", string(data))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	logCtx := slog.With("documentId", req.DocumentID)

	session, err := f.store.CreateSession(ctx, req.DocumentID, models.KindManipulation)
	if err != nil {
		logCtx.Error("Failed to create processing session.", "error", err)
		return err
	}
	logCtx = logCtx.With("sessionId", session.ID)

	if err := f.triggerWorkflow(ctx, models.ManipulationDispatch{
		DocumentID: req.DocumentID,
		SessionID:  session.ID,
	}); err != nil {
		logCtx.Error("Failed to trigger workflow execution.", "error", err)
		if ferr := f.store.FailSession(ctx, session.ID, fmt.Sprintf("failed to trigger workflow: %v", err)); ferr != nil {
			logCtx.Error("CRITICAL: Failed to fail session after workflow trigger error.", "error", ferr)
		}
		return err
	}

	logCtx.Info("Manipulation workflow triggered.")
	return nil
}

func (f *Function) triggerWorkflow(ctx context.Context, dispatch models.ManipulationDispatch) error {
	payload, err := json.Marshal(dispatch)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s",
			f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}
	if _, err := f.executionsClient.CreateExecution(ctx, req); err != nil {
		return fmt.Errorf("failed to create workflow execution: %w", err)
	}
	return nil
}
