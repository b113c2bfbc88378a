// The reconciler is a one-shot sweep over sessions that never reached a
// terminal state. A crashed run holds its document in Processing until the
// lock expires; this job fails the stale session and returns the document to
// the manipulation queue. Run it on a schedule wider than the lock TTL.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/loandoc/pipeline/internal/config"
	"github.com/loandoc/pipeline/internal/gcp"
	"github.com/loandoc/pipeline/internal/models"
	"github.com/loandoc/pipeline/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, relying on environment variables.")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration.", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fsClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		slog.Error("Failed to create Firestore client.", "error", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	st := store.New(fsClient, cfg.DocumentsCollection, cfg.SessionsCollection)
	cutoff := time.Now().Add(-cfg.ReconcileAfter)
	slog.Info("Sweeping stale sessions.", "cutoff", cutoff)

	stale, err := st.StaleSessions(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to list stale sessions.", "error", err)
		os.Exit(1)
	}
	if len(stale) == 0 {
		slog.Info("No stale sessions found.")
		return
	}

	var failed int
	for _, session := range stale {
		logCtx := slog.With("sessionId", session.ID, "documentId", session.DocumentID)

		if err := st.FailSession(ctx, session.ID, "reconciled: exceeded maximum run duration"); err != nil {
			logCtx.Error("Failed to fail stale session.", "error", err)
			failed++
			continue
		}

		doc, err := st.GetDocument(ctx, session.DocumentID)
		if err != nil {
			logCtx.Error("Failed to load document for stale session.", "error", err)
			failed++
			continue
		}
		if doc.Status == models.StatusProcessing {
			if err := st.SetStatus(ctx, session.DocumentID, models.StatusPendingManipulation); err != nil {
				logCtx.Error("Failed to return document to PendingManipulation.", "error", err)
				failed++
				continue
			}
			logCtx.Info("Stale session failed; document returned to queue.")
		} else {
			logCtx.Info("Stale session failed; document status untouched.", "status", doc.Status)
		}
	}

	slog.Info("Reconciliation complete.", "swept", len(stale), "errors", failed)
	if failed > 0 {
		os.Exit(1)
	}
}
