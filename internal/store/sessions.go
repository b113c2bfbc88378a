package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/loandoc/pipeline/internal/models"
)

func (s *Store) sessionRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.sessions).Doc(id)
}

// CreateSession records a new queued ProcessingSession for a document.
func (s *Store) CreateSession(ctx context.Context, docID int64, kind string) (*models.ProcessingSession, error) {
	now := time.Now()
	session := &models.ProcessingSession{
		ID:         uuid.NewString(),
		DocumentID: docID,
		Kind:       kind,
		Status:     models.SessionQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.sessionRef(session.ID).Set(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create processing session: %w", err)
	}
	return session, nil
}

// GetSession loads one ProcessingSession.
func (s *Store) GetSession(ctx context.Context, id string) (*models.ProcessingSession, error) {
	snap, err := s.sessionRef(id).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	var session models.ProcessingSession
	if err := snap.DataTo(&session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	session.ID = id
	return &session, nil
}

// FailSession force-fails a session; used by the reconciler for runs that
// never reported a terminal state.
func (s *Store) FailSession(ctx context.Context, id, message string) error {
	_, err := s.sessionRef(id).Update(ctx, []firestore.Update{
		{Path: "status", Value: models.SessionFailed},
		{Path: "error", Value: message},
		{Path: "message", Value: message},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to fail session %s: %w", id, err)
	}
	return nil
}

// StaleSessions returns non-terminal sessions last updated before cutoff.
func (s *Store) StaleSessions(ctx context.Context, cutoff time.Time) ([]models.ProcessingSession, error) {
	var stale []models.ProcessingSession
	iter := s.client.Collection(s.sessions).
		Where("status", "in", []models.SessionStatus{models.SessionQueued, models.SessionProcessing}).
		Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan sessions: %w", err)
		}
		var session models.ProcessingSession
		if err := snap.DataTo(&session); err != nil {
			return nil, fmt.Errorf("failed to decode session %s: %w", snap.Ref.ID, err)
		}
		session.ID = snap.Ref.ID
		if session.UpdatedAt.Before(cutoff) {
			stale = append(stale, session)
		}
	}
	return stale, nil
}

// Report implements the progress protocol against the session record.
// Updates apply monotonically: progress never regresses and a terminal
// state is never overwritten by a late non-terminal update.
func (s *Store) Report(ctx context.Context, u models.ProgressUpdate) {
	logAttrs := []any{
		"sessionId", u.SessionID,
		"documentId", u.DocumentID,
		"status", u.Status,
		"progress", u.Progress,
	}
	if u.Error != "" {
		slog.Error("Progress update.", append(logAttrs, "error", u.Error)...)
	} else {
		slog.Info("Progress update.", append(logAttrs, "message", u.Message)...)
	}

	ref := s.sessionRef(u.SessionID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var session models.ProcessingSession
		if err := snap.DataTo(&session); err != nil {
			return err
		}
		if session.Status.Terminal() {
			return nil
		}
		if !u.Terminal() && u.Progress < session.Progress {
			return nil
		}
		updates := []firestore.Update{
			{Path: "status", Value: u.SessionStatus()},
			{Path: "progress", Value: u.Progress},
			{Path: "message", Value: u.Message},
			{Path: "updatedAt", Value: time.Now()},
		}
		if u.Result != nil {
			updates = append(updates, firestore.Update{Path: "result", Value: u.Result})
		}
		if u.Error != "" {
			updates = append(updates, firestore.Update{Path: "error", Value: u.Error})
		}
		return tx.Update(ref, updates)
	})
	if err != nil {
		slog.Error("CRITICAL: Failed to persist progress update.", "sessionId", u.SessionID, "error", err)
	}
}
