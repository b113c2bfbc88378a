package models

import "time"

// SessionStatus is the lifecycle status of a ProcessingSession.
type SessionStatus string

const (
	SessionQueued     SessionStatus = "Queued"
	SessionProcessing SessionStatus = "Processing"
	SessionCompleted  SessionStatus = "Completed"
	SessionFailed     SessionStatus = "Failed"
)

// Terminal reports whether the session can no longer change state.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// ProcessingSession tracks one orchestrator run. Sessions are created at
// dispatch, updated by progress callbacks and never deleted; they are the
// audit trail and the target of idempotent status polling.
type ProcessingSession struct {
	ID         string         `firestore:"-" json:"sessionId"`
	DocumentID int64          `firestore:"documentId" json:"documentId"`
	Kind       string         `firestore:"kind" json:"kind"`
	Status     SessionStatus  `firestore:"status" json:"status"`
	Progress   int            `firestore:"progress" json:"progress"`
	Message    string         `firestore:"message,omitempty" json:"message,omitempty"`
	Error      string         `firestore:"error,omitempty" json:"error,omitempty"`
	Result     map[string]any `firestore:"result,omitempty" json:"result,omitempty"`
	CreatedAt  time.Time      `firestore:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt  time.Time      `firestore:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// KindManipulation is the processing kind for annotation-application runs.
const KindManipulation = "manipulation"
