package models

// ProgressStatus is the state carried by a progress update.
type ProgressStatus string

const (
	ProgressStarting   ProgressStatus = "starting"
	ProgressProcessing ProgressStatus = "processing"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressError      ProgressStatus = "error"
)

// ProgressUpdate is one discrete update in the pipeline's progress protocol.
// Updates are keyed by session id; consumers must tolerate duplicate and
// out-of-order delivery and take the highest-progress or terminal update as
// authoritative.
type ProgressUpdate struct {
	SessionID  string         `json:"sessionId"`
	DocumentID int64          `json:"documentId"`
	Status     ProgressStatus `json:"status"`
	Progress   int            `json:"progress"`
	Message    string         `json:"message"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Terminal reports whether the update ends the run.
func (u ProgressUpdate) Terminal() bool {
	return u.Status == ProgressCompleted || u.Status == ProgressError
}

// SessionStatus maps the update's state onto the session lifecycle.
func (u ProgressUpdate) SessionStatus() SessionStatus {
	switch u.Status {
	case ProgressCompleted:
		return SessionCompleted
	case ProgressError:
		return SessionFailed
	default:
		return SessionProcessing
	}
}
