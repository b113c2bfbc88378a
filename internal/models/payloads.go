package models

// These structs define the JSON payloads exchanged between the annotation
// ingress function, the processing workflow and the manipulator service.

// AnnotationBatch is the payload of a com.loandoc.annotation.batch event:
// the four record shapes produced by the annotation UI for one document.
type AnnotationBatch struct {
	DocumentID int64       `json:"documentId"`
	Redactions []Redaction `json:"redactions,omitempty"`
	Rotations  []Rotation  `json:"rotations,omitempty"`
	Deletions  []Deletion  `json:"deletions,omitempty"`
	Breaks     []Break     `json:"breaks,omitempty"`
}

// ManipulationRequest is the payload of a com.loandoc.manipulation.requested
// event: a request to run the pipeline against one document.
type ManipulationRequest struct {
	DocumentID int64 `json:"documentId"`
}

// ManipulationDispatch is the workflow execution argument produced by the
// ingress function and consumed by the manipulator service.
type ManipulationDispatch struct {
	DocumentID int64  `json:"documentId"`
	SessionID  string `json:"sessionId"`
}

// DispatchResponse is returned by the manipulator's process endpoint.
type DispatchResponse struct {
	SessionID  string `json:"sessionId"`
	DocumentID int64  `json:"documentId"`
	Status     string `json:"status"`
}
