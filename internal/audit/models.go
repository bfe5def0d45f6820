package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionUpload         Action = "UPLOAD"
	ActionSign           Action = "SIGN"
	ActionReject         Action = "REJECT"
	ActionDownload       Action = "DOWNLOAD"
	ActionVerify         Action = "VERIFY"
	ActionCreateWorkflow Action = "CREATE_WORKFLOW"
)

// Entry is one access to a document.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Action     Action    `json:"action"`
	Actor      string    `json:"actor"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Recorder stores and lists access entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, documentID uuid.UUID) ([]Entry, error)
}

func (e *Entry) fill() {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
}
