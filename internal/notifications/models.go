package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Invitation asks a signer to sign a document through their slot token.
type Invitation struct {
	DocumentID   uuid.UUID  `json:"document_id"`
	DocumentName string     `json:"document_name"`
	SignerName   string     `json:"signer_name"`
	SignerEmail  string     `json:"signer_email"`
	Token        string     `json:"-"`
	SignOrder    int        `json:"sign_order"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Reminder     bool       `json:"reminder"`
}

type EventType string

const (
	EventWorkflowCreated  EventType = "workflow.created"
	EventSlotSigned       EventType = "workflow.signed"
	EventSlotRejected     EventType = "workflow.rejected"
	EventSlotExpired      EventType = "workflow.expired"
	EventDocumentSigned   EventType = "document.signed"
	EventDocumentRejected EventType = "document.rejected"
)

// Event is a document lifecycle change. It never carries slot tokens.
type Event struct {
	Type           EventType `json:"type"`
	DocumentID     uuid.UUID `json:"document_id"`
	DocumentStatus string    `json:"document_status"`
	SignerEmail    string    `json:"signer_email,omitempty"`
	SignOrder      int       `json:"sign_order,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// WebSocketMessage is the frame pushed to live subscribers.
type WebSocketMessage struct {
	Type      string    `json:"type"`
	Event     *Event    `json:"event,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
