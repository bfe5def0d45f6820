package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"esign-portal/esign-backend/pkg/pdf"
	"esign-portal/esign-backend/pkg/workflows"
)

type Status string

const (
	StatusPending   Status = workflows.StatusPending
	StatusSigned    Status = workflows.StatusSigned
	StatusRejected  Status = workflows.StatusRejected
	StatusExpired   Status = workflows.StatusExpired
	StatusCancelled Status = workflows.StatusCancelled
)

type SignatureKind string

const (
	KindSimple    SignatureKind = "SIMPLE"
	KindAdvanced  SignatureKind = "ADVANCED"
	KindQualified SignatureKind = "QUALIFIED"
)

func (k SignatureKind) Valid() bool {
	switch k {
	case KindSimple, KindAdvanced, KindQualified:
		return true
	}
	return false
}

// Document is the aggregate root. SignedKey is set by the first successful
// signature and replaced by every later one.
type Document struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string     `json:"name" gorm:"not null"`
	MimeType    string     `json:"mime_type" gorm:"not null"`
	FileSize    int64      `json:"file_size"`
	OriginalKey string     `json:"-" gorm:"not null"`
	SignedKey   *string    `json:"-"`
	Status      Status     `json:"status" gorm:"type:varchar(16);not null;index"`
	UploadedBy  string     `json:"uploaded_by" gorm:"index"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	SignedAt    *time.Time `json:"signed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" gorm:"index"`
}

func (Document) TableName() string { return "documents" }

// Signature records one applied signature. Rows are never updated.
type Signature struct {
	ID          uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	DocumentID  uuid.UUID     `json:"document_id" gorm:"type:uuid;not null;index"`
	SignerName  string        `json:"signer_name" gorm:"not null"`
	SignerEmail string        `json:"signer_email" gorm:"index"`
	Kind        SignatureKind `json:"kind" gorm:"type:varchar(16);not null"`

	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	// Certificate fields are only set for ADVANCED and QUALIFIED signatures.
	CertificateSerial    *string    `json:"certificate_serial,omitempty"`
	CertificateIssuer    *string    `json:"certificate_issuer,omitempty"`
	CertificateSubject   *string    `json:"certificate_subject,omitempty"`
	CertificateNotBefore *time.Time `json:"certificate_not_before,omitempty"`
	CertificateNotAfter  *time.Time `json:"certificate_not_after,omitempty"`

	Envelope []byte  `json:"-" gorm:"type:bytea"`
	ImageKey *string `json:"-"`
	Reason   string  `json:"reason,omitempty"`

	Metadata  datatypes.JSON `json:"metadata" gorm:"default:'{}'"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	SignedAt  time.Time      `json:"signed_at" gorm:"not null"`
}

func (Signature) TableName() string { return "signatures" }

// SignatureWorkflow is one signer slot. Token is only returned to the
// workflow creator.
type SignatureWorkflow struct {
	ID              uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	DocumentID      uuid.UUID     `json:"document_id" gorm:"type:uuid;not null;index:idx_workflow_document_order,priority:1"`
	SignerName      string        `json:"signer_name"`
	SignerEmail     string        `json:"signer_email" gorm:"not null;index"`
	SignOrder       int           `json:"sign_order" gorm:"not null;index:idx_workflow_document_order,priority:2"`
	RequiredKind    SignatureKind `json:"required_kind" gorm:"type:varchar(16)"`
	Status          Status        `json:"status" gorm:"type:varchar(16);not null;index"`
	Token           string        `json:"token,omitempty" gorm:"not null;uniqueIndex"`
	ExpiresAt       *time.Time    `json:"expires_at,omitempty"`
	SignatureID     *uuid.UUID    `json:"signature_id,omitempty" gorm:"type:uuid"`
	RejectionReason *string       `json:"rejection_reason,omitempty"`
	NotifiedAt      *time.Time    `json:"notified_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at" gorm:"autoCreateTime"`
}

func (SignatureWorkflow) TableName() string { return "signature_workflows" }

func (w SignatureWorkflow) expiredAt(now time.Time) bool {
	return w.ExpiresAt != nil && now.After(*w.ExpiresAt)
}

// Models lists the persisted types for migrations.
func Models() []any {
	return []any{&Document{}, &Signature{}, &SignatureWorkflow{}}
}

// Placement is a zero-based page index and a rectangle in PDF points.
type Placement struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (p Placement) rect() pdf.Rect {
	return pdf.Rect{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height}
}

// DefaultPlacement returns where a signature of the given kind goes when
// the caller does not say.
func DefaultPlacement(kind SignatureKind) Placement {
	if kind == KindSimple {
		return Placement{Page: 0, X: 100, Y: 100, Width: 150, Height: 50}
	}
	return Placement{Page: 0, X: 100, Y: 100, Width: 200, Height: 80}
}

// ClientInfo identifies the caller for the access log.
type ClientInfo struct {
	Actor     string
	IPAddress string
	UserAgent string
}

type UploadRequest struct {
	Name     string
	MimeType string
	Content  []byte
	Client   ClientInfo
}

// SigningMaterials carries an image for SIMPLE signatures or a certificate
// container for ADVANCED and QUALIFIED ones.
type SigningMaterials struct {
	Image       []byte
	Certificate []byte
	Passphrase  string
}

type SignRequest struct {
	DocumentID  uuid.UUID
	SignerName  string
	SignerEmail string
	Kind        SignatureKind
	Materials   SigningMaterials
	Placement   *Placement
	Token       string
	Client      ClientInfo
}

type SignerSpec struct {
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	Order        int           `json:"order"`
	RequiredKind SignatureKind `json:"required_kind"`
}

type CreateWorkflowRequest struct {
	DocumentID     uuid.UUID    `json:"document_id" binding:"required"`
	Signers        []SignerSpec `json:"signers" binding:"required"`
	ExpirationDays *int         `json:"expiration_days,omitempty"`
}

// DocumentDetail is the read projection of a document.
type DocumentDetail struct {
	Document
	Signed       bool                `json:"signed"`
	DownloadPath string              `json:"download_path,omitempty"`
	Workflows    []SignatureWorkflow `json:"workflows"`
	Signatures   []Signature         `json:"signatures"`
}

type Download struct {
	Name string
	Data []byte
}

type SignerVerification struct {
	SignatureID       uuid.UUID     `json:"signature_id"`
	SignerName        string        `json:"signer_name"`
	SignerEmail       string        `json:"signer_email"`
	Kind              SignatureKind `json:"kind"`
	SignedAt          time.Time     `json:"signed_at"`
	CertificateSerial *string       `json:"certificate_serial,omitempty"`
	CertificateIssuer *string       `json:"certificate_issuer,omitempty"`
	// CertificateValid is informational and does not affect Valid.
	CertificateValid  *bool         `json:"certificate_valid,omitempty"`
	Valid             bool          `json:"valid"`
	Errors            []string      `json:"errors"`
}

type VerificationResult struct {
	DocumentID   uuid.UUID            `json:"document_id"`
	OverallValid bool                 `json:"overall_valid"`
	Message      string               `json:"message"`
	Signers      []SignerVerification `json:"signers"`
	VerifiedAt   time.Time            `json:"verified_at"`
}

// redacted returns copies of slots without their tokens.
func redacted(slots []SignatureWorkflow) []SignatureWorkflow {
	out := make([]SignatureWorkflow, len(slots))
	for i, s := range slots {
		s.Token = ""
		out[i] = s
	}
	return out
}
