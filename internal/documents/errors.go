package documents

import (
	"errors"
	"fmt"

	"esign-portal/esign-backend/pkg/pdf"
	"esign-portal/esign-backend/pkg/security"
)

var (
	ErrDocumentNotFound         = errors.New("document not found")
	ErrDocumentNotSigned        = errors.New("document has not been signed yet")
	ErrInvalidToken             = errors.New("invalid workflow token")
	ErrWorkflowNotPending       = errors.New("workflow is not pending")
	ErrWorkflowExpired          = errors.New("workflow has expired")
	ErrMissingSignatureMaterial = errors.New("missing signature material")
	ErrUnsupportedSignatureKind = errors.New("unsupported signature kind")
	ErrInvalidRequest           = errors.New("invalid request")

	ErrCertificateLoad    = security.ErrCertificateLoad
	ErrNoCertificateFound = security.ErrNoCertificateFound
)

// SigningError wraps failures of the signing engine and of document I/O
// on the signing path.
type SigningError = pdf.SigningError

// VerificationError wraps failures while reading or parsing a signed
// document for verification.
type VerificationError struct {
	Op  string
	Err error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed: %s: %v", e.Op, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
