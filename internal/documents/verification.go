package documents

import (
	"context"
	"time"

	"esign-portal/esign-backend/pkg/pdf"
)

const (
	msgNotSigned       = "Document has not been signed"
	msgAllValid        = "All signatures are valid"
	msgSomeInvalid     = "Some signatures are invalid or suspicious"
	msgNotFoundInPDF   = "Signature not found in the signed document"
	msgCertificateDate = "Certificate was outside its validity window at verification time"
)

// VerificationEngine reconciles signature records with the signature
// dictionaries embedded in the signed bytes. A record matches when an
// embedded signature carries exactly the same signer name; envelopes and
// certificate chains are not validated.
type VerificationEngine struct {
	repo    Repository
	storage *StorageProvider
	engine  *pdf.Engine
	clock   func() time.Time
}

func NewVerificationEngine(repo Repository, storage *StorageProvider, engine *pdf.Engine, clock func() time.Time) *VerificationEngine {
	if clock == nil {
		clock = time.Now
	}
	return &VerificationEngine{repo: repo, storage: storage, engine: engine, clock: clock}
}

func (v *VerificationEngine) Verify(ctx context.Context, doc *Document) (*VerificationResult, error) {
	now := v.clock()
	result := &VerificationResult{
		DocumentID: doc.ID,
		Signers:    []SignerVerification{},
		VerifiedAt: now,
	}
	if doc.SignedKey == nil {
		result.Message = msgNotSigned
		return result, nil
	}

	data, err := v.storage.Get(ctx, *doc.SignedKey)
	if err != nil {
		return nil, &VerificationError{Op: "read signed document", Err: err}
	}

	embedded := make(map[string]bool)
	for sig, err := range v.engine.ExtractEmbeddedSignatures(data) {
		if err != nil {
			return nil, &VerificationError{Op: "extract signatures", Err: err}
		}
		embedded[sig.SignerName] = true
	}

	records, err := v.repo.ListSignatures(ctx, doc.ID)
	if err != nil {
		return nil, &VerificationError{Op: "load signature records", Err: err}
	}

	result.OverallValid = true
	for _, rec := range records {
		sv := SignerVerification{
			SignatureID:       rec.ID,
			SignerName:        rec.SignerName,
			SignerEmail:       rec.SignerEmail,
			Kind:              rec.Kind,
			SignedAt:          rec.SignedAt,
			CertificateSerial: rec.CertificateSerial,
			CertificateIssuer: rec.CertificateIssuer,
			Valid:             true,
			Errors:            []string{},
		}
		if !embedded[rec.SignerName] {
			sv.Valid = false
			sv.Errors = append(sv.Errors, msgNotFoundInPDF)
		}
		if rec.CertificateSerial != nil {
			valid := certificateWindowValid(rec, now)
			sv.CertificateValid = &valid
			if !valid {
				sv.Errors = append(sv.Errors, msgCertificateDate)
			}
		}
		result.OverallValid = result.OverallValid && sv.Valid
		result.Signers = append(result.Signers, sv)
	}

	if result.OverallValid {
		result.Message = msgAllValid
	} else {
		result.Message = msgSomeInvalid
	}
	return result, nil
}

func certificateWindowValid(rec Signature, now time.Time) bool {
	if rec.CertificateNotBefore == nil || rec.CertificateNotAfter == nil {
		return false
	}
	return !now.Before(*rec.CertificateNotBefore) && !now.After(*rec.CertificateNotAfter)
}
