package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"esign-portal/esign-backend/internal/audit"
	"esign-portal/esign-backend/internal/notifications"
)

type Service interface {
	UploadDocument(ctx context.Context, req UploadRequest) (*Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*DocumentDetail, error)
	DownloadSigned(ctx context.Context, id uuid.UUID, client ClientInfo) (*Download, error)

	SignDocument(ctx context.Context, req SignRequest) (*DocumentDetail, error)
	VerifyDocument(ctx context.Context, id uuid.UUID, client ClientInfo) (*VerificationResult, error)

	CreateWorkflow(ctx context.Context, req CreateWorkflowRequest, client ClientInfo) ([]SignatureWorkflow, error)
	GetDocumentWorkflows(ctx context.Context, id uuid.UUID) ([]SignatureWorkflow, error)
	GetPendingSignatures(ctx context.Context, email string) ([]SignatureWorkflow, error)
	RejectSignature(ctx context.Context, token, reason string, client ClientInfo) (*SignatureWorkflow, error)
	ListExpiredWorkflows(ctx context.Context) ([]SignatureWorkflow, error)
	SendReminders(ctx context.Context, interval time.Duration) (int, error)
}

type documentService struct {
	repo         Repository
	storage      *StorageProvider
	signatures   *SignatureService
	workflow     *WorkflowEngine
	verification *VerificationEngine
	audit        audit.Recorder
	locks        *documentLocks
	clock        func() time.Time
	logger       *zap.Logger
}

func NewService(repo Repository, storage *StorageProvider, signatures *SignatureService, workflow *WorkflowEngine, verification *VerificationEngine, recorder audit.Recorder, logger *zap.Logger) Service {
	return &documentService{
		repo:         repo,
		storage:      storage,
		signatures:   signatures,
		workflow:     workflow,
		verification: verification,
		audit:        recorder,
		locks:        newDocumentLocks(),
		clock:        workflow.clock,
		logger:       logger,
	}
}

var pdfHeader = []byte("%PDF-")

func (s *documentService) UploadDocument(ctx context.Context, req UploadRequest) (*Document, error) {
	if len(req.Content) == 0 {
		return nil, invalidRequest("file is empty")
	}
	if !bytes.HasPrefix(req.Content, pdfHeader) {
		return nil, invalidRequest("file is not a PDF document")
	}
	if req.MimeType == "" {
		req.MimeType = "application/pdf"
	}
	uploader := req.Client.Actor
	if uploader == "" {
		uploader = "system"
	}

	docID := uuid.New()
	key, err := s.storage.PutOriginal(ctx, docID, req.Name, req.Content)
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	doc := &Document{
		ID:          docID,
		Name:        sanitizeFileName(req.Name),
		MimeType:    req.MimeType,
		FileSize:    int64(len(req.Content)),
		OriginalKey: key,
		Status:      StatusPending,
		UploadedBy:  uploader,
		CreatedAt:   s.clock(),
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		s.discard(ctx, key)
		return nil, err
	}

	s.logger.Info("Document uploaded",
		zap.String("document_id", doc.ID.String()),
		zap.String("name", doc.Name),
		zap.Int64("size", doc.FileSize))
	s.record(ctx, doc.ID, audit.ActionUpload, req.Client, doc.Name)
	return doc, nil
}

func (s *documentService) GetDocument(ctx context.Context, id uuid.UUID) (*DocumentDetail, error) {
	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	slots, err := s.workflow.Workflows(ctx, id)
	if err != nil {
		return nil, err
	}
	sigs, err := s.repo.ListSignatures(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &DocumentDetail{
		Document:   *doc,
		Signed:     doc.SignedKey != nil,
		Workflows:  slots,
		Signatures: sigs,
	}
	if detail.Workflows == nil {
		detail.Workflows = []SignatureWorkflow{}
	}
	if detail.Signatures == nil {
		detail.Signatures = []Signature{}
	}
	if detail.Signed {
		detail.DownloadPath = fmt.Sprintf("/api/v1/documents/%s/download", doc.ID)
	}
	return detail, nil
}

func (s *documentService) DownloadSigned(ctx context.Context, id uuid.UUID, client ClientInfo) (*Download, error) {
	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.SignedKey == nil {
		return nil, ErrDocumentNotSigned
	}
	data, err := s.storage.Get(ctx, *doc.SignedKey)
	if err != nil {
		return nil, fmt.Errorf("read signed document: %w", err)
	}
	s.record(ctx, doc.ID, audit.ActionDownload, client, "")
	return &Download{Name: signedFileName(doc.Name), Data: data}, nil
}

// SignDocument applies one signature. The document lock is held from token
// redemption until the new bytes and records are committed; the new bytes
// are always derived from the original upload.
func (s *documentService) SignDocument(ctx context.Context, req SignRequest) (*DocumentDetail, error) {
	unlock := s.locks.Lock(req.DocumentID)
	defer unlock()

	doc, err := s.loadDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.SignerName) == "" {
		return nil, invalidRequest("signer name is required")
	}

	if req.Token != "" {
		if _, err := s.workflow.Redeem(ctx, req.Token, doc.ID); err != nil {
			return nil, err
		}
	}

	original, err := s.storage.Get(ctx, doc.OriginalKey)
	if err != nil {
		return nil, &SigningError{Op: "read original document", Err: err}
	}

	strategy, err := s.signatures.Strategy(req.Kind)
	if err != nil {
		return nil, err
	}
	placement := DefaultPlacement(req.Kind)
	if req.Placement != nil {
		placement = *req.Placement
	}

	out, err := strategy.Sign(original, req.SignerName, req.Materials, placement)
	if err != nil {
		s.logger.Warn("Signing failed",
			zap.String("document_id", doc.ID.String()),
			zap.String("kind", string(req.Kind)),
			zap.Error(err))
		return nil, err
	}

	sig := s.newSignature(doc, req, placement, out)
	signedKey, err := s.storage.PutSigned(ctx, doc.ID, sig.ID, out.PDF)
	if err != nil {
		return nil, &SigningError{Op: "store signed document", Err: err}
	}
	stored := []string{signedKey}
	if req.Kind == KindSimple {
		imageKey, err := s.storage.PutImage(ctx, doc.ID, sig.ID, req.Materials.Image)
		if err != nil {
			s.discard(ctx, stored...)
			return nil, &SigningError{Op: "store signature image", Err: err}
		}
		sig.ImageKey = &imageKey
		stored = append(stored, imageKey)
	}

	var box outbox
	err = s.repo.WithTx(ctx, func(tx Repository) error {
		locked, err := tx.LockDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrDocumentNotFound
		}
		if err := tx.CreateSignature(ctx, sig); err != nil {
			return err
		}
		if req.Token != "" {
			if err := s.workflow.complete(ctx, tx, locked, req.Token, sig, &box); err != nil {
				return err
			}
		}

		locked.SignedKey = &signedKey
		locked.SignedAt = &sig.SignedAt
		changed, err := s.workflow.recompute(ctx, tx, locked)
		if err != nil {
			return err
		}
		if changed && locked.Status == StatusSigned {
			box.publish(notifications.EventDocumentSigned, locked, nil, sig.SignedAt)
		}
		return nil
	})
	if err != nil {
		s.discard(ctx, stored...)
		return nil, err
	}

	s.logger.Info("Document signed",
		zap.String("document_id", doc.ID.String()),
		zap.String("signature_id", sig.ID.String()),
		zap.String("kind", string(sig.Kind)))
	s.workflow.flush(&box)
	s.record(ctx, doc.ID, audit.ActionSign, req.Client, fmt.Sprintf("%s signature by %s", sig.Kind, sig.SignerName))
	return s.GetDocument(ctx, doc.ID)
}

func (s *documentService) newSignature(doc *Document, req SignRequest, placement Placement, out *SignedOutput) *Signature {
	sig := &Signature{
		ID:          uuid.New(),
		DocumentID:  doc.ID,
		SignerName:  strings.TrimSpace(req.SignerName),
		SignerEmail: strings.TrimSpace(req.SignerEmail),
		Kind:        req.Kind,
		Page:        placement.Page,
		X:           placement.X,
		Y:           placement.Y,
		Width:       placement.Width,
		Height:      placement.Height,
		Envelope:    out.Envelope,
		Reason:      out.Reason,
		Metadata:    out.Metadata,
		IPAddress:   req.Client.IPAddress,
		UserAgent:   req.Client.UserAgent,
		SignedAt:    s.clock(),
	}
	if cert := out.Certificate; cert != nil {
		sig.CertificateSerial = &cert.SerialNumber
		sig.CertificateIssuer = &cert.IssuerDN
		sig.CertificateSubject = &cert.SubjectDN
		sig.CertificateNotBefore = &cert.NotBefore
		sig.CertificateNotAfter = &cert.NotAfter
	}
	return sig
}

func (s *documentService) VerifyDocument(ctx context.Context, id uuid.UUID, client ClientInfo) (*VerificationResult, error) {
	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := s.verification.Verify(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.record(ctx, doc.ID, audit.ActionVerify, client, result.Message)
	return result, nil
}

func (s *documentService) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest, client ClientInfo) ([]SignatureWorkflow, error) {
	unlock := s.locks.Lock(req.DocumentID)
	defer unlock()

	slots, err := s.workflow.CreateWorkflow(ctx, req)
	if err != nil {
		return nil, err
	}
	s.record(ctx, req.DocumentID, audit.ActionCreateWorkflow, client, fmt.Sprintf("%d signers", len(slots)))
	return slots, nil
}

func (s *documentService) GetDocumentWorkflows(ctx context.Context, id uuid.UUID) ([]SignatureWorkflow, error) {
	if _, err := s.loadDocument(ctx, id); err != nil {
		return nil, err
	}
	return s.workflow.Workflows(ctx, id)
}

func (s *documentService) GetPendingSignatures(ctx context.Context, email string) ([]SignatureWorkflow, error) {
	if strings.TrimSpace(email) == "" {
		return nil, invalidRequest("email is required")
	}
	return s.workflow.Pending(ctx, email)
}

func (s *documentService) RejectSignature(ctx context.Context, token, reason string, client ClientInfo) (*SignatureWorkflow, error) {
	slot, err := s.repo.GetWorkflowByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, ErrInvalidToken
	}

	unlock := s.locks.Lock(slot.DocumentID)
	defer unlock()

	rejected, err := s.workflow.Reject(ctx, token, reason)
	if err != nil {
		return nil, err
	}
	if client.Actor == "" {
		client.Actor = rejected.SignerEmail
	}
	s.record(ctx, rejected.DocumentID, audit.ActionReject, client, reason)
	return rejected, nil
}

func (s *documentService) ListExpiredWorkflows(ctx context.Context) ([]SignatureWorkflow, error) {
	return s.workflow.Expired(ctx)
}

// SendReminders re-invites signers whose invitation is older than interval.
// Failures are logged and the remaining slots are still processed.
func (s *documentService) SendReminders(ctx context.Context, interval time.Duration) (int, error) {
	slots, err := s.workflow.Remindable(ctx, interval)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, slot := range slots {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		unlock := s.locks.Lock(slot.DocumentID)
		ok, err := s.workflow.Remind(ctx, slot.Token)
		unlock()
		if err != nil {
			s.logger.Error("Failed to send reminder",
				zap.String("document_id", slot.DocumentID.String()),
				zap.String("signer_email", slot.SignerEmail),
				zap.Error(err))
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func (s *documentService) loadDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *documentService) record(ctx context.Context, docID uuid.UUID, action audit.Action, client ClientInfo, detail string) {
	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		DocumentID: docID,
		Action:     action,
		Actor:      client.Actor,
		IPAddress:  client.IPAddress,
		UserAgent:  client.UserAgent,
		Detail:     detail,
		OccurredAt: s.clock(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("Failed to record document access",
			zap.String("document_id", docID.String()),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

// discard removes blobs written for an operation that did not commit.
func (s *documentService) discard(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Failed to remove orphaned blob", zap.String("key", key), zap.Error(err))
		}
	}
}

func signedFileName(name string) string {
	base := strings.TrimSuffix(name, ".pdf")
	return base + "_signed.pdf"
}
