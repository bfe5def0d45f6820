package reports

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"esign-portal/esign-backend/internal/audit"
	"esign-portal/esign-backend/internal/documents"
	"esign-portal/esign-backend/internal/reports/export"
)

// DocumentSource is the part of the documents service a report reads.
type DocumentSource interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*documents.DocumentDetail, error)
}

// Service renders per-document audit reports.
type Service struct {
	documents DocumentSource
	audit     audit.Recorder
	clock     func() time.Time
	logger    *zap.Logger
}

func NewService(docs DocumentSource, recorder audit.Recorder, logger *zap.Logger) *Service {
	return &Service{documents: docs, audit: recorder, clock: time.Now, logger: logger}
}

// AuditReport renders the signer slots, signature records and access log of
// one document.
func (s *Service) AuditReport(ctx context.Context, documentID uuid.UUID, format ExportFormat) (*Rendered, error) {
	detail, err := s.documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	var entries []audit.Entry
	if s.audit != nil {
		if entries, err = s.audit.List(ctx, documentID); err != nil {
			return nil, fmt.Errorf("load access log: %w", err)
		}
	}

	report := buildReport(detail, entries, s.clock().UTC())
	exporter := exporterFor(format)

	var buf bytes.Buffer
	if err := exporter.Export(&buf, report); err != nil {
		return nil, fmt.Errorf("render %s report: %w", format, err)
	}

	s.logger.Info("Audit report generated",
		zap.String("document_id", documentID.String()),
		zap.String("format", string(format)),
		zap.Int("size", buf.Len()))

	return &Rendered{
		FileName:    fmt.Sprintf("%s_audit.%s", strings.TrimSuffix(detail.Name, ".pdf"), exporter.Extension()),
		ContentType: exporter.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}

func buildReport(detail *documents.DocumentDetail, entries []audit.Entry, now time.Time) *export.Report {
	signed := 0
	for _, w := range detail.Workflows {
		if w.Status == documents.StatusSigned {
			signed++
		}
	}

	report := &export.Report{
		Title:       "Signature Audit Report",
		Subtitle:    detail.Name,
		GeneratedAt: now,
		Summary: []export.SummaryItem{
			{Label: "Document ID", Value: detail.ID.String()},
			{Label: "Status", Value: string(detail.Status)},
			{Label: "Uploaded by", Value: detail.UploadedBy},
			{Label: "Uploaded at", Value: detail.CreatedAt},
			{Label: "Signed at", Value: detail.SignedAt},
			{Label: "Expires at", Value: detail.ExpiresAt},
			{Label: "Signers completed", Value: fmt.Sprintf("%d of %d", signed, len(detail.Workflows))},
			{Label: "Signatures", Value: len(detail.Signatures)},
		},
	}

	signers := export.Section{
		Title: "Signers",
		Columns: []export.Column{
			{Key: "order", Label: "Order"},
			{Key: "name", Label: "Name"},
			{Key: "email", Label: "Email"},
			{Key: "kind", Label: "Required kind"},
			{Key: "status", Label: "Status"},
			{Key: "notified", Label: "Notified"},
			{Key: "completed", Label: "Completed"},
			{Key: "expires", Label: "Expires"},
			{Key: "reason", Label: "Rejection reason"},
		},
	}
	for _, w := range detail.Workflows {
		signers.Rows = append(signers.Rows, map[string]any{
			"order":     w.SignOrder,
			"name":      w.SignerName,
			"email":     w.SignerEmail,
			"kind":      string(w.RequiredKind),
			"status":    string(w.Status),
			"notified":  w.NotifiedAt,
			"completed": w.CompletedAt,
			"expires":   w.ExpiresAt,
			"reason":    w.RejectionReason,
		})
	}

	signatures := export.Section{
		Title: "Signatures",
		Columns: []export.Column{
			{Key: "signed_at", Label: "Signed at"},
			{Key: "name", Label: "Signer"},
			{Key: "email", Label: "Email"},
			{Key: "kind", Label: "Kind"},
			{Key: "page", Label: "Page"},
			{Key: "serial", Label: "Certificate serial"},
			{Key: "issuer", Label: "Issuer"},
			{Key: "ip", Label: "IP address"},
		},
	}
	for _, sig := range detail.Signatures {
		signatures.Rows = append(signatures.Rows, map[string]any{
			"signed_at": sig.SignedAt,
			"name":      sig.SignerName,
			"email":     sig.SignerEmail,
			"kind":      string(sig.Kind),
			"page":      sig.Page,
			"serial":    sig.CertificateSerial,
			"issuer":    sig.CertificateIssuer,
			"ip":        sig.IPAddress,
		})
	}

	access := export.Section{
		Title: "Access log",
		Columns: []export.Column{
			{Key: "at", Label: "Time"},
			{Key: "action", Label: "Action"},
			{Key: "actor", Label: "Actor"},
			{Key: "ip", Label: "IP address"},
			{Key: "detail", Label: "Detail"},
		},
	}
	for _, e := range entries {
		access.Rows = append(access.Rows, map[string]any{
			"at":     e.OccurredAt,
			"action": string(e.Action),
			"actor":  e.Actor,
			"ip":     e.IPAddress,
			"detail": e.Detail,
		})
	}

	report.Sections = []export.Section{signers, signatures, access}
	return report
}
