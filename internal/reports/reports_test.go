package reports

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"esign-portal/esign-backend/internal/audit"
	"esign-portal/esign-backend/internal/documents"
)

type stubDocuments struct {
	detail *documents.DocumentDetail
}

func (s stubDocuments) GetDocument(_ context.Context, id uuid.UUID) (*documents.DocumentDetail, error) {
	if s.detail == nil || s.detail.ID != id {
		return nil, documents.ErrDocumentNotFound
	}
	return s.detail, nil
}

func sampleDetail() *documents.DocumentDetail {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	serial := "424242"
	issuer := "CN=Test Signing CA"
	reason := "wrong party"
	return &documents.DocumentDetail{
		Document: documents.Document{
			ID:         uuid.New(),
			Name:       "lease.pdf",
			Status:     documents.StatusRejected,
			UploadedBy: "owner",
			CreatedAt:  now,
		},
		Workflows: []documents.SignatureWorkflow{
			{SignOrder: 1, SignerName: "Ann", SignerEmail: "ann@example.com", RequiredKind: documents.KindSimple, Status: documents.StatusSigned, CompletedAt: &now},
			{SignOrder: 2, SignerName: "Bob", SignerEmail: "bob@example.com", RequiredKind: documents.KindAdvanced, Status: documents.StatusRejected, RejectionReason: &reason},
		},
		Signatures: []documents.Signature{
			{SignerName: "Ann", SignerEmail: "ann@example.com", Kind: documents.KindAdvanced, SignedAt: now, CertificateSerial: &serial, CertificateIssuer: &issuer},
		},
	}
}

func newTestService(t *testing.T) (*Service, *documents.DocumentDetail) {
	t.Helper()
	detail := sampleDetail()
	recorder := audit.NewLogRecorder(zap.NewNop())
	require.NoError(t, recorder.Record(context.Background(), audit.Entry{
		DocumentID: detail.ID,
		Action:     audit.ActionUpload,
		Actor:      "owner",
		OccurredAt: detail.CreatedAt,
	}))
	return NewService(stubDocuments{detail: detail}, recorder, zap.NewNop()), detail
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]ExportFormat{
		"":      ExportFormatPDF,
		"pdf":   ExportFormatPDF,
		"XLSX":  ExportFormatExcel,
		"excel": ExportFormatExcel,
		" csv ": ExportFormatCSV,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("docx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestAuditReport_CSV(t *testing.T) {
	svc, detail := newTestService(t)

	out, err := svc.AuditReport(context.Background(), detail.ID, ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "lease_audit.csv", out.FileName)
	assert.Equal(t, "text/csv", out.ContentType)

	body := string(out.Data)
	assert.True(t, strings.HasPrefix(body, "Signature Audit Report\n"))
	assert.Contains(t, body, "Signers completed,1 of 2")
	assert.Contains(t, body, "2,Bob,bob@example.com,ADVANCED,REJECTED,,,,wrong party")
	assert.Contains(t, body, "424242,CN=Test Signing CA")
	assert.Contains(t, body, "2026-03-01T12:00:00Z,UPLOAD,owner")
}

func TestAuditReport_Excel(t *testing.T) {
	svc, detail := newTestService(t)

	out, err := svc.AuditReport(context.Background(), detail.ID, ExportFormatExcel)
	require.NoError(t, err)
	assert.Equal(t, "lease_audit.xlsx", out.FileName)

	book, err := excelize.OpenReader(bytes.NewReader(out.Data))
	require.NoError(t, err)
	defer book.Close()

	assert.Equal(t, []string{"Summary", "Signers", "Signatures", "Access log"}, book.GetSheetList())
	rows, err := book.GetRows("Signers")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Email", rows[0][2])
	assert.Equal(t, "bob@example.com", rows[2][2])
}

func TestAuditReport_PDF(t *testing.T) {
	svc, detail := newTestService(t)

	out, err := svc.AuditReport(context.Background(), detail.ID, ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", out.ContentType)
	assert.True(t, bytes.HasPrefix(out.Data, []byte("%PDF-")))
}

func TestAuditReport_UnknownDocument(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AuditReport(context.Background(), uuid.New(), ExportFormatCSV)
	assert.ErrorIs(t, err, documents.ErrDocumentNotFound)
}

func TestHandler_AuditReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, detail := newTestService(t)
	r := gin.New()
	NewHandler(svc, zap.NewNop()).RegisterRoutes(r.Group("/api/v1"))

	tests := []struct {
		name string
		path string
		want int
	}{
		{"csv", "/api/v1/documents/" + detail.ID.String() + "/audit-report?format=csv", http.StatusOK},
		{"bad format", "/api/v1/documents/" + detail.ID.String() + "/audit-report?format=doc", http.StatusBadRequest},
		{"bad id", "/api/v1/documents/nope/audit-report", http.StatusBadRequest},
		{"unknown", "/api/v1/documents/" + uuid.NewString() + "/audit-report", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+detail.ID.String()+"/audit-report?format=csv", nil))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "lease_audit.csv")
}
