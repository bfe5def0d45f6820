package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockService is a mock implementation of the Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) UploadDocument(ctx context.Context, req UploadRequest) (*Document, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Document), args.Error(1)
}

func (m *MockService) GetDocument(ctx context.Context, id uuid.UUID) (*DocumentDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DocumentDetail), args.Error(1)
}

func (m *MockService) DownloadSigned(ctx context.Context, id uuid.UUID, client ClientInfo) (*Download, error) {
	args := m.Called(ctx, id, client)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Download), args.Error(1)
}

func (m *MockService) SignDocument(ctx context.Context, req SignRequest) (*DocumentDetail, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DocumentDetail), args.Error(1)
}

func (m *MockService) VerifyDocument(ctx context.Context, id uuid.UUID, client ClientInfo) (*VerificationResult, error) {
	args := m.Called(ctx, id, client)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*VerificationResult), args.Error(1)
}

func (m *MockService) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest, client ClientInfo) ([]SignatureWorkflow, error) {
	args := m.Called(ctx, req, client)
	return args.Get(0).([]SignatureWorkflow), args.Error(1)
}

func (m *MockService) GetDocumentWorkflows(ctx context.Context, id uuid.UUID) ([]SignatureWorkflow, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]SignatureWorkflow), args.Error(1)
}

func (m *MockService) GetPendingSignatures(ctx context.Context, email string) ([]SignatureWorkflow, error) {
	args := m.Called(ctx, email)
	return args.Get(0).([]SignatureWorkflow), args.Error(1)
}

func (m *MockService) RejectSignature(ctx context.Context, token, reason string, client ClientInfo) (*SignatureWorkflow, error) {
	args := m.Called(ctx, token, reason, client)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SignatureWorkflow), args.Error(1)
}

func (m *MockService) ListExpiredWorkflows(ctx context.Context) ([]SignatureWorkflow, error) {
	args := m.Called(ctx)
	return args.Get(0).([]SignatureWorkflow), args.Error(1)
}

func (m *MockService) SendReminders(ctx context.Context, interval time.Duration) (int, error) {
	args := m.Called(ctx, interval)
	return args.Int(0), args.Error(1)
}

func newTestRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc, zap.NewNop()).RegisterRoutes(r.Group("/api/v1"), Middleware{})
	return r
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for k, data := range files {
		part, err := w.CreateFormFile(k, k+".bin")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandler_Upload(t *testing.T) {
	svc := new(MockService)
	docID := uuid.New()
	svc.On("UploadDocument", mock.Anything, mock.MatchedBy(func(req UploadRequest) bool {
		return string(req.Content) == "%PDF-1.7" && req.Client.IPAddress != ""
	})).Return(&Document{ID: docID, Name: "file.bin", Status: StatusPending}, nil)

	body, ct := multipartBody(t, nil, map[string][]byte{"file": []byte("%PDF-1.7")})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), docID.String())
	assert.NotContains(t, rec.Body.String(), "original_key")
	svc.AssertExpectations(t)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", strings.NewReader(""))
	rec = httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_SignParsesForm(t *testing.T) {
	svc := new(MockService)
	docID := uuid.New()
	svc.On("SignDocument", mock.Anything, mock.MatchedBy(func(req SignRequest) bool {
		return req.DocumentID == docID &&
			req.Kind == KindAdvanced &&
			req.Token == "tok" &&
			req.Materials.Passphrase == "pw" &&
			string(req.Materials.Certificate) == "p12" &&
			req.Placement != nil && req.Placement.Page == 1 && req.Placement.X == 42 &&
			req.Placement.Width == DefaultPlacement(KindAdvanced).Width
	})).Return(&DocumentDetail{Document: Document{ID: docID, Status: StatusSigned}, Signed: true}, nil)

	body, ct := multipartBody(t, map[string]string{
		"document_id":          docID.String(),
		"signature_type":       "ADVANCED",
		"signer_name":          "Bob",
		"token":                "tok",
		"certificate_password": "pw",
		"page":                 "1",
		"x":                    "42",
	}, map[string][]byte{"certificate": []byte("p12")})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/sign", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestHandler_SignRejectsBadForm(t *testing.T) {
	svc := new(MockService)
	router := newTestRouter(svc)

	for name, fields := range map[string]map[string]string{
		"missing document": {"signer_name": "Ann"},
		"bad page":         {"document_id": uuid.NewString(), "page": "first"},
		"bad width":        {"document_id": uuid.NewString(), "width": "wide"},
	} {
		t.Run(name, func(t *testing.T) {
			body, ct := multipartBody(t, fields, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/sign", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	svc.AssertNotCalled(t, "SignDocument", mock.Anything, mock.Anything)
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrDocumentNotFound, http.StatusNotFound},
		{ErrInvalidToken, http.StatusNotFound},
		{fmt.Errorf("%w: slot is SIGNED", ErrWorkflowNotPending), http.StatusConflict},
		{ErrWorkflowExpired, http.StatusGone},
		{ErrDocumentNotSigned, http.StatusPreconditionFailed},
		{ErrMissingSignatureMaterial, http.StatusBadRequest},
		{ErrUnsupportedSignatureKind, http.StatusBadRequest},
		{invalidRequest("bad"), http.StatusBadRequest},
		{ErrCertificateLoad, http.StatusUnprocessableEntity},
		{&SigningError{Op: "embed", Err: assert.AnError}, http.StatusInternalServerError},
		{&VerificationError{Op: "extract", Err: assert.AnError}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			svc := new(MockService)
			id := uuid.New()
			svc.On("GetDocument", mock.Anything, id).Return(nil, tt.err)

			rec := httptest.NewRecorder()
			newTestRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+id.String(), nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandler_InvalidID(t *testing.T) {
	svc := new(MockService)
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/not-a-uuid/verify", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Download(t *testing.T) {
	svc := new(MockService)
	id := uuid.New()
	svc.On("DownloadSigned", mock.Anything, id, mock.Anything).
		Return(&Download{Name: "contract_signed.pdf", Data: []byte("%PDF-signed")}, nil)

	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+id.String()+"/download", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "contract_signed.pdf")
	assert.Equal(t, "%PDF-signed", rec.Body.String())
}

func TestHandler_CreateWorkflow(t *testing.T) {
	svc := new(MockService)
	docID := uuid.New()
	svc.On("CreateWorkflow", mock.Anything, mock.MatchedBy(func(req CreateWorkflowRequest) bool {
		return req.DocumentID == docID && len(req.Signers) == 2 && *req.ExpirationDays == 5
	}), mock.Anything).Return([]SignatureWorkflow{{Token: "t1"}, {Token: "t2"}}, nil)

	payload := fmt.Sprintf(`{"document_id":%q,"signers":[{"email":"a@x.io","order":1},{"email":"b@x.io","order":2}],"expiration_days":5}`, docID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Workflows []SignatureWorkflow `json:"workflows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Workflows, 2)
	assert.Equal(t, "t1", resp.Workflows[0].Token, "the creator receives the tokens")
}

func TestHandler_ListsNeverNull(t *testing.T) {
	svc := new(MockService)
	svc.On("GetPendingSignatures", mock.Anything, "nobody@example.com").Return([]SignatureWorkflow(nil), nil)
	svc.On("ListExpiredWorkflows", mock.Anything).Return([]SignatureWorkflow(nil), nil)
	router := newTestRouter(svc)

	for _, path := range []string{"/api/v1/workflows/pending?email=nobody@example.com", "/api/v1/workflows/expired"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"workflows":[]}`, rec.Body.String())
	}
}

func TestHandler_Reject(t *testing.T) {
	svc := new(MockService)
	svc.On("RejectSignature", mock.Anything, "tok", "not mine", mock.Anything).
		Return(&SignatureWorkflow{Token: "tok", Status: StatusRejected}, nil)
	svc.On("RejectSignature", mock.Anything, "tok2", "", mock.Anything).
		Return(nil, ErrWorkflowNotPending)
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/tok/reject", strings.NewReader(`{"reason":"not mine"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"token"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/workflows/tok2/reject", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	svc.AssertExpectations(t)
}
