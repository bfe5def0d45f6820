package documents

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"esign-portal/esign-backend/internal/auth"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Middleware lets the caller attach authentication and rate limiting.
type Middleware struct {
	Authenticated gin.HandlerFunc
	SignLimit     gin.HandlerFunc
	RejectLimit   gin.HandlerFunc
}

func chain(mw gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	if mw == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{mw, h}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, mw Middleware) {
	docs := rg.Group("/documents")
	{
		docs.POST("/upload", chain(mw.Authenticated, h.Upload)...)
		docs.POST("/sign", chain(mw.SignLimit, h.Sign)...)
		docs.GET("/:id", h.Get)
		docs.GET("/:id/download", h.Download)
		docs.GET("/:id/verify", h.Verify)
		docs.GET("/:id/workflow", h.GetWorkflow)
	}

	wf := rg.Group("/workflows")
	{
		wf.POST("", chain(mw.Authenticated, h.CreateWorkflow)...)
		wf.GET("/pending", h.Pending)
		wf.GET("/expired", chain(mw.Authenticated, h.Expired)...)
		wf.POST("/:token/reject", chain(mw.RejectLimit, h.Reject)...)
	}
}

func clientInfo(c *gin.Context) ClientInfo {
	return ClientInfo{
		Actor:     auth.Subject(c),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrInvalidToken):
		return http.StatusNotFound
	case errors.Is(err, ErrWorkflowNotPending):
		return http.StatusConflict
	case errors.Is(err, ErrWorkflowExpired):
		return http.StatusGone
	case errors.Is(err, ErrDocumentNotSigned):
		return http.StatusPreconditionFailed
	case errors.Is(err, ErrMissingSignatureMaterial),
		errors.Is(err, ErrUnsupportedSignatureKind),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrCertificateLoad), errors.Is(err, ErrNoCertificateFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func readFormFile(c *gin.Context, field string) ([]byte, error) {
	file, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return readMultipart(file)
}

func readMultipart(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	content, err := readMultipart(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.service.UploadDocument(c.Request.Context(), UploadRequest{
		Name:     file.Filename,
		MimeType: file.Header.Get("Content-Type"),
		Content:  content,
		Client:   clientInfo(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) Sign(c *gin.Context) {
	docID, err := uuid.Parse(c.PostForm("document_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_id is required"})
		return
	}
	kind := SignatureKind(c.DefaultPostForm("signature_type", string(KindSimple)))

	placement, err := placementFromForm(c, kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	image, err := readFormFile(c, "signature_image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	certificate, err := readFormFile(c, "certificate")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	detail, err := h.service.SignDocument(c.Request.Context(), SignRequest{
		DocumentID:  docID,
		SignerName:  c.PostForm("signer_name"),
		SignerEmail: c.PostForm("signer_email"),
		Kind:        kind,
		Materials: SigningMaterials{
			Image:       image,
			Certificate: certificate,
			Passphrase:  c.PostForm("certificate_password"),
		},
		Placement: placement,
		Token:     c.PostForm("token"),
		Client:    clientInfo(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// placementFromForm starts from the kind's default placement and applies
// the fields present in the form.
func placementFromForm(c *gin.Context, kind SignatureKind) (*Placement, error) {
	p := DefaultPlacement(kind)
	set := false

	if v, ok := c.GetPostForm("page"); ok && v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid page: %q", v)
		}
		p.Page = page
		set = true
	}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"x", &p.X}, {"y", &p.Y}, {"width", &p.Width}, {"height", &p.Height},
	}
	for _, f := range fields {
		v, ok := c.GetPostForm(f.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", f.name, v)
		}
		*f.dst = n
		set = true
	}
	if !set {
		return nil, nil
	}
	return &p, nil
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	detail, err := h.service.GetDocument(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) Download(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	dl, err := h.service.DownloadSigned(c.Request.Context(), id, clientInfo(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Name))
	c.Data(http.StatusOK, "application/pdf", dl.Data)
}

func (h *Handler) Verify(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	result, err := h.service.VerifyDocument(c.Request.Context(), id, clientInfo(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetWorkflow(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	slots, err := h.service.GetDocumentWorkflows(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": nonNil(slots)})
}

func (h *Handler) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slots, err := h.service.CreateWorkflow(c.Request.Context(), req, clientInfo(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"workflows": slots})
}

func (h *Handler) Pending(c *gin.Context) {
	slots, err := h.service.GetPendingSignatures(c.Request.Context(), c.Query("email"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": nonNil(slots)})
}

func (h *Handler) Expired(c *gin.Context) {
	slots, err := h.service.ListExpiredWorkflows(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": nonNil(slots)})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(c *gin.Context) {
	var req rejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	slot, err := h.service.RejectSignature(c.Request.Context(), c.Param("token"), req.Reason, clientInfo(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	slot.Token = ""
	c.JSON(http.StatusOK, slot)
}

func nonNil(slots []SignatureWorkflow) []SignatureWorkflow {
	if slots == nil {
		return []SignatureWorkflow{}
	}
	return slots
}
