package documents

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the entity store. Lookups of missing rows return nil, nil.
type Repository interface {
	// WithTx runs fn in a transaction. Returning an error rolls it back.
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	// LockDocument reads a document and holds it until the transaction ends.
	LockDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	UpdateDocument(ctx context.Context, doc *Document) error

	CreateSignature(ctx context.Context, sig *Signature) error
	ListSignatures(ctx context.Context, documentID uuid.UUID) ([]Signature, error)

	CreateWorkflows(ctx context.Context, slots []SignatureWorkflow) error
	UpdateWorkflow(ctx context.Context, slot *SignatureWorkflow) error
	GetWorkflowByToken(ctx context.Context, token string) (*SignatureWorkflow, error)
	LockWorkflowByToken(ctx context.Context, token string) (*SignatureWorkflow, error)
	// ListWorkflows returns a document's slots ordered by sign order.
	ListWorkflows(ctx context.Context, documentID uuid.UUID) ([]SignatureWorkflow, error)
	ListPendingWorkflowsByEmail(ctx context.Context, email string) ([]SignatureWorkflow, error)
	ListExpiredWorkflows(ctx context.Context, now time.Time) ([]SignatureWorkflow, error)
	// ListRemindableWorkflows returns unexpired PENDING slots last notified
	// at or before notifiedBefore.
	ListRemindableWorkflows(ctx context.Context, now, notifiedBefore time.Time) ([]SignatureWorkflow, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Migrate creates or updates the document tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func (r *gormRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreateDocument(ctx context.Context, doc *Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *gormRepository) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	return found(&doc, err)
}

func (r *gormRepository) LockDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&doc, "id = ?", id).Error
	return found(&doc, err)
}

func (r *gormRepository) UpdateDocument(ctx context.Context, doc *Document) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

func (r *gormRepository) CreateSignature(ctx context.Context, sig *Signature) error {
	return r.db.WithContext(ctx).Create(sig).Error
}

func (r *gormRepository) ListSignatures(ctx context.Context, documentID uuid.UUID) ([]Signature, error) {
	var sigs []Signature
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("signed_at ASC").
		Find(&sigs).Error
	return sigs, err
}

func (r *gormRepository) CreateWorkflows(ctx context.Context, slots []SignatureWorkflow) error {
	if len(slots) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&slots).Error
}

func (r *gormRepository) UpdateWorkflow(ctx context.Context, slot *SignatureWorkflow) error {
	return r.db.WithContext(ctx).Save(slot).Error
}

func (r *gormRepository) GetWorkflowByToken(ctx context.Context, token string) (*SignatureWorkflow, error) {
	var slot SignatureWorkflow
	err := r.db.WithContext(ctx).First(&slot, "token = ?", token).Error
	return found(&slot, err)
}

func (r *gormRepository) LockWorkflowByToken(ctx context.Context, token string) (*SignatureWorkflow, error) {
	var slot SignatureWorkflow
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&slot, "token = ?", token).Error
	return found(&slot, err)
}

func (r *gormRepository) ListWorkflows(ctx context.Context, documentID uuid.UUID) ([]SignatureWorkflow, error) {
	var slots []SignatureWorkflow
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("sign_order ASC").Order("created_at ASC").
		Find(&slots).Error
	return slots, err
}

func (r *gormRepository) ListPendingWorkflowsByEmail(ctx context.Context, email string) ([]SignatureWorkflow, error) {
	var slots []SignatureWorkflow
	err := r.db.WithContext(ctx).
		Where("signer_email = ? AND status = ?", email, StatusPending).
		Order("created_at ASC").
		Find(&slots).Error
	return slots, err
}

func (r *gormRepository) ListExpiredWorkflows(ctx context.Context, now time.Time) ([]SignatureWorkflow, error) {
	var slots []SignatureWorkflow
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", StatusPending, now).
		Order("expires_at ASC").
		Find(&slots).Error
	return slots, err
}

func (r *gormRepository) ListRemindableWorkflows(ctx context.Context, now, notifiedBefore time.Time) ([]SignatureWorkflow, error) {
	var slots []SignatureWorkflow
	err := r.db.WithContext(ctx).
		Where("status = ? AND notified_at IS NOT NULL AND notified_at <= ?", StatusPending, notifiedBefore).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("notified_at ASC").
		Find(&slots).Error
	return slots, err
}

func found[T any](v *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
