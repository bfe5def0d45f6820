package documents

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errDuplicateToken = errors.New("duplicate workflow token")

// MemoryRepository keeps entities in process memory. Transactions are
// serialized; a failed one restores only the entries it wrote.
type MemoryRepository struct {
	txMu sync.Mutex

	mu         sync.RWMutex
	documents  map[uuid.UUID]Document
	signatures map[uuid.UUID]Signature
	workflows  map[uuid.UUID]SignatureWorkflow
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		documents:  make(map[uuid.UUID]Document),
		signatures: make(map[uuid.UUID]Signature),
		workflows:  make(map[uuid.UUID]SignatureWorkflow),
	}
}

func (r *MemoryRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	tx := &memoryTx{MemoryRepository: r}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memoryTx records the previous value of every entry it writes.
type memoryTx struct {
	*MemoryRepository
	undo []func()
}

func (tx *memoryTx) WithTx(_ context.Context, fn func(tx Repository) error) error {
	return fn(tx)
}

func (tx *memoryTx) rollback() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// remember must be called with mu held.
func remember[V any](m map[uuid.UUID]V, id uuid.UUID) func() {
	prev, existed := m[id]
	return func() {
		if existed {
			m[id] = prev
		} else {
			delete(m, id)
		}
	}
}

func (tx *memoryTx) CreateDocument(ctx context.Context, doc *Document) error {
	tx.mu.RLock()
	tx.undo = append(tx.undo, remember(tx.documents, doc.ID))
	tx.mu.RUnlock()
	return tx.MemoryRepository.CreateDocument(ctx, doc)
}

func (tx *memoryTx) UpdateDocument(ctx context.Context, doc *Document) error {
	tx.mu.RLock()
	tx.undo = append(tx.undo, remember(tx.documents, doc.ID))
	tx.mu.RUnlock()
	return tx.MemoryRepository.UpdateDocument(ctx, doc)
}

func (tx *memoryTx) CreateSignature(ctx context.Context, sig *Signature) error {
	tx.mu.RLock()
	tx.undo = append(tx.undo, remember(tx.signatures, sig.ID))
	tx.mu.RUnlock()
	return tx.MemoryRepository.CreateSignature(ctx, sig)
}

func (tx *memoryTx) CreateWorkflows(ctx context.Context, slots []SignatureWorkflow) error {
	tx.mu.RLock()
	for _, s := range slots {
		tx.undo = append(tx.undo, remember(tx.workflows, s.ID))
	}
	tx.mu.RUnlock()
	return tx.MemoryRepository.CreateWorkflows(ctx, slots)
}

func (tx *memoryTx) UpdateWorkflow(ctx context.Context, slot *SignatureWorkflow) error {
	tx.mu.RLock()
	tx.undo = append(tx.undo, remember(tx.workflows, slot.ID))
	tx.mu.RUnlock()
	return tx.MemoryRepository.UpdateWorkflow(ctx, slot)
}

func (r *MemoryRepository) CreateDocument(_ context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	r.documents[doc.ID] = *doc
	return nil
}

func (r *MemoryRepository) GetDocument(_ context.Context, id uuid.UUID) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.documents[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (r *MemoryRepository) LockDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	return r.GetDocument(ctx, id)
}

func (r *MemoryRepository) UpdateDocument(_ context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc.UpdatedAt = time.Now()
	r.documents[doc.ID] = *doc
	return nil
}

func (r *MemoryRepository) CreateSignature(_ context.Context, sig *Signature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signatures[sig.ID] = *sig
	return nil
}

func (r *MemoryRepository) ListSignatures(_ context.Context, documentID uuid.UUID) ([]Signature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Signature
	for _, s := range r.signatures {
		if s.DocumentID == documentID {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, func(a, b Signature) int { return a.SignedAt.Compare(b.SignedAt) })
	return out, nil
}

func (r *MemoryRepository) CreateWorkflows(_ context.Context, slots []SignatureWorkflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens := make(map[string]bool, len(r.workflows))
	for _, w := range r.workflows {
		tokens[w.Token] = true
	}
	for _, s := range slots {
		if tokens[s.Token] {
			return errDuplicateToken
		}
		tokens[s.Token] = true
	}
	now := time.Now()
	for _, s := range slots {
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		r.workflows[s.ID] = s
	}
	return nil
}

func (r *MemoryRepository) UpdateWorkflow(_ context.Context, slot *SignatureWorkflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[slot.ID] = *slot
	return nil
}

func (r *MemoryRepository) GetWorkflowByToken(_ context.Context, token string) (*SignatureWorkflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.workflows {
		if w.Token == token {
			return &w, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) LockWorkflowByToken(ctx context.Context, token string) (*SignatureWorkflow, error) {
	return r.GetWorkflowByToken(ctx, token)
}

func (r *MemoryRepository) ListWorkflows(_ context.Context, documentID uuid.UUID) ([]SignatureWorkflow, error) {
	out := r.filterWorkflows(func(w SignatureWorkflow) bool { return w.DocumentID == documentID })
	slices.SortStableFunc(out, func(a, b SignatureWorkflow) int {
		if a.SignOrder != b.SignOrder {
			return a.SignOrder - b.SignOrder
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) ListPendingWorkflowsByEmail(_ context.Context, email string) ([]SignatureWorkflow, error) {
	out := r.filterWorkflows(func(w SignatureWorkflow) bool {
		return w.SignerEmail == email && w.Status == StatusPending
	})
	slices.SortStableFunc(out, func(a, b SignatureWorkflow) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) ListExpiredWorkflows(_ context.Context, now time.Time) ([]SignatureWorkflow, error) {
	out := r.filterWorkflows(func(w SignatureWorkflow) bool {
		return w.Status == StatusPending && w.expiredAt(now)
	})
	slices.SortStableFunc(out, func(a, b SignatureWorkflow) int { return a.ExpiresAt.Compare(*b.ExpiresAt) })
	return out, nil
}

func (r *MemoryRepository) ListRemindableWorkflows(_ context.Context, now, notifiedBefore time.Time) ([]SignatureWorkflow, error) {
	out := r.filterWorkflows(func(w SignatureWorkflow) bool {
		return w.Status == StatusPending &&
			w.NotifiedAt != nil && !w.NotifiedAt.After(notifiedBefore) &&
			(w.ExpiresAt == nil || w.ExpiresAt.After(now))
	})
	slices.SortStableFunc(out, func(a, b SignatureWorkflow) int { return a.NotifiedAt.Compare(*b.NotifiedAt) })
	return out, nil
}

func (r *MemoryRepository) filterWorkflows(keep func(SignatureWorkflow) bool) []SignatureWorkflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SignatureWorkflow
	for _, w := range r.workflows {
		if keep(w) {
			out = append(out, w)
		}
	}
	return out
}
