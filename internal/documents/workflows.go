package documents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"esign-portal/esign-backend/internal/notifications"
	"esign-portal/esign-backend/pkg/workflows"
)

// Notifier is the outbound notification sink. Calls must not block.
type Notifier interface {
	NotifySigner(inv notifications.Invitation)
	Publish(ev notifications.Event)
}

// WorkflowEngine owns signer slots: creation, token redemption, terminal
// transitions and the document status derived from them. Callers hold the
// document lock around every mutating call.
type WorkflowEngine struct {
	repo     Repository
	machine  *workflows.StateMachine
	notifier Notifier
	clock    func() time.Time
	logger   *zap.Logger
}

func NewWorkflowEngine(repo Repository, notifier Notifier, clock func() time.Time, logger *zap.Logger) *WorkflowEngine {
	if clock == nil {
		clock = time.Now
	}
	return &WorkflowEngine{
		repo:     repo,
		machine:  workflows.NewStateMachine(),
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// outbox collects notifications while a transaction runs. They are only
// sent once it has committed.
type outbox struct {
	invitations []notifications.Invitation
	events      []notifications.Event
}

func (o *outbox) invite(doc *Document, slot SignatureWorkflow, reminder bool) {
	o.invitations = append(o.invitations, notifications.Invitation{
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		SignerName:   slot.SignerName,
		SignerEmail:  slot.SignerEmail,
		Token:        slot.Token,
		SignOrder:    slot.SignOrder,
		ExpiresAt:    slot.ExpiresAt,
		Reminder:     reminder,
	})
}

func (o *outbox) publish(typ notifications.EventType, doc *Document, slot *SignatureWorkflow, at time.Time) {
	ev := notifications.Event{
		Type:           typ,
		DocumentID:     doc.ID,
		DocumentStatus: string(doc.Status),
		OccurredAt:     at,
	}
	if slot != nil {
		ev.SignerEmail = slot.SignerEmail
		ev.SignOrder = slot.SignOrder
	}
	o.events = append(o.events, ev)
}

func (e *WorkflowEngine) flush(o *outbox) {
	if e.notifier == nil {
		return
	}
	for _, inv := range o.invitations {
		e.notifier.NotifySigner(inv)
	}
	for _, ev := range o.events {
		e.notifier.Publish(ev)
	}
}

func (e *WorkflowEngine) transition(slot *SignatureWorkflow, to Status) error {
	if !e.machine.CanTransition(string(slot.Status), string(to)) {
		return fmt.Errorf("%w: slot is %s", ErrWorkflowNotPending, slot.Status)
	}
	slot.Status = to
	return nil
}

// CreateWorkflow adds signer slots to a document and invites every signer
// with order 1.
func (e *WorkflowEngine) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) ([]SignatureWorkflow, error) {
	if err := validateSigners(req); err != nil {
		return nil, err
	}

	now := e.clock()
	var expiresAt *time.Time
	if req.ExpirationDays != nil {
		t := now.AddDate(0, 0, *req.ExpirationDays)
		expiresAt = &t
	}

	var box outbox
	var slots []SignatureWorkflow
	err := e.repo.WithTx(ctx, func(tx Repository) error {
		doc, err := tx.LockDocument(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return ErrDocumentNotFound
		}

		slots = make([]SignatureWorkflow, 0, len(req.Signers))
		for _, s := range req.Signers {
			kind := s.RequiredKind
			if kind == "" {
				kind = KindSimple
			}
			slot := SignatureWorkflow{
				ID:           uuid.New(),
				DocumentID:   doc.ID,
				SignerName:   strings.TrimSpace(s.Name),
				SignerEmail:  strings.TrimSpace(s.Email),
				SignOrder:    s.Order,
				RequiredKind: kind,
				Status:       StatusPending,
				Token:        uuid.NewString(),
				ExpiresAt:    expiresAt,
				CreatedAt:    now,
			}
			if slot.SignOrder == 1 {
				slot.NotifiedAt = &now
				box.invite(doc, slot, false)
			}
			slots = append(slots, slot)
		}
		if err := tx.CreateWorkflows(ctx, slots); err != nil {
			return err
		}

		if expiresAt != nil {
			doc.ExpiresAt = expiresAt
			if err := tx.UpdateDocument(ctx, doc); err != nil {
				return err
			}
		}
		box.publish(notifications.EventWorkflowCreated, doc, nil, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Workflow created",
		zap.String("document_id", req.DocumentID.String()),
		zap.Int("signers", len(slots)),
		zap.Int("invited", len(box.invitations)))
	e.flush(&box)
	return slots, nil
}

func validateSigners(req CreateWorkflowRequest) error {
	if len(req.Signers) == 0 {
		return invalidRequest("at least one signer is required")
	}
	if req.ExpirationDays != nil && *req.ExpirationDays <= 0 {
		return invalidRequest("expiration_days must be positive")
	}
	for i, s := range req.Signers {
		if strings.TrimSpace(s.Email) == "" {
			return invalidRequest("signer %d: email is required", i)
		}
		if s.Order < 1 {
			return invalidRequest("signer %d: order must be at least 1", i)
		}
		if s.RequiredKind != "" && !s.RequiredKind.Valid() {
			return invalidRequest("signer %d: unknown signature kind %q", i, s.RequiredKind)
		}
	}
	return nil
}

// Redeem checks that a token opens a PENDING, unexpired slot of the
// document. An expired slot is durably moved to EXPIRED before
// ErrWorkflowExpired is returned.
func (e *WorkflowEngine) Redeem(ctx context.Context, token string, documentID uuid.UUID) (*SignatureWorkflow, error) {
	var slot *SignatureWorkflow
	expired := false

	err := e.repo.WithTx(ctx, func(tx Repository) error {
		var err error
		slot, err = e.lockPending(ctx, tx, token, documentID)
		if err != nil {
			return err
		}
		if slot.expiredAt(e.clock()) {
			expired = true
			return e.expire(ctx, tx, slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		e.announceExpiry(ctx, slot)
		return nil, ErrWorkflowExpired
	}
	return slot, nil
}

func (e *WorkflowEngine) lockPending(ctx context.Context, tx Repository, token string, documentID uuid.UUID) (*SignatureWorkflow, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	slot, err := tx.LockWorkflowByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if slot == nil || (documentID != uuid.Nil && slot.DocumentID != documentID) {
		return nil, ErrInvalidToken
	}
	if slot.Status != StatusPending {
		return nil, fmt.Errorf("%w: slot is %s", ErrWorkflowNotPending, slot.Status)
	}
	return slot, nil
}

func (e *WorkflowEngine) expire(ctx context.Context, tx Repository, slot *SignatureWorkflow) error {
	if err := e.transition(slot, StatusExpired); err != nil {
		return err
	}
	now := e.clock()
	slot.CompletedAt = &now
	return tx.UpdateWorkflow(ctx, slot)
}

// announceExpiry publishes the expiry. An expired slot never changes the
// document status, so the document is read outside the transaction.
func (e *WorkflowEngine) announceExpiry(ctx context.Context, slot *SignatureWorkflow) {
	e.logger.Info("Workflow slot expired",
		zap.String("document_id", slot.DocumentID.String()),
		zap.String("signer_email", slot.SignerEmail))

	doc, err := e.repo.GetDocument(ctx, slot.DocumentID)
	if err != nil || doc == nil {
		return
	}
	var box outbox
	box.publish(notifications.EventSlotExpired, doc, slot, e.clock())
	e.flush(&box)
}

// complete marks the slot owning token SIGNED inside the caller's
// transaction, links the signature, and invites the next order.
func (e *WorkflowEngine) complete(ctx context.Context, tx Repository, doc *Document, token string, sig *Signature, box *outbox) error {
	slot, err := e.lockPending(ctx, tx, token, doc.ID)
	if err != nil {
		return err
	}
	if err := e.transition(slot, StatusSigned); err != nil {
		return err
	}
	now := e.clock()
	slot.SignatureID = &sig.ID
	slot.CompletedAt = &now
	if err := tx.UpdateWorkflow(ctx, slot); err != nil {
		return err
	}

	slots, err := tx.ListWorkflows(ctx, doc.ID)
	if err != nil {
		return err
	}
	for _, next := range slots {
		if next.ID == slot.ID || next.Status != StatusPending || next.SignOrder != slot.SignOrder+1 {
			continue
		}
		next.NotifiedAt = &now
		if err := tx.UpdateWorkflow(ctx, &next); err != nil {
			return err
		}
		box.invite(doc, next, false)
	}
	box.publish(notifications.EventSlotSigned, doc, slot, now)
	return nil
}

// Reject moves the slot owning token to REJECTED and the document with it.
func (e *WorkflowEngine) Reject(ctx context.Context, token, reason string) (*SignatureWorkflow, error) {
	found, err := e.repo.GetWorkflowByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrInvalidToken
	}

	var box outbox
	var slot *SignatureWorkflow
	expired := false
	err = e.repo.WithTx(ctx, func(tx Repository) error {
		doc, err := tx.LockDocument(ctx, found.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return ErrDocumentNotFound
		}
		slot, err = e.lockPending(ctx, tx, token, doc.ID)
		if err != nil {
			return err
		}
		now := e.clock()
		if slot.expiredAt(now) {
			expired = true
			return e.expire(ctx, tx, slot)
		}

		if err := e.transition(slot, StatusRejected); err != nil {
			return err
		}
		if reason = strings.TrimSpace(reason); reason != "" {
			slot.RejectionReason = &reason
		}
		slot.CompletedAt = &now
		if err := tx.UpdateWorkflow(ctx, slot); err != nil {
			return err
		}

		changed, err := e.recompute(ctx, tx, doc)
		if err != nil {
			return err
		}
		box.publish(notifications.EventSlotRejected, doc, slot, now)
		if changed && doc.Status == StatusRejected {
			box.publish(notifications.EventDocumentRejected, doc, nil, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		e.announceExpiry(ctx, slot)
		return nil, ErrWorkflowExpired
	}

	e.logger.Info("Signature rejected",
		zap.String("document_id", slot.DocumentID.String()),
		zap.String("signer_email", slot.SignerEmail))
	e.flush(&box)
	return slot, nil
}

// recompute derives the document status from its slots and signatures and
// saves the document. It reports whether the status changed.
func (e *WorkflowEngine) recompute(ctx context.Context, tx Repository, doc *Document) (bool, error) {
	slots, err := tx.ListWorkflows(ctx, doc.ID)
	if err != nil {
		return false, err
	}
	signatures := 0
	if len(slots) == 0 {
		sigs, err := tx.ListSignatures(ctx, doc.ID)
		if err != nil {
			return false, err
		}
		signatures = len(sigs)
	}

	previous := doc.Status
	doc.Status = AggregateStatus(doc.Status, slots, signatures)
	if err := tx.UpdateDocument(ctx, doc); err != nil {
		return false, err
	}
	return doc.Status != previous, nil
}

// AggregateStatus derives a document's status. Without slots one signature
// signs the document. With slots any REJECTED slot rejects it and it is
// SIGNED once every slot is. Otherwise the status is unchanged.
func AggregateStatus(current Status, slots []SignatureWorkflow, signatures int) Status {
	if len(slots) == 0 {
		if signatures > 0 {
			return StatusSigned
		}
		return current
	}

	allSigned := true
	for _, s := range slots {
		if s.Status == StatusRejected {
			return StatusRejected
		}
		if s.Status != StatusSigned {
			allSigned = false
		}
	}
	if allSigned {
		return StatusSigned
	}
	return current
}

// Workflows returns a document's slots without tokens.
func (e *WorkflowEngine) Workflows(ctx context.Context, documentID uuid.UUID) ([]SignatureWorkflow, error) {
	slots, err := e.repo.ListWorkflows(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return redacted(slots), nil
}

// Pending returns the PENDING slots addressed to email, without tokens.
func (e *WorkflowEngine) Pending(ctx context.Context, email string) ([]SignatureWorkflow, error) {
	slots, err := e.repo.ListPendingWorkflowsByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	return redacted(slots), nil
}

// Expired lists PENDING slots past their expiry. It never transitions them.
func (e *WorkflowEngine) Expired(ctx context.Context) ([]SignatureWorkflow, error) {
	slots, err := e.repo.ListExpiredWorkflows(ctx, e.clock())
	if err != nil {
		return nil, err
	}
	return redacted(slots), nil
}

// Remindable lists slots whose last invitation is older than interval.
func (e *WorkflowEngine) Remindable(ctx context.Context, interval time.Duration) ([]SignatureWorkflow, error) {
	now := e.clock()
	return e.repo.ListRemindableWorkflows(ctx, now, now.Add(-interval))
}

// Remind re-sends the invitation of a slot that is still PENDING. Its
// status is never changed.
func (e *WorkflowEngine) Remind(ctx context.Context, token string) (bool, error) {
	var box outbox
	err := e.repo.WithTx(ctx, func(tx Repository) error {
		found, err := tx.GetWorkflowByToken(ctx, token)
		if err != nil || found == nil {
			return err
		}
		doc, err := tx.LockDocument(ctx, found.DocumentID)
		if err != nil || doc == nil {
			return err
		}
		slot, err := tx.LockWorkflowByToken(ctx, token)
		if err != nil {
			return err
		}
		now := e.clock()
		if slot == nil || slot.Status != StatusPending || slot.expiredAt(now) {
			return nil
		}
		slot.NotifiedAt = &now
		if err := tx.UpdateWorkflow(ctx, slot); err != nil {
			return err
		}
		box.invite(doc, *slot, true)
		return nil
	})
	if err != nil {
		return false, err
	}
	e.flush(&box)
	return len(box.invitations) > 0, nil
}
