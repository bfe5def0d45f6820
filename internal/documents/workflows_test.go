package documents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esign-portal/esign-backend/internal/notifications"
)

func TestAggregateStatus(t *testing.T) {
	slot := func(s Status) SignatureWorkflow { return SignatureWorkflow{Status: s} }

	tests := []struct {
		name       string
		slots      []SignatureWorkflow
		signatures int
		want       Status
	}{
		{"no slots and no signature", nil, 0, StatusPending},
		{"no slots and one signature", nil, 1, StatusSigned},
		{"all signed", []SignatureWorkflow{slot(StatusSigned), slot(StatusSigned)}, 0, StatusSigned},
		{"one pending", []SignatureWorkflow{slot(StatusSigned), slot(StatusPending)}, 2, StatusPending},
		{"rejection short-circuits", []SignatureWorkflow{slot(StatusRejected), slot(StatusPending)}, 0, StatusRejected},
		{"rejection beats signatures", []SignatureWorkflow{slot(StatusSigned), slot(StatusRejected)}, 0, StatusRejected},
		{"expired slot blocks signing", []SignatureWorkflow{slot(StatusSigned), slot(StatusExpired)}, 0, StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateStatus(StatusPending, tt.slots, tt.signatures))
		})
	}
}

func TestCreateWorkflow_InvitesFirstOrderOnly(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, 1)

	slots := f.workflow(t, doc.ID, intPtr(7),
		SignerSpec{Name: "Ann", Email: "ann@example.com", Order: 1},
		SignerSpec{Name: "Ben", Email: "ben@example.com", Order: 1, RequiredKind: KindAdvanced},
		SignerSpec{Name: "Cid", Email: "cid@example.com", Order: 2},
	)
	require.Len(t, slots, 3)

	assert.ElementsMatch(t, []string{"ann@example.com", "ben@example.com"}, f.notifier.invitedEmails())
	assert.Contains(t, f.notifier.eventTypes(), notifications.EventWorkflowCreated)

	tokens := map[string]bool{}
	wantExpiry := f.clock.Now().AddDate(0, 0, 7)
	for _, s := range slots {
		assert.Equal(t, StatusPending, s.Status)
		assert.NotEmpty(t, s.Token)
		tokens[s.Token] = true
		require.NotNil(t, s.ExpiresAt)
		assert.True(t, wantExpiry.Equal(*s.ExpiresAt))
	}
	assert.Len(t, tokens, 3, "tokens are unique")
	assert.Equal(t, KindSimple, slots[0].RequiredKind)
	assert.NotNil(t, slots[0].NotifiedAt)
	assert.Nil(t, slots[2].NotifiedAt)

	stored := f.document(t, doc.ID)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, wantExpiry.Equal(*stored.ExpiresAt))

	listed, err := f.service.GetDocumentWorkflows(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, 2, listed[2].SignOrder)
	for _, s := range listed {
		assert.Empty(t, s.Token, "listed slots never expose tokens")
	}
}

func TestCreateWorkflow_Validation(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, 1)
	ctx := context.Background()

	cases := map[string]CreateWorkflowRequest{
		"no signers":    {DocumentID: doc.ID},
		"missing email": {DocumentID: doc.ID, Signers: []SignerSpec{{Name: "x", Order: 1}}},
		"order zero":    {DocumentID: doc.ID, Signers: []SignerSpec{{Email: "x@example.com"}}},
		"unknown kind":  {DocumentID: doc.ID, Signers: []SignerSpec{{Email: "x@example.com", Order: 1, RequiredKind: "WET"}}},
		"negative days": {DocumentID: doc.ID, Signers: []SignerSpec{{Email: "x@example.com", Order: 1}}, ExpirationDays: intPtr(-1)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.CreateWorkflow(ctx, req, ClientInfo{})
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	_, err := f.service.CreateWorkflow(ctx, CreateWorkflowRequest{
		DocumentID: uuid.New(),
		Signers:    []SignerSpec{{Email: "x@example.com", Order: 1}},
	}, ClientInfo{})
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Empty(t, f.notifier.invitedEmails())
}

func TestRedeem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.upload(t, 1)
	other := f.upload(t, 1)
	slots := f.workflow(t, doc.ID, nil, SignerSpec{Email: "ann@example.com", Order: 1})

	_, err := f.engine.Redeem(ctx, "no-such-token", doc.ID)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.engine.Redeem(ctx, slots[0].Token, other.ID)
	assert.ErrorIs(t, err, ErrInvalidToken, "tokens are bound to their document")

	slot, err := f.engine.Redeem(ctx, slots[0].Token, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, slots[0].ID, slot.ID)
	assert.Equal(t, StatusPending, f.slot(t, slots[0].Token).Status, "redeeming alone does not transition")
}

func TestRedeem_NotPendingNeverMutates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.upload(t, 1)
	slots := f.workflow(t, doc.ID, nil, SignerSpec{Email: "ann@example.com", Order: 1})

	_, err := f.service.RejectSignature(ctx, slots[0].Token, "wrong amount", ClientInfo{})
	require.NoError(t, err)
	before := f.slot(t, slots[0].Token)

	for range 2 {
		_, err = f.engine.Redeem(ctx, slots[0].Token, doc.ID)
		assert.ErrorIs(t, err, ErrWorkflowNotPending)
	}
	_, err = f.service.SignDocument(ctx, simpleSign(t, doc.ID, "Ann", slots[0].Token))
	assert.ErrorIs(t, err, ErrWorkflowNotPending)

	assert.Equal(t, before, f.slot(t, slots[0].Token))
}

func TestRedeem_ExpiresOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.upload(t, 1)
	slots := f.workflow(t, doc.ID, intPtr(1), SignerSpec{Email: "ann@example.com", Order: 1})

	f.clock.Advance(25 * time.Hour)

	expired, err := f.service.ListExpiredWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1, "listing expired slots is a pure query")
	assert.Equal(t, StatusPending, f.slot(t, slots[0].Token).Status)

	_, err = f.service.SignDocument(ctx, simpleSign(t, doc.ID, "Ann", slots[0].Token))
	assert.ErrorIs(t, err, ErrWorkflowExpired)

	slot := f.slot(t, slots[0].Token)
	assert.Equal(t, StatusExpired, slot.Status, "expiry is recorded although the operation failed")
	assert.NotNil(t, slot.CompletedAt)

	_, err = f.service.SignDocument(ctx, simpleSign(t, doc.ID, "Ann", slots[0].Token))
	assert.ErrorIs(t, err, ErrWorkflowNotPending)

	expiredEvents := 0
	for _, typ := range f.notifier.eventTypes() {
		if typ == notifications.EventSlotExpired {
			expiredEvents++
		}
	}
	assert.Equal(t, 1, expiredEvents)

	sigs, err := f.repo.ListSignatures(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, sigs)
	assert.Equal(t, 1, f.blobs.Len(), "only the original upload is stored")

	expired, err = f.service.ListExpiredWorkflows(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestSign_NotifiesNextOrderExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.upload(t, 1)
	slots := f.workflow(t, doc.ID, nil,
		SignerSpec{Email: "a1@example.com", Order: 1},
		SignerSpec{Email: "b1@example.com", Order: 2},
		SignerSpec{Email: "b2@example.com", Order: 2},
		SignerSpec{Email: "c1@example.com", Order: 3},
	)
	f.notifier.invitedEmails()

	_, err := f.service.SignDocument(ctx, simpleSign(t, doc.ID, "a1", slots[0].Token))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b1@example.com", "b2@example.com"}, f.notifier.invitedEmails())
	assert.NotNil(t, f.slot(t, slots[1].Token).NotifiedAt)
	assert.Nil(t, f.slot(t, slots[3].Token).NotifiedAt)

	_, err = f.service.SignDocument(ctx, simpleSign(t, doc.ID, "b1", slots[1].Token))
	require.NoError(t, err)
	assert.Equal(t, []string{"c1@example.com"}, f.notifier.invitedEmails())
	assert.Equal(t, StatusPending, f.document(t, doc.ID).Status)
}

func TestReject_ShortCircuitsDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.upload(t, 1)
	slots := f.workflow(t, doc.ID, nil,
		SignerSpec{Email: "ann@example.com", Order: 1},
		SignerSpec{Email: "ben@example.com", Order: 2},
	)

	rejected, err := f.service.RejectSignature(ctx, slots[0].Token, "  terms changed  ", ClientInfo{})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "terms changed", *rejected.RejectionReason)

	assert.Equal(t, StatusRejected, f.document(t, doc.ID).Status)
	assert.Equal(t, StatusPending, f.slot(t, slots[1].Token).Status)
	assert.Subset(t, f.notifier.eventTypes(), []notifications.EventType{
		notifications.EventSlotRejected, notifications.EventDocumentRejected,
	})

	_, err = f.service.RejectSignature(ctx, slots[0].Token, "again", ClientInfo{})
	assert.ErrorIs(t, err, ErrWorkflowNotPending)
	_, err = f.service.RejectSignature(ctx, "unknown", "", ClientInfo{})
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.service.SignDocument(ctx, simpleSign(t, doc.ID, "Ben", slots[1].Token))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, f.document(t, doc.ID).Status, "a rejected document stays rejected")
}

func TestReject_ExpiredSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.upload(t, 1)
	slots := f.workflow(t, doc.ID, intPtr(2), SignerSpec{Email: "ann@example.com", Order: 1})

	f.clock.Advance(72 * time.Hour)
	_, err := f.service.RejectSignature(ctx, slots[0].Token, "late", ClientInfo{})
	assert.ErrorIs(t, err, ErrWorkflowExpired)
	assert.Equal(t, StatusExpired, f.slot(t, slots[0].Token).Status)
	assert.Equal(t, StatusPending, f.document(t, doc.ID).Status)
}

func TestPendingSignatures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	docA := f.upload(t, 1)
	docB := f.upload(t, 1)
	f.workflow(t, docA.ID, nil, SignerSpec{Email: "ann@example.com", Order: 1})
	slotsB := f.workflow(t, docB.ID, nil,
		SignerSpec{Email: "ann@example.com", Order: 1},
		SignerSpec{Email: "ben@example.com", Order: 1},
	)

	_, err := f.service.RejectSignature(ctx, slotsB[0].Token, "", ClientInfo{})
	require.NoError(t, err)

	pending, err := f.service.GetPendingSignatures(ctx, "ann@example.com")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, docA.ID, pending[0].DocumentID)
	assert.Empty(t, pending[0].Token)

	_, err = f.service.GetPendingSignatures(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSendReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.upload(t, 1)
	slots := f.workflow(t, doc.ID, intPtr(10),
		SignerSpec{Email: "ann@example.com", Order: 1},
		SignerSpec{Email: "ben@example.com", Order: 1},
		SignerSpec{Email: "cid@example.com", Order: 2},
	)
	_, err := f.service.RejectSignature(ctx, slots[1].Token, "", ClientInfo{})
	require.NoError(t, err)
	f.notifier.invitedEmails()

	sent, err := f.service.SendReminders(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, sent, "invitations are too recent")

	f.clock.Advance(49 * time.Hour)
	sent, err = f.service.SendReminders(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"ann@example.com"}, f.notifier.invitedEmails())
	assert.Equal(t, StatusPending, f.slot(t, slots[0].Token).Status)

	sent, err = f.service.SendReminders(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, sent, "a reminder restarts the interval")

	f.clock.Advance(10 * 24 * time.Hour)
	sent, err = f.service.SendReminders(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, sent, "expired slots are not reminded")
	assert.Equal(t, StatusPending, f.slot(t, slots[0].Token).Status, "reminders never expire slots")
}
