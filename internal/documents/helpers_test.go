package documents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"esign-portal/esign-backend/internal/audit"
	"esign-portal/esign-backend/internal/notifications"
	"esign-portal/esign-backend/internal/testutil"
	"esign-portal/esign-backend/pkg/pdf"
	"esign-portal/esign-backend/pkg/security"
	"esign-portal/esign-backend/pkg/storage"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu          sync.Mutex
	invitations []notifications.Invitation
	events      []notifications.Event
}

func (n *recordingNotifier) NotifySigner(inv notifications.Invitation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invitations = append(n.invitations, inv)
}

func (n *recordingNotifier) Publish(ev notifications.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

// invitedEmails returns the recipients invited so far and forgets them.
func (n *recordingNotifier) invitedEmails() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.invitations))
	for i, inv := range n.invitations {
		out[i] = inv.SignerEmail
	}
	n.invitations = nil
	return out
}

func (n *recordingNotifier) eventTypes() []notifications.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifications.EventType, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	service  Service
	repo     *MemoryRepository
	blobs    *storage.MemoryStore
	notifier *recordingNotifier
	audit    *audit.LogRecorder
	clock    *testClock
	engine   *WorkflowEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:     NewMemoryRepository(),
		blobs:    storage.NewMemoryStore(),
		notifier: &recordingNotifier{},
		audit:    audit.NewLogRecorder(zap.NewNop()),
		clock:    &testClock{now: time.Now().UTC().Truncate(time.Second)},
	}
	provider := security.NewProvider(security.WithClock(f.clock.Now))
	pdfEngine := pdf.NewEngine(provider)
	store := NewStorageProvider(f.blobs)

	f.engine = NewWorkflowEngine(f.repo, f.notifier, f.clock.Now, zap.NewNop())
	f.service = NewService(
		f.repo,
		store,
		NewSignatureService(pdfEngine, security.NewCertificateExtractor(provider), provider),
		f.engine,
		NewVerificationEngine(f.repo, store, pdfEngine, f.clock.Now),
		f.audit,
		zap.NewNop(),
	)
	return f
}

func (f *fixture) upload(t *testing.T, pages int) *Document {
	t.Helper()
	doc, err := f.service.UploadDocument(context.Background(), UploadRequest{
		Name:    "contract.pdf",
		Content: testutil.PDF(t, pages),
		Client:  ClientInfo{Actor: "owner", IPAddress: "10.0.0.1"},
	})
	require.NoError(t, err)
	return doc
}

func (f *fixture) workflow(t *testing.T, docID uuid.UUID, days *int, signers ...SignerSpec) []SignatureWorkflow {
	t.Helper()
	slots, err := f.service.CreateWorkflow(context.Background(), CreateWorkflowRequest{
		DocumentID:     docID,
		Signers:        signers,
		ExpirationDays: days,
	}, ClientInfo{Actor: "owner"})
	require.NoError(t, err)
	return slots
}

func (f *fixture) slot(t *testing.T, token string) SignatureWorkflow {
	t.Helper()
	s, err := f.repo.GetWorkflowByToken(context.Background(), token)
	require.NoError(t, err)
	require.NotNil(t, s)
	return *s
}

func (f *fixture) document(t *testing.T, id uuid.UUID) Document {
	t.Helper()
	d, err := f.repo.GetDocument(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, d)
	return *d
}

func simpleSign(t *testing.T, docID uuid.UUID, name, token string) SignRequest {
	return SignRequest{
		DocumentID:  docID,
		SignerName:  name,
		SignerEmail: name + "@example.com",
		Kind:        KindSimple,
		Materials:   SigningMaterials{Image: testutil.PNG(t, 30, 10)},
		Token:       token,
		Client:      ClientInfo{IPAddress: "192.0.2.10", UserAgent: "test-agent"},
	}
}

func intPtr(v int) *int { return &v }
