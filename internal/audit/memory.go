package audit

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogRecorder keeps entries in memory and writes each one to the log.
type LogRecorder struct {
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[uuid.UUID][]Entry
}

func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	return &LogRecorder{logger: logger, entries: make(map[uuid.UUID][]Entry)}
}

func (r *LogRecorder) Record(_ context.Context, entry Entry) error {
	entry.fill()
	r.mu.Lock()
	r.entries[entry.DocumentID] = append(r.entries[entry.DocumentID], entry)
	r.mu.Unlock()

	r.logger.Info("Document access",
		zap.String("document_id", entry.DocumentID.String()),
		zap.String("action", string(entry.Action)),
		zap.String("actor", entry.Actor),
		zap.String("ip_address", entry.IPAddress))
	return nil
}

func (r *LogRecorder) List(_ context.Context, documentID uuid.UUID) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := slices.Clone(r.entries[documentID])
	slices.SortStableFunc(out, func(a, b Entry) int { return a.OccurredAt.Compare(b.OccurredAt) })
	return out, nil
}
