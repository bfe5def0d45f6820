package notifications

import (
	"context"

	"go.uber.org/zap"
)

// LogChannel writes invitations and events to the log. It is the delivery
// channel for local runs.
type LogChannel struct {
	logger *zap.Logger
}

func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) SendInvitation(_ context.Context, inv Invitation) error {
	c.logger.Info("Signer invitation",
		zap.String("document_id", inv.DocumentID.String()),
		zap.String("signer_email", inv.SignerEmail),
		zap.Int("sign_order", inv.SignOrder),
		zap.Bool("reminder", inv.Reminder))
	return nil
}

func (c *LogChannel) PublishEvent(_ context.Context, ev Event) error {
	c.logger.Info("Document event",
		zap.String("document_id", ev.DocumentID.String()),
		zap.String("event", string(ev.Type)),
		zap.String("status", ev.DocumentStatus))
	return nil
}
