// Package messaging sends outbound WhatsApp messages through the circuit
// breaker and records accepted sends against the tenant's daily quota.
package messaging

import (
	"context"
	"log/slog"

	"gatekeeper/internal/circuit"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// Message is one outbound WhatsApp message.
type Message struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Sender is the WhatsApp provider client. Implementations live outside this
// module; tests use a fake.
type Sender interface {
	Send(ctx context.Context, tenantID id.TenantID, msg Message) (messageID string, err error)
}

// QuotaRecorder consumes one unit of the tenant's daily outbound quota.
type QuotaRecorder interface {
	IncrementOutboundMessages(ctx context.Context, tenantID id.TenantID) error
}

// Service wraps the provider call in the breaker protocol: ask before
// calling, report the outcome after.
type Service struct {
	sender  Sender
	breaker *circuit.Breaker
	quota   QuotaRecorder
	logger  *slog.Logger
}

func New(sender Sender, breaker *circuit.Breaker, quota QuotaRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sender: sender, breaker: breaker, quota: quota, logger: logger}
}

// SendMessage delivers one message. A rejection by the breaker surfaces as
// CodeUnavailable without touching the provider. Provider failures feed the
// breaker's failure count; successes feed its recovery count.
func (s *Service) SendMessage(ctx context.Context, tenantID id.TenantID, msg Message) (string, error) {
	ok, err := s.breaker.CanExecute(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "circuit state unavailable")
	}
	if !ok {
		return "", dErrors.New(dErrors.CodeUnavailable, "messaging provider unavailable")
	}

	messageID, err := s.sender.Send(ctx, tenantID, msg)
	if err != nil {
		if recErr := s.breaker.RecordFailure(ctx); recErr != nil {
			s.logger.Error("failed to record provider failure", "error", recErr)
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "message send failed")
	}
	if recErr := s.breaker.RecordSuccess(ctx); recErr != nil {
		s.logger.Error("failed to record provider success", "error", recErr)
	}

	// The provider accepted the message, so it counts against the daily
	// quota even if the quota write fails.
	if err := s.quota.IncrementOutboundMessages(ctx, tenantID); err != nil {
		s.logger.Error("failed to record outbound message", "error", err, "tenant_id", tenantID)
	}
	return messageID, nil
}
