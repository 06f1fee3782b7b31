package queue

import (
	"fmt"
	"time"

	"github.com/kursadbilgin/group-enroller/internal/domain"
)

// BatchTriggerMessage asks a worker to start one batch for an account.
type BatchTriggerMessage struct {
	AccountID     string    `json:"accountId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	RequestedAt   time.Time `json:"requestedAt"`
}

func (m BatchTriggerMessage) Validate() error {
	if err := domain.ValidateAccountID(m.AccountID); err != nil {
		return fmt.Errorf("accountId: %w", err)
	}
	if m.RequestedAt.IsZero() {
		return fmt.Errorf("requestedAt is required")
	}
	return nil
}
