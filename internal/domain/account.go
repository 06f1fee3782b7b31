package domain

import (
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// AccountStatus is the lifecycle state of one messaging session.
type AccountStatus string

const (
	AccountStatusInitializing    AccountStatus = "initializing"
	AccountStatusAwaitingPairing AccountStatus = "awaiting_pairing"
	AccountStatusReady           AccountStatus = "ready"
	AccountStatusRunning         AccountStatus = "running"
	AccountStatusDisconnected    AccountStatus = "disconnected"
	AccountStatusError           AccountStatus = "error"
)

func (s AccountStatus) String() string { return string(s) }

func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusInitializing, AccountStatusAwaitingPairing, AccountStatusReady,
		AccountStatusRunning, AccountStatusDisconnected, AccountStatusError:
		return true
	}
	return false
}

// CanRunBatch reports whether the orchestrator may start a batch.
func (s AccountStatus) CanRunBatch() bool {
	return s == AccountStatusReady
}

// SessionEventType is an event delivered by the external session collaborator.
type SessionEventType string

const (
	SessionEventQR           SessionEventType = "qr"
	SessionEventReady        SessionEventType = "ready"
	SessionEventDisconnected SessionEventType = "disconnected"
	SessionEventAuthFailure  SessionEventType = "auth_failure"
)

func (t SessionEventType) IsValid() bool {
	switch t {
	case SessionEventQR, SessionEventReady, SessionEventDisconnected, SessionEventAuthFailure:
		return true
	}
	return false
}

func ParseSessionEventTypeFromString(s string) (SessionEventType, error) {
	t := SessionEventType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid session event %q", ErrValidation, s)
	}
	return t, nil
}

// SessionEvent carries the QR payload for qr events and a reason otherwise.
type SessionEvent struct {
	Type   SessionEventType `json:"type"`
	QRCode string           `json:"qr,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

// NextAccountStatus applies a session event to the current status.
// A ready event while running keeps the account running.
func NextAccountStatus(current AccountStatus, event SessionEventType) (AccountStatus, error) {
	switch event {
	case SessionEventQR:
		if current == AccountStatusRunning {
			return "", fmt.Errorf("%w: qr event while running", ErrConflict)
		}
		return AccountStatusAwaitingPairing, nil
	case SessionEventReady:
		if current == AccountStatusRunning {
			return AccountStatusRunning, nil
		}
		return AccountStatusReady, nil
	case SessionEventDisconnected:
		return AccountStatusDisconnected, nil
	case SessionEventAuthFailure:
		return AccountStatusError, nil
	}
	return "", fmt.Errorf("%w: invalid session event %q", ErrValidation, event)
}

var accountIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func ValidateAccountID(id string) error {
	err := validation.Validate(id,
		validation.Required,
		validation.Length(1, 64),
		validation.Match(accountIDPattern),
	)
	if err != nil {
		return fmt.Errorf("%w: account id: %v", ErrValidation, err)
	}
	return nil
}
