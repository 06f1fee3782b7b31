package domain

import (
	"errors"
	"testing"
)

func TestNextAccountStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current AccountStatus
		event   SessionEventType
		want    AccountStatus
		wantErr error
	}{
		{name: "qr while initializing", current: AccountStatusInitializing, event: SessionEventQR, want: AccountStatusAwaitingPairing},
		{name: "ready after pairing", current: AccountStatusAwaitingPairing, event: SessionEventReady, want: AccountStatusReady},
		{name: "ready while running stays running", current: AccountStatusRunning, event: SessionEventReady, want: AccountStatusRunning},
		{name: "disconnect while running", current: AccountStatusRunning, event: SessionEventDisconnected, want: AccountStatusDisconnected},
		{name: "reconnect after disconnect", current: AccountStatusDisconnected, event: SessionEventReady, want: AccountStatusReady},
		{name: "auth failure", current: AccountStatusAwaitingPairing, event: SessionEventAuthFailure, want: AccountStatusError},
		{name: "qr while running", current: AccountStatusRunning, event: SessionEventQR, wantErr: ErrConflict},
		{name: "unknown event", current: AccountStatusReady, event: SessionEventType("message"), wantErr: ErrValidation},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := NextAccountStatus(tt.current, tt.event)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NextAccountStatus() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NextAccountStatus() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("NextAccountStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateAccountID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"main", "acc_2", "sales-01"} {
		if err := ValidateAccountID(id); err != nil {
			t.Fatalf("ValidateAccountID(%q) unexpected error = %v", id, err)
		}
	}
	for _, id := range []string{"", "../etc", "with space"} {
		if err := ValidateAccountID(id); !errors.Is(err, ErrValidation) {
			t.Fatalf("ValidateAccountID(%q) error = %v, want ErrValidation", id, err)
		}
	}
}

func TestParseSessionEventTypeFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseSessionEventTypeFromString(" READY ")
	if err != nil {
		t.Fatalf("ParseSessionEventTypeFromString() unexpected error = %v", err)
	}
	if got != SessionEventReady {
		t.Fatalf("ParseSessionEventTypeFromString() = %s, want ready", got)
	}
	if _, err := ParseSessionEventTypeFromString("message"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseSessionEventTypeFromString() error = %v, want ErrValidation", err)
	}
}
