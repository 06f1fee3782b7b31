package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// EnrollmentStatus is the outcome classification of one contact attempt.
type EnrollmentStatus string

const (
	EnrollmentStatusPending           EnrollmentStatus = "PENDING"
	EnrollmentStatusValid             EnrollmentStatus = "VALID"
	EnrollmentStatusUnregistered      EnrollmentStatus = "UNREGISTERED"
	EnrollmentStatusPrivateInviteOnly EnrollmentStatus = "PRIVATE_INVITE_ONLY"
	EnrollmentStatusUnknownError      EnrollmentStatus = "UNKNOWN_ERROR"
)

func (s EnrollmentStatus) String() string { return string(s) }

func (s EnrollmentStatus) IsValid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusValid, EnrollmentStatusUnregistered,
		EnrollmentStatusPrivateInviteOnly, EnrollmentStatusUnknownError:
		return true
	}
	return false
}

// IsTerminal reports whether the status may be written to the outcome log.
func (s EnrollmentStatus) IsTerminal() bool {
	return s.IsValid() && s != EnrollmentStatusPending
}

func ParseEnrollmentStatusFromString(s string) (EnrollmentStatus, error) {
	st := EnrollmentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid enrollment status %q", ErrValidation, s)
	}
	return st, nil
}

// Error codes written to the outcome log. Gateway codes other than these are
// copied through verbatim.
const (
	CodeAdded         = 200
	CodeInviteOnly    = 403
	CodeNotRegistered = 404
	CodeGatewayFault  = 500
)

const (
	MessageAdded         = "Successfully added"
	MessageNotRegistered = "Not registered"
)

// EnrollmentRecord is one row of the outcome log.
type EnrollmentRecord struct {
	Phone      string           `json:"phone"`
	Name       string           `json:"name"`
	Status     EnrollmentStatus `json:"status"`
	ErrorCode  string           `json:"errorCode"`
	Message    string           `json:"message"`
	InviteSent bool             `json:"inviteSent"`
}

func NewPendingRecord(c Contact) EnrollmentRecord {
	return EnrollmentRecord{
		Phone:  c.Phone,
		Name:   c.Name,
		Status: EnrollmentStatusPending,
	}
}

// Finalize sets the terminal status and code. Records that are already
// terminal are left unchanged.
func (r *EnrollmentRecord) Finalize(status EnrollmentStatus, code int, message string) {
	if r.Status.IsTerminal() {
		return
	}
	r.Status = status
	r.ErrorCode = strconv.Itoa(code)
	r.Message = message
}

func (r EnrollmentRecord) Validate() error {
	if strings.TrimSpace(r.Phone) == "" {
		return fmt.Errorf("%w: record phone is required", ErrValidation)
	}
	if !r.Status.IsTerminal() {
		return fmt.Errorf("%w: record status %q is not terminal", ErrValidation, r.Status)
	}
	return nil
}
