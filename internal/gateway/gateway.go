package gateway

import (
	"context"

	"github.com/kursadbilgin/group-enroller/internal/domain"
)

// Operation names used in errors, logs and metrics.
const (
	OpStartSession     = "start_session"
	OpResolveIdentity  = "resolve_identity"
	OpAddParticipants  = "add_participants"
	OpSendInvite       = "send_invite"
	OpCreateGroup      = "create_group"
	OpPromote          = "promote"
	OpRestrictPosting  = "restrict_posting"
	OpRestrictInfoEdit = "restrict_info_edit"
	OpGetGroup         = "get_group"
)

// AddOptions tunes a participant add request.
type AddOptions struct {
	AutoSendInvite bool
}

// AddResult is the per-phone outcome reported by the platform for an add.
type AddResult struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	InviteSent bool   `json:"isInviteV4Sent"`
}

// Gateway is the outbound port to the messaging platform for one account
// session.
type Gateway interface {
	// ResolveIdentity returns the platform identity for phone. found is false
	// when the phone is not registered on the platform.
	ResolveIdentity(ctx context.Context, phone string) (identity string, found bool, err error)
	AddParticipants(ctx context.Context, groupID string, phones []string, opts AddOptions) (map[string]AddResult, error)
	SendInvite(ctx context.Context, groupID string, phone string) error
	CreateGroup(ctx context.Context, name string, participants []string) (string, error)
	Promote(ctx context.Context, groupID string, phones []string) error
	RestrictPosting(ctx context.Context, groupID string, adminsOnly bool) error
	RestrictInfoEdit(ctx context.Context, groupID string, adminsOnly bool) error
	GetGroup(ctx context.Context, groupID string) (*domain.Group, error)
}

// SessionStarter boots the platform session of an account. Session events
// (qr, ready, disconnected, auth_failure) are delivered to webhookURL.
type SessionStarter interface {
	StartSession(ctx context.Context, webhookURL string) error
}
