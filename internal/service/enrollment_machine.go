package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/group-enroller/internal/domain"
	"github.com/kursadbilgin/group-enroller/internal/gateway"
	"go.uber.org/zap"
)

// Invite policies for contacts whose privacy settings block a direct add.
const (
	// InvitePolicyGateway trusts the invite flag reported by the add call.
	InvitePolicyGateway = "gateway"
	// InvitePolicyFollowUp sends one explicit invite when the add call did not.
	InvitePolicyFollowUp = "follow_up"
)

// ContactEnroller classifies one contact into a terminal record.
type ContactEnroller interface {
	Enroll(ctx context.Context, contact domain.Contact, group GroupTarget) domain.EnrollmentRecord
}

var _ ContactEnroller = (*EnrollmentMachine)(nil)

// EnrollmentMachine walks a contact through registration check, add and the
// optional invite. Gateway faults become UNKNOWN_ERROR records and never
// reach the caller.
type EnrollmentMachine struct {
	gateway      gateway.Gateway
	invitePolicy string
	logger       *zap.Logger
}

func NewEnrollmentMachine(gw gateway.Gateway, invitePolicy string, logger *zap.Logger) (*EnrollmentMachine, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	switch invitePolicy {
	case "":
		invitePolicy = InvitePolicyGateway
	case InvitePolicyGateway, InvitePolicyFollowUp:
	default:
		return nil, fmt.Errorf("unsupported invite policy %q", invitePolicy)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EnrollmentMachine{
		gateway:      gw,
		invitePolicy: invitePolicy,
		logger:       logger,
	}, nil
}

func (m *EnrollmentMachine) Enroll(ctx context.Context, contact domain.Contact, group GroupTarget) domain.EnrollmentRecord {
	record := domain.NewPendingRecord(contact)
	logger := m.logger.With(zap.String("phone", contact.Phone))

	identity, found, err := m.gateway.ResolveIdentity(ctx, contact.Phone)
	if err != nil {
		return m.fault(logger, record, "resolve identity", err)
	}
	if !found {
		record.Finalize(domain.EnrollmentStatusUnregistered, domain.CodeNotRegistered, domain.MessageNotRegistered)
		return record
	}

	result, err := group.AddParticipant(ctx, identity)
	if err != nil {
		return m.fault(logger, record, "add participant", err)
	}

	switch result.Code {
	case domain.CodeAdded:
		record.Finalize(domain.EnrollmentStatusValid, domain.CodeAdded, domain.MessageAdded)
	case domain.CodeInviteOnly:
		record.InviteSent = result.InviteSent
		if !record.InviteSent && m.invitePolicy == InvitePolicyFollowUp {
			if err := group.SendInvite(ctx, identity); err != nil {
				return m.fault(logger, record, "send invite", err)
			}
			record.InviteSent = true
		}
		record.Finalize(domain.EnrollmentStatusPrivateInviteOnly, domain.CodeInviteOnly, result.Message)
	default:
		record.Finalize(domain.EnrollmentStatusUnknownError, result.Code, result.Message)
	}

	logger.Debug("contact enrolled",
		zap.String("status", record.Status.String()),
		zap.String("errorCode", record.ErrorCode),
		zap.Bool("inviteSent", record.InviteSent),
	)
	return record
}

func (m *EnrollmentMachine) fault(logger *zap.Logger, record domain.EnrollmentRecord, step string, err error) domain.EnrollmentRecord {
	logger.Warn("gateway fault during enrollment",
		zap.String("step", step),
		zap.Bool("transient", gateway.IsTransient(err)),
		zap.Error(err),
	)
	record.InviteSent = false
	record.Finalize(domain.EnrollmentStatusUnknownError, domain.CodeGatewayFault, err.Error())
	return record
}
