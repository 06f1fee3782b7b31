package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/group-enroller/internal/domain"
	"github.com/kursadbilgin/group-enroller/internal/gateway"
	"github.com/kursadbilgin/group-enroller/internal/observability"
	"go.uber.org/zap"
)

// CapacitySettings configures group creation for one campaign.
type CapacitySettings struct {
	BaseName              string
	MaxGroupSize          int
	BootstrapParticipants []string
	Admins                []string
}

// GroupEnsurer yields a group with room for the next batch.
type GroupEnsurer interface {
	EnsureGroup(ctx context.Context, ledger *domain.ProgressLedger) (*GroupHandle, error)
}

// GroupTarget is the group a contact is enrolled into.
type GroupTarget interface {
	AddParticipant(ctx context.Context, phone string) (gateway.AddResult, error)
	SendInvite(ctx context.Context, phone string) error
}

var (
	_ GroupEnsurer = (*GroupCapacityManager)(nil)
	_ GroupTarget  = (*GroupHandle)(nil)
)

// GroupHandle is the group selected for a batch.
type GroupHandle struct {
	domain.Group
	// Created is true when the group was created by this EnsureGroup call.
	Created bool
	// ConfigFailures lists the configuration steps that failed after creation.
	ConfigFailures []string

	gateway gateway.Gateway
}

// AddParticipant adds one phone with automatic invites disabled.
func (h *GroupHandle) AddParticipant(ctx context.Context, phone string) (gateway.AddResult, error) {
	results, err := h.gateway.AddParticipants(ctx, h.ID, []string{phone}, gateway.AddOptions{AutoSendInvite: false})
	if err != nil {
		return gateway.AddResult{}, err
	}

	result, ok := results[phone]
	if !ok {
		if len(results) != 1 {
			return gateway.AddResult{}, &gateway.GatewayError{
				Op:      gateway.OpAddParticipants,
				Message: fmt.Sprintf("no add result for %s", phone),
			}
		}
		for _, only := range results {
			result = only
		}
	}

	if result.Code == domain.CodeAdded {
		h.MemberCount++
	}
	return result, nil
}

func (h *GroupHandle) SendInvite(ctx context.Context, phone string) error {
	return h.gateway.SendInvite(ctx, h.ID, phone)
}

// GroupCapacityManager reuses the ledger's current group while it has room
// and creates the next numbered group otherwise.
type GroupCapacityManager struct {
	gateway  gateway.Gateway
	settings CapacitySettings
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewGroupCapacityManager(
	gw gateway.Gateway,
	settings CapacitySettings,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*GroupCapacityManager, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if strings.TrimSpace(settings.BaseName) == "" {
		return nil, fmt.Errorf("group base name is required")
	}
	if settings.MaxGroupSize < 2 {
		return nil, fmt.Errorf("max group size must be >= 2 (got %d)", settings.MaxGroupSize)
	}
	if len(settings.BootstrapParticipants) == 0 {
		return nil, fmt.Errorf("bootstrap participants are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GroupCapacityManager{
		gateway:  gw,
		settings: settings,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// EnsureGroup returns the current group when it is reachable and below the
// size cap. Otherwise it creates, configures and registers a new group in
// ledger. A failed lookup counts as "no usable group". On creation failure the
// ledger is left untouched and the error wraps domain.ErrGroupCapacity.
func (m *GroupCapacityManager) EnsureGroup(ctx context.Context, ledger *domain.ProgressLedger) (*GroupHandle, error) {
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger is required", domain.ErrValidation)
	}
	logger := m.logger.With(zap.String("accountId", ledger.AccountID))

	if ledger.HasCurrentGroup() {
		groupID := *ledger.CurrentGroupID
		group, err := m.gateway.GetGroup(ctx, groupID)
		switch {
		case err != nil:
			logger.Warn("current group lookup failed, creating a new group",
				zap.String("groupId", groupID),
				zap.Bool("transient", gateway.IsTransient(err)),
				zap.Error(err),
			)
		case group.HasCapacity(m.settings.MaxGroupSize):
			group.ID = groupID
			return &GroupHandle{Group: *group, gateway: m.gateway}, nil
		default:
			logger.Info("current group is full",
				zap.String("groupId", groupID),
				zap.Int("memberCount", group.MemberCount),
				zap.Int("maxGroupSize", m.settings.MaxGroupSize),
			)
		}
	}

	return m.createGroup(ctx, ledger, logger)
}

func (m *GroupCapacityManager) createGroup(ctx context.Context, ledger *domain.ProgressLedger, logger *zap.Logger) (*GroupHandle, error) {
	draft := ledger.Clone()
	name := draft.NextGroupName(m.settings.BaseName)

	participants := append([]string(nil), m.settings.BootstrapParticipants...)
	groupID, err := m.gateway.CreateGroup(ctx, name, participants)
	if err != nil {
		return nil, fmt.Errorf("%w: create group %q: %w", domain.ErrGroupCapacity, name, err)
	}

	ledger.GroupCounter = draft.GroupCounter
	ledger.RegisterGroup(groupID)
	m.metrics.IncGroupCreated(ledger.AccountID)

	handle := &GroupHandle{
		Group: domain.Group{
			ID:   groupID,
			Name: name,
			// creator plus bootstrap participants
			MemberCount: len(participants) + 1,
		},
		Created: true,
		gateway: m.gateway,
	}

	if len(m.settings.Admins) > 0 {
		if err := m.gateway.Promote(ctx, groupID, m.settings.Admins); err != nil {
			handle.ConfigFailures = append(handle.ConfigFailures, gateway.OpPromote)
			logger.Error("failed to promote group admins", zap.String("groupId", groupID), zap.Error(err))
		} else {
			handle.Admins = append([]string(nil), m.settings.Admins...)
		}
	}

	if err := m.gateway.RestrictPosting(ctx, groupID, true); err != nil {
		handle.ConfigFailures = append(handle.ConfigFailures, gateway.OpRestrictPosting)
		logger.Error("failed to restrict group posting", zap.String("groupId", groupID), zap.Error(err))
	} else {
		handle.PostingRestricted = true
	}

	if err := m.gateway.RestrictInfoEdit(ctx, groupID, true); err != nil {
		handle.ConfigFailures = append(handle.ConfigFailures, gateway.OpRestrictInfoEdit)
		logger.Error("failed to restrict group info edit", zap.String("groupId", groupID), zap.Error(err))
	} else {
		handle.InfoRestricted = true
	}

	logger.Info("group created",
		zap.String("groupId", groupID),
		zap.String("groupName", name),
		zap.Int("groupCounter", ledger.GroupCounter),
		zap.Strings("configFailures", handle.ConfigFailures),
	)
	return handle, nil
}
