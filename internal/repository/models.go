package repository

import (
	"time"

	"github.com/kursadbilgin/group-enroller/internal/domain"
)

// LedgerModel is the persistence model for enrollment_ledgers. One row per
// account, replaced as a whole on every save.
type LedgerModel struct {
	AccountID           string   `gorm:"type:varchar(64);primaryKey"`
	LastProcessedOffset int      `gorm:"not null"`
	CurrentGroupID      *string  `gorm:"type:varchar(128)"`
	GroupCounter        int      `gorm:"not null"`
	ActiveGroups        []string `gorm:"type:text;serializer:json"`
	UpdatedAt           time.Time
}

func (LedgerModel) TableName() string {
	return "enrollment_ledgers"
}

// OutcomeModel is the persistence model for enrollment_outcomes.
type OutcomeModel struct {
	ID         uint64                  `gorm:"primaryKey;autoIncrement"`
	AccountID  string                  `gorm:"type:varchar(64);not null"`
	Phone      string                  `gorm:"type:varchar(64);not null"`
	Name       string                  `gorm:"type:varchar(256)"`
	Status     domain.EnrollmentStatus `gorm:"type:varchar(32);not null"`
	ErrorCode  string                  `gorm:"type:varchar(16)"`
	Message    string                  `gorm:"type:text"`
	InviteSent bool                    `gorm:"not null"`
	CreatedAt  time.Time
}

func (OutcomeModel) TableName() string {
	return "enrollment_outcomes"
}

func ledgerModelFromDomain(l *domain.ProgressLedger) *LedgerModel {
	if l == nil {
		return nil
	}

	clone := l.Clone()
	return &LedgerModel{
		AccountID:           clone.AccountID,
		LastProcessedOffset: clone.LastProcessedOffset,
		CurrentGroupID:      clone.CurrentGroupID,
		GroupCounter:        clone.GroupCounter,
		ActiveGroups:        clone.ActiveGroups,
	}
}

func ledgerModelToDomain(m *LedgerModel) *domain.ProgressLedger {
	if m == nil {
		return nil
	}

	activeGroups := m.ActiveGroups
	if activeGroups == nil {
		activeGroups = []string{}
	}
	return &domain.ProgressLedger{
		AccountID:           m.AccountID,
		LastProcessedOffset: m.LastProcessedOffset,
		CurrentGroupID:      m.CurrentGroupID,
		GroupCounter:        m.GroupCounter,
		ActiveGroups:        activeGroups,
	}
}

func outcomeModelFromDomain(accountID string, r domain.EnrollmentRecord) *OutcomeModel {
	return &OutcomeModel{
		AccountID:  accountID,
		Phone:      r.Phone,
		Name:       r.Name,
		Status:     r.Status,
		ErrorCode:  r.ErrorCode,
		Message:    r.Message,
		InviteSent: r.InviteSent,
	}
}

func outcomeModelToDomain(m *OutcomeModel) domain.EnrollmentRecord {
	return domain.EnrollmentRecord{
		Phone:      m.Phone,
		Name:       m.Name,
		Status:     m.Status,
		ErrorCode:  m.ErrorCode,
		Message:    m.Message,
		InviteSent: m.InviteSent,
	}
}
