package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/group-enroller/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository persists one progress ledger per account. Load returns a
// fresh ledger when nothing was saved yet.
type LedgerRepository interface {
	Load(ctx context.Context, accountID string) (*domain.ProgressLedger, error)
	Save(ctx context.Context, ledger *domain.ProgressLedger) error
}

var _ LedgerRepository = (*GormLedgerRepo)(nil)

type GormLedgerRepo struct {
	db *gorm.DB
}

func NewGormLedgerRepo(db *gorm.DB) *GormLedgerRepo {
	return &GormLedgerRepo{db: db}
}

func (r *GormLedgerRepo) Load(ctx context.Context, accountID string) (*domain.ProgressLedger, error) {
	if err := domain.ValidateAccountID(accountID); err != nil {
		return nil, err
	}

	var model LedgerModel
	err := r.db.WithContext(ctx).First(&model, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewProgressLedger(accountID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return ledgerModelToDomain(&model), nil
}

func (r *GormLedgerRepo) Save(ctx context.Context, ledger *domain.ProgressLedger) error {
	if err := ledger.Validate(); err != nil {
		return err
	}

	model := ledgerModelFromDomain(ledger)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			UpdateAll: true,
		}).
		Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}
