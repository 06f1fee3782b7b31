package repository

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/group-enroller/internal/domain"
	"gorm.io/gorm"
)

// OutcomeRepository is the append-only outcome log of an account. Rows come
// back in append order.
type OutcomeRepository interface {
	Append(ctx context.Context, accountID string, record domain.EnrollmentRecord) error
	List(ctx context.Context, accountID string) ([]domain.EnrollmentRecord, error)
}

var _ OutcomeRepository = (*GormOutcomeRepo)(nil)

type GormOutcomeRepo struct {
	db *gorm.DB
}

func NewGormOutcomeRepo(db *gorm.DB) *GormOutcomeRepo {
	return &GormOutcomeRepo{db: db}
}

func (r *GormOutcomeRepo) Append(ctx context.Context, accountID string, record domain.EnrollmentRecord) error {
	if err := domain.ValidateAccountID(accountID); err != nil {
		return err
	}
	if err := record.Validate(); err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(outcomeModelFromDomain(accountID, record)).Error; err != nil {
		return fmt.Errorf("failed to append outcome: %w", err)
	}
	return nil
}

func (r *GormOutcomeRepo) List(ctx context.Context, accountID string) ([]domain.EnrollmentRecord, error) {
	var models []OutcomeModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}

	records := make([]domain.EnrollmentRecord, 0, len(models))
	for i := range models {
		records = append(records, outcomeModelToDomain(&models[i]))
	}
	return records, nil
}
