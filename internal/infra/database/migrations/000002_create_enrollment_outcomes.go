package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/group-enroller/internal/repository"
	"gorm.io/gorm"
)

func createEnrollmentOutcomesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_enrollment_outcomes",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.OutcomeModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_enrollment_outcomes_account ON enrollment_outcomes (account_id, id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.OutcomeModel{})
		},
	}
}
