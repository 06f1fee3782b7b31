package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/group-enroller/internal/repository"
	"gorm.io/gorm"
)

func createEnrollmentLedgersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_enrollment_ledgers",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.LedgerModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.LedgerModel{})
		},
	}
}
