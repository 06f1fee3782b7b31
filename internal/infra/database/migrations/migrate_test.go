package migrations

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kursadbilgin/group-enroller/internal/infra/database"
	"github.com/kursadbilgin/group-enroller/internal/repository"
)

func TestMigrateCreatesTables(t *testing.T) {
	t.Parallel()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(database.BackendSQLite, dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// second run is a no-op
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() second run error = %v", err)
	}

	for _, model := range []any{&repository.LedgerModel{}, &repository.OutcomeModel{}} {
		if !db.Migrator().HasTable(model) {
			t.Fatalf("table for %T was not created", model)
		}
	}
	if !db.Migrator().HasIndex(&repository.OutcomeModel{}, "idx_enrollment_outcomes_account") {
		t.Fatal("outcome index was not created")
	}
}
