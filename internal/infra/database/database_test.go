package database

import "testing"

func TestOpenRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	if _, err := Open("mysql", "dsn"); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenSQLiteMemory(t *testing.T) {
	t.Parallel()

	db, err := Open(BackendSQLite, "file:open_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var one int
	if err := db.Raw("SELECT 1").Scan(&one).Error; err != nil {
		t.Fatalf("SELECT 1 error = %v", err)
	}
	if one != 1 {
		t.Fatalf("SELECT 1 = %d", one)
	}
}
