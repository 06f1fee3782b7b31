package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kursadbilgin/group-enroller/internal/domain"
	"github.com/kursadbilgin/group-enroller/internal/repository"
)

const (
	ledgerFileName = "state.json"
	dirPerm        = 0o755
	filePerm       = 0o644
)

var _ repository.LedgerRepository = (*LedgerStore)(nil)

// LedgerStore keeps each account's ledger in <root>/<account>/state.json.
// Saves write a temp file in the same directory and rename it over the old
// document.
type LedgerStore struct {
	root string
	mu   sync.Mutex
}

func NewLedgerStore(root string) (*LedgerStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	return &LedgerStore{root: root}, nil
}

func (s *LedgerStore) Load(ctx context.Context, accountID string) (*domain.ProgressLedger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := accountDir(s.root, accountID)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, ledgerFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewProgressLedger(accountID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	ledger := domain.NewProgressLedger(accountID)
	if err := json.Unmarshal(raw, ledger); err != nil {
		return nil, fmt.Errorf("failed to decode ledger: %w", err)
	}
	ledger.AccountID = accountID
	if ledger.ActiveGroups == nil {
		ledger.ActiveGroups = []string{}
	}
	if err := ledger.Validate(); err != nil {
		return nil, fmt.Errorf("stored ledger is invalid: %w", err)
	}
	return ledger, nil
}

func (s *LedgerStore) Save(ctx context.Context, ledger *domain.ProgressLedger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ledger.Validate(); err != nil {
		return err
	}
	dir, err := accountDir(s.root, ledger.AccountID)
	if err != nil {
		return err
	}

	raw, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, ledgerFileName), raw); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return nil
}

func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, filePerm)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// accountDir rejects ids that could escape root.
func accountDir(root string, accountID string) (string, error) {
	if err := domain.ValidateAccountID(accountID); err != nil {
		return "", err
	}
	return filepath.Join(root, accountID), nil
}
