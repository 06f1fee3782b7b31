package filestore

import (
	"context"
	"encoding/csv"
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

const outcomeFileName = "statuses.csv"

var _ repository.OutcomeRepository = (*OutcomeLog)(nil)

// OutcomeLog appends records to <root>/<account>/statuses.csv. The header is
// written when the file is created; existing rows are never rewritten.
type OutcomeLog struct {
	root string
	mu   sync.Mutex
}

func NewOutcomeLog(root string) (*OutcomeLog, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	return &OutcomeLog{root: root}, nil
}

func (l *OutcomeLog) Append(ctx context.Context, accountID string, record domain.EnrollmentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := record.Validate(); err != nil {
		return err
	}
	dir, err := accountDir(l.root, accountID)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, outcomeFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open outcome log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat outcome log: %w", err)
	}

	writer := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := writer.Write(repository.OutcomeCSVHeader); err != nil {
			return fmt.Errorf("failed to write outcome log header: %w", err)
		}
	}
	if err := writer.Write(repository.OutcomeCSVRow(record)); err != nil {
		return fmt.Errorf("failed to write outcome row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush outcome log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync outcome log: %w", err)
	}
	return nil
}

func (l *OutcomeLog) List(ctx context.Context, accountID string) ([]domain.EnrollmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := accountDir(l.root, accountID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(filepath.Join(dir, outcomeFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.EnrollmentRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open outcome log: %w", err)
	}
	defer f.Close()

	return repository.ReadOutcomesCSV(f)
}
