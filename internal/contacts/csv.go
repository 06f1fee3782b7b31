package contacts

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/kursadbilgin/group-enroller/internal/domain"
)

var _ Source = (*CSVSource)(nil)

type CSVSource struct {
	path   string
	layout Layout
}

func NewCSVSource(path string, layout Layout) (*CSVSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("contacts file path is required")
	}
	return &CSVSource{path: path, layout: layout}, nil
}

func (s *CSVSource) ReadContacts(ctx context.Context, offset int, count int) ([]domain.Contact, error) {
	if err := validateRange(offset, count); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open contacts file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contacts file: %w", err)
	}
	return sliceRows(rows, s.layout, offset, count)
}
