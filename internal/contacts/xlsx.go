package contacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/group-enroller/internal/domain"
	"github.com/xuri/excelize/v2"
)

var _ Source = (*XLSXSource)(nil)

// XLSXSource reads the first sheet of a workbook.
type XLSXSource struct {
	path   string
	layout Layout
}

func NewXLSXSource(path string, layout Layout) (*XLSXSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("contacts file path is required")
	}
	return &XLSXSource{path: path, layout: layout}, nil
}

func (s *XLSXSource) ReadContacts(ctx context.Context, offset int, count int) ([]domain.Contact, error) {
	if err := validateRange(offset, count); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open contacts workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return []domain.Contact{}, nil
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return sliceRows(rows, s.layout, offset, count)
}
