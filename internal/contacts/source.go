package contacts

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/kursadbilgin/group-enroller/internal/domain"
)

// Source yields contacts in file order.
//
// ReadContacts returns at most count contacts starting at the zero-based
// offset. A source holding fewer rows than requested returns a shorter slice
// and an offset past the end returns an empty one; neither is an error.
// A negative offset or a non-positive count fails with domain.ErrValidation.
type Source interface {
	ReadContacts(ctx context.Context, offset int, count int) ([]domain.Contact, error)
}

// Layout tells a source where the columns are and how to build a platform
// phone identity from the stored number.
type Layout struct {
	CountryCode string
	Suffix      string
	PhoneColumn string
	NameColumn  string
}

// NewFileSource picks the reader from the file extension.
func NewFileSource(path string, layout Layout) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return NewXLSXSource(path, layout)
	case ".csv":
		return NewCSVSource(path, layout)
	default:
		return nil, fmt.Errorf("%w: unsupported contacts file %q", domain.ErrValidation, path)
	}
}

func validateRange(offset int, count int) error {
	if offset < 0 {
		return fmt.Errorf("%w: offset must be >= 0 (got %d)", domain.ErrValidation, offset)
	}
	if count <= 0 {
		return fmt.Errorf("%w: count must be > 0 (got %d)", domain.ErrValidation, count)
	}
	return nil
}

// sliceRows turns a header row plus data rows into contacts. Rows without a
// phone number are skipped and do not count towards the offset.
func sliceRows(rows [][]string, layout Layout, offset int, count int) ([]domain.Contact, error) {
	if len(rows) == 0 {
		return []domain.Contact{}, nil
	}

	phoneIdx, nameIdx, err := locateColumns(rows[0], layout)
	if err != nil {
		return nil, err
	}

	contacts := make([]domain.Contact, 0, count)
	position := 0
	for _, row := range rows[1:] {
		number := cell(row, phoneIdx)
		if number == "" {
			continue
		}
		if position < offset {
			position++
			continue
		}

		contacts = append(contacts, domain.Contact{
			Phone: layout.phoneIdentity(number),
			Name:  cell(row, nameIdx),
		})
		position++
		if len(contacts) == count {
			break
		}
	}
	return contacts, nil
}

func locateColumns(header []string, layout Layout) (int, int, error) {
	phoneIdx, nameIdx := -1, -1
	for i, title := range header {
		normalized := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(title, "\ufeff")))
		switch normalized {
		case strings.ToLower(layout.PhoneColumn):
			phoneIdx = i
		case strings.ToLower(layout.NameColumn):
			nameIdx = i
		}
	}
	if phoneIdx < 0 {
		return 0, 0, fmt.Errorf("%w: column %q not found", domain.ErrValidation, layout.PhoneColumn)
	}
	return phoneIdx, nameIdx, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// phoneIdentity keeps identities that already carry a platform suffix and
// otherwise prefixes the country code and appends the suffix to the digits.
func (l Layout) phoneIdentity(number string) string {
	if strings.Contains(number, "@") {
		return number
	}

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, number)
	return l.CountryCode + digits + l.Suffix
}
