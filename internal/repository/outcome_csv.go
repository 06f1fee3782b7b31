package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kursadbilgin/group-enroller/internal/domain"
)

// OutcomeCSVHeader is the column order of the outcome log file.
var OutcomeCSVHeader = []string{"PHONE", "NAME", "STATUS", "ERROR_CODE", "MESSAGE", "INVITE_SENT"}

func OutcomeCSVRow(r domain.EnrollmentRecord) []string {
	return []string{
		r.Phone,
		r.Name,
		r.Status.String(),
		r.ErrorCode,
		r.Message,
		strconv.FormatBool(r.InviteSent),
	}
}

// WriteOutcomesCSV renders records with the header, independent of the
// backend that stored them.
func WriteOutcomesCSV(w io.Writer, records []domain.EnrollmentRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(OutcomeCSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, record := range records {
		if err := writer.Write(OutcomeCSVRow(record)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadOutcomesCSV parses a log produced by WriteOutcomesCSV or by repeated
// appends. Repeated header lines are skipped.
func ReadOutcomesCSV(r io.Reader) ([]domain.EnrollmentRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records := make([]domain.EnrollmentRecord, 0)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse outcome log: %w", err)
		}
		if len(row) == 0 || strings.EqualFold(row[0], OutcomeCSVHeader[0]) {
			continue
		}
		if len(row) < len(OutcomeCSVHeader) {
			return nil, fmt.Errorf("failed to parse outcome log: row has %d columns", len(row))
		}

		status, err := domain.ParseEnrollmentStatusFromString(row[2])
		if err != nil {
			return nil, fmt.Errorf("failed to parse outcome log: %w", err)
		}
		inviteSent, _ := strconv.ParseBool(row[5])
		records = append(records, domain.EnrollmentRecord{
			Phone:      row[0],
			Name:       row[1],
			Status:     status,
			ErrorCode:  row[3],
			Message:    row[4],
			InviteSent: inviteSent,
		})
	}
}
