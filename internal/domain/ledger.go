package domain

import (
	"fmt"
	"slices"
	"strings"
)

// ProgressLedger is the durable campaign progress of one account. It is
// persisted as a whole document on every save.
type ProgressLedger struct {
	AccountID           string   `json:"-"`
	LastProcessedOffset int      `json:"lastProcessed"`
	CurrentGroupID      *string  `json:"currentGroup"`
	GroupCounter        int      `json:"groupCounter"`
	ActiveGroups        []string `json:"activeGroups"`
}

func NewProgressLedger(accountID string) *ProgressLedger {
	return &ProgressLedger{
		AccountID:    accountID,
		GroupCounter: 1,
		ActiveGroups: []string{},
	}
}

// Advance moves the offset past one contact whose record is already durable.
func (l *ProgressLedger) Advance() {
	l.LastProcessedOffset++
}

// NextGroupName returns the label for the next group and consumes the counter.
func (l *ProgressLedger) NextGroupName(baseName string) string {
	if l.GroupCounter < 1 {
		l.GroupCounter = 1
	}
	name := fmt.Sprintf("%s %d", strings.TrimSpace(baseName), l.GroupCounter)
	l.GroupCounter++
	return name
}

// RegisterGroup makes id the current group and appends it to ActiveGroups.
func (l *ProgressLedger) RegisterGroup(id string) {
	current := id
	l.CurrentGroupID = &current
	if !slices.Contains(l.ActiveGroups, id) {
		l.ActiveGroups = append(l.ActiveGroups, id)
	}
}

func (l *ProgressLedger) HasCurrentGroup() bool {
	return l.CurrentGroupID != nil && strings.TrimSpace(*l.CurrentGroupID) != ""
}

func (l *ProgressLedger) Clone() *ProgressLedger {
	if l == nil {
		return nil
	}

	clone := *l
	if l.CurrentGroupID != nil {
		current := *l.CurrentGroupID
		clone.CurrentGroupID = &current
	}
	clone.ActiveGroups = append([]string{}, l.ActiveGroups...)
	return &clone
}

func (l *ProgressLedger) Validate() error {
	if l == nil {
		return fmt.Errorf("%w: ledger is required", ErrValidation)
	}
	if strings.TrimSpace(l.AccountID) == "" {
		return fmt.Errorf("%w: ledger account id is required", ErrValidation)
	}
	if l.LastProcessedOffset < 0 {
		return fmt.Errorf("%w: ledger offset must be >= 0 (got %d)", ErrValidation, l.LastProcessedOffset)
	}
	if l.GroupCounter < 1 {
		return fmt.Errorf("%w: ledger group counter must be >= 1 (got %d)", ErrValidation, l.GroupCounter)
	}
	return nil
}
