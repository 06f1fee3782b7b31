package domain

import "time"

// BatchSummary aggregates the outcomes of one orchestration cycle.
type BatchSummary struct {
	RunID             string    `json:"runId"`
	AccountID         string    `json:"accountId"`
	StartOffset       int       `json:"startOffset"`
	EndOffset         int       `json:"endOffset"`
	GroupID           string    `json:"groupId,omitempty"`
	GroupCreated      bool      `json:"groupCreated"`
	Total             int       `json:"total"`
	Valid             int       `json:"valid"`
	PrivateInviteOnly int       `json:"privateInviteOnly"`
	Unregistered      int       `json:"unregistered"`
	UnknownError      int       `json:"unknownError"`
	InvitesSent       int       `json:"invitesSent"`
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt,omitempty"`
}

func (s *BatchSummary) Record(rec EnrollmentRecord) {
	s.Total++
	switch rec.Status {
	case EnrollmentStatusValid:
		s.Valid++
	case EnrollmentStatusPrivateInviteOnly:
		s.PrivateInviteOnly++
	case EnrollmentStatusUnregistered:
		s.Unregistered++
	default:
		s.UnknownError++
	}
	if rec.InviteSent {
		s.InvitesSent++
	}
}

// Processed is the number of contacts whose records reached the outcome log.
func (s *BatchSummary) Processed() int {
	return s.EndOffset - s.StartOffset
}
