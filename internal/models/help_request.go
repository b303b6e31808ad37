package models

import (
	"fmt"
	"strings"
	"time"
)

// RequestType distinguishes urgent requests from routine support.
type RequestType string

const (
	RequestEmergency RequestType = "EMERGENCY"
	RequestSupport   RequestType = "SUPPORT"
)

// RequestStatus is the lifecycle state of a HelpRequest.
type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusAccepted   RequestStatus = "ACCEPTED"
	StatusInProgress RequestStatus = "IN_PROGRESS"
	StatusCompleted  RequestStatus = "COMPLETED"
	StatusCancelled  RequestStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HelpRequest is a case raised by a mother. Zone, RiskLevel and DueDate are copied
// from the mother at creation and are never updated afterwards.
type HelpRequest struct {
	CaseID          string        `json:"case_id"`
	MotherID        int64         `json:"mother_id"`
	MotherPhone     string        `json:"mother_phone"`
	Type            RequestType   `json:"type"`
	Status          RequestStatus `json:"status"`
	Zone            string        `json:"zone"`
	RiskLevel       RiskLevel     `json:"risk_level,omitempty"`
	DueDate         *time.Time    `json:"due_date,omitempty"`
	AcceptedByPhone string        `json:"accepted_by_phone,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	AcceptedAt      *time.Time    `json:"accepted_at,omitempty"`
	InProgressAt    *time.Time    `json:"in_progress_at,omitempty"`
	ClosedAt        *time.Time    `json:"closed_at,omitempty"`
	AlertsSent      int           `json:"alerts_sent"`
	CancelReason    string        `json:"cancel_reason,omitempty"`
}

// NewHelpRequest snapshots the mother's zone, risk level and due date into a PENDING request.
// The case id is assigned by the repository on insert.
func NewHelpRequest(m Mother, t RequestType, now time.Time) HelpRequest {
	var due *time.Time
	if m.DueDate != nil {
		d := *m.DueDate
		due = &d
	}
	return HelpRequest{
		MotherID:    m.ID,
		MotherPhone: m.Phone,
		Type:        t,
		Status:      StatusPending,
		Zone:        m.Zone,
		RiskLevel:   m.RiskLevel,
		DueDate:     due,
		CreatedAt:   now,
	}
}

// IsActive reports whether the request can still change state.
func (r *HelpRequest) IsActive() bool {
	return !r.Status.IsTerminal()
}

// IsEmergency reports whether the request is an emergency.
func (r *HelpRequest) IsEmergency() bool {
	return r.Type == RequestEmergency
}

func (r *HelpRequest) transition(to RequestStatus, allowed ...RequestStatus) error {
	for _, from := range allowed {
		if r.Status == from {
			r.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s for case %s", ErrInvalidTransition, r.Status, to, r.CaseID)
}

// Accept assigns the request to a volunteer. Only PENDING requests can be accepted.
func (r *HelpRequest) Accept(volunteerPhone string, now time.Time) error {
	if err := r.transition(StatusAccepted, StatusPending); err != nil {
		return err
	}
	r.AcceptedByPhone = volunteerPhone
	r.AcceptedAt = &now
	return nil
}

// StartProgress marks an accepted request as being worked on.
func (r *HelpRequest) StartProgress(now time.Time) error {
	if err := r.transition(StatusInProgress, StatusAccepted); err != nil {
		return err
	}
	r.InProgressAt = &now
	return nil
}

// Complete closes an accepted or in-progress request.
func (r *HelpRequest) Complete(now time.Time) error {
	if err := r.transition(StatusCompleted, StatusAccepted, StatusInProgress); err != nil {
		return err
	}
	r.ClosedAt = &now
	return nil
}

// Cancel closes any non-terminal request.
func (r *HelpRequest) Cancel(reason string, now time.Time) error {
	if err := r.transition(StatusCancelled, StatusPending, StatusAccepted, StatusInProgress); err != nil {
		return err
	}
	r.CancelReason = reason
	r.ClosedAt = &now
	return nil
}

// FormatCaseID renders a case sequence number as a case id.
func FormatCaseID(seq int64) string {
	return fmt.Sprintf("HR-%04d", seq)
}

// NormalizeCaseID accepts "HR-0001", "hr1", "HR 12" or "12" and returns "HR-0001"/"HR-0012".
// It returns "" when s contains no digits.
func NormalizeCaseID(s string) string {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return ""
	}
	d := strings.TrimLeft(digits.String(), "0")
	if len(d) < 4 {
		d = strings.Repeat("0", 4-len(d)) + d
	}
	return "HR-" + d
}
