package models

import (
	"errors"
	"testing"
	"time"
)

func TestHelpRequestLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := HelpRequest{CaseID: "HR-0001", Status: StatusPending}

	if err := r.Accept("+970599000001", now); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if r.Status != StatusAccepted || r.AcceptedByPhone != "+970599000001" || r.AcceptedAt == nil {
		t.Fatalf("unexpected state after accept: %+v", r)
	}
	if err := r.Accept("+970599000002", now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on second accept, got %v", err)
	}
	if err := r.StartProgress(now); err != nil {
		t.Fatalf("StartProgress failed: %v", err)
	}
	if err := r.Complete(now); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !r.Status.IsTerminal() || r.ClosedAt == nil {
		t.Fatalf("expected terminal state with closedAt, got %+v", r)
	}
	if err := r.Cancel("late", now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected completed request to reject cancel, got %v", err)
	}
	if r.Status != StatusCompleted {
		t.Errorf("terminal status changed to %s", r.Status)
	}
}

func TestHelpRequestCancelFromEachActiveState(t *testing.T) {
	now := time.Now()
	for _, from := range []RequestStatus{StatusPending, StatusAccepted, StatusInProgress} {
		r := HelpRequest{CaseID: "HR-0002", Status: from}
		if err := r.Cancel("reason", now); err != nil {
			t.Errorf("cancel from %s failed: %v", from, err)
		}
	}
	r := HelpRequest{CaseID: "HR-0003", Status: StatusCancelled}
	if err := r.Cancel("again", now); err == nil {
		t.Error("expected cancelled request to reject cancel")
	}
}

func TestHelpRequestCompleteRequiresAcceptance(t *testing.T) {
	r := HelpRequest{CaseID: "HR-0004", Status: StatusPending}
	if err := r.Complete(time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected pending request to reject complete, got %v", err)
	}
	if err := r.StartProgress(time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected pending request to reject start, got %v", err)
	}
}

func TestNewHelpRequestSnapshotsMother(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	m := Mother{ID: 7, Phone: "+1555", Zone: "3", RiskLevel: RiskHigh, DueDate: &due}
	r := NewHelpRequest(m, RequestEmergency, time.Now())

	m.Zone = "9"
	m.RiskLevel = RiskLow
	*m.DueDate = due.AddDate(0, 1, 0)

	if r.Zone != "3" || r.RiskLevel != RiskHigh {
		t.Errorf("snapshot followed mother changes: %+v", r)
	}
	if !r.DueDate.Equal(due) {
		t.Errorf("due date snapshot changed: %v", r.DueDate)
	}
	if r.Status != StatusPending {
		t.Errorf("expected PENDING, got %s", r.Status)
	}
}

func TestNormalizeCaseID(t *testing.T) {
	cases := map[string]string{
		"HR-0001": "HR-0001",
		"hr1":     "HR-0001",
		"HR 12":   "HR-0012",
		"42":      "HR-0042",
		"HR12345": "HR-12345",
		"HR-":     "",
	}
	for in, want := range cases {
		if got := NormalizeCaseID(in); got != want {
			t.Errorf("NormalizeCaseID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSkillPriorityOrdering(t *testing.T) {
	order := []SkillType{SkillMidwife, SkillNurse, SkillTrainedAttendant, SkillCommunityHealthWorker, SkillCommunityVolunteer}
	for i := 1; i < len(order); i++ {
		if order[i-1].Priority() >= order[i].Priority() {
			t.Errorf("%s should outrank %s", order[i-1], order[i])
		}
	}
	if !SkillNurse.IsCertified() || SkillTrainedAttendant.IsCertified() {
		t.Error("certified tier should be midwife and nurse only")
	}
}

func TestEveryCommandTypeIsClassified(t *testing.T) {
	for _, ct := range AllCommandTypes {
		if _, known := ct.RequiresMatching(); !known {
			t.Errorf("command type %s is not classified for routing", ct)
		}
	}
	if _, known := CommandType("BOGUS").RequiresMatching(); known {
		t.Error("unexpected classification for unknown command type")
	}
}

func TestNormalizeZones(t *testing.T) {
	got := NormalizeZones([]string{" a", "B", "a", "", "c "})
	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestNormalizeZonesDropsInvalid(t *testing.T) {
	got := NormalizeZones([]string{"3", "%", "_", "a_b", "٣", "B2"})
	want := []string{"3", "٣", "B2"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestValidZone(t *testing.T) {
	for _, z := range []string{"3", "A", "13", "غزة"} {
		if !ValidZone(z) {
			t.Errorf("expected %q to be a valid zone", z)
		}
	}
	for _, z := range []string{"", "%", "_", "A%", "3 4", `\`} {
		if ValidZone(z) {
			t.Errorf("expected %q to be rejected", z)
		}
	}
}
