package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
)

// TestSQLiteRestartKeepsCases simulates a restart: cases written before the store is
// closed are visible afterwards and new case ids continue the sequence.
func TestSQLiteRestartKeepsCases(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "state.db")

	s1, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 1) failed: %v", err)
	}
	m := newMother("+970599000010", "7")
	if err := s1.CreateMother(ctx, m); err != nil {
		t.Fatalf("CreateMother failed: %v", err)
	}
	r := models.NewHelpRequest(*m, models.RequestEmergency, time.Now())
	if err := s1.CreateHelpRequest(ctx, &r); err != nil {
		t.Fatalf("CreateHelpRequest failed: %v", err)
	}
	if _, err := s1.RecordInbound(ctx, "SM-restart", m.Phone); err != nil {
		t.Fatalf("RecordInbound failed: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 2) failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetHelpRequest(ctx, r.CaseID)
	if err != nil {
		t.Fatalf("case lost across restart: %v", err)
	}
	if got.Status != models.StatusPending || got.Zone != "7" {
		t.Errorf("unexpected case after restart: %+v", got)
	}

	fresh, err := s2.RecordInbound(ctx, "SM-restart", m.Phone)
	if err != nil {
		t.Fatalf("RecordInbound failed: %v", err)
	}
	if fresh {
		t.Error("redelivered message should still be recognized as a duplicate after restart")
	}

	next := models.NewHelpRequest(*m, models.RequestSupport, time.Now())
	if err := s2.CreateHelpRequest(ctx, &next); err != nil {
		t.Fatalf("CreateHelpRequest failed: %v", err)
	}
	if next.CaseID != "HR-0002" {
		t.Errorf("expected sequence to continue at HR-0002, got %s", next.CaseID)
	}
}
