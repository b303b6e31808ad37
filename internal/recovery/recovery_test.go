package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/store"
	"github.com/BTreeMap/SafeBirth/internal/testutil"
)

// Mock recoverable for testing
type mockRecoverable struct {
	recoverError  error
	recoverCalled bool
}

func (m *mockRecoverable) RecoverState(ctx context.Context, registry *RecoveryRegistry) error {
	m.recoverCalled = true
	return m.recoverError
}

type failingCases struct{}

func (failingCases) PendingInZone(ctx context.Context, zone string) ([]models.HelpRequest, error) {
	return nil, errors.New("database unavailable")
}

func seedCase(t *testing.T, st *store.InMemoryStore, m models.Mother, status models.RequestStatus) string {
	t.Helper()
	hr := models.NewHelpRequest(m, models.RequestEmergency, time.Now())
	if err := st.CreateHelpRequest(context.Background(), &hr); err != nil {
		t.Fatalf("CreateHelpRequest: %v", err)
	}
	if status != models.StatusPending {
		hr.Status = status
		if err := st.UpdateHelpRequest(context.Background(), hr, models.StatusPending); err != nil {
			t.Fatalf("UpdateHelpRequest: %v", err)
		}
	}
	return hr.CaseID
}

func TestRecoveryRegistry_RecoverRematch(t *testing.T) {
	registry := NewRecoveryRegistry(store.NewInMemoryStore())

	var got string
	registry.RegisterRematchRecovery(func(caseID string) { got = caseID })

	if err := registry.RecoverRematch("SB-0001"); err != nil {
		t.Fatalf("RecoverRematch failed: %v", err)
	}
	if got != "SB-0001" {
		t.Errorf("Expected callback for SB-0001, got %q", got)
	}
}

func TestRecoveryRegistry_RecoverRematch_NoCallback(t *testing.T) {
	registry := NewRecoveryRegistry(store.NewInMemoryStore())

	if err := registry.RecoverRematch("SB-0001"); err == nil {
		t.Error("Expected error when no rematch recovery callback is registered")
	}
}

func TestNewRecoveryManager(t *testing.T) {
	st := store.NewInMemoryStore()
	manager := NewRecoveryManager(st)

	if manager.GetRegistry() == nil {
		t.Fatal("RecoveryManager registry is nil")
	}
	if manager.GetRegistry().GetCases() != st {
		t.Error("Registry case source does not match provided store")
	}
}

func TestRecoveryManager_RecoverAll_Success(t *testing.T) {
	manager := NewRecoveryManager(store.NewInMemoryStore())
	mock1 := &mockRecoverable{}
	mock2 := &mockRecoverable{}
	manager.RegisterRecoverable(mock1)
	manager.RegisterRecoverable(mock2)

	if err := manager.RecoverAll(context.Background()); err != nil {
		t.Errorf("RecoverAll failed: %v", err)
	}
	if !mock1.recoverCalled || !mock2.recoverCalled {
		t.Error("Every RecoverState should be called")
	}
}

func TestRecoveryManager_RecoverAll_WithErrors(t *testing.T) {
	manager := NewRecoveryManager(store.NewInMemoryStore())
	mock1 := &mockRecoverable{recoverError: fmt.Errorf("recovery failed")}
	mock2 := &mockRecoverable{}
	manager.RegisterRecoverable(mock1)
	manager.RegisterRecoverable(mock2)

	if err := manager.RecoverAll(context.Background()); err == nil {
		t.Error("Expected error from RecoverAll when components fail")
	}
	if !mock1.recoverCalled || !mock2.recoverCalled {
		t.Error("All recoverables should be called despite errors")
	}
}

func TestPendingCaseRecovery_RearmsOnlyPending(t *testing.T) {
	st := store.NewInMemoryStore()
	mother := testutil.SeedMother(t, st, testutil.MotherPhone)
	first := seedCase(t, st, mother, models.StatusPending)
	seedCase(t, st, mother, models.StatusCancelled)
	third := seedCase(t, st, mother, models.StatusPending)

	manager := NewRecoveryManager(st)
	var rearmed []string
	manager.RegisterRematchRecovery(func(caseID string) { rearmed = append(rearmed, caseID) })
	manager.RegisterRecoverable(PendingCaseRecovery{})

	if err := manager.RecoverAll(context.Background()); err != nil {
		t.Fatalf("RecoverAll failed: %v", err)
	}
	if len(rearmed) != 2 || rearmed[0] != first || rearmed[1] != third {
		t.Errorf("Expected [%s %s] re-armed, got %v", first, third, rearmed)
	}
}

func TestPendingCaseRecovery_StoreError(t *testing.T) {
	manager := NewRecoveryManager(failingCases{})
	manager.RegisterRematchRecovery(func(string) {})
	manager.RegisterRecoverable(PendingCaseRecovery{})

	if err := manager.RecoverAll(context.Background()); err == nil {
		t.Error("Expected error when the case source fails")
	}
}
