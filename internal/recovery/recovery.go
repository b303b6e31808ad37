// Package recovery restores in-memory coordination state after a restart. Case records
// survive in the store, but matching windows live in process timers and are lost when
// SafeBirth stops; recoverables re-arm them from what the store still holds.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/SafeBirth/internal/models"
)

// Recoverable defines the interface for components that can recover their state
type Recoverable interface {
	// RecoverState is called during application startup to restore component state
	RecoverState(ctx context.Context, registry *RecoveryRegistry) error
}

// CaseSource lists cases still waiting for a volunteer. An empty zone means every zone.
type CaseSource interface {
	PendingInZone(ctx context.Context, zone string) ([]models.HelpRequest, error)
}

// RecoveryRegistry provides services that components can use during recovery
type RecoveryRegistry struct {
	cases       CaseSource
	rematchFunc func(caseID string)
}

// NewRecoveryRegistry creates a new recovery registry
func NewRecoveryRegistry(cases CaseSource) *RecoveryRegistry {
	return &RecoveryRegistry{cases: cases}
}

// RegisterRematchRecovery registers the callback that re-arms a case's matching window
func (r *RecoveryRegistry) RegisterRematchRecovery(fn func(caseID string)) {
	r.rematchFunc = fn
}

// RecoverRematch requests a fresh matching window for caseID
func (r *RecoveryRegistry) RecoverRematch(caseID string) error {
	if r.rematchFunc == nil {
		return fmt.Errorf("no rematch recovery handler registered")
	}
	r.rematchFunc(caseID)
	return nil
}

// GetCases provides access to the case source for recovery operations
func (r *RecoveryRegistry) GetCases() CaseSource {
	return r.cases
}

// RecoveryManager orchestrates recovery of all registered components
type RecoveryManager struct {
	registry     *RecoveryRegistry
	recoverables []Recoverable
}

// NewRecoveryManager creates a new recovery manager
func NewRecoveryManager(cases CaseSource) *RecoveryManager {
	return &RecoveryManager{registry: NewRecoveryRegistry(cases)}
}

// RegisterRecoverable adds a component that can be recovered
func (rm *RecoveryManager) RegisterRecoverable(r Recoverable) {
	rm.recoverables = append(rm.recoverables, r)
}

// RegisterRematchRecovery registers the matching window infrastructure
func (rm *RecoveryManager) RegisterRematchRecovery(fn func(caseID string)) {
	rm.registry.RegisterRematchRecovery(fn)
}

// RecoverAll performs recovery of all registered components. Every component runs even
// when an earlier one fails.
func (rm *RecoveryManager) RecoverAll(ctx context.Context) error {
	slog.Info("RecoveryManager.RecoverAll: starting recovery", "components", len(rm.recoverables))

	recoveredCount := 0
	errorCount := 0
	for _, recoverable := range rm.recoverables {
		if err := recoverable.RecoverState(ctx, rm.registry); err != nil {
			slog.Error("RecoveryManager.RecoverAll: component recovery failed", "error", err, "component", fmt.Sprintf("%T", recoverable))
			errorCount++
			continue
		}
		recoveredCount++
	}

	slog.Info("RecoveryManager.RecoverAll: recovery completed", "recovered", recoveredCount, "errors", errorCount)
	if errorCount > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", errorCount, len(rm.recoverables))
	}
	return nil
}

// GetRegistry provides access to the recovery registry for infrastructure setup
func (rm *RecoveryManager) GetRegistry() *RecoveryRegistry {
	return rm.registry
}

// PendingCaseRecovery re-arms the matching window of every PENDING case.
type PendingCaseRecovery struct{}

var _ Recoverable = PendingCaseRecovery{}

// RecoverState implements Recoverable.
func (PendingCaseRecovery) RecoverState(ctx context.Context, registry *RecoveryRegistry) error {
	pending, err := registry.GetCases().PendingInZone(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list pending cases: %w", err)
	}
	for _, hr := range pending {
		if err := registry.RecoverRematch(hr.CaseID); err != nil {
			return fmt.Errorf("failed to recover case %s: %w", hr.CaseID, err)
		}
		slog.Debug("PendingCaseRecovery.RecoverState: matching window re-armed", "case", hr.CaseID, "zone", hr.Zone)
	}
	if len(pending) > 0 {
		slog.Info("PendingCaseRecovery.RecoverState: pending cases recovered", "count", len(pending))
	}
	return nil
}
