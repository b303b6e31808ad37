package handler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/flow"
	"github.com/BTreeMap/SafeBirth/internal/models"
)

const (
	DefaultMatchingWindow   = 5 * time.Minute
	DefaultMaxRematchRounds = 2
	rematchTimeout          = 30 * time.Second
)

// CaseLoader reads a case by id.
type CaseLoader interface {
	GetHelpRequest(ctx context.Context, caseID string) (models.HelpRequest, error)
}

// Rematcher re-runs matching for cases that are still PENDING once the matching window
// has elapsed, up to a bounded number of rounds per case.
type Rematcher struct {
	cases     CaseLoader
	matcher   Matcher
	states    *flow.StateStore
	timer     flow.Timer
	window    time.Duration
	maxRounds int

	mu     sync.Mutex
	timers map[string]string
	rounds map[string]int
}

// RematcherOption configures a Rematcher.
type RematcherOption func(*Rematcher)

// WithMatchingWindow sets how long to wait for acceptance before matching again.
func WithMatchingWindow(d time.Duration) RematcherOption {
	return func(r *Rematcher) {
		r.window = d
	}
}

// WithMaxRematchRounds bounds the number of re-matches per case.
func WithMaxRematchRounds(n int) RematcherOption {
	return func(r *Rematcher) {
		r.maxRounds = n
	}
}

// WithRematchStates marks re-alerted volunteers as awaiting an ETA.
func WithRematchStates(states *flow.StateStore) RematcherOption {
	return func(r *Rematcher) {
		r.states = states
	}
}

// NewRematcher creates a Rematcher scheduling on timer.
func NewRematcher(cases CaseLoader, matcher Matcher, timer flow.Timer, opts ...RematcherOption) *Rematcher {
	r := &Rematcher{
		cases:     cases,
		matcher:   matcher,
		timer:     timer,
		window:    DefaultMatchingWindow,
		maxRounds: DefaultMaxRematchRounds,
		timers:    make(map[string]string),
		rounds:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Schedule arms the matching window for caseID, replacing any window already armed.
func (r *Rematcher) Schedule(caseID string) {
	if r.maxRounds <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.timers[caseID]; ok {
		_ = r.timer.Cancel(id)
	}
	id, err := r.timer.ScheduleAfter(r.window, "rematch "+caseID, func() { r.fire(caseID) })
	if err != nil {
		slog.Warn("Rematcher.Schedule: failed to arm matching window", "case", caseID, "error", err)
		delete(r.timers, caseID)
		return
	}
	r.timers[caseID] = id
}

// Cancel disarms the matching window for caseID and forgets its rounds.
func (r *Rematcher) Cancel(caseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.timers[caseID]; ok {
		_ = r.timer.Cancel(id)
	}
	delete(r.timers, caseID)
	delete(r.rounds, caseID)
}

// Pending returns the number of cases with an armed matching window.
func (r *Rematcher) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

func (r *Rematcher) fire(caseID string) {
	r.mu.Lock()
	delete(r.timers, caseID)
	r.rounds[caseID]++
	round := r.rounds[caseID]
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), rematchTimeout)
	defer cancel()
	r.Rematch(ctx, caseID, round)
}

// Rematch runs one re-match round for caseID. It is a no-op unless the case is still
// PENDING, and it re-arms the window while rounds remain.
func (r *Rematcher) Rematch(ctx context.Context, caseID string, round int) {
	hr, err := r.cases.GetHelpRequest(ctx, caseID)
	if err != nil {
		slog.Error("Rematcher.Rematch: failed to load case", "case", caseID, "error", err)
		r.forget(caseID)
		return
	}
	if hr.Status != models.StatusPending {
		slog.Debug("Rematcher.Rematch: case no longer pending", "case", caseID, "status", hr.Status)
		r.forget(caseID)
		return
	}

	var etas map[string]int
	if r.states != nil {
		etas = r.states.ETAsForCase(caseID)
	}
	slog.Warn("Rematcher.Rematch: case still pending after matching window", "case", caseID, "round", round, "etaReplies", len(etas))

	alerted, err := r.matcher.MatchAndNotify(ctx, hr)
	if err != nil {
		slog.Error("Rematcher.Rematch: matching failed", "case", caseID, "error", err)
	}
	if r.states != nil {
		for _, v := range alerted {
			if _, replied := etas[v.Phone]; replied {
				continue
			}
			if err := r.states.AwaitETA(v.Phone, caseID); err != nil {
				slog.Warn("Rematcher.Rematch: failed to mark volunteer awaiting ETA", "case", caseID, "error", err)
			}
		}
	}

	if round < r.maxRounds {
		r.Schedule(caseID)
		return
	}
	slog.Warn("Rematcher.Rematch: rematch rounds exhausted", "case", caseID, "rounds", round)
	r.forget(caseID)
}

func (r *Rematcher) forget(caseID string) {
	r.mu.Lock()
	delete(r.rounds, caseID)
	r.mu.Unlock()
}
