package flow

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TimerInfo describes a scheduled callback.
type TimerInfo struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Remaining   string    `json:"remaining"`
	Description string    `json:"description"`
}

// Timer schedules delayed callbacks.
type Timer interface {
	ScheduleAfter(delay time.Duration, description string, fn func()) (string, error)
	Cancel(id string) error
	ListActive() []TimerInfo
	Stop()
}

type timerEntry struct {
	timer       *time.Timer
	scheduledAt time.Time
	expiresAt   time.Time
	description string
}

// SimpleTimer implements Timer on time.AfterFunc.
type SimpleTimer struct {
	timers  map[string]*timerEntry
	mu      sync.RWMutex
	nextID  int64
	stopped bool
}

var _ Timer = (*SimpleTimer)(nil)

// NewSimpleTimer creates a new SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	return &SimpleTimer{
		timers: make(map[string]*timerEntry),
	}
}

// ScheduleAfter runs fn after delay. Scheduling on a stopped timer is an error.
func (t *SimpleTimer) ScheduleAfter(delay time.Duration, description string, fn func()) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return "", fmt.Errorf("timer stopped")
	}
	t.nextID++
	id := fmt.Sprintf("timer_%d", t.nextID)

	now := time.Now()
	entry := &timerEntry{
		scheduledAt: now,
		expiresAt:   now.Add(delay),
		description: description,
	}
	entry.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		_, live := t.timers[id]
		delete(t.timers, id)
		t.mu.Unlock()
		if !live {
			return
		}
		slog.Debug("SimpleTimer: firing", "id", id, "description", description)
		fn()
	})
	t.timers[id] = entry

	slog.Debug("SimpleTimer.ScheduleAfter: scheduled", "id", id, "delay", delay, "description", description)
	return id, nil
}

// Cancel stops a scheduled callback. Unknown ids are ignored.
func (t *SimpleTimer) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.timers[id]; ok {
		entry.timer.Stop()
		delete(t.timers, id)
		slog.Debug("SimpleTimer.Cancel: cancelled", "id", id)
	}
	return nil
}

// Stop cancels every scheduled callback and rejects further scheduling.
func (t *SimpleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, entry := range t.timers {
		entry.timer.Stop()
	}
	slog.Info("SimpleTimer stopped all timers", "count", len(t.timers))
	t.timers = make(map[string]*timerEntry)
	t.stopped = true
}

// ListActive returns information about all pending callbacks.
func (t *SimpleTimer) ListActive() []TimerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	result := make([]TimerInfo, 0, len(t.timers))
	for id, entry := range t.timers {
		remaining := entry.expiresAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		result = append(result, TimerInfo{
			ID:          id,
			ScheduledAt: entry.scheduledAt,
			ExpiresAt:   entry.expiresAt,
			Remaining:   remaining.String(),
			Description: entry.description,
		})
	}
	return result
}
