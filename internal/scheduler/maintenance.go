package scheduler

import (
	"log/slog"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/relay"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

const (
	// DefaultStalePendingAfter is the age at which an unconfirmed relay send is reported.
	DefaultStalePendingAfter = 10 * time.Minute

	DefaultSweepSchedule = "@every 5m"
	DefaultStaleSchedule = "@every 1m"

	JobSweepConversations = "sweep-conversations"
	JobReportStalePending = "report-stale-pending"
)

// StateSweeper drops expired conversation state.
type StateSweeper interface {
	Sweep() int
}

// PendingReporter lists relay send requests still awaiting confirmation.
type PendingReporter interface {
	StalePending(olderThan time.Duration) []relay.PendingRequest
}

var _ PendingReporter = (*relay.Hub)(nil)

// Maintenance configures the periodic jobs. A nil States or Relay skips that job.
type Maintenance struct {
	States            StateSweeper
	Relay             PendingReporter
	StalePendingAfter time.Duration
	SweepSchedule     string
	StaleSchedule     string
}

func (m Maintenance) withDefaults() Maintenance {
	if m.StalePendingAfter <= 0 {
		m.StalePendingAfter = DefaultStalePendingAfter
	}
	if m.SweepSchedule == "" {
		m.SweepSchedule = DefaultSweepSchedule
	}
	if m.StaleSchedule == "" {
		m.StaleSchedule = DefaultStaleSchedule
	}
	return m
}

// Register schedules the maintenance jobs on s.
func (m Maintenance) Register(s *Scheduler) error {
	m = m.withDefaults()
	if m.States != nil {
		if err := s.AddJob(JobSweepConversations, m.SweepSchedule, m.SweepConversations); err != nil {
			return err
		}
	}
	if m.Relay != nil {
		if err := s.AddJob(JobReportStalePending, m.StaleSchedule, func() { m.ReportStalePending() }); err != nil {
			return err
		}
	}
	return nil
}

// SweepConversations removes expired conversation state.
func (m Maintenance) SweepConversations() {
	if removed := m.States.Sweep(); removed > 0 {
		slog.Info("Maintenance.SweepConversations: expired conversations removed", "count", removed)
	}
}

// ReportStalePending logs relay sends that were never confirmed. They are neither
// resent nor dropped. It returns the number reported.
func (m Maintenance) ReportStalePending() int {
	m = m.withDefaults()
	stale := m.Relay.StalePending(m.StalePendingAfter)
	for _, p := range stale {
		masked := make([]string, len(p.Recipients))
		for i, r := range p.Recipients {
			masked[i] = util.MaskPhone(r)
		}
		slog.Warn("Maintenance.ReportStalePending: relay send still unconfirmed",
			"request_id", p.RequestID, "recipients", masked, "age", time.Since(p.CreatedAt).Round(time.Second))
	}
	return len(stale)
}
