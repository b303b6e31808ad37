// Package matching selects which volunteers are alerted for a help request and
// dispatches the alerts.
//
// Selection never leaves the request's zone. Emergencies go to the certified tier
// (midwives and nurses) plus trained attendants, falling back to community-level
// volunteers only when neither is available. Support requests go to every available
// volunteer, community-level first.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

// VolunteerFinder lists AVAILABLE volunteers covering a zone in registration order.
type VolunteerFinder interface {
	FindAvailableByZone(ctx context.Context, zone string) ([]models.Volunteer, error)
}

// AlertCounter persists the per-case alert batch counter.
type AlertCounter interface {
	IncrementAlertsSent(ctx context.Context, caseID string) (int, error)
}

// Notifier delivers one alert for a request to one volunteer. It returns an error
// wrapping models.ErrNoTransport when nothing could carry the message.
type Notifier interface {
	Notify(ctx context.Context, v models.Volunteer, r models.HelpRequest) error
}

// Engine matches help requests to volunteers.
type Engine struct {
	volunteers VolunteerFinder
	counter    AlertCounter
	notifier   Notifier
}

// NewEngine creates an Engine over the given repositories and notifier.
func NewEngine(volunteers VolunteerFinder, counter AlertCounter, notifier Notifier) *Engine {
	return &Engine{volunteers: volunteers, counter: counter, notifier: notifier}
}

// FindVolunteersToAlert returns the volunteers that should receive an alert for r, in
// the order they should be alerted. An empty result is not an error.
func (e *Engine) FindVolunteersToAlert(ctx context.Context, r models.HelpRequest) ([]models.Volunteer, error) {
	available, err := e.volunteers.FindAvailableByZone(ctx, r.Zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load volunteers for zone %s: %w", r.Zone, err)
	}
	if len(available) == 0 {
		slog.Warn("Engine.FindVolunteersToAlert: no available volunteers", "case", r.CaseID, "zone", r.Zone)
		return nil, nil
	}

	var selected []models.Volunteer
	if r.IsEmergency() {
		selected = selectForEmergency(available)
	} else {
		selected = selectForSupport(available)
	}
	slog.Info("Engine.FindVolunteersToAlert: volunteers selected", "case", r.CaseID, "type", r.Type, "zone", r.Zone, "count", len(selected))
	return selected, nil
}

func selectForEmergency(available []models.Volunteer) []models.Volunteer {
	var certified, trained []models.Volunteer
	for _, v := range available {
		switch {
		case v.SkillType.IsCertified():
			certified = append(certified, v)
		case v.SkillType == models.SkillTrainedAttendant:
			trained = append(trained, v)
		}
	}
	out := append(certified, trained...)
	if len(out) == 0 {
		// Only community-level volunteers remain.
		return append([]models.Volunteer(nil), available...)
	}
	return out
}

func selectForSupport(available []models.Volunteer) []models.Volunteer {
	out := append([]models.Volunteer(nil), available...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SkillType.Priority() > out[j].SkillType.Priority()
	})
	return out
}

// FindMatchingVolunteers returns up to limit available volunteers in the request's zone,
// most qualified first. A limit of zero or less means no limit.
func (e *Engine) FindMatchingVolunteers(ctx context.Context, r models.HelpRequest, limit int) ([]models.Volunteer, error) {
	available, err := e.volunteers.FindAvailableByZone(ctx, r.Zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load volunteers for zone %s: %w", r.Zone, err)
	}
	sort.SliceStable(available, func(i, j int) bool {
		return available[i].SkillType.Priority() < available[j].SkillType.Priority()
	})
	if limit > 0 && len(available) > limit {
		available = available[:limit]
	}
	return available, nil
}

// FindBestVolunteer returns the single most qualified available volunteer, or
// models.ErrNotFound when the zone has none.
func (e *Engine) FindBestVolunteer(ctx context.Context, r models.HelpRequest) (models.Volunteer, error) {
	vs, err := e.FindMatchingVolunteers(ctx, r, 1)
	if err != nil {
		return models.Volunteer{}, err
	}
	if len(vs) == 0 {
		return models.Volunteer{}, models.ErrNotFound
	}
	return vs[0], nil
}

// MatchAndNotify alerts every selected volunteer in order and records one alert batch
// on the case. Individual send failures are logged and do not stop the batch. It
// returns the volunteers an alert was attempted for.
func (e *Engine) MatchAndNotify(ctx context.Context, r models.HelpRequest) ([]models.Volunteer, error) {
	slog.Debug("Engine.MatchAndNotify: starting", "case", r.CaseID, "type", r.Type, "zone", r.Zone)

	volunteers, err := e.FindVolunteersToAlert(ctx, r)
	if err != nil {
		matchRunsCounter.WithLabelValues(string(r.Type), "error").Inc()
		return nil, err
	}
	matchedVolunteersHist.Observe(float64(len(volunteers)))
	if len(volunteers) == 0 {
		matchRunsCounter.WithLabelValues(string(r.Type), "no_volunteers").Inc()
		return nil, nil
	}

	notified := 0
	for _, v := range volunteers {
		err := e.notifier.Notify(ctx, v, r)
		switch {
		case err == nil:
			notified++
			alertsSentCounter.WithLabelValues("sent").Inc()
		case errors.Is(err, models.ErrNoTransport):
			alertsSentCounter.WithLabelValues("no_transport").Inc()
			slog.Warn("Engine.MatchAndNotify: no transport for alert", "case", r.CaseID, "volunteer", v.FormattedID(), "phone", util.MaskPhone(v.Phone))
		default:
			alertsSentCounter.WithLabelValues("failed").Inc()
			slog.Error("Engine.MatchAndNotify: failed to notify volunteer", "case", r.CaseID, "volunteer", v.FormattedID(), "error", err)
		}
	}

	batches, err := e.counter.IncrementAlertsSent(ctx, r.CaseID)
	if err != nil {
		slog.Error("Engine.MatchAndNotify: failed to record alert batch", "case", r.CaseID, "error", err)
	}
	matchRunsCounter.WithLabelValues(string(r.Type), "matched").Inc()
	slog.Info("Engine.MatchAndNotify: alerts dispatched", "case", r.CaseID, "attempted", len(volunteers), "notified", notified, "batches", batches)
	return volunteers, nil
}

// HasAvailableVolunteers reports whether any volunteer in zone is AVAILABLE.
func (e *Engine) HasAvailableVolunteers(ctx context.Context, zone string) (bool, error) {
	n, err := e.CountAvailableInZone(ctx, zone)
	return n > 0, err
}

// CountAvailableInZone returns the number of AVAILABLE volunteers in zone.
func (e *Engine) CountAvailableInZone(ctx context.Context, zone string) (int, error) {
	vs, err := e.volunteers.FindAvailableByZone(ctx, zone)
	if err != nil {
		return 0, fmt.Errorf("failed to count volunteers for zone %s: %w", zone, err)
	}
	return len(vs), nil
}
