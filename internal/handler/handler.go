// Package handler executes parsed SMS commands against the case store and produces the
// localized reply for the sender.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/flow"
	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/notify"
	"github.com/BTreeMap/SafeBirth/internal/store"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

// Matcher alerts volunteers for a help request and returns who was alerted.
type Matcher interface {
	MatchAndNotify(ctx context.Context, r models.HelpRequest) ([]models.Volunteer, error)
}

// Handler executes commands. It is safe for concurrent use; per-phone serialization is
// the caller's concern.
type Handler struct {
	store     store.Store
	matcher   Matcher
	sender    notify.Sender
	states    *flow.StateStore
	rematcher *Rematcher
	now       func() time.Time
}

var _ flow.CommandExecutor = (*Handler)(nil)

// Option configures a Handler.
type Option func(*Handler)

// WithStateStore lets the handler mark alerted volunteers as awaiting an ETA reply.
func WithStateStore(states *flow.StateStore) Option {
	return func(h *Handler) {
		h.states = states
	}
}

// WithRematcher re-runs matching for cases still pending after the matching window.
func WithRematcher(r *Rematcher) Option {
	return func(h *Handler) {
		h.rematcher = r
	}
}

// WithClock overrides the clock used for case timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// New creates a Handler. sender delivers notifications to the other party of a case.
func New(st store.Store, matcher Matcher, sender notify.Sender, opts ...Option) *Handler {
	h := &Handler{
		store:   st,
		matcher: matcher,
		sender:  sender,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Execute runs cmd and returns the reply for the sender. Expected rejections (not
// registered, unknown case, illegal transition) are replies, not errors; an error means
// the command could not be processed.
func (h *Handler) Execute(ctx context.Context, cmd models.ParsedCommand) (string, error) {
	slog.Info("Handler.Execute: handling command", "type", cmd.Type, "from", util.MaskPhone(cmd.Phone), "language", cmd.Language)

	switch cmd.Type {
	case models.CommandRegisterMother:
		return h.registerMother(ctx, cmd)
	case models.CommandRegisterVolunteer:
		return h.registerVolunteer(ctx, cmd)
	case models.CommandEmergency:
		return h.raiseRequest(ctx, cmd, models.RequestEmergency)
	case models.CommandSupport:
		return h.raiseRequest(ctx, cmd, models.RequestSupport)
	case models.CommandAcceptCase:
		return h.acceptCase(ctx, cmd)
	case models.CommandCompleteCase:
		return h.completeCase(ctx, cmd)
	case models.CommandCancelCase:
		return h.cancelCase(ctx, cmd)
	case models.CommandAvailable:
		return h.setAvailability(ctx, cmd, models.AvailabilityAvailable)
	case models.CommandBusy:
		return h.setAvailability(ctx, cmd, models.AvailabilityBusy)
	case models.CommandOffline:
		return h.setAvailability(ctx, cmd, models.AvailabilityOffline)
	case models.CommandStatus:
		return h.status(ctx, cmd)
	case models.CommandHelp:
		return msg(cmd.Language, helpMenuEN, helpMenuAR), nil
	case models.CommandUnknown:
		return msg(cmd.Language, unknownEN, unknownAR), nil
	default:
		return "", fmt.Errorf("unhandled command type %q", cmd.Type)
	}
}

// notifyParty sends a best-effort notification; failures are logged only.
func (h *Handler) notifyParty(ctx context.Context, to, body, caseID string) {
	if h.sender == nil || to == "" {
		return
	}
	if err := h.sender.SendMessage(ctx, to, body); err != nil {
		slog.Warn("Handler.notifyParty: notification failed", "case", caseID, "to", util.MaskPhone(to), "error", err)
	}
}
