package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/SafeBirth/internal/flow"
	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/notify"
	"github.com/BTreeMap/SafeBirth/internal/store"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

func (h *Handler) raiseRequest(ctx context.Context, cmd models.ParsedCommand, typ models.RequestType) (string, error) {
	lang := cmd.Language

	m, err := h.store.GetMotherByPhone(ctx, cmd.Phone)
	if errors.Is(err, models.ErrNotFound) {
		if typ == models.RequestSupport {
			// HELP from anyone who is not a mother is a request for the command menu.
			return msg(lang, helpMenuEN, helpMenuAR), nil
		}
		return msg(lang, motherNotRegisteredEN, motherNotRegisteredAR), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load mother: %w", err)
	}

	now := h.now()
	if err := h.store.TouchMother(ctx, m.Phone, now); err != nil {
		slog.Warn("Handler.raiseRequest: failed to record contact", "mother", m.FormattedID(), "error", err)
	}

	r := models.NewHelpRequest(m, typ, now)
	if err := h.store.CreateHelpRequest(ctx, &r); err != nil {
		return "", fmt.Errorf("failed to create help request: %w", err)
	}
	if typ == models.RequestEmergency {
		slog.Warn("Handler.raiseRequest: EMERGENCY raised", "case", r.CaseID, "mother", m.FormattedID(), "zone", r.Zone, "risk", r.RiskLevel)
	} else {
		slog.Info("Handler.raiseRequest: support request raised", "case", r.CaseID, "mother", m.FormattedID(), "zone", r.Zone)
	}

	alerted := h.alert(ctx, r)
	if h.rematcher != nil {
		h.rematcher.Schedule(r.CaseID)
	}

	switch {
	case typ == models.RequestEmergency && len(alerted) == 0:
		return msg(lang, emergencyNoneEN, emergencyNoneAR, r.CaseID), nil
	case typ == models.RequestEmergency:
		return msg(lang, emergencySentEN, emergencySentAR, r.CaseID, len(alerted)), nil
	case len(alerted) == 0:
		return msg(lang, supportNoneEN, supportNoneAR, r.CaseID), nil
	default:
		return msg(lang, supportSentEN, supportSentAR, r.CaseID, len(alerted)), nil
	}
}

// alert runs matching for r and marks every alerted volunteer as awaiting an ETA.
// Matching failures are logged; the case stays PENDING either way.
func (h *Handler) alert(ctx context.Context, r models.HelpRequest) []models.Volunteer {
	alerted, err := h.matcher.MatchAndNotify(ctx, r)
	if err != nil {
		slog.Error("Handler.alert: matching failed", "case", r.CaseID, "error", err)
		return nil
	}
	if h.states != nil {
		for _, v := range alerted {
			if err := h.states.AwaitETA(v.Phone, r.CaseID); err != nil {
				slog.Warn("Handler.alert: failed to mark volunteer awaiting ETA", "case", r.CaseID, "volunteer", v.FormattedID(), "error", err)
			}
		}
	}
	return alerted
}

// loadCase resolves the case id parameter. It returns a non-empty reply when the
// command cannot proceed.
func (h *Handler) loadCase(ctx context.Context, cmd models.ParsedCommand, verbEN, verbAR string) (models.HelpRequest, string, error) {
	lang := cmd.Language
	caseID := models.NormalizeCaseID(cmd.Param(models.ParamCaseID))
	if caseID == "" {
		return models.HelpRequest{}, caseIDRequired(lang, verbEN, verbAR), nil
	}
	r, err := h.store.GetHelpRequest(ctx, caseID)
	if errors.Is(err, models.ErrNotFound) {
		return models.HelpRequest{}, msg(lang, caseNotFoundEN, caseNotFoundAR, caseID), nil
	}
	if err != nil {
		return models.HelpRequest{}, "", fmt.Errorf("failed to load case %s: %w", caseID, err)
	}
	return r, "", nil
}

func (h *Handler) acceptCase(ctx context.Context, cmd models.ParsedCommand) (string, error) {
	lang := cmd.Language
	if models.NormalizeCaseID(cmd.Param(models.ParamCaseID)) == "" {
		return caseIDRequired(lang, "ACCEPT", "قبول"), nil
	}

	v, err := h.store.GetVolunteerByPhone(ctx, cmd.Phone)
	if errors.Is(err, models.ErrNotFound) {
		return msg(lang, volunteerNotRegisteredEN, volunteerNotRegisteredAR), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load volunteer: %w", err)
	}

	r, reply, err := h.loadCase(ctx, cmd, "ACCEPT", "قبول")
	if err != nil || reply != "" {
		return reply, err
	}

	from := r.Status
	if err := r.Accept(v.Phone, h.now()); err != nil {
		slog.Info("Handler.acceptCase: case not pending", "case", r.CaseID, "status", from, "volunteer", v.FormattedID())
		return msg(lang, caseNotPendingEN, caseNotPendingAR, r.CaseID, notify.StatusLabel(from, lang)), nil
	}
	if err := h.store.UpdateHelpRequest(ctx, r, from); err != nil {
		if errors.Is(err, store.ErrConflict) {
			current, getErr := h.store.GetHelpRequest(ctx, r.CaseID)
			if getErr != nil {
				return "", fmt.Errorf("failed to reload case %s: %w", r.CaseID, getErr)
			}
			slog.Info("Handler.acceptCase: lost acceptance race", "case", r.CaseID, "volunteer", v.FormattedID(), "status", current.Status)
			return msg(lang, caseNotPendingEN, caseNotPendingAR, r.CaseID, notify.StatusLabel(current.Status, lang)), nil
		}
		return "", fmt.Errorf("failed to accept case %s: %w", r.CaseID, err)
	}

	v.Availability = models.AvailabilityBusy
	if err := h.store.UpdateVolunteer(ctx, v); err != nil {
		slog.Error("Handler.acceptCase: failed to mark volunteer busy", "volunteer", v.FormattedID(), "error", err)
	}
	if h.rematcher != nil {
		h.rematcher.Cancel(r.CaseID)
	}
	h.clearAwaiting(v.Phone, r.CaseID)
	slog.Info("Handler.acceptCase: case accepted", "case", r.CaseID, "volunteer", v.FormattedID(), "phone", util.MaskPhone(v.Phone))

	if m, err := h.store.GetMotherByPhone(ctx, r.MotherPhone); err == nil {
		name := v.Name
		if name == "" {
			name = v.FormattedID()
		}
		mlang := m.PreferredLanguage
		h.notifyParty(ctx, m.Phone, msg(mlang, motherAcceptedEN, motherAcceptedAR, r.CaseID, name, notify.SkillLabel(v.SkillType, mlang)), r.CaseID)
	} else {
		slog.Warn("Handler.acceptCase: mother not found for notification", "case", r.CaseID, "error", err)
	}

	return msg(lang, acceptedEN, acceptedAR, r.CaseID, r.Zone, r.CaseID), nil
}

func (h *Handler) completeCase(ctx context.Context, cmd models.ParsedCommand) (string, error) {
	lang := cmd.Language
	if models.NormalizeCaseID(cmd.Param(models.ParamCaseID)) == "" {
		return caseIDRequired(lang, "COMPLETE", "انهاء"), nil
	}

	v, err := h.store.GetVolunteerByPhone(ctx, cmd.Phone)
	if errors.Is(err, models.ErrNotFound) {
		return msg(lang, volunteerNotRegisteredEN, volunteerNotRegisteredAR), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load volunteer: %w", err)
	}

	r, reply, err := h.loadCase(ctx, cmd, "COMPLETE", "انهاء")
	if err != nil || reply != "" {
		return reply, err
	}
	if r.AcceptedByPhone != v.Phone {
		return msg(lang, notAssignedEN, notAssignedAR, r.CaseID), nil
	}

	from := r.Status
	if err := r.Complete(h.now()); err != nil {
		return msg(lang, caseNotActiveEN, caseNotActiveAR, r.CaseID, notify.StatusLabel(from, lang)), nil
	}
	if err := h.store.UpdateHelpRequest(ctx, r, from); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return msg(lang, caseNotActiveEN, caseNotActiveAR, r.CaseID, notify.StatusLabel(from, lang)), nil
		}
		return "", fmt.Errorf("failed to complete case %s: %w", r.CaseID, err)
	}

	v.CompletedCases++
	v.Availability = models.AvailabilityAvailable
	if err := h.store.UpdateVolunteer(ctx, v); err != nil {
		slog.Error("Handler.completeCase: failed to update volunteer", "volunteer", v.FormattedID(), "error", err)
	}
	slog.Info("Handler.completeCase: case completed", "case", r.CaseID, "volunteer", v.FormattedID(), "completed", v.CompletedCases)
	return msg(lang, completedEN, completedAR, r.CaseID, v.CompletedCases), nil
}

func (h *Handler) cancelCase(ctx context.Context, cmd models.ParsedCommand) (string, error) {
	lang := cmd.Language
	r, reply, err := h.loadCase(ctx, cmd, "CANCEL", "الغاء")
	if err != nil || reply != "" {
		return reply, err
	}

	isMother := r.MotherPhone == cmd.Phone
	isAssignee := r.AcceptedByPhone != "" && r.AcceptedByPhone == cmd.Phone
	if !isMother && !isAssignee {
		return msg(lang, notAuthorizedCancelEN, notAuthorizedCancelAR, r.CaseID), nil
	}

	from := r.Status
	if err := r.Cancel(cmd.Param(models.ParamReason), h.now()); err != nil {
		return msg(lang, caseNotActiveEN, caseNotActiveAR, r.CaseID, notify.StatusLabel(from, lang)), nil
	}
	if err := h.store.UpdateHelpRequest(ctx, r, from); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return msg(lang, caseNotActiveEN, caseNotActiveAR, r.CaseID, notify.StatusLabel(from, lang)), nil
		}
		return "", fmt.Errorf("failed to cancel case %s: %w", r.CaseID, err)
	}
	if h.rematcher != nil {
		h.rematcher.Cancel(r.CaseID)
	}
	slog.Info("Handler.cancelCase: case cancelled", "case", r.CaseID, "byMother", isMother, "reason", r.CancelReason)

	if r.AcceptedByPhone != "" {
		if v, err := h.store.GetVolunteerByPhone(ctx, r.AcceptedByPhone); err == nil {
			v.Availability = models.AvailabilityAvailable
			if err := h.store.UpdateVolunteer(ctx, v); err != nil {
				slog.Error("Handler.cancelCase: failed to release volunteer", "volunteer", v.FormattedID(), "error", err)
			}
			if isMother {
				h.notifyParty(ctx, v.Phone, msg(v.PreferredLanguage, volunteerCaseCancelEN, volunteerCaseCancelAR, r.CaseID), r.CaseID)
			}
		} else {
			slog.Warn("Handler.cancelCase: assignee not found", "case", r.CaseID, "error", err)
		}
	}
	if isAssignee && !isMother {
		if m, err := h.store.GetMotherByPhone(ctx, r.MotherPhone); err == nil {
			h.notifyParty(ctx, m.Phone, msg(m.PreferredLanguage, motherCaseCancelledEN, motherCaseCancelledAR, r.CaseID), r.CaseID)
		}
	}

	return msg(lang, cancelledEN, cancelledAR, r.CaseID), nil
}

// clearAwaiting drops the ETA marker once the volunteer has taken the case.
func (h *Handler) clearAwaiting(phone, caseID string) {
	if h.states == nil {
		return
	}
	st, ok := h.states.Get(phone)
	if !ok || st.Marker != flow.MarkerAwaitingETA || st.Data[flow.DataKeyCaseID] != caseID {
		return
	}
	_, _ = h.states.Update(phone, func(st *flow.ConversationState) error {
		if st.Marker == flow.MarkerAwaitingETA && st.Data[flow.DataKeyCaseID] == caseID {
			st.SetMarker(flow.MarkerNone, nil)
		}
		return nil
	})
}
