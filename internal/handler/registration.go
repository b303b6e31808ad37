package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/notify"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

func (h *Handler) registerMother(ctx context.Context, cmd models.ParsedCommand) (string, error) {
	lang := cmd.Language
	camp := strings.TrimSpace(cmd.Param(models.ParamCamp))
	zone := strings.ToUpper(strings.TrimSpace(cmd.Param(models.ParamZone)))
	if camp == "" {
		return msg(lang, motherCampRequiredEN, motherCampRequiredAR), nil
	}
	if zone == "" {
		return msg(lang, motherZoneRequiredEN, motherZoneRequiredAR), nil
	}
	if !models.ValidZone(zone) {
		return msg(lang, zoneInvalidEN, zoneInvalidAR), nil
	}

	m := models.Mother{
		Phone:             cmd.Phone,
		Name:              cmd.Param(models.ParamName),
		Camp:              camp,
		Zone:              zone,
		RiskLevel:         models.ParseRiskLevel(cmd.Param(models.ParamRiskLevel)),
		PreferredLanguage: lang,
		RegisteredAt:      h.now(),
	}
	if due := cmd.Param(models.ParamDueDate); due != "" {
		if d, err := time.Parse(time.DateOnly, due); err == nil {
			m.DueDate = &d
		}
	}

	if err := h.store.CreateMother(ctx, &m); err != nil {
		if errors.Is(err, models.ErrAlreadyRegistered) {
			existing, getErr := h.store.GetMotherByPhone(ctx, cmd.Phone)
			if getErr != nil {
				return "", fmt.Errorf("failed to load registered mother: %w", getErr)
			}
			return msg(lang, alreadyRegisteredEN, alreadyRegisteredAR, existing.FormattedID()), nil
		}
		return "", fmt.Errorf("failed to register mother: %w", err)
	}

	slog.Info("Handler.registerMother: mother registered", "id", m.FormattedID(), "phone", util.MaskPhone(m.Phone), "camp", camp, "zone", zone, "risk", m.RiskLevel)
	return msg(lang, motherRegisteredEN, motherRegisteredAR, m.FormattedID(), camp, zone), nil
}

func (h *Handler) registerVolunteer(ctx context.Context, cmd models.ParsedCommand) (string, error) {
	lang := cmd.Language
	var zones []string
	if raw := cmd.Param(models.ParamZones); raw != "" {
		zones = models.NormalizeZones(strings.Split(raw, ","))
	}
	if len(zones) == 0 {
		return msg(lang, volunteerZoneRequiredEN, volunteerZoneRequiredAR), nil
	}

	v := models.Volunteer{
		Phone:             cmd.Phone,
		Name:              cmd.Param(models.ParamName),
		Camp:              cmd.Param(models.ParamCamp),
		SkillType:         models.ParseSkillType(cmd.Param(models.ParamSkillType)),
		Zones:             zones,
		Availability:      models.AvailabilityAvailable,
		PreferredLanguage: lang,
		RegisteredAt:      h.now(),
	}
	if err := h.store.CreateVolunteer(ctx, &v); err != nil {
		if errors.Is(err, models.ErrAlreadyRegistered) {
			existing, getErr := h.store.GetVolunteerByPhone(ctx, cmd.Phone)
			if getErr != nil {
				return "", fmt.Errorf("failed to load registered volunteer: %w", getErr)
			}
			return msg(lang, alreadyRegisteredEN, alreadyRegisteredAR, existing.FormattedID()), nil
		}
		return "", fmt.Errorf("failed to register volunteer: %w", err)
	}

	slog.Info("Handler.registerVolunteer: volunteer registered", "id", v.FormattedID(), "phone", util.MaskPhone(v.Phone), "skill", v.SkillType, "zones", zones)
	return msg(lang, volunteerRegisteredEN, volunteerRegisteredAR,
		v.FormattedID(), notify.SkillLabel(v.SkillType, lang), strings.Join(zones, ", ")), nil
}

func (h *Handler) setAvailability(ctx context.Context, cmd models.ParsedCommand, a models.Availability) (string, error) {
	lang := cmd.Language
	v, err := h.store.GetVolunteerByPhone(ctx, cmd.Phone)
	if errors.Is(err, models.ErrNotFound) {
		return msg(lang, volunteerNotRegisteredEN, volunteerNotRegisteredAR), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load volunteer: %w", err)
	}

	prev := v.Availability
	v.Availability = a
	if err := h.store.UpdateVolunteer(ctx, v); err != nil {
		return "", fmt.Errorf("failed to update availability: %w", err)
	}
	slog.Info("Handler.setAvailability: availability changed", "volunteer", v.FormattedID(), "from", prev, "to", a)

	switch a {
	case models.AvailabilityAvailable:
		return msg(lang, nowAvailableEN, nowAvailableAR), nil
	case models.AvailabilityBusy:
		return msg(lang, nowBusyEN, nowBusyAR), nil
	default:
		return msg(lang, nowOfflineEN, nowOfflineAR), nil
	}
}

func (h *Handler) status(ctx context.Context, cmd models.ParsedCommand) (string, error) {
	lang := cmd.Language

	m, err := h.store.GetMotherByPhone(ctx, cmd.Phone)
	switch {
	case err == nil:
		reply := msg(lang, motherStatusEN, motherStatusAR, m.FormattedID(), m.Camp, m.Zone, notify.RiskLabel(m.RiskLevel, lang))
		latest, err := h.store.LatestForMother(ctx, m.Phone)
		switch {
		case err == nil:
			reply += msg(lang, latestCaseEN, latestCaseAR, latest.CaseID, notify.StatusLabel(latest.Status, lang))
		case !errors.Is(err, models.ErrNotFound):
			return "", fmt.Errorf("failed to load latest case: %w", err)
		}
		return reply, nil
	case !errors.Is(err, models.ErrNotFound):
		return "", fmt.Errorf("failed to load mother: %w", err)
	}

	v, err := h.store.GetVolunteerByPhone(ctx, cmd.Phone)
	switch {
	case err == nil:
		active, err := h.store.ActiveForVolunteer(ctx, v.Phone)
		if err != nil {
			return "", fmt.Errorf("failed to load active cases: %w", err)
		}
		return msg(lang, volunteerStatusEN, volunteerStatusAR,
			v.FormattedID(),
			notify.AvailabilityLabel(v.Availability, lang),
			notify.SkillLabel(v.SkillType, lang),
			strings.Join(v.Zones, ", "),
			len(active),
			v.CompletedCases), nil
	case !errors.Is(err, models.ErrNotFound):
		return "", fmt.Errorf("failed to load volunteer: %w", err)
	}

	return msg(lang, notRegisteredAnyEN, notRegisteredAnyAR), nil
}
