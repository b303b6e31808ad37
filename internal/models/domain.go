package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// RiskLevel is a mother's pregnancy risk classification.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// ParseRiskLevel maps free text to a RiskLevel, defaulting to LOW.
func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH", "H":
		return RiskHigh
	case "MEDIUM", "MED", "M":
		return RiskMedium
	default:
		return RiskLow
	}
}

// SkillType is a volunteer's qualification tier.
type SkillType string

const (
	SkillMidwife               SkillType = "MIDWIFE"
	SkillNurse                 SkillType = "NURSE"
	SkillTrainedAttendant      SkillType = "TRAINED_ATTENDANT"
	SkillCommunityHealthWorker SkillType = "COMMUNITY_HEALTH_WORKER"
	SkillCommunityVolunteer    SkillType = "COMMUNITY_VOLUNTEER"
)

// Priority returns the matching priority of the skill; lower is more qualified.
func (s SkillType) Priority() int {
	switch s {
	case SkillMidwife:
		return 1
	case SkillNurse:
		return 2
	case SkillTrainedAttendant:
		return 3
	case SkillCommunityHealthWorker:
		return 4
	default:
		return 5
	}
}

// IsCertified reports whether the skill belongs to the midwife/nurse tier.
func (s SkillType) IsCertified() bool {
	return s == SkillMidwife || s == SkillNurse
}

// ParseSkillType maps free text to a SkillType, defaulting to COMMUNITY_VOLUNTEER.
func ParseSkillType(s string) SkillType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MIDWIFE":
		return SkillMidwife
	case "NURSE":
		return SkillNurse
	case "TRAINED", "TRAINED_ATTENDANT", "TBA", "ATTENDANT":
		return SkillTrainedAttendant
	case "CHW", "COMMUNITY_HEALTH_WORKER", "HEALTH_WORKER":
		return SkillCommunityHealthWorker
	default:
		return SkillCommunityVolunteer
	}
}

// Availability is a volunteer's willingness to receive alerts.
type Availability string

const (
	AvailabilityAvailable Availability = "AVAILABLE"
	AvailabilityBusy      Availability = "BUSY"
	AvailabilityOffline   Availability = "OFFLINE"
)

// Mother is a registered pregnant woman who can raise help requests.
type Mother struct {
	ID                int64      `json:"id"`
	Phone             string     `json:"phone"`
	Name              string     `json:"name,omitempty"`
	Camp              string     `json:"camp"`
	Zone              string     `json:"zone"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	RiskLevel         RiskLevel  `json:"risk_level"`
	PreferredLanguage Language   `json:"preferred_language"`
	RegisteredAt      time.Time  `json:"registered_at"`
	LastContactAt     *time.Time `json:"last_contact_at,omitempty"`
}

// FormattedID returns the human-readable mother id.
func (m Mother) FormattedID() string {
	return fmt.Sprintf("M-%04d", m.ID)
}

// Volunteer is a registered helper who receives alerts for the zones they cover.
type Volunteer struct {
	ID                int64        `json:"id"`
	Phone             string       `json:"phone"`
	Name              string       `json:"name,omitempty"`
	Camp              string       `json:"camp,omitempty"`
	SkillType         SkillType    `json:"skill_type"`
	Zones             []string     `json:"zones"`
	Availability      Availability `json:"availability"`
	PreferredLanguage Language     `json:"preferred_language"`
	CompletedCases    int          `json:"completed_cases"`
	RegisteredAt      time.Time    `json:"registered_at"`
}

// FormattedID returns the human-readable volunteer id.
func (v Volunteer) FormattedID() string {
	return fmt.Sprintf("V-%04d", v.ID)
}

// CoversZone reports whether the volunteer serves zone (case-insensitive).
func (v Volunteer) CoversZone(zone string) bool {
	for _, z := range v.Zones {
		if strings.EqualFold(z, zone) {
			return true
		}
	}
	return false
}

// IsAvailable reports whether the volunteer currently accepts alerts.
func (v Volunteer) IsAvailable() bool {
	return v.Availability == AvailabilityAvailable
}

// ValidZone reports whether z is a non-empty run of letters and digits.
func ValidZone(z string) bool {
	if z == "" {
		return false
	}
	for _, r := range z {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// NormalizeZones trims, upper-cases and de-duplicates zone names, preserving first-seen order.
// Names that are not ValidZone are dropped.
func NormalizeZones(zones []string) []string {
	seen := make(map[string]bool, len(zones))
	out := make([]string, 0, len(zones))
	for _, z := range zones {
		z = strings.ToUpper(strings.TrimSpace(z))
		if !ValidZone(z) || seen[z] {
			continue
		}
		seen[z] = true
		out = append(out, z)
	}
	return out
}
