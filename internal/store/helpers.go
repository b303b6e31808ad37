package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// formatDate renders a due date as a nullable YYYY-MM-DD column value.
func formatDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}

func parseDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s.String)
	if err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", s.String, err)
	}
	return &t, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// encodeZones stores zones as ",A,B," so a single LIKE '%,A,%' finds coverage.
func encodeZones(zones []string) string {
	zones = models.NormalizeZones(zones)
	if len(zones) == 0 {
		return ""
	}
	return "," + strings.Join(zones, ",") + ","
}

// likeEscaper escapes LIKE wildcards for use with ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func decodeZones(s string) []string {
	var out []string
	for _, z := range strings.Split(s, ",") {
		if z != "" {
			out = append(out, z)
		}
	}
	return out
}

func scanMother(row rowScanner) (models.Mother, error) {
	var m models.Mother
	var name sql.NullString
	var due sql.NullString
	var risk, lang string
	var lastContact sql.NullTime
	if err := row.Scan(&m.ID, &m.Phone, &name, &m.Camp, &m.Zone, &due, &risk, &lang, &m.RegisteredAt, &lastContact); err != nil {
		return m, err
	}
	m.Name = name.String
	m.RiskLevel = models.RiskLevel(risk)
	m.PreferredLanguage = models.Language(lang)
	m.LastContactAt = timePtr(lastContact)
	var err error
	m.DueDate, err = parseDate(due)
	return m, err
}

func scanVolunteer(row rowScanner) (models.Volunteer, error) {
	var v models.Volunteer
	var name, camp sql.NullString
	var skill, zones, availability, lang string
	if err := row.Scan(&v.ID, &v.Phone, &name, &camp, &skill, &zones, &availability, &lang, &v.CompletedCases, &v.RegisteredAt); err != nil {
		return v, err
	}
	v.Name = name.String
	v.Camp = camp.String
	v.SkillType = models.SkillType(skill)
	v.Zones = decodeZones(zones)
	v.Availability = models.Availability(availability)
	v.PreferredLanguage = models.Language(lang)
	return v, nil
}

func scanHelpRequest(row rowScanner) (models.HelpRequest, error) {
	var r models.HelpRequest
	var typ, status string
	var risk, due, acceptedBy, reason sql.NullString
	var acceptedAt, inProgressAt, closedAt sql.NullTime
	err := row.Scan(&r.CaseID, &r.MotherID, &r.MotherPhone, &typ, &status, &r.Zone, &risk, &due, &acceptedBy,
		&r.CreatedAt, &acceptedAt, &inProgressAt, &closedAt, &r.AlertsSent, &reason)
	if err != nil {
		return r, err
	}
	r.Type = models.RequestType(typ)
	r.Status = models.RequestStatus(status)
	r.RiskLevel = models.RiskLevel(risk.String)
	r.AcceptedByPhone = acceptedBy.String
	r.CancelReason = reason.String
	r.AcceptedAt = timePtr(acceptedAt)
	r.InProgressAt = timePtr(inProgressAt)
	r.ClosedAt = timePtr(closedAt)
	r.DueDate, err = parseDate(due)
	return r, err
}
