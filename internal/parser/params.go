package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
)

var dueDatePattern = regexp.MustCompile(`^(\d{1,2})[/\-.](\d{1,2})(?:[/\-.](\d{2,4}))?$`)

// splitFields groups tokens by field keyword. Tokens before the first keyword are
// returned as leading; a repeated keyword keeps its first value.
func splitFields(orig, upper []string) (leading []string, fields map[string][]string) {
	fields = make(map[string][]string)
	current := ""
	for i, tok := range upper {
		if fieldKeywords[tok] {
			current = tok
			if current == "ZONES" {
				current = "ZONE"
			}
			if _, seen := fields[current]; seen {
				current = "-" // ignore duplicates
			} else {
				fields[current] = nil
			}
			continue
		}
		if current == "" {
			leading = append(leading, orig[i])
			continue
		}
		if current != "-" {
			fields[current] = append(fields[current], orig[i])
		}
	}
	return leading, fields
}

func (p *Parser) extractMother(orig, upper []string, params map[string]string) {
	leading, fields := splitFields(orig, upper)

	if camp := strings.Join(fields["CAMP"], " "); camp != "" {
		params[models.ParamCamp] = camp
	} else if len(leading) > 0 {
		params[models.ParamCamp] = strings.Join(leading, " ")
	}
	if zone := fields["ZONE"]; len(zone) > 0 {
		params[models.ParamZone] = strings.ToUpper(zone[0])
	}
	if due := fields["DUE"]; len(due) > 0 {
		if d, ok := parseDueDate(due[0], p.now()); ok {
			params[models.ParamDueDate] = d.Format(time.DateOnly)
		}
	}
	if risk := fields["RISK"]; len(risk) > 0 {
		switch r := strings.ToUpper(risk[0]); r {
		case string(models.RiskHigh), string(models.RiskMedium), string(models.RiskLow):
			params[models.ParamRiskLevel] = r
		}
	}
	if name := strings.Join(fields["NAME"], " "); name != "" {
		params[models.ParamName] = name
	}
}

func extractVolunteer(orig, upper []string, params map[string]string) {
	leading, fields := splitFields(orig, upper)

	if name := strings.Join(fields["NAME"], " "); name != "" {
		params[models.ParamName] = name
	} else if len(leading) > 0 {
		params[models.ParamName] = strings.Join(leading, " ")
	}
	if camp := strings.Join(fields["CAMP"], " "); camp != "" {
		params[models.ParamCamp] = camp
	}
	if zones := models.NormalizeZones(fields["ZONE"]); len(zones) > 0 {
		params[models.ParamZones] = strings.Join(zones, ",")
	}
	if skill := fields["SKILL"]; len(skill) > 0 {
		params[models.ParamSkillType] = string(models.ParseSkillType(strings.Join(skill, "_")))
	}
}

// parseDueDate accepts d/m, d-m, d.m with an optional 2 or 4 digit year. A date given
// without a year that has already passed is moved to next year.
func parseDueDate(s string, now time.Time) (time.Time, bool) {
	m := dueDatePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year := now.Year()
	explicitYear := m[3] != ""
	if explicitYear {
		year, _ = strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
	}

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !explicitYear && d.Before(today) {
		d = d.AddDate(1, 0, 0)
	}
	return d, true
}
