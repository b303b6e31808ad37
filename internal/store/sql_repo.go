package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

// sqlRepo holds the queries shared by the SQLite and Postgres stores. Queries are
// written with ? placeholders and rebound for drivers that need $n.
type sqlRepo struct {
	db      *sql.DB
	name    string
	numeric bool
}

func (s *sqlRepo) bind(query string) string {
	if !s.numeric {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlRepo) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.bind(query), args...)
}

func (s *sqlRepo) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.bind(query), args...)
}

func (s *sqlRepo) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.bind(query), args...)
}

// Close closes the underlying database connection.
func (s *sqlRepo) Close() error {
	slog.Debug("Closing database connection", "store", s.name)
	return s.db.Close()
}

const motherColumns = `id, phone, name, camp, zone, due_date, risk_level, preferred_language, registered_at, last_contact_at`

func (s *sqlRepo) insertMother(ctx context.Context, m *models.Mother, returning bool) error {
	q := `INSERT INTO mothers (phone, name, camp, zone, due_date, risk_level, preferred_language, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{m.Phone, m.Name, m.Camp, m.Zone, formatDate(m.DueDate), string(m.RiskLevel), string(m.PreferredLanguage), m.RegisteredAt}
	if returning {
		if err := s.queryRow(ctx, q+` RETURNING id`, args...).Scan(&m.ID); err != nil {
			return s.wrapInsertErr("mother", m.Phone, err)
		}
		return nil
	}
	res, err := s.exec(ctx, q, args...)
	if err != nil {
		return s.wrapInsertErr("mother", m.Phone, err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

func (s *sqlRepo) wrapInsertErr(kind, phone string, err error) error {
	if isUniqueViolation(err) {
		return models.ErrAlreadyRegistered
	}
	slog.Error("Insert failed", "store", s.name, "kind", kind, "phone", util.MaskPhone(phone), "error", err)
	return fmt.Errorf("failed to insert %s: %w", kind, err)
}

// isUniqueViolation recognizes unique constraint errors from both drivers by message.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func (s *sqlRepo) GetMotherByPhone(ctx context.Context, phone string) (models.Mother, error) {
	row := s.queryRow(ctx, `SELECT `+motherColumns+` FROM mothers WHERE phone = ?`, phone)
	m, err := scanMother(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Mother{}, models.ErrNotFound
	}
	if err != nil {
		return models.Mother{}, fmt.Errorf("failed to load mother: %w", err)
	}
	return m, nil
}

func (s *sqlRepo) TouchMother(ctx context.Context, phone string, at time.Time) error {
	res, err := s.exec(ctx, `UPDATE mothers SET last_contact_at = ? WHERE phone = ?`, at, phone)
	if err != nil {
		return fmt.Errorf("failed to touch mother: %w", err)
	}
	return requireRow(res)
}

const volunteerColumns = `id, phone, name, camp, skill_type, zones, availability, preferred_language, completed_cases, registered_at`

func (s *sqlRepo) insertVolunteer(ctx context.Context, v *models.Volunteer, returning bool) error {
	q := `INSERT INTO volunteers (phone, name, camp, skill_type, zones, availability, preferred_language, completed_cases, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{v.Phone, v.Name, v.Camp, string(v.SkillType), encodeZones(v.Zones), string(v.Availability),
		string(v.PreferredLanguage), v.CompletedCases, v.RegisteredAt}
	if returning {
		if err := s.queryRow(ctx, q+` RETURNING id`, args...).Scan(&v.ID); err != nil {
			return s.wrapInsertErr("volunteer", v.Phone, err)
		}
		return nil
	}
	res, err := s.exec(ctx, q, args...)
	if err != nil {
		return s.wrapInsertErr("volunteer", v.Phone, err)
	}
	v.ID, err = res.LastInsertId()
	return err
}

func (s *sqlRepo) GetVolunteerByPhone(ctx context.Context, phone string) (models.Volunteer, error) {
	row := s.queryRow(ctx, `SELECT `+volunteerColumns+` FROM volunteers WHERE phone = ?`, phone)
	v, err := scanVolunteer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Volunteer{}, models.ErrNotFound
	}
	if err != nil {
		return models.Volunteer{}, fmt.Errorf("failed to load volunteer: %w", err)
	}
	return v, nil
}

func (s *sqlRepo) UpdateVolunteer(ctx context.Context, v models.Volunteer) error {
	res, err := s.exec(ctx, `UPDATE volunteers SET name = ?, camp = ?, skill_type = ?, zones = ?, availability = ?,
		preferred_language = ?, completed_cases = ? WHERE phone = ?`,
		v.Name, v.Camp, string(v.SkillType), encodeZones(v.Zones), string(v.Availability),
		string(v.PreferredLanguage), v.CompletedCases, v.Phone)
	if err != nil {
		return fmt.Errorf("failed to update volunteer %s: %w", v.FormattedID(), err)
	}
	return requireRow(res)
}

func (s *sqlRepo) FindAvailableByZone(ctx context.Context, zone string) ([]models.Volunteer, error) {
	rows, err := s.query(ctx, `SELECT `+volunteerColumns+` FROM volunteers
		WHERE availability = ? AND zones LIKE ? ESCAPE '\' ORDER BY registered_at, id`,
		string(models.AvailabilityAvailable), "%,"+likeEscaper.Replace(strings.ToUpper(zone))+",%")
	if err != nil {
		return nil, fmt.Errorf("failed to query volunteers for zone %s: %w", zone, err)
	}
	defer rows.Close()
	var out []models.Volunteer
	for rows.Next() {
		v, err := scanVolunteer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan volunteer row: %w", err)
		}
		if !v.CoversZone(zone) {
			continue
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const requestColumns = `case_id, mother_id, mother_phone, type, status, zone, risk_level, due_date, accepted_by_phone,
	created_at, accepted_at, in_progress_at, closed_at, alerts_sent, cancel_reason`

func (s *sqlRepo) requestInsertArgs(r *models.HelpRequest) []interface{} {
	return []interface{}{r.MotherID, r.MotherPhone, string(r.Type), string(r.Status), r.Zone, string(r.RiskLevel),
		formatDate(r.DueDate), r.CreatedAt}
}

const insertRequest = `INSERT INTO help_requests (mother_id, mother_phone, type, status, zone, risk_level, due_date, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (s *sqlRepo) assignCaseID(ctx context.Context, tx *sql.Tx, seq int64, r *models.HelpRequest) error {
	r.CaseID = models.FormatCaseID(seq)
	if _, err := tx.ExecContext(ctx, s.bind(`UPDATE help_requests SET case_id = ? WHERE seq = ?`), r.CaseID, seq); err != nil {
		return fmt.Errorf("failed to assign case id: %w", err)
	}
	return nil
}

func (s *sqlRepo) GetHelpRequest(ctx context.Context, caseID string) (models.HelpRequest, error) {
	row := s.queryRow(ctx, `SELECT `+requestColumns+` FROM help_requests WHERE case_id = ?`, caseID)
	r, err := scanHelpRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HelpRequest{}, models.ErrNotFound
	}
	if err != nil {
		return models.HelpRequest{}, fmt.Errorf("failed to load case %s: %w", caseID, err)
	}
	return r, nil
}

func (s *sqlRepo) UpdateHelpRequest(ctx context.Context, r models.HelpRequest, from models.RequestStatus) error {
	res, err := s.exec(ctx, `UPDATE help_requests SET status = ?, accepted_by_phone = ?, accepted_at = ?,
		in_progress_at = ?, closed_at = ?, cancel_reason = ? WHERE case_id = ? AND status = ?`,
		string(r.Status), r.AcceptedByPhone, nullTime(r.AcceptedAt), nullTime(r.InProgressAt), nullTime(r.ClosedAt),
		r.CancelReason, r.CaseID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update case %s: %w", r.CaseID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of case %s: %w", r.CaseID, err)
	}
	if n == 0 {
		if _, err := s.GetHelpRequest(ctx, r.CaseID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (s *sqlRepo) IncrementAlertsSent(ctx context.Context, caseID string) (int, error) {
	res, err := s.exec(ctx, `UPDATE help_requests SET alerts_sent = alerts_sent + 1 WHERE case_id = ?`, caseID)
	if err != nil {
		return 0, fmt.Errorf("failed to count alert for case %s: %w", caseID, err)
	}
	if err := requireRow(res); err != nil {
		return 0, err
	}
	var n int
	if err := s.queryRow(ctx, `SELECT alerts_sent FROM help_requests WHERE case_id = ?`, caseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to read alert count for case %s: %w", caseID, err)
	}
	return n, nil
}

func (s *sqlRepo) LatestForMother(ctx context.Context, motherPhone string) (models.HelpRequest, error) {
	row := s.queryRow(ctx, `SELECT `+requestColumns+` FROM help_requests WHERE mother_phone = ?
		ORDER BY seq DESC LIMIT 1`, motherPhone)
	r, err := scanHelpRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HelpRequest{}, models.ErrNotFound
	}
	if err != nil {
		return models.HelpRequest{}, fmt.Errorf("failed to load latest case: %w", err)
	}
	return r, nil
}

func (s *sqlRepo) ActiveForVolunteer(ctx context.Context, volunteerPhone string) ([]models.HelpRequest, error) {
	return s.listRequests(ctx, `SELECT `+requestColumns+` FROM help_requests
		WHERE accepted_by_phone = ? AND status IN (?, ?) ORDER BY seq`,
		volunteerPhone, string(models.StatusAccepted), string(models.StatusInProgress))
}

func (s *sqlRepo) PendingInZone(ctx context.Context, zone string) ([]models.HelpRequest, error) {
	if zone == "" {
		return s.listRequests(ctx, `SELECT `+requestColumns+` FROM help_requests WHERE status = ? ORDER BY seq`,
			string(models.StatusPending))
	}
	return s.listRequests(ctx, `SELECT `+requestColumns+` FROM help_requests WHERE status = ? AND zone = ? ORDER BY seq`,
		string(models.StatusPending), zone)
}

func (s *sqlRepo) listRequests(ctx context.Context, q string, args ...interface{}) ([]models.HelpRequest, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	defer rows.Close()
	var out []models.HelpRequest
	for rows.Next() {
		r, err := scanHelpRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlRepo) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := s.exec(ctx, `UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`, time.Now(), messageID)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
