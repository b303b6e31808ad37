// Package store provides storage backends for SafeBirth.
//
// It defines the repositories the command handler and matching engine consume and
// implements them in memory, on SQLite and on PostgreSQL.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
)

// ErrConflict is returned when a conditional update finds the record in a different state.
var ErrConflict = errors.New("record was modified concurrently")

// MotherRepo stores registered mothers.
type MotherRepo interface {
	// CreateMother inserts m and assigns its ID. Returns models.ErrAlreadyRegistered
	// when the phone number is taken.
	CreateMother(ctx context.Context, m *models.Mother) error
	GetMotherByPhone(ctx context.Context, phone string) (models.Mother, error)
	TouchMother(ctx context.Context, phone string, at time.Time) error
}

// VolunteerRepo stores registered volunteers.
type VolunteerRepo interface {
	CreateVolunteer(ctx context.Context, v *models.Volunteer) error
	GetVolunteerByPhone(ctx context.Context, phone string) (models.Volunteer, error)
	UpdateVolunteer(ctx context.Context, v models.Volunteer) error
	// FindAvailableByZone returns AVAILABLE volunteers covering zone in registration order.
	FindAvailableByZone(ctx context.Context, zone string) ([]models.Volunteer, error)
}

// HelpRequestRepo stores cases.
type HelpRequestRepo interface {
	// CreateHelpRequest inserts r and assigns the next sequential case id.
	CreateHelpRequest(ctx context.Context, r *models.HelpRequest) error
	GetHelpRequest(ctx context.Context, caseID string) (models.HelpRequest, error)
	// UpdateHelpRequest writes r only if the stored status still equals from,
	// returning ErrConflict otherwise.
	UpdateHelpRequest(ctx context.Context, r models.HelpRequest, from models.RequestStatus) error
	// IncrementAlertsSent adds one alert batch to the case and returns the new count.
	IncrementAlertsSent(ctx context.Context, caseID string) (int, error)
	LatestForMother(ctx context.Context, motherPhone string) (models.HelpRequest, error)
	ActiveForVolunteer(ctx context.Context, volunteerPhone string) ([]models.HelpRequest, error)
	PendingInZone(ctx context.Context, zone string) ([]models.HelpRequest, error)
}

// Store is the full persistence surface.
type Store interface {
	MotherRepo
	VolunteerRepo
	HelpRequestRepo
	DedupRepo
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or keyword DSNs, otherwise "sqlite3".
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open returns the backend matching the configured DSN, or an in-memory store when none is set.
func Open(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("store.Open: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		s, err := NewPostgresStore(opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := NewSQLiteStore(opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}
