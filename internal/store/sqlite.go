// This file implements an SQLite-backed store for mothers, volunteers and cases.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "embed"

	"github.com/BTreeMap/SafeBirth/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is the single-file backend used for field deployments.
type SQLiteStore struct {
	*sqlRepo
	// SQLite allows one writer; case id assignment runs in a transaction under this lock.
	writeMu sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dsn+sep+"_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dir", dir)
	return &SQLiteStore{sqlRepo: &sqlRepo{db: db, name: "sqlite"}}, nil
}

func (s *SQLiteStore) CreateMother(ctx context.Context, m *models.Mother) error {
	return s.insertMother(ctx, m, false)
}

func (s *SQLiteStore) CreateVolunteer(ctx context.Context, v *models.Volunteer) error {
	return s.insertVolunteer(ctx, v, false)
}

// CreateHelpRequest inserts the case and derives its id from the row's sequence number.
func (s *SQLiteStore) CreateHelpRequest(ctx context.Context, r *models.HelpRequest) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin case insert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insertRequest, s.requestInsertArgs(r)...)
	if err != nil {
		slog.Error("SQLiteStore CreateHelpRequest failed", "error", err, "mother", r.MotherID)
		return fmt.Errorf("failed to insert case: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read case sequence: %w", err)
	}
	if err := s.assignCaseID(ctx, tx, seq, r); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit case insert: %w", err)
	}
	slog.Debug("SQLiteStore CreateHelpRequest succeeded", "case", r.CaseID)
	return nil
}

// RecordInbound inserts the message id, reporting false when it was already seen.
func (s *SQLiteStore) RecordInbound(ctx context.Context, messageID, sender string) (bool, error) {
	result, err := s.exec(ctx,
		`INSERT OR IGNORE INTO inbound_dedup (message_id, sender, received_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		messageID, sender,
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}
