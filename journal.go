package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/wajeht/grafana-pdf/assets"
)

// Journal keeps one row per handled request. It never stores PDF bytes.
type Journal struct {
	db *sql.DB
}

type RenderStatus string

const (
	StatusOK     RenderStatus = "ok"
	StatusFailed RenderStatus = "failed"
)

// Stage is the furthest point a request reached.
type Stage string

const (
	StageURL      Stage = "url"
	StageLaunch   Stage = "launch"
	StageNavigate Stage = "navigate"
	StagePDF      Stage = "pdf"
	StageStream   Stage = "stream"
)

type JournalEntry struct {
	ID        int64
	TargetURL string
	Status    RenderStatus
	Stage     Stage
	Bytes     int64
	Duration  time.Duration
	Error     string
	CreatedAt time.Time
}

const (
	maxOpenConns    = 10
	maxIdleDBConns  = 5
	connMaxLifetime = 5 * time.Minute
)

func OpenJournal(dbPath string, logger *slog.Logger) (*Journal, error) {
	path := strings.Split(dbPath, "?")[0]
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleDBConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	applyPragmas(db, logger)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Journal{db: db}, nil
}

// applyPragmas is best effort; a pragma the driver rejects is logged and
// skipped.
func applyPragmas(db *sql.DB, logger *slog.Logger) {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			logger.Warn("failed to set pragma", slog.String("pragma", pragma), slog.String("error", err.Error()))
		}
	}
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(assets.EmbeddedFiles)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (j *Journal) Record(ctx context.Context, e JournalEntry) error {
	query := `INSERT INTO renders (target_url, status, stage, bytes, duration_ms, error) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := j.db.ExecContext(ctx, query,
		e.TargetURL, string(e.Status), string(e.Stage), e.Bytes, e.Duration.Milliseconds(), e.Error)
	if err != nil {
		return fmt.Errorf("failed to record render: %w", err)
	}
	return nil
}

// recent returns up to limit entries, newest first.
func (j *Journal) recent(ctx context.Context, limit int) ([]JournalEntry, error) {
	query := `SELECT id, target_url, status, stage, bytes, duration_ms, error, created_at
		FROM renders ORDER BY id DESC LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list renders: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			e          JournalEntry
			status     string
			stage      string
			durationMs int64
		)
		if err := rows.Scan(&e.ID, &e.TargetURL, &status, &stage, &e.Bytes, &durationMs, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan render: %w", err)
		}
		e.Status = RenderStatus(status)
		e.Stage = Stage(stage)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list renders: %w", err)
	}

	return entries, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
