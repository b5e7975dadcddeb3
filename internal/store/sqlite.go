package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const timeLayout = time.RFC3339Nano

// SQLiteStore persists runs in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating when needed) the database at path. Call
// Init before use.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &SQLiteStore{db: db}, nil
}

// Init applies PRAGMAs and pending migrations. It is idempotent.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if err := s.initPragmas(ctx); err != nil {
		return fmt.Errorf("initialize pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) initPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// migrate applies every embedded migration newer than the highest version
// recorded in schema_migrations. Files are named NNN_description.sql.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	slices.Sort(names)

	for _, name := range names {
		base := filepath.Base(name)
		version, err := strconv.Atoi(strings.SplitN(base, "_", 2)[0])
		if err != nil {
			return fmt.Errorf("migration %s: bad version prefix", base)
		}
		if version <= current {
			continue
		}
		schema, err := migrationsFS.ReadFile(name)
		if err != nil {
			return err
		}
		if err := s.runMigration(ctx, version, string(schema)); err != nil {
			return fmt.Errorf("migration %s: %w", base, err)
		}
		log.Debug().Str("migration", base).Msg("applied migration")
	}
	return nil
}

func (s *SQLiteStore) runMigration(ctx context.Context, version int, schema string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt == "" || isComment(stmt) {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute statement %d: %w", i+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

func isComment(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}

// ═══════════════════════════════════════════════════════════════════════════════
// RUNS
// ═══════════════════════════════════════════════════════════════════════════════

func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, organism, scenario, status, ticks, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			organism = excluded.organism,
			scenario = excluded.scenario,
			status = excluded.status,
			ticks = excluded.ticks,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		run.ID, run.Organism, run.Scenario, string(run.Status), run.Ticks, run.Error,
		run.StartedAt.UTC().Format(timeLayout), nullTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status RunStatus, ticks int, runErr string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, ticks = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), ticks, runErr, nullTime(at), id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrUnknownRun)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organism, scenario, status, ticks, error, started_at, finished_at
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrUnknownRun)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organism, scenario, status, ticks, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run      Run
		status   string
		started  string
		finished sql.NullString
	)
	if err := sc.Scan(&run.ID, &run.Organism, &run.Scenario, &status, &run.Ticks, &run.Error, &started, &finished); err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)

	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		if run.FinishedAt, err = time.Parse(timeLayout, finished.String); err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	return run, nil
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

// ═══════════════════════════════════════════════════════════════════════════════
// TICKS
// ═══════════════════════════════════════════════════════════════════════════════

// tickPayload is the JSON column holding the variable part of a tick.
type tickPayload struct {
	Drives       map[string]float64 `json:"drives,omitempty"`
	Emotions     map[string]float64 `json:"emotions,omitempty"`
	Associations []Association      `json:"associations,omitempty"`
}

func (s *SQLiteStore) SaveTick(ctx context.Context, tick Tick) error {
	emitting, err := json.Marshal(tick.Emitting)
	if err != nil {
		return fmt.Errorf("encode emitting: %w", err)
	}
	payload, err := json.Marshal(tickPayload{
		Drives:       tick.Drives,
		Emotions:     tick.Emotions,
		Associations: tick.Associations,
	})
	if err != nil {
		return fmt.Errorf("encode tick: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ticks (run_id, instant, emitting, payload) VALUES (?, ?, ?, ?)`,
		tick.RunID, int64(tick.Instant), string(emitting), string(payload))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return fmt.Errorf("save tick: %w", ErrUnknownRun)
		}
		return fmt.Errorf("save tick %d of %s: %w", tick.Instant, tick.RunID, err)
	}
	return nil
}

func (s *SQLiteStore) Ticks(ctx context.Context, runID string) ([]Tick, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT instant, emitting, payload FROM ticks WHERE run_id = ? ORDER BY instant ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("ticks for %s: %w", runID, err)
	}
	defer rows.Close()

	var ticks []Tick
	for rows.Next() {
		var (
			instant           int64
			emitting, payload string
			p                 tickPayload
		)
		if err := rows.Scan(&instant, &emitting, &payload); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		tick := Tick{RunID: runID, Instant: uint64(instant)}
		if err := json.Unmarshal([]byte(emitting), &tick.Emitting); err != nil {
			return nil, fmt.Errorf("decode emitting: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode tick: %w", err)
		}
		tick.Drives, tick.Emotions, tick.Associations = p.Drives, p.Emotions, p.Associations
		ticks = append(ticks, tick)
	}
	return ticks, rows.Err()
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Warn().Err(err).Msg("WAL checkpoint failed")
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
