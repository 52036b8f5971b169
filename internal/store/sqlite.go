package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS simulations (
    id TEXT PRIMARY KEY,
    audience_prompt TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'created',
    backend_status TEXT NOT NULL DEFAULT '',
    video_name TEXT NOT NULL DEFAULT '',
    duration_seconds REAL NOT NULL DEFAULT 0,
    video_id TEXT NOT NULL DEFAULT '',
    raw_path TEXT NOT NULL DEFAULT '',
    mp4_path TEXT NOT NULL DEFAULT '',
    video_url TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_simulations_state ON simulations(state);
CREATE INDEX IF NOT EXISTS idx_simulations_created ON simulations(created_at);

CREATE TABLE IF NOT EXISTS snapshots (
    simulation_id TEXT PRIMARY KEY,
    payload BLOB NOT NULL,
    fetched_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (simulation_id) REFERENCES simulations(id)
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; watch and serve both write from goroutines.
	db.SetMaxOpenConns(1)

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSimulation inserts sim, or replaces every column of an existing row
// except created_at.
func (s *SQLiteStore) SaveSimulation(ctx context.Context, sim *Simulation) error {
	if sim.ID == "" {
		return errors.New("simulation id is required")
	}
	now := time.Now().Unix()
	state := sim.State
	if state == "" {
		state = "created"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO simulations (id, audience_prompt, state, backend_status, video_name, duration_seconds,
		     video_id, raw_path, mp4_path, video_url, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     audience_prompt = excluded.audience_prompt,
		     state = excluded.state,
		     backend_status = excluded.backend_status,
		     video_name = excluded.video_name,
		     duration_seconds = excluded.duration_seconds,
		     video_id = excluded.video_id,
		     raw_path = excluded.raw_path,
		     mp4_path = excluded.mp4_path,
		     video_url = excluded.video_url,
		     error_message = excluded.error_message,
		     updated_at = excluded.updated_at`,
		sim.ID, sim.AudiencePrompt, state, sim.BackendStatus, sim.VideoName, sim.DurationSeconds,
		sim.VideoID, sim.RawPath, sim.MP4Path, sim.VideoURL, sim.ErrorMessage, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save simulation: %w", err)
	}

	sim.State = state
	if sim.CreatedAt.IsZero() {
		sim.CreatedAt = time.Unix(now, 0)
	}
	sim.UpdatedAt = time.Unix(now, 0)
	return nil
}

const simulationColumns = `id, audience_prompt, state, backend_status, video_name, duration_seconds,
	video_id, raw_path, mp4_path, video_url, error_message, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSimulation(row scanner) (*Simulation, error) {
	var sim Simulation
	var createdAt, updatedAt int64
	err := row.Scan(&sim.ID, &sim.AudiencePrompt, &sim.State, &sim.BackendStatus, &sim.VideoName, &sim.DurationSeconds,
		&sim.VideoID, &sim.RawPath, &sim.MP4Path, &sim.VideoURL, &sim.ErrorMessage, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sim.CreatedAt = time.Unix(createdAt, 0)
	sim.UpdatedAt = time.Unix(updatedAt, 0)
	return &sim, nil
}

func (s *SQLiteStore) GetSimulation(ctx context.Context, id string) (*Simulation, error) {
	sim, err := scanSimulation(s.db.QueryRowContext(ctx,
		`SELECT `+simulationColumns+` FROM simulations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get simulation: %w", err)
	}
	return sim, nil
}

func (s *SQLiteStore) ListSimulations(ctx context.Context) ([]*Simulation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+simulationColumns+` FROM simulations ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list simulations: %w", err)
	}
	defer rows.Close()

	sims := []*Simulation{}
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan simulation: %w", err)
		}
		sims = append(sims, sim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list simulations: %w", err)
	}
	return sims, nil
}

// RecordTransition applies the non-empty fields of tr to the row.
func (s *SQLiteStore) RecordTransition(ctx context.Context, id string, tr Transition) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE simulations SET
		     state = COALESCE(NULLIF(?, ''), state),
		     backend_status = COALESCE(NULLIF(?, ''), backend_status),
		     video_id = COALESCE(NULLIF(?, ''), video_id),
		     raw_path = COALESCE(NULLIF(?, ''), raw_path),
		     mp4_path = COALESCE(NULLIF(?, ''), mp4_path),
		     video_url = COALESCE(NULLIF(?, ''), video_url),
		     error_message = COALESCE(NULLIF(?, ''), error_message),
		     updated_at = ?
		 WHERE id = ?`,
		tr.State, tr.BackendStatus, tr.VideoID, tr.RawPath, tr.MP4Path, tr.VideoURL, tr.ErrorMessage,
		time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSimulation forgets a simulation locally. The backend copy is untouched.
func (s *SQLiteStore) DeleteSimulation(ctx context.Context, id string) error {
	// First delete the cached aggregate
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE simulation_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM simulations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete simulation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, simulationID string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (simulation_id, payload, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(simulation_id) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		simulationID, payload, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, simulationID string) (*Snapshot, error) {
	snap := Snapshot{SimulationID: simulationID}
	var fetchedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM snapshots WHERE simulation_id = ?`, simulationID,
	).Scan(&snap.Payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	snap.FetchedAt = time.Unix(fetchedAt, 0)
	return &snap, nil
}

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}
