// Package results archives completed searches. Each run is written as a
// zstd-compressed msgpack file holding the observations, configuration and
// result, and is indexed in a SQLite catalog for listing.
package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/liqun1981/lee-wave-analysis/internal/observation"
	"github.com/liqun1981/lee-wave-analysis/internal/search"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run ID is unknown or malformed.
var ErrNotFound = errors.New("run not found")

const (
	catalogName    = "catalog.db"
	defaultMaxRuns = 100
)

// Record is the catalog row for one archived run.
type Record struct {
	ID          string        `json:"id" msgpack:"id"`
	Strategy    string        `json:"strategy" msgpack:"strategy"`
	CreatedAt   time.Time     `json:"created_at" msgpack:"created_at"`
	Best        search.Params `json:"best" msgpack:"best"`
	Cost        float64       `json:"cost" msgpack:"cost"`
	Evaluations int           `json:"evaluations" msgpack:"evaluations"`
	Converged   bool          `json:"converged" msgpack:"converged"`
	Samples     int           `json:"samples" msgpack:"samples"`
}

// Run is the full archived content of one search.
type Run struct {
	Record       Record           `json:"record" msgpack:"record"`
	Config       search.Config    `json:"config" msgpack:"config"`
	Observations *observation.Set `json:"observations" msgpack:"observations"`
	Result       *search.Result   `json:"result" msgpack:"result"`
}

// Archive stores runs under dir and keeps at most maxRuns of them.
type Archive struct {
	dir     string
	maxRuns int
	db      *sql.DB
	logger  *slog.Logger
}

// Open creates dir if needed and opens (or initializes) its catalog.
func Open(dir string, maxRuns int, logger *slog.Logger) (*Archive, error) {
	if maxRuns <= 0 {
		maxRuns = defaultMaxRuns
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, catalogName))
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			strategy TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			phase REAL NOT NULL,
			cost REAL NOT NULL,
			evaluations INTEGER NOT NULL,
			converged INTEGER NOT NULL,
			samples INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs table: %w", err)
	}

	return &Archive{
		dir:     dir,
		maxRuns: maxRuns,
		db:      db,
		logger:  logger.With("component", "archive"),
	}, nil
}

// Close closes the catalog.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Ping checks that the catalog is reachable.
func (a *Archive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Save archives a completed search and prunes the oldest runs beyond the
// retention limit.
func (a *Archive) Save(ctx context.Context, cfg search.Config, obs *observation.Set, res *search.Result) (Record, error) {
	rec := Record{
		ID:          uuid.NewString(),
		Strategy:    string(res.Strategy),
		CreatedAt:   time.Now().UTC(),
		Best:        res.Best,
		Cost:        res.Cost,
		Evaluations: res.Evaluations,
		Converged:   res.Converged,
		Samples:     obs.Len(),
	}
	run := Run{Record: rec, Config: cfg, Observations: obs, Result: res}

	if err := a.writeRun(&run); err != nil {
		return Record{}, err
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO runs (id, strategy, created_at, x, y, z, phase, cost, evaluations, converged, samples)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Strategy, rec.CreatedAt.UnixNano(),
		rec.Best.X, rec.Best.Y, rec.Best.Z, rec.Best.Phase,
		rec.Cost, rec.Evaluations, rec.Converged, rec.Samples,
	)
	if err != nil {
		os.Remove(a.runPath(rec.ID))
		return Record{}, fmt.Errorf("cataloging run: %w", err)
	}

	if err := a.prune(ctx); err != nil {
		a.logger.Warn("archive prune failed", "error", err)
	}

	a.logger.Info("run archived",
		"id", rec.ID,
		"strategy", rec.Strategy,
		"cost", rec.Cost,
	)
	return rec, nil
}

// Load reads the full content of run id.
func (a *Archive) Load(id string) (*Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	f, err := os.Open(a.runPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("opening run file: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	var run Run
	if err := msgpack.NewDecoder(zr).Decode(&run); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return &run, nil
}

// List returns up to limit catalog records, newest first.
func (a *Archive) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = a.maxRuns
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, strategy, created_at, x, y, z, phase, cost, evaluations, converged, samples
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.Strategy, &created,
			&rec.Best.X, &rec.Best.Y, &rec.Best.Z, &rec.Best.Phase,
			&rec.Cost, &rec.Evaluations, &rec.Converged, &rec.Samples); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *Archive) runPath(id string) string {
	return filepath.Join(a.dir, fmt.Sprintf("run_%s.msgpack.zst", id))
}

// writeRun writes to a temporary file and renames it so readers never see a
// partial run.
func (a *Archive) writeRun(run *Run) error {
	path := a.runPath(run.Record.ID)
	tmp, err := os.CreateTemp(a.dir, "run_*.tmp")
	if err != nil {
		return fmt.Errorf("creating run file: %w", err)
	}
	defer os.Remove(tmp.Name())

	zw, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		tmp.Close()
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if err := msgpack.NewEncoder(zw).Encode(run); err != nil {
		zw.Close()
		tmp.Close()
		return fmt.Errorf("encoding run: %w", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing run: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing run file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing run file: %w", err)
	}
	return nil
}

// prune removes the oldest runs beyond maxRuns from the catalog and disk.
func (a *Archive) prune(ctx context.Context) error {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?`, a.maxRuns)
	if err != nil {
		return fmt.Errorf("selecting expired runs: %w", err)
	}
	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning expired run: %w", err)
		}
		expired = append(expired, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range expired {
		if _, err := a.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting run %s: %w", id, err)
		}
		if err := os.Remove(a.runPath(id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("pruning run file %s: %w", id, err)
		}
		a.logger.Debug("run pruned", "id", id)
	}
	return nil
}
