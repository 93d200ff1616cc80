// Package store persists simulation results to SQLite.
//
// Each saved run keeps its profiles piece by piece, its activity records and
// its rejected directives, so a run can be reloaded into an equal
// sim.Results and compared against later simulations of the same plan.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/mission-sim/mission-sim/sim"
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/value"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("store: run not found")

const (
	kindReal     = "real"
	kindDiscrete = "discrete"
)

// Run describes one saved simulation.
type Run struct {
	ID          string
	Model       string
	Plan        string
	Mode        string // "fresh" or "incremental"
	Horizon     duration.Duration
	Fingerprint string
	CreatedAt   time.Time
}

// Store is a SQLite database in WAL mode. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and migrates the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		model       TEXT NOT NULL,
		plan        TEXT NOT NULL DEFAULT '',
		mode        TEXT NOT NULL,
		horizon_us  INTEGER NOT NULL,
		fingerprint TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		name   TEXT NOT NULL,
		kind   TEXT NOT NULL,
		PRIMARY KEY (run_id, name)
	);

	CREATE TABLE IF NOT EXISTS real_pieces (
		run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		name      TEXT NOT NULL,
		seq       INTEGER NOT NULL,
		extent_us INTEGER NOT NULL,
		initial   REAL NOT NULL,
		rate      REAL NOT NULL,
		PRIMARY KEY (run_id, name, seq)
	);

	CREATE TABLE IF NOT EXISTS discrete_pieces (
		run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		name      TEXT NOT NULL,
		seq       INTEGER NOT NULL,
		extent_us INTEGER NOT NULL,
		value     TEXT NOT NULL,
		PRIMARY KEY (run_id, name, seq)
	);

	CREATE TABLE IF NOT EXISTS activities (
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		id          TEXT NOT NULL,
		type        TEXT NOT NULL,
		arguments   TEXT NOT NULL,
		start_us    INTEGER NOT NULL,
		duration_us INTEGER NOT NULL,
		finished    INTEGER NOT NULL,
		parent_id   TEXT NOT NULL DEFAULT '',
		child_ids   TEXT,
		result      TEXT,
		PRIMARY KEY (run_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_activities_parent ON activities(run_id, parent_id);

	CREATE TABLE IF NOT EXISTS rejections (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		id     TEXT NOT NULL,
		reason TEXT NOT NULL,
		PRIMARY KEY (run_id, id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun writes res under a new time-ordered run id and returns the stored run.
// The model, plan and mode fields of run are kept; the rest are filled in.
func (s *Store) SaveRun(ctx context.Context, run Run, res *sim.Results) (Run, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Run{}, fmt.Errorf("run id: %w", err)
	}
	fingerprint, err := res.Fingerprint()
	if err != nil {
		return Run{}, err
	}
	run.ID = id.String()
	run.Horizon = res.End
	run.Fingerprint = fingerprint
	run.CreatedAt = time.Now().UTC()

	err = retryOp(ctx, defaultRetryConfig, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op
		if err := insertRun(ctx, tx, run, res); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return Run{}, fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return run, nil
}

func insertRun(ctx context.Context, tx *sql.Tx, run Run, res *sim.Results) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, model, plan, mode, horizon_us, fingerprint, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Model, run.Plan, run.Mode, int64(run.Horizon), run.Fingerprint,
		run.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for name, pieces := range res.RealProfiles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO profiles (run_id, name, kind) VALUES (?, ?, ?)`, run.ID, name, kindReal); err != nil {
			return fmt.Errorf("insert profile %s: %w", name, err)
		}
		for i, p := range pieces {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO real_pieces (run_id, name, seq, extent_us, initial, rate) VALUES (?, ?, ?, ?, ?, ?)`,
				run.ID, name, i, int64(p.Extent), p.Initial, p.Rate,
			); err != nil {
				return fmt.Errorf("insert %s piece %d: %w", name, i, err)
			}
		}
	}
	for name, pieces := range res.DiscreteProfiles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO profiles (run_id, name, kind) VALUES (?, ?, ?)`, run.ID, name, kindDiscrete); err != nil {
			return fmt.Errorf("insert profile %s: %w", name, err)
		}
		for i, p := range pieces {
			v, err := json.Marshal(p.Value)
			if err != nil {
				return fmt.Errorf("encode %s piece %d: %w", name, i, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO discrete_pieces (run_id, name, seq, extent_us, value) VALUES (?, ?, ?, ?, ?)`,
				run.ID, name, i, int64(p.Extent), string(v),
			); err != nil {
				return fmt.Errorf("insert %s piece %d: %w", name, i, err)
			}
		}
	}

	for id, a := range res.Activities {
		args, err := json.Marshal(a.Arguments)
		if err != nil {
			return fmt.Errorf("encode arguments of %s: %w", id, err)
		}
		var children, result sql.NullString
		if len(a.ChildIDs) > 0 {
			data, err := json.Marshal(a.ChildIDs)
			if err != nil {
				return fmt.Errorf("encode children of %s: %w", id, err)
			}
			children = sql.NullString{String: string(data), Valid: true}
		}
		if a.Result != nil {
			data, err := json.Marshal(a.Result)
			if err != nil {
				return fmt.Errorf("encode result of %s: %w", id, err)
			}
			result = sql.NullString{String: string(data), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO activities (run_id, id, type, arguments, start_us, duration_us, finished, parent_id, child_ids, result)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, id, a.Type, string(args), int64(a.Start), int64(a.Duration), a.Finished, a.ParentID, children, result,
		); err != nil {
			return fmt.Errorf("insert activity %s: %w", id, err)
		}
	}

	for id, reason := range res.Rejected {
		if _, err := tx.ExecContext(ctx, `INSERT INTO rejections (run_id, id, reason) VALUES (?, ?, ?)`, run.ID, id, reason); err != nil {
			return fmt.Errorf("insert rejection %s: %w", id, err)
		}
	}
	return nil
}

// GetRun returns the run with the given id, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, model, plan, mode, horizon_us, fingerprint, created_at FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListRuns returns the runs of model in creation order, or every run when
// model is empty.
func (s *Store) ListRuns(ctx context.Context, model string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, plan, mode, horizon_us, fingerprint, created_at FROM runs
		 WHERE ? = '' OR model = ? ORDER BY id`, model, model)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var horizon int64
	var created string
	if err := row.Scan(&r.ID, &r.Model, &r.Plan, &r.Mode, &horizon, &r.Fingerprint, &created); err != nil {
		return nil, err
	}
	r.Horizon = duration.Duration(horizon)
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for run %s: %w", r.ID, err)
	}
	r.CreatedAt = t
	return &r, nil
}

// LoadResults rebuilds the results saved under id.
func (s *Store) LoadResults(ctx context.Context, id string) (*sim.Results, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &sim.Results{
		End:              run.Horizon,
		RealProfiles:     make(map[string][]sim.LinearPiece),
		DiscreteProfiles: make(map[string][]sim.DiscretePiece),
		Activities:       make(map[string]sim.ActivityRecord),
		Rejected:         make(map[string]string),
	}
	if err := s.loadProfiles(ctx, id, res); err != nil {
		return nil, err
	}
	if err := s.loadActivities(ctx, id, res); err != nil {
		return nil, err
	}
	if err := s.loadRejections(ctx, id, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) loadProfiles(ctx context.Context, id string, res *sim.Results) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name, kind FROM profiles WHERE run_id = ?`, id)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return err
		}
		if kind == kindReal {
			res.RealProfiles[name] = []sim.LinearPiece{}
		} else {
			res.DiscreteProfiles[name] = []sim.DiscretePiece{}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	realRows, err := s.db.QueryContext(ctx,
		`SELECT name, extent_us, initial, rate FROM real_pieces WHERE run_id = ? ORDER BY name, seq`, id)
	if err != nil {
		return err
	}
	defer realRows.Close()
	for realRows.Next() {
		var name string
		var extent int64
		var p sim.LinearPiece
		if err := realRows.Scan(&name, &extent, &p.Initial, &p.Rate); err != nil {
			return err
		}
		p.Extent = duration.Duration(extent)
		res.RealProfiles[name] = append(res.RealProfiles[name], p)
	}
	if err := realRows.Err(); err != nil {
		return err
	}

	discreteRows, err := s.db.QueryContext(ctx,
		`SELECT name, extent_us, value FROM discrete_pieces WHERE run_id = ? ORDER BY name, seq`, id)
	if err != nil {
		return err
	}
	defer discreteRows.Close()
	for discreteRows.Next() {
		var name, raw string
		var extent int64
		if err := discreteRows.Scan(&name, &extent, &raw); err != nil {
			return err
		}
		v, err := value.ParseJSON([]byte(raw))
		if err != nil {
			return fmt.Errorf("profile %s: %w", name, err)
		}
		res.DiscreteProfiles[name] = append(res.DiscreteProfiles[name], sim.DiscretePiece{Extent: duration.Duration(extent), Value: v})
	}
	return discreteRows.Err()
}

func (s *Store) loadActivities(ctx context.Context, id string, res *sim.Results) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, arguments, start_us, duration_us, finished, parent_id, child_ids, result
		 FROM activities WHERE run_id = ?`, id)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			actID, args      string
			rec              sim.ActivityRecord
			start, dur       int64
			children, result sql.NullString
		)
		if err := rows.Scan(&actID, &rec.Type, &args, &start, &dur, &rec.Finished, &rec.ParentID, &children, &result); err != nil {
			return err
		}
		rec.Start, rec.Duration = duration.Duration(start), duration.Duration(dur)

		a, err := value.ParseJSON([]byte(args))
		if err != nil {
			return fmt.Errorf("activity %s arguments: %w", actID, err)
		}
		m, ok := a.(value.Map)
		if !ok {
			return fmt.Errorf("activity %s arguments: expected map, got %s", actID, value.Format(a))
		}
		rec.Arguments = m
		if children.Valid {
			if err := json.Unmarshal([]byte(children.String), &rec.ChildIDs); err != nil {
				return fmt.Errorf("activity %s children: %w", actID, err)
			}
		}
		if result.Valid {
			if rec.Result, err = value.ParseJSON([]byte(result.String)); err != nil {
				return fmt.Errorf("activity %s result: %w", actID, err)
			}
		}
		res.Activities[actID] = rec
	}
	return rows.Err()
}

func (s *Store) loadRejections(ctx context.Context, id string, res *sim.Results) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, reason FROM rejections WHERE run_id = ?`, id)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var actID, reason string
		if err := rows.Scan(&actID, &reason); err != nil {
			return err
		}
		res.Rejected[actID] = reason
	}
	return rows.Err()
}

// DeleteRun removes a run and everything saved with it.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	return retryOp(ctx, defaultRetryConfig, func() error {
		r, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := r.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
