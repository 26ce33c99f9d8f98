package trace

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Sample is one row of the chain trace.
type Sample struct {
	Generation   int
	LnPrior      float64
	LnLikelihood float64
	PInv         float64
	TreeLength   float64
	Newick       string
}

// Run describes one chain recorded in a store.
type Run struct {
	ID        uuid.UUID
	Label     string
	StartedAt time.Time
}

// Store writes sampled generations of one or more chains to a sqlite file.
// A Store records into the run opened by the last call to NewRun.
type Store struct {
	db     *sql.DB
	run    uuid.UUID
	insert *sql.Stmt
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	label      TEXT NOT NULL,
	started_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS samples (
	run_id        TEXT NOT NULL,
	generation    INTEGER NOT NULL,
	ln_prior      REAL NOT NULL,
	ln_likelihood REAL NOT NULL,
	pinv          REAL NOT NULL,
	tree_length   REAL NOT NULL,
	newick        TEXT NOT NULL,
	PRIMARY KEY (run_id, generation),
	FOREIGN KEY (run_id) REFERENCES runs(id)
) WITHOUT ROWID;
`

//Open will open or create the trace database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create trace schema: %w", err)
	}
	insert, err := db.Prepare(`
		INSERT OR REPLACE INTO samples
		(run_id, generation, ln_prior, ln_likelihood, pinv, tree_length, newick)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare sample statement: %w", err)
	}
	return &Store{db: db, insert: insert}, nil
}

// NewRun registers a chain and directs subsequent samples to it.
func (s *Store) NewRun(label string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.Exec(`INSERT INTO runs (id, label, started_at) VALUES (?, ?, ?)`,
		id.String(), label, time.Now().UnixNano())
	if err != nil {
		return uuid.Nil, err
	}
	s.run = id
	return id, nil
}

// RunID returns the run samples are currently recorded into.
func (s *Store) RunID() uuid.UUID { return s.run }

// Record stores one sample in the current run.
func (s *Store) Record(sm Sample) error {
	if s.run == uuid.Nil {
		return ErrNoRun
	}
	_, err := s.insert.Exec(s.run.String(), sm.Generation, sm.LnPrior, sm.LnLikelihood, sm.PInv, sm.TreeLength, sm.Newick)
	return err
}

// Samples returns every sample of a run ordered by generation.
func (s *Store) Samples(run uuid.UUID) ([]Sample, error) {
	rows, err := s.db.Query(`
		SELECT generation, ln_prior, ln_likelihood, pinv, tree_length, newick
		FROM samples WHERE run_id = ? ORDER BY generation
	`, run.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ret []Sample
	for rows.Next() {
		var sm Sample
		if err := rows.Scan(&sm.Generation, &sm.LnPrior, &sm.LnLikelihood, &sm.PInv, &sm.TreeLength, &sm.Newick); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		ret = append(ret, sm)
	}
	return ret, rows.Err()
}

// Runs lists the recorded chains, oldest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, label, started_at FROM runs ORDER BY started_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ret []Run
	for rows.Next() {
		var (
			id      string
			r       Run
			started int64
		)
		if err := rows.Scan(&id, &r.Label, &started); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started)
		ret = append(ret, r)
	}
	return ret, rows.Err()
}

// Close releases the statement and the database handle.
func (s *Store) Close() error {
	s.insert.Close()
	return s.db.Close()
}
