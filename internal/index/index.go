// Package index maintains a queryable SQLite index of run attributes
// and scalar values parsed from captured run output.
package index

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/runlit/runlit/internal/run"
)

//go:embed schema.sql
var schemaSQL string

// A scalar line has the form "tag: <number>" with nothing else on the
// line. Everything else in run output is ignored.
var scalarLineRE = regexp.MustCompile(`^([A-Za-z_][\w./-]*):\s*(-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?)\s*$`)

// Index is a run index backed by a SQLite database file.
type Index struct {
	db *sql.DB
}

// Open creates or opens the index database at path.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect index: %w", err)
	}

	// SQLite supports a single writer; keep one connection to avoid
	// SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply index schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the database.
func (ix *Index) Close() error {
	if ix.db == nil {
		return nil
	}
	return ix.db.Close()
}

// Refresh re-reads the given runs' attributes and output, replacing
// their index rows.
func (ix *Index) Refresh(ctx context.Context, runs []*run.Run) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, r := range runs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (run_id, opspec, label, status, refreshed_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id) DO UPDATE SET
				opspec = excluded.opspec,
				label = excluded.label,
				status = excluded.status,
				refreshed_at = excluded.refreshed_at`,
			r.ID, r.OpSpec(), r.Label(), r.Status(), now)
		if err != nil {
			return fmt.Errorf("index run %s: %w", r.ShortID(), err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM scalars WHERE run_id = ?`, r.ID); err != nil {
			return fmt.Errorf("clear scalars for %s: %w", r.ShortID(), err)
		}
		for tag, value := range parseScalars(r.Output()) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO scalars (run_id, tag, value) VALUES (?, ?, ?)`,
				r.ID, tag, value)
			if err != nil {
				return fmt.Errorf("index scalar %s for %s: %w", tag, r.ShortID(), err)
			}
		}
	}

	return tx.Commit()
}

// RunScalars returns all indexed scalars for a run.
func (ix *Index) RunScalars(ctx context.Context, r *run.Run) (map[string]float64, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT tag, value FROM scalars WHERE run_id = ? ORDER BY tag`, r.ID)
	if err != nil {
		return nil, fmt.Errorf("query scalars for %s: %w", r.ShortID(), err)
	}
	defer rows.Close()

	scalars := map[string]float64{}
	for rows.Next() {
		var tag string
		var value float64
		if err := rows.Scan(&tag, &value); err != nil {
			return nil, fmt.Errorf("scan scalar: %w", err)
		}
		scalars[tag] = value
	}
	return scalars, rows.Err()
}

// RunScalar returns one indexed scalar for a run. The second return is
// false when the tag is not indexed.
func (ix *Index) RunScalar(ctx context.Context, r *run.Run, tag string) (float64, bool, error) {
	var value float64
	err := ix.db.QueryRowContext(ctx,
		`SELECT value FROM scalars WHERE run_id = ? AND tag = ?`, r.ID, tag).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query scalar %s for %s: %w", tag, r.ShortID(), err)
	}
	return value, true, nil
}

// parseScalars extracts "tag: number" lines from captured output.
// A later line with the same tag wins.
func parseScalars(output string) map[string]float64 {
	scalars := map[string]float64{}
	for _, line := range strings.Split(output, "\n") {
		m := scalarLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		scalars[m[1]] = value
	}
	return scalars
}
