// Package jobcache persists call returns and minion events in SQLite. The
// sqlite collector writes to it on the agent; the master receiver uses it as
// its job store.
package jobcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/warden/internal/job"
	"github.com/mattjoyce/warden/internal/storage"
)

// timeLayout is fixed width so received_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when no return is stored for a job id.
var ErrNotFound = errors.New("job not found")

// Record is one stored return.
type Record struct {
	job.Result
	ReceivedAt time.Time `json:"received_at"`
}

// Event is one stored minion event.
type Event struct {
	ID         int64          `json:"id"`
	MinionID   string         `json:"minion_id"`
	Tag        string         `json:"tag"`
	Data       map[string]any `json:"data,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Store is the SQLite-backed job cache.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the cache database at path, creating it if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an already bootstrapped database.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveReturn stores r, replacing any earlier return for the same job id and
// minion.
func (s *Store) SaveReturn(ctx context.Context, r job.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !job.ValidID(r.JID) {
		return fmt.Errorf("invalid job id %q", r.JID)
	}
	ret, err := json.Marshal(r.Return)
	if err != nil {
		return fmt.Errorf("marshal return: %w", err)
	}
	args, err := json.Marshal(r.FunArgs)
	if err != nil {
		return fmt.Errorf("marshal fun_args: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO job_returns(jid, minion_id, fun, fun_args, ret, retcode, success, out, received_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, r.JID, r.ID, r.Fun, string(args), string(ret), r.Retcode, r.Success, r.Out, s.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert job return: %w", err)
	}
	return nil
}

// SaveEvent appends a minion event.
func (s *Store) SaveEvent(ctx context.Context, minionID, tag string, data map[string]any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(tag) == "" {
		return 0, fmt.Errorf("event tag is empty")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshal event data: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO minion_events(minion_id, tag, data, received_at)
VALUES(?, ?, ?, ?);
`, minionID, tag, string(raw), s.now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("insert minion event: %w", err)
	}
	return res.LastInsertId()
}

// Returns lists every stored return for jid, one per minion.
func (s *Store) Returns(ctx context.Context, jid string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT jid, minion_id, fun, fun_args, ret, retcode, success, out, received_at
FROM job_returns
WHERE jid = ?
ORDER BY minion_id;
`, jid)
	if err != nil {
		return nil, fmt.Errorf("query job returns: %w", err)
	}
	defer rows.Close()

	out, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jid)
	}
	return out, nil
}

// Recent lists the newest returns, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT jid, minion_id, fun, fun_args, ret, retcode, success, out, received_at
FROM job_returns
ORDER BY received_at DESC, jid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent returns: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Events lists stored events whose tag starts with prefix, oldest first.
func (s *Store) Events(ctx context.Context, prefix string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, minion_id, tag, data, received_at
FROM minion_events
WHERE substr(tag, 1, length(?)) = ?
ORDER BY id;
`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("query minion events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev       Event
			data     sql.NullString
			received string
		)
		if err := rows.Scan(&ev.ID, &ev.MinionID, &ev.Tag, &data, &received); err != nil {
			return nil, fmt.Errorf("scan minion event: %w", err)
		}
		if data.Valid && data.String != "" && data.String != "null" {
			if err := json.Unmarshal([]byte(data.String), &ev.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		ev.ReceivedAt, _ = time.Parse(timeLayout, received)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Prune deletes returns and events received before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := cutoff.UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_returns WHERE received_at < ?;`, ts)
	if err != nil {
		return 0, fmt.Errorf("prune job returns: %w", err)
	}
	n, _ := res.RowsAffected()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM minion_events WHERE received_at < ?;`, ts); err != nil {
		return n, fmt.Errorf("prune minion events: %w", err)
	}
	return n, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			rec      Record
			args     sql.NullString
			ret      sql.NullString
			outText  sql.NullString
			received string
		)
		if err := rows.Scan(&rec.JID, &rec.ID, &rec.Fun, &args, &ret, &rec.Retcode, &rec.Success, &outText, &received); err != nil {
			return nil, fmt.Errorf("scan job return: %w", err)
		}
		if args.Valid && args.String != "" && args.String != "null" {
			if err := json.Unmarshal([]byte(args.String), &rec.FunArgs); err != nil {
				return nil, fmt.Errorf("decode fun_args: %w", err)
			}
		}
		if ret.Valid && ret.String != "" {
			if err := json.Unmarshal([]byte(ret.String), &rec.Return); err != nil {
				return nil, fmt.Errorf("decode return: %w", err)
			}
		}
		rec.Out = outText.String
		rec.ReceivedAt, _ = time.Parse(timeLayout, received)
		out = append(out, rec)
	}
	return out, rows.Err()
}
