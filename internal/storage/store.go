// Package storage persists rooms and queued match requests in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"fookiki/internal/apperr"
)

// RoomRow is a stored room. State holds the full room document as JSON.
type RoomRow struct {
	ID        string
	Status    string // "waiting", "in_progress", "finished"
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RequestRow is a queued match request. Body holds the request as JSON.
type RequestRow struct {
	ID        string
	UID       string
	Timestamp int64 // unix milliseconds
	Matched   bool
	Body      string
}

// Store handles SQLite persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "open db")
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "set WAL")
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "migrate")
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS rooms (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL DEFAULT 'waiting',
			state_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS match_requests (
			id      TEXT PRIMARY KEY,
			uid     TEXT NOT NULL,
			ts      INTEGER NOT NULL,
			matched INTEGER NOT NULL DEFAULT 0,
			body    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS match_requests_ts ON match_requests(ts);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func ioErr(err error, msg string) error {
	return apperr.Transient(eris.Wrap(err, msg), "storage")
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// CreateRoom inserts a new room. Inserting an existing id is a conflict.
func (s *Store) CreateRoom(ctx context.Context, r RoomRow) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (id, status, state_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		r.ID, r.Status, r.State, millis(r.CreatedAt), millis(r.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return apperr.Conflictf("room %s already exists", r.ID)
		}
		return ioErr(err, "insert room")
	}
	return nil
}

// GetRoom retrieves a room by id.
func (s *Store) GetRoom(ctx context.Context, id string) (*RoomRow, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, status, state_json, created_at, updated_at FROM rooms WHERE id = ?", id)
	r, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("room %s", id)
	}
	if err != nil {
		return nil, ioErr(err, "get room")
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(sc scanner) (*RoomRow, error) {
	var r RoomRow
	var created, updated int64
	if err := sc.Scan(&r.ID, &r.Status, &r.State, &created, &updated); err != nil {
		return nil, err
	}
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	return &r, nil
}

// SaveRoom replaces the status and state of an existing room.
func (s *Store) SaveRoom(ctx context.Context, id, status, state string, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE rooms SET status = ?, state_json = ?, updated_at = ? WHERE id = ?",
		status, state, millis(updatedAt), id,
	)
	if err != nil {
		return ioErr(err, "update room")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ioErr(err, "update room")
	}
	if n == 0 {
		return apperr.NotFoundf("room %s", id)
	}
	return nil
}

// ListRooms returns rooms with any of the given statuses, or all rooms,
// newest first.
func (s *Store) ListRooms(ctx context.Context, statuses ...string) ([]RoomRow, error) {
	query := "SELECT id, status, state_json, created_at, updated_at FROM rooms"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + placeholders(len(statuses)) + ")"
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += " ORDER BY created_at DESC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ioErr(err, "list rooms")
	}
	defer rows.Close()
	var result []RoomRow
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, ioErr(err, "scan room")
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr(err, "list rooms")
	}
	return result, nil
}

// DeleteRoom removes a room. Deleting a missing room is not an error.
func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", id); err != nil {
		return ioErr(err, "delete room")
	}
	return nil
}

// InsertRequest queues a match request.
func (s *Store) InsertRequest(ctx context.Context, r RequestRow) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO match_requests (id, uid, ts, matched, body) VALUES (?, ?, ?, ?, ?)",
		r.ID, r.UID, r.Timestamp, r.Matched, r.Body,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return apperr.Conflictf("request %s already queued", r.ID)
		}
		return ioErr(err, "insert request")
	}
	return nil
}

// GetRequest retrieves a match request by id.
func (s *Store) GetRequest(ctx context.Context, id string) (*RequestRow, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, uid, ts, matched, body FROM match_requests WHERE id = ?", id)
	var r RequestRow
	if err := row.Scan(&r.ID, &r.UID, &r.Timestamp, &r.Matched, &r.Body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("request %s", id)
		}
		return nil, ioErr(err, "get request")
	}
	return &r, nil
}

// RecentRequests returns the n most recent requests, newest first.
func (s *Store) RecentRequests(ctx context.Context, n int) ([]RequestRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, uid, ts, matched, body FROM match_requests ORDER BY ts DESC, id DESC LIMIT ?", n)
	if err != nil {
		return nil, ioErr(err, "scan requests")
	}
	defer rows.Close()
	var result []RequestRow
	for rows.Next() {
		var r RequestRow
		if err := rows.Scan(&r.ID, &r.UID, &r.Timestamp, &r.Matched, &r.Body); err != nil {
			return nil, ioErr(err, "scan request")
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr(err, "scan requests")
	}
	return result, nil
}

// ClaimRequests flags every listed request as matched in one transaction.
// It reports false, and changes nothing, unless all of them exist and none
// was matched before.
func (s *Store) ClaimRequests(ctx context.Context, ids ...string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, ioErr(err, "begin claim")
	}
	defer tx.Rollback()

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE match_requests SET matched = 1 WHERE matched = 0 AND id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return false, ioErr(err, "claim requests")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, ioErr(err, "claim requests")
	}
	if n != int64(len(ids)) {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, ioErr(err, "commit claim")
	}
	return true, nil
}

// ReleaseRequests clears the matched flag of the listed requests.
func (s *Store) ReleaseRequests(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE match_requests SET matched = 0 WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return ioErr(err, "release requests")
	}
	return nil
}

// DeleteRequest removes a request. Deleting a missing request is not an error.
func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM match_requests WHERE id = ?", id); err != nil {
		return ioErr(err, "delete request")
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
