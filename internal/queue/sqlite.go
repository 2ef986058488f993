// Package queue implements the matchmaking queue and notification ports
// over SQLite, Redis and the in-process hub.
package queue

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"fookiki/internal/matchmaking"
	"fookiki/internal/storage"
)

// SQLite keeps the queue in the match_requests table. The matched column
// is authoritative over the stored body.
type SQLite struct {
	store *storage.Store
	log   zerolog.Logger
}

func NewSQLite(store *storage.Store, logger zerolog.Logger) *SQLite {
	return &SQLite{store: store, log: logger.With().Str("component", "queue").Str("backend", "sqlite").Logger()}
}

func (q *SQLite) Enqueue(ctx context.Context, r matchmaking.Request) error {
	body, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}
	return q.store.InsertRequest(ctx, storage.RequestRow{
		ID: r.ID, UID: r.UID, Timestamp: r.Timestamp, Matched: r.Matched, Body: string(body),
	})
}

func (q *SQLite) Get(ctx context.Context, id string) (matchmaking.Request, error) {
	row, err := q.store.GetRequest(ctx, id)
	if err != nil {
		return matchmaking.Request{}, err
	}
	return decodeRow(row)
}

func decodeRow(row *storage.RequestRow) (matchmaking.Request, error) {
	var r matchmaking.Request
	if err := json.Unmarshal([]byte(row.Body), &r); err != nil {
		return matchmaking.Request{}, eris.Wrapf(err, "decode request %s", row.ID)
	}
	r.ID, r.UID, r.Timestamp, r.Matched = row.ID, row.UID, row.Timestamp, row.Matched
	return r, nil
}

func (q *SQLite) Dequeue(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if err := q.store.DeleteRequest(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ScanRecent skips rows whose body cannot be decoded.
func (q *SQLite) ScanRecent(ctx context.Context, n int) ([]matchmaking.Request, error) {
	rows, err := q.store.RecentRequests(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]matchmaking.Request, 0, len(rows))
	for i := range rows {
		r, err := decodeRow(&rows[i])
		if err != nil {
			q.log.Warn().Str("request_id", rows[i].ID).Err(err).Msg("skipping request")
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (q *SQLite) TryMarkMatched(ctx context.Context, ids ...string) (bool, error) {
	return q.store.ClaimRequests(ctx, ids...)
}

func (q *SQLite) Release(ctx context.Context, ids ...string) error {
	return q.store.ReleaseRequests(ctx, ids...)
}
