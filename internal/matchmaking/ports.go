package matchmaking

import (
	"context"

	"fookiki/internal/board"
	"fookiki/internal/room"
)

// Queue holds waiting requests.
type Queue interface {
	Enqueue(ctx context.Context, r Request) error
	// Get returns a request or an apperr NotFound error.
	Get(ctx context.Context, id string) (Request, error)
	// Dequeue deletes requests. Missing ids are ignored.
	Dequeue(ctx context.Context, ids ...string) error
	// ScanRecent returns up to n of the newest requests.
	ScanRecent(ctx context.Context, n int) ([]Request, error)
	// TryMarkMatched flags every id as matched, or none of them if any is
	// missing or already matched.
	TryMarkMatched(ctx context.Context, ids ...string) (bool, error)
	// Release clears the matched flag.
	Release(ctx context.Context, ids ...string) error
}

// RoomCreator stores a seeded room and returns its id.
type RoomCreator interface {
	CreateRoom(ctx context.Context, r *room.Room) (string, error)
}

// Notification tells a requester which room they were paired into.
type Notification struct {
	RoomID    string     `json:"roomId"`
	RequestID string     `json:"requestId"`
	Team      board.Team `json:"team"`
	Opponent  string     `json:"opponent"`
}

// Notifier delivers match notifications. A notification sent before the
// recipient subscribes is still delivered on subscribe.
type Notifier interface {
	Notify(ctx context.Context, uid string, n Notification) error
	// Clear drops a retained notification.
	Clear(ctx context.Context, uid string) error
}

// Subscriber receives match notifications for one uid until cancel is
// called or ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, uid string, fn func(Notification)) (cancel func(), err error)
}
