package matchmaking

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"fookiki/internal/apperr"
	"fookiki/internal/board"
	"fookiki/internal/clock"
	"fookiki/internal/room"
)

// Config tunes the resolver.
type Config struct {
	ScanLimit       int
	StalenessWindow time.Duration
	CleanupDelay    time.Duration
	ClaimAttempts   int
	Defaults        room.Settings
}

// DefaultConfig returns the standard matchmaking limits.
func DefaultConfig() Config {
	return Config{
		ScanLimit:       10,
		StalenessWindow: 30 * time.Second,
		CleanupDelay:    5 * time.Second,
		ClaimAttempts:   3,
	}
}

// Options wires a Resolver.
type Options struct {
	Queue      Queue
	Rooms      RoomCreator
	Notifier   Notifier
	Formations *board.Registry
	Clock      clock.Clock
	Config     Config
	Logger     zerolog.Logger
}

// Resolver pairs a new request with the oldest compatible waiting one.
type Resolver struct {
	queue      Queue
	rooms      RoomCreator
	notifier   Notifier
	formations *board.Registry
	clock      clock.Clock
	cfg        Config
	log        zerolog.Logger
}

// Match is a successful pairing.
type Match struct {
	RoomID    string
	Requester Request
	Opponent  Request
}

func NewResolver(opts Options) *Resolver {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Formations == nil {
		opts.Formations = board.Builtin()
	}
	def := DefaultConfig()
	if opts.Config.ScanLimit <= 0 {
		opts.Config.ScanLimit = def.ScanLimit
	}
	if opts.Config.StalenessWindow <= 0 {
		opts.Config.StalenessWindow = def.StalenessWindow
	}
	if opts.Config.CleanupDelay <= 0 {
		opts.Config.CleanupDelay = def.CleanupDelay
	}
	if opts.Config.ClaimAttempts <= 0 {
		opts.Config.ClaimAttempts = def.ClaimAttempts
	}
	return &Resolver{
		queue:      opts.Queue,
		rooms:      opts.Rooms,
		notifier:   opts.Notifier,
		formations: opts.Formations,
		clock:      opts.Clock,
		cfg:        opts.Config,
		log:        opts.Logger.With().Str("component", "matchmaking").Logger(),
	}
}

// Resolve tries to pair req, which must already be queued. It returns nil
// with no error when no candidate fits and req stays queued.
//
// Both requests are flagged before the room is created, so the flag is the
// commit point: a resolver that loses the flag race rescans, and a failed
// room creation clears both flags again.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Match, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := r.log.With().Str("request_id", req.ID).Str("uid", req.UID).Logger()

	for attempt := 0; attempt < r.cfg.ClaimAttempts; attempt++ {
		if attempt > 0 {
			cur, err := r.queue.Get(ctx, req.ID)
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, apperr.Conflictf("request %s left the queue", req.ID)
			}
			if err != nil {
				return nil, err
			}
			if cur.Matched {
				return nil, apperr.Conflictf("request %s was matched elsewhere", req.ID)
			}
		}

		recent, err := r.queue.ScanRecent(ctx, r.cfg.ScanLimit)
		if err != nil {
			return nil, err
		}
		cand, ok := r.pick(log, req, recent)
		if !ok {
			log.Debug().Int("scanned", len(recent)).Msg("no candidate, request stays queued")
			return nil, nil
		}

		claimed, err := r.queue.TryMarkMatched(ctx, req.ID, cand.ID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			log.Debug().Str("candidate_id", cand.ID).Int("attempt", attempt+1).Msg("lost claim race")
			continue
		}
		return r.commit(ctx, log, req, cand)
	}
	return nil, apperr.Conflictf("request %s lost %d claim races", req.ID, r.cfg.ClaimAttempts)
}

// pick returns the oldest eligible candidate whose preferences req accepts.
func (r *Resolver) pick(log zerolog.Logger, req Request, recent []Request) (Request, bool) {
	now := r.clock.Now().UnixMilli()
	window := r.cfg.StalenessWindow.Milliseconds()

	eligible := make([]Request, 0, len(recent))
	for _, c := range recent {
		var skip string
		switch {
		case c.ID == req.ID:
			skip = "own request"
		case c.Matched:
			skip = "already matched"
		case c.UID == req.UID:
			skip = "same uid"
		case now-c.Timestamp > window:
			skip = "stale"
		case c.Preferences == nil:
			skip = "no preferences"
		}
		if skip != "" {
			log.Debug().Str("candidate_id", c.ID).Str("reason", skip).Msg("skipping candidate")
			continue
		}
		eligible = append(eligible, c)
	}

	slices.SortStableFunc(eligible, func(a, b Request) int {
		if a.Timestamp != b.Timestamp {
			return cmp.Compare(a.Timestamp, b.Timestamp)
		}
		return cmp.Compare(a.ID, b.ID)
	})
	for _, c := range eligible {
		if req.Preferences.Accepts(c.Preferences) {
			return c, true
		}
		log.Debug().Str("candidate_id", c.ID).Str("reason", "preference mismatch").Msg("skipping candidate")
	}
	return Request{}, false
}

func (r *Resolver) commit(ctx context.Context, log zerolog.Logger, req, cand Request) (*Match, error) {
	settings := RoomSettings(req, cand, r.cfg.Defaults)
	seeded, err := room.Seed(settings, r.formations,
		room.Member{UID: req.UID, Handle: req.Handle},
		room.Member{UID: cand.UID, Handle: cand.Handle},
	)
	if err != nil {
		r.release(ctx, log, req.ID, cand.ID)
		return nil, err
	}
	roomID, err := r.rooms.CreateRoom(ctx, seeded)
	if err != nil {
		r.release(ctx, log, req.ID, cand.ID)
		return nil, apperr.Transient(err, "create room")
	}
	log.Info().Str("candidate_id", cand.ID).Str("room_id", roomID).Str("mode", string(settings.Mode)).Msg("paired")

	r.notify(ctx, log, req.UID, Notification{RoomID: roomID, RequestID: req.ID, Team: board.Blue, Opponent: cand.Handle})
	r.notify(ctx, log, cand.UID, Notification{RoomID: roomID, RequestID: cand.ID, Team: board.Red, Opponent: req.Handle})

	ids := []string{req.ID, cand.ID}
	r.clock.AfterFunc(r.cfg.CleanupDelay, func() {
		if err := r.queue.Dequeue(context.Background(), ids...); err != nil {
			r.log.Warn().Strs("request_ids", ids).Err(err).Msg("dequeue matched requests")
		}
	})

	req.Matched, cand.Matched = true, true
	return &Match{RoomID: roomID, Requester: req, Opponent: cand}, nil
}

func (r *Resolver) release(ctx context.Context, log zerolog.Logger, ids ...string) {
	if err := r.queue.Release(ctx, ids...); err != nil {
		log.Error().Strs("request_ids", ids).Err(err).Msg("release claimed requests")
	}
}

func (r *Resolver) notify(ctx context.Context, log zerolog.Logger, uid string, n Notification) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, uid, n); err != nil {
		log.Warn().Str("to", uid).Str("room_id", n.RoomID).Err(err).Msg("notify")
	}
}
