package matchmaking

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fookiki/internal/apperr"
	"fookiki/internal/clock"
)

// Ticket reports what happened to a submitted request. RoomID is set when
// the submission paired immediately.
type Ticket struct {
	RequestID string `json:"requestId"`
	RoomID    string `json:"roomId,omitempty"`
}

// Service is the entry point for submitting and cancelling requests.
type Service struct {
	queue    Queue
	resolver *Resolver
	notifier Notifier
	clock    clock.Clock
	log      zerolog.Logger
}

func NewService(q Queue, res *Resolver, n Notifier, c clock.Clock, logger zerolog.Logger) *Service {
	if c == nil {
		c = clock.Real()
	}
	return &Service{
		queue:    q,
		resolver: res,
		notifier: n,
		clock:    c,
		log:      logger.With().Str("component", "matchmaking").Logger(),
	}
}

// Submit queues req and tries to pair it at once. The id and timestamp are
// assigned here. A request that loses every claim race stays queued for a
// later submission to find.
func (s *Service) Submit(ctx context.Context, req Request) (Ticket, error) {
	if err := req.Validate(); err != nil {
		return Ticket{}, err
	}
	req.ID = uuid.NewString()
	req.Timestamp = s.clock.Now().UnixMilli()
	req.Matched = false

	if s.notifier != nil {
		if err := s.notifier.Clear(ctx, req.UID); err != nil {
			s.log.Warn().Str("uid", req.UID).Err(err).Msg("clear old notification")
		}
	}
	if err := s.queue.Enqueue(ctx, req); err != nil {
		return Ticket{}, err
	}
	s.log.Info().Str("request_id", req.ID).Str("uid", req.UID).Str("mode", string(req.Preferences.Mode())).Msg("request queued")

	t := Ticket{RequestID: req.ID}
	m, err := s.resolver.Resolve(ctx, req)
	switch {
	case errors.Is(err, apperr.ErrConflict):
		s.log.Debug().Str("request_id", req.ID).Err(err).Msg("left queued")
		return t, nil
	case err != nil:
		return t, err
	case m != nil:
		t.RoomID = m.RoomID
	}
	return t, nil
}

// Cancel withdraws an unmatched request. Flagging it first keeps a
// concurrent resolver from pairing it while it is removed.
func (s *Service) Cancel(ctx context.Context, id string) error {
	claimed, err := s.queue.TryMarkMatched(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		if _, err := s.queue.Get(ctx, id); err != nil {
			return err
		}
		return apperr.Conflictf("request %s is already matched", id)
	}
	if err := s.queue.Dequeue(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("request_id", id).Msg("request cancelled")
	return nil
}
