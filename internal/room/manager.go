package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"fookiki/internal/apperr"
	"fookiki/internal/board"
	"fookiki/internal/clock"
	"fookiki/internal/engine"
	"fookiki/internal/hub"
	"fookiki/internal/storage"
	"fookiki/internal/timer"
)

// Options wires a Manager.
type Options struct {
	Store      *storage.Store
	Formations *board.Registry
	Hub        *hub.Hub
	Clock      clock.Clock
	Defaults   Settings
	Logger     zerolog.Logger
}

// Manager owns the rooms hosted by this process and their clocks.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*entry

	store      *storage.Store
	formations *board.Registry
	hub        *hub.Hub
	clock      clock.Clock
	defaults   Settings
	log        zerolog.Logger
}

// entry serializes every change to one room, whether it comes from a
// member or from a timer.
type entry struct {
	mu     sync.Mutex
	room   *Room
	turn   *timer.Turn
	match  *timer.Match
	pause  clock.Timer
	closed bool
	done   chan struct{}
}

func newEntry(r *Room) *entry { return &entry{room: r, done: make(chan struct{})} }

// shutdown stops the room for good. Callers hold e.mu.
func (m *Manager) shutdown(e *entry) {
	m.stopClocks(e)
	if !e.closed {
		e.closed = true
		close(e.done)
	}
}

// NewManager creates a room manager.
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Formations == nil {
		opts.Formations = board.Builtin()
	}
	if opts.Hub == nil {
		opts.Hub = hub.New()
	}
	return &Manager{
		rooms:      make(map[string]*entry),
		store:      opts.Store,
		formations: opts.Formations,
		hub:        opts.Hub,
		clock:      opts.Clock,
		defaults:   opts.Defaults,
		log:        opts.Logger.With().Str("component", "room").Logger(),
	}
}

// Defaults returns the settings used for unset fields.
func (m *Manager) Defaults() Settings { return m.defaults }

// Formations returns the registry rooms are seeded from.
func (m *Manager) Formations() *board.Registry { return m.formations }

func topic(id string) string { return "room:" + id }

// Open seeds and stores a private room with a single member.
func (m *Manager) Open(ctx context.Context, uid, handle string, settings Settings) (*Room, error) {
	r, err := Seed(settings.WithDefaults(m.defaults), m.formations, Member{UID: uid, Handle: handle})
	if err != nil {
		return nil, err
	}
	if _, err := m.CreateRoom(ctx, r); err != nil {
		return nil, err
	}
	return m.Get(ctx, r.ID)
}

// CreateRoom stores a seeded room and starts hosting it. An empty id is
// replaced with a fresh one.
func (m *Manager) CreateRoom(ctx context.Context, r *Room) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := m.clock.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	r.sync()
	data, err := json.Marshal(r)
	if err != nil {
		return "", eris.Wrap(err, "marshal room")
	}
	row := storage.RoomRow{ID: r.ID, Status: string(r.Status), State: string(data), CreatedAt: now, UpdatedAt: now}
	if err := m.store.CreateRoom(ctx, row); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.rooms[r.ID] = newEntry(r.Clone())
	m.mu.Unlock()
	m.log.Info().Str("room_id", r.ID).Int("members", len(r.Members)).Str("mode", string(r.Settings.Mode)).Msg("room created")
	return r.ID, nil
}

// Get returns a snapshot of a room, hosted or stored.
func (m *Manager) Get(ctx context.Context, id string) (*Room, error) {
	if e, ok := m.entry(id); ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.room.Clone(), nil
	}
	row, err := m.store.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	return decode(row)
}

func decode(row *storage.RoomRow) (*Room, error) {
	var r Room
	if err := json.Unmarshal([]byte(row.State), &r); err != nil {
		return nil, eris.Wrapf(err, "decode room %s", row.ID)
	}
	if r.Game == nil || r.Members == nil {
		return nil, eris.Errorf("room %s has no game", row.ID)
	}
	return &r, nil
}

func (m *Manager) entry(id string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rooms[id]
	return e, ok
}

func (m *Manager) hosted(id string) (*entry, error) {
	e, ok := m.entry(id)
	if !ok {
		return nil, apperr.NotFoundf("room %s", id)
	}
	return e, nil
}

// Subscribe registers fn for every published state of the room. Handlers
// run while the room is locked and must not block or call the Manager.
// done is closed when the room stops being hosted; its subscriptions are
// dropped by then.
func (m *Manager) Subscribe(id string, fn hub.Handler) (cancel func(), done <-chan struct{}, err error) {
	e, err := m.hosted(id)
	if err != nil {
		return nil, nil, err
	}
	return m.hub.Subscribe(topic(id), fn), e.done, nil
}

// Join seats uid in a waiting room. Joining a room one is already seated
// in returns it unchanged.
func (m *Manager) Join(ctx context.Context, id, uid, handle string) (*Room, error) {
	if uid == "" {
		return nil, apperr.Validation("uid is required")
	}
	e, err := m.hosted(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, seated := e.room.Members[uid]; seated {
		return e.room.Clone(), nil
	}
	if e.room.Status != StatusWaiting {
		return nil, apperr.Conflictf("room %s is not accepting members", id)
	}
	team, err := e.room.freeTeam()
	if err != nil {
		return nil, err
	}
	next := e.room.Clone()
	next.Members[uid] = &Member{UID: uid, Handle: handle, Team: team}
	if err := m.commit(ctx, e, next); err != nil {
		return nil, err
	}
	m.log.Info().Str("room_id", id).Str("uid", uid).Str("team", string(team)).Msg("member joined")
	return next.Clone(), nil
}

// SetReady marks uid ready. The match starts once both members are ready.
func (m *Manager) SetReady(ctx context.Context, id, uid string) (*Room, error) {
	e, err := m.hosted(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	member, ok := e.room.Members[uid]
	if !ok {
		return nil, apperr.Conflictf("%s is not in room %s", uid, id)
	}
	if e.room.Status != StatusWaiting {
		if member.Ready && e.room.Status == StatusInProgress {
			return e.room.Clone(), nil
		}
		return nil, apperr.Conflictf("room %s is %s", id, e.room.Status)
	}
	next := e.room.Clone()
	next.Members[uid].Ready = true
	starting := len(next.Members) == 2
	for _, mm := range next.Members {
		starting = starting && mm.Ready
	}
	if starting {
		next.Status = StatusInProgress
	}
	if err := m.commit(ctx, e, next); err != nil {
		return nil, err
	}
	if starting {
		m.startClocks(e, nil)
		m.log.Info().Str("room_id", id).Msg("match started")
	}
	return next.Clone(), nil
}

// Apply runs one engine action for uid. The room changes only if the
// action is accepted and stored.
func (m *Manager) Apply(ctx context.Context, id, uid string, a Action) (*Room, engine.Outcome, error) {
	e, err := m.hosted(id)
	if err != nil {
		return nil, engine.Outcome{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.room
	member, ok := r.Members[uid]
	if !ok {
		return nil, engine.Outcome{}, apperr.Conflictf("%s is not in room %s", uid, id)
	}
	if r.Status != StatusInProgress {
		return nil, engine.Outcome{}, apperr.Conflictf("room %s is %s", id, r.Status)
	}
	if a.Type == ActUndo {
		if last, ok := r.Game.LastMover(); ok && last != member.Team {
			return nil, engine.Outcome{}, apperr.Conflict("only the team that moved last can undo")
		}
	} else if r.CurrentTurn != uid {
		return nil, engine.Outcome{}, apperr.Conflict("not your turn")
	}

	next := r.Clone()
	prevTurn := next.Game.Turn
	out, err := a.apply(next.Game)
	if err != nil {
		m.log.Debug().Str("room_id", id).Str("uid", uid).Str("action", string(a.Type)).Err(err).Msg("action rejected")
		return nil, engine.Outcome{}, err
	}
	if err := m.commit(ctx, e, next); err != nil {
		return nil, engine.Outcome{}, err
	}

	switch {
	case next.Status == StatusFinished:
		m.stopClocks(e)
		winner, _ := next.Game.Result()
		m.log.Info().Str("room_id", id).Str("winner", string(winner)).Msg("match over")
	case out.Goal:
		m.celebrate(e)
	case out.CaptainBonus, next.Game.Turn != prevTurn:
		m.restartTurn(e)
	}
	if out.Goal {
		m.log.Info().Str("room_id", id).Str("team", string(out.Scorer)).
			Int("blue", next.Game.Score.Blue).Int("red", next.Game.Score.Red).Msg("goal")
	}
	return next.Clone(), out, nil
}

// Leave removes uid from a waiting room or forfeits an in-progress match.
func (m *Manager) Leave(ctx context.Context, id, uid string) (*Room, error) {
	e, err := m.hosted(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	member, ok := e.room.Members[uid]
	if !ok {
		return nil, apperr.Conflictf("%s is not in room %s", uid, id)
	}
	next := e.room.Clone()
	switch next.Status {
	case StatusFinished:
		return next, nil
	case StatusInProgress:
		next.Game.Forfeit(member.Team)
	case StatusWaiting:
		delete(next.Members, uid)
		for _, mm := range next.Members {
			mm.Ready = false
		}
		if len(next.Members) == 0 {
			next.Status = StatusFinished
		}
	}
	if err := m.commit(ctx, e, next); err != nil {
		return nil, err
	}
	if next.Status == StatusFinished {
		m.stopClocks(e)
	}
	m.log.Info().Str("room_id", id).Str("uid", uid).Str("status", string(next.Status)).Msg("member left")
	return next.Clone(), nil
}

// commit stores next, makes it the hosted state and publishes it. On a
// storage failure the hosted state is left as it was. Callers hold e.mu.
func (m *Manager) commit(ctx context.Context, e *entry, next *Room) error {
	next.sync()
	next.UpdatedAt = m.clock.Now().UTC()
	next.Clocks = e.readClocks(next.Clocks)
	data, err := json.Marshal(next)
	if err != nil {
		return eris.Wrap(err, "marshal room")
	}
	if err := m.store.SaveRoom(ctx, next.ID, string(next.Status), string(data), next.UpdatedAt); err != nil {
		m.log.Warn().Str("room_id", next.ID).Err(err).Msg("save room")
		return err
	}
	e.room = next
	m.hub.Publish(topic(next.ID), data)
	return nil
}

func (e *entry) readClocks(prev Clocks) Clocks {
	c := prev
	if e.match != nil {
		c.MatchRemaining = int(e.match.Remaining() / time.Second)
		c.ExtraTime = e.match.IsExtraTime()
	}
	if e.turn != nil {
		c.TurnRemaining = int(e.turn.Remaining() / time.Second)
	}
	return c
}

// startClocks creates and starts the room's timers. A non-nil restored
// reading resumes the match clock where it stopped. Callers hold e.mu.
func (m *Manager) startClocks(e *entry, restored *Clocks) {
	s := e.room.Settings
	if s.TurnSeconds > 0 {
		e.turn = timer.NewTurn(m.clock, seconds(s.TurnSeconds), seconds(s.ExtraTimeTurnSeconds))
	}
	if s.Mode == ModeTimed && s.Duration > 0 {
		e.match = timer.NewMatch(m.clock, timer.MatchConfig{
			Duration:    seconds(s.Duration),
			ExtraTime:   seconds(s.ExtraTimeSeconds),
			Tied:        func() bool { return m.tied(e) },
			OnExtraTime: func() { m.extraTime(e) },
			OnFinish:    func() { m.timeUp(e) },
		})
		if restored != nil && restored.MatchRemaining > 0 {
			e.match.StartAt(seconds(restored.MatchRemaining), restored.ExtraTime)
			if restored.ExtraTime && e.turn != nil {
				e.turn.UseExtraTime()
			}
		} else {
			e.match.Start()
		}
	}
	m.restartTurn(e)
}

func (m *Manager) stopClocks(e *entry) {
	if e.turn != nil {
		e.turn.Stop()
	}
	if e.match != nil {
		e.match.Stop()
	}
	if e.pause != nil {
		e.pause.Stop()
		e.pause = nil
	}
}

// restartTurn begins a fresh move countdown for the current turn. An
// expiry is ignored if the turn changed in the meantime.
func (m *Manager) restartTurn(e *entry) {
	if e.turn == nil {
		return
	}
	turn := e.room.Game.Turn
	e.turn.Restart(func() { m.turnExpired(e, turn) })
}

func (m *Manager) turnExpired(e *entry, turn int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.room.Status != StatusInProgress || e.room.Game.Turn != turn {
		return
	}
	next := e.room.Clone()
	if err := next.Game.EndTurn(); err != nil {
		return
	}
	if err := m.commit(context.Background(), e, next); err != nil {
		return
	}
	m.log.Debug().Str("room_id", next.ID).Str("team", string(next.Game.CurrentTeam)).Msg("turn timed out")
	m.restartTurn(e)
}

// celebrate holds both clocks for the goal pause, then gives the
// kickoff team a fresh move countdown.
func (m *Manager) celebrate(e *entry) {
	d := seconds(e.room.Settings.CelebrationSeconds)
	if d <= 0 {
		m.restartTurn(e)
		return
	}
	if e.turn != nil {
		e.turn.Stop()
	}
	if e.match != nil {
		e.match.Pause()
	}
	if e.pause != nil {
		e.pause.Stop()
	}
	e.pause = m.clock.AfterFunc(d, func() { m.resume(e) })
}

func (m *Manager) resume(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pause = nil
	if e.closed || e.room.Status != StatusInProgress {
		return
	}
	if e.match != nil {
		e.match.Resume()
	}
	m.restartTurn(e)
}

func (m *Manager) tied(e *entry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.room.Game.Tied()
}

func (m *Manager) extraTime(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.room.Status != StatusInProgress {
		return
	}
	if e.turn != nil {
		e.turn.UseExtraTime()
	}
	next := e.room.Clone()
	next.Clocks.ExtraTime = true
	if err := m.commit(context.Background(), e, next); err != nil {
		return
	}
	m.log.Info().Str("room_id", next.ID).Msg("extra time")
	m.restartTurn(e)
}

func (m *Manager) timeUp(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.room.Status != StatusInProgress {
		return
	}
	next := e.room.Clone()
	next.Game.Finish()
	m.stopClocks(e)
	if err := m.commit(context.Background(), e, next); err != nil {
		return
	}
	winner, _ := next.Game.Result()
	m.log.Info().Str("room_id", next.ID).Str("winner", string(winner)).Msg("full time")
}

// Restore loads unfinished rooms from the database on startup.
func (m *Manager) Restore(ctx context.Context) error {
	rows, err := m.store.ListRooms(ctx, string(StatusWaiting), string(StatusInProgress))
	if err != nil {
		return eris.Wrap(err, "list rooms")
	}
	for i := range rows {
		r, err := decode(&rows[i])
		if err != nil {
			m.log.Warn().Str("room_id", rows[i].ID).Err(err).Msg("skipping room")
			continue
		}
		e := newEntry(r)
		if r.Status == StatusInProgress {
			e.mu.Lock()
			clocks := r.Clocks
			m.startClocks(e, &clocks)
			e.mu.Unlock()
		}
		m.mu.Lock()
		m.rooms[r.ID] = e
		m.mu.Unlock()
	}
	m.log.Info().Int("rooms", len(rows)).Msg("rooms restored")
	return nil
}

// CleanupLoop removes stale rooms periodically until ctx is done.
func (m *Manager) CleanupLoop(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup(ctx, maxAge)
		}
	}
}

// cleanup drops finished rooms and abandoned waiting rooms whose last
// change is older than maxAge.
func (m *Manager) cleanup(ctx context.Context, maxAge time.Duration) int {
	cutoff := m.clock.Now().Add(-maxAge)
	var stale []string
	m.mu.RLock()
	for id, e := range m.rooms {
		e.mu.Lock()
		old := e.room.UpdatedAt.Before(cutoff)
		done := e.room.Status == StatusFinished || e.room.Status == StatusWaiting
		e.mu.Unlock()
		if old && done {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	rows, err := m.store.ListRooms(ctx, string(StatusFinished))
	if err != nil {
		m.log.Warn().Err(err).Msg("list finished rooms")
	}
	for _, row := range rows {
		if _, hosted := m.entry(row.ID); !hosted && row.UpdatedAt.Before(cutoff) {
			stale = append(stale, row.ID)
		}
	}

	for _, id := range stale {
		m.remove(ctx, id)
	}
	return len(stale)
}

func (m *Manager) remove(ctx context.Context, id string) {
	m.mu.Lock()
	e, ok := m.rooms[id]
	delete(m.rooms, id)
	m.mu.Unlock()
	if ok {
		e.mu.Lock()
		m.shutdown(e)
		e.mu.Unlock()
	}
	m.hub.Close(topic(id))
	if err := m.store.DeleteRoom(ctx, id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		m.log.Warn().Str("room_id", id).Err(err).Msg("delete room")
		return
	}
	m.log.Info().Str("room_id", id).Msg("cleaned up room")
}

// Close stops every room's clocks and ends its subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.rooms {
		e.mu.Lock()
		m.shutdown(e)
		e.mu.Unlock()
		m.hub.Close(topic(id))
	}
}
