package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"fookiki/internal/board"
	"fookiki/internal/clock"
	"fookiki/internal/hub"
	"fookiki/internal/matchmaking"
	"fookiki/internal/queue"
	"fookiki/internal/room"
	"fookiki/internal/storage"
)

// --- Test environment ---

var testDefaults = room.Settings{
	Mode:                 room.ModeTimed,
	Duration:             300,
	GoalTarget:           5,
	GoalGap:              2,
	Formation:            "classic",
	WinningScore:         3,
	TurnSeconds:          10,
	ExtraTimeSeconds:     60,
	ExtraTimeTurnSeconds: 5,
	CelebrationSeconds:   3,
}

type testEnv struct {
	ts    *httptest.Server
	rooms *room.Manager
	queue *queue.SQLite
	clk   *clock.Fake
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	h := hub.New()
	log := zerolog.Nop()
	formations := board.Builtin()

	rooms := room.NewManager(room.Options{
		Store:      store,
		Formations: formations,
		Hub:        h,
		Clock:      clk,
		Defaults:   testDefaults,
		Logger:     log,
	})
	t.Cleanup(rooms.Close)

	q := queue.NewSQLite(store, log)
	notes := queue.NewLocalNotifier(h, log)
	cfg := matchmaking.DefaultConfig()
	cfg.Defaults = testDefaults
	res := matchmaking.NewResolver(matchmaking.Options{
		Queue:      q,
		Rooms:      rooms,
		Notifier:   notes,
		Formations: formations,
		Clock:      clk,
		Config:     cfg,
		Logger:     log,
	})

	webFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html><body>test</body></html>")},
	}
	srv := New(Options{
		Rooms:         rooms,
		Matchmaking:   matchmaking.NewService(q, res, notes, clk, log),
		Notifications: notes,
		WebFS:         webFS,
		Logger:        log,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, rooms: rooms, queue: q, clk: clk}
}

// --- Context helpers ---

func timeoutCtx(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// --- REST API helpers ---

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createRoomViaAPI(t *testing.T, ts *httptest.Server, uid string) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/rooms", fmt.Sprintf(`{"uid":%q,"handle":%q}`, uid, strings.ToUpper(uid)))
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var r room.Room
	decodeBody(t, resp, &r)
	return r.ID
}

func submitViaAPI(t *testing.T, ts *httptest.Server, uid, prefs string) matchmaking.Ticket {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/match-requests", fmt.Sprintf(`{"uid":%q,"handle":%q,"preferences":%s}`, uid, uid, prefs))
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var ticket matchmaking.Ticket
	decodeBody(t, resp, &ticket)
	return ticket
}

// --- WebSocket helpers ---

func wsURL(ts *httptest.Server, path string) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + path
}

func roomURL(ts *httptest.Server, id string) string {
	return wsURL(ts, "/api/rooms/"+id+"/ws")
}

// wsConnect dials a room socket and sends a join message. The caller is
// responsible for closing the connection.
func wsConnect(t *testing.T, ts *httptest.Server, id, uid string) *websocket.Conn {
	t.Helper()
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, roomURL(ts, id), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	wsSend(ctx, t, conn, "join", joinPayload{UID: uid, Handle: strings.ToUpper(uid)})
	return conn
}

// wsSend marshals and writes a typed message, calling t.Fatal on error.
func wsSend(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	if err := conn.Write(ctx, websocket.MessageText, envelope(msgType, payload)); err != nil {
		t.Fatalf("ws write: %v", err)
	}
}

// wsRead reads and unmarshals a message, calling t.Fatal on error.
func wsRead(ctx context.Context, t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal ws message: %v", err)
	}
	return msg
}

// readState reads one message and expects it to be a "state" message.
func readState(ctx context.Context, t *testing.T, conn *websocket.Conn) *room.Room {
	t.Helper()
	msg := wsRead(ctx, t, conn)
	if msg.Type != "state" {
		t.Fatalf("expected state message, got %q: %s", msg.Type, string(msg.Payload))
	}
	var r room.Room
	if err := json.Unmarshal(msg.Payload, &r); err != nil {
		t.Fatalf("unmarshal state payload: %v", err)
	}
	return &r
}

// readStateUntil reads states until ok accepts one.
func readStateUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, ok func(*room.Room) bool) *room.Room {
	t.Helper()
	for {
		r := readState(ctx, t, conn)
		if ok(r) {
			return r
		}
	}
}

// readError reads one message and expects it to be an "error" message.
func readError(ctx context.Context, t *testing.T, conn *websocket.Conn) errorPayload {
	t.Helper()
	msg := wsRead(ctx, t, conn)
	if msg.Type != "error" {
		t.Fatalf("expected error message, got %q: %s", msg.Type, string(msg.Payload))
	}
	var ep errorPayload
	if err := json.Unmarshal(msg.Payload, &ep); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	return ep
}

// --- Game helpers ---

func kick(row, col int) room.Action {
	return room.Action{Type: room.ActMoveBall, To: &board.Position{Row: row, Col: col}}
}

func inProgress(r *room.Room) bool { return r.Status == room.StatusInProgress }
