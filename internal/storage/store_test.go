package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"fookiki/internal/apperr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func room(id, status string, created time.Time) RoomRow {
	return RoomRow{ID: id, Status: status, State: `{"id":"` + id + `"}`, CreatedAt: created, UpdatedAt: created}
}

func TestCreateAndGetRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateRoom(ctx, room("r1", "waiting", base)); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := s.CreateRoom(ctx, room("r1", "waiting", base)); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	got, err := s.GetRoom(ctx, "r1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Status != "waiting" || got.State != `{"id":"r1"}` {
		t.Fatalf("unexpected row %+v", got)
	}
	if !got.CreatedAt.Equal(base) {
		t.Fatalf("expected created %v, got %v", base, got.CreatedAt)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRoom(context.Background(), "nonexistent")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSaveRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateRoom(ctx, room("r1", "waiting", base))

	later := base.Add(time.Minute)
	if err := s.SaveRoom(ctx, "r1", "in_progress", `{"v":2}`, later); err != nil {
		t.Fatalf("save room: %v", err)
	}
	got, _ := s.GetRoom(ctx, "r1")
	if got.Status != "in_progress" || got.State != `{"v":2}` || !got.UpdatedAt.Equal(later) {
		t.Fatalf("unexpected row after save %+v", got)
	}
	if err := s.SaveRoom(ctx, "missing", "waiting", "{}", later); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListRoomsFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateRoom(ctx, room("aaa", "waiting", base))
	s.CreateRoom(ctx, room("bbb", "in_progress", base.Add(time.Second)))
	s.CreateRoom(ctx, room("ccc", "finished", base.Add(2*time.Second)))

	all, err := s.ListRooms(ctx)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(all) != 3 || all[0].ID != "ccc" {
		t.Fatalf("expected 3 rooms newest first, got %+v", all)
	}

	open, err := s.ListRooms(ctx, "waiting", "in_progress")
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open rooms, got %d", len(open))
	}
}

func TestDeleteRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateRoom(ctx, room("r1", "finished", base))
	if err := s.DeleteRoom(ctx, "r1"); err != nil {
		t.Fatalf("delete room: %v", err)
	}
	if err := s.DeleteRoom(ctx, "r1"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if _, err := s.GetRoom(ctx, "r1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func request(id, uid string, ts int64) RequestRow {
	return RequestRow{ID: id, UID: uid, Timestamp: ts, Body: `{"id":"` + id + `"}`}
}

func TestRecentRequestsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c", "d"} {
		if err := s.InsertRequest(ctx, request(id, "u"+id, int64(1000+i))); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	rows, err := s.RecentRequests(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 3 || rows[0].ID != "d" || rows[2].ID != "b" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestClaimRequestsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.InsertRequest(ctx, request("a", "ua", 1))
	s.InsertRequest(ctx, request("b", "ub", 2))
	s.InsertRequest(ctx, request("c", "uc", 3))

	ok, err := s.ClaimRequests(ctx, "a", "b")
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = s.ClaimRequests(ctx, "c", "b")
	if err != nil || ok {
		t.Fatalf("claim on a matched request must fail: ok=%v err=%v", ok, err)
	}
	c, _ := s.GetRequest(ctx, "c")
	if c.Matched {
		t.Fatal("failed claim must not flag the other request")
	}
	ok, _ = s.ClaimRequests(ctx, "c", "missing")
	if ok {
		t.Fatal("claim with a missing request must fail")
	}

	if err := s.ReleaseRequests(ctx, "a", "b"); err != nil {
		t.Fatalf("release: %v", err)
	}
	a, _ := s.GetRequest(ctx, "a")
	if a.Matched {
		t.Fatal("release should clear the flag")
	}
}

func TestRequestLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.InsertRequest(ctx, request("a", "ua", 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertRequest(ctx, request("a", "ua", 1)); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, err := s.GetRequest(ctx, "a")
	if err != nil || got.UID != "ua" || got.Body != `{"id":"a"}` {
		t.Fatalf("unexpected request %+v err=%v", got, err)
	}
	if err := s.DeleteRequest(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRequest(ctx, "a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
