package server

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"fookiki/internal/apperr"
	"fookiki/internal/board"
	"fookiki/internal/room"
)

func TestListFormations(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/api/formations")
	if err != nil {
		t.Fatalf("get formations: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var formations []board.Formation
	decodeBody(t, resp, &formations)
	if len(formations) != 1 || formations[0].Name != "classic" {
		t.Fatalf("expected the classic formation, got %+v", formations)
	}
	if len(formations[0].Spots) != 22 {
		t.Errorf("expected 22 spots, got %d", len(formations[0].Spots))
	}
}

func TestCreateAndGetRoom(t *testing.T) {
	env := setupTestEnv(t)
	id := createRoomViaAPI(t, env.ts, "alice")

	resp, err := http.Get(env.ts.URL + "/api/rooms/" + id)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var r room.Room
	decodeBody(t, resp, &r)
	if r.Status != room.StatusWaiting {
		t.Errorf("expected waiting, got %s", r.Status)
	}
	alice, ok := r.Members["alice"]
	if !ok || alice.Team != board.Blue || alice.Handle != "ALICE" {
		t.Errorf("expected alice on blue, got %+v", r.Members)
	}
	if r.Settings != testDefaults {
		t.Errorf("expected default settings, got %+v", r.Settings)
	}
}

func TestGetMissingRoom(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/api/rooms/nope")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var body errorBody
	decodeBody(t, resp, &body)
	if body.Kind != apperr.KindNotFound {
		t.Errorf("expected not_found, got %q", body.Kind)
	}
}

func TestCreateRoomRejectsBadInput(t *testing.T) {
	env := setupTestEnv(t)

	cases := map[string]string{
		"bad json":     `{"uid":`,
		"missing uid":  `{"handle":"x"}`,
		"unknown mode": `{"uid":"alice","settings":{"mode":"sudden"}}`,
		"no formation": `{"uid":"alice","settings":{"formation":"diamond"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := postJSON(t, env.ts.URL+"/api/rooms", body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestMatchRequestsPairIntoRoom(t *testing.T) {
	env := setupTestEnv(t)

	first := submitViaAPI(t, env.ts, "alice", `{"mode":"timed","duration":120}`)
	if first.RequestID == "" || first.RoomID != "" {
		t.Fatalf("expected a queued ticket, got %+v", first)
	}
	second := submitViaAPI(t, env.ts, "bob", `{"mode":"timed"}`)
	if second.RoomID == "" {
		t.Fatalf("expected bob to pair, got %+v", second)
	}

	resp, err := http.Get(env.ts.URL + "/api/rooms/" + second.RoomID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	var r room.Room
	decodeBody(t, resp, &r)
	if r.Members["bob"] == nil || r.Members["bob"].Team != board.Blue {
		t.Errorf("expected the requester bob on blue, got %+v", r.Members)
	}
	if r.Members["alice"] == nil || r.Members["alice"].Team != board.Red {
		t.Errorf("expected alice on red, got %+v", r.Members)
	}
	if r.Settings.Duration != 120 {
		t.Errorf("expected alice's duration to fill bob's wildcard, got %d", r.Settings.Duration)
	}
}

func TestMatchRequestsRejectBadInput(t *testing.T) {
	env := setupTestEnv(t)

	cases := map[string]string{
		"bad json":        `{"uid":`,
		"missing uid":     `{"preferences":{"mode":"timed"}}`,
		"missing prefs":   `{"uid":"alice"}`,
		"unknown mode":    `{"uid":"alice","preferences":{"mode":"sudden"}}`,
		"negative target": `{"uid":"alice","preferences":{"mode":"race","goalTarget":-1}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := postJSON(t, env.ts.URL+"/api/match-requests", body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func deleteRequest(t *testing.T, env *testEnv, id string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, env.ts.URL+"/api/match-requests/"+id, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestCancelMatchRequest(t *testing.T) {
	env := setupTestEnv(t)

	ticket := submitViaAPI(t, env.ts, "carol", `{"mode":"infinite"}`)
	if got := deleteRequest(t, env, ticket.RequestID); got != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", got)
	}
	if got := deleteRequest(t, env, ticket.RequestID); got != http.StatusNotFound {
		t.Errorf("expected 404 for a cancelled request, got %d", got)
	}

	// A paired request stays until the cleanup delay passes.
	alice := submitViaAPI(t, env.ts, "alice", `{"mode":"race"}`)
	submitViaAPI(t, env.ts, "bob", `{"mode":"race"}`)
	if got := deleteRequest(t, env, alice.RequestID); got != http.StatusConflict {
		t.Errorf("expected 409 for a matched request, got %d", got)
	}
}

func TestStaticFiles(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/")
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "test") {
		t.Errorf("expected the index page, got %d %q", resp.StatusCode, body)
	}
}
