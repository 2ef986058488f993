package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"fookiki/internal/apperr"
	"fookiki/internal/matchmaking"
	"fookiki/internal/room"
)

// Options wires a Server. WebFS may be nil to serve the API only.
type Options struct {
	Rooms         *room.Manager
	Matchmaking   *matchmaking.Service
	Notifications matchmaking.Subscriber
	WebFS         fs.FS
	Logger        zerolog.Logger
}

// Server is the HTTP server.
type Server struct {
	mux     *http.ServeMux
	rooms   *room.Manager
	matches *matchmaking.Service
	notes   matchmaking.Subscriber
	webFS   fs.FS
	log     zerolog.Logger
}

// New creates a server with all routes.
func New(opts Options) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		rooms:   opts.Rooms,
		matches: opts.Matchmaking,
		notes:   opts.Notifications,
		webFS:   opts.WebFS,
		log:     opts.Logger.With().Str("component", "server").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/formations", s.handleListFormations)
	s.mux.HandleFunc("POST /api/match-requests", s.handleSubmitRequest)
	s.mux.HandleFunc("DELETE /api/match-requests/{id}", s.handleCancelRequest)
	s.mux.HandleFunc("GET /api/players/{uid}/ws", s.handlePlayerSocket)
	s.mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	s.mux.HandleFunc("GET /api/rooms/{id}", s.handleGetRoom)
	s.mux.HandleFunc("GET /api/rooms/{id}/ws", s.handleRoomSocket)

	if s.webFS != nil {
		s.mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleListFormations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rooms.Formations().List())
}

type submitRequest struct {
	UID         string          `json:"uid"`
	Handle      string          `json:"handle"`
	Preferences json.RawMessage `json:"preferences"`
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: apperr.KindValidation})
		return
	}
	req := matchmaking.Request{UID: strings.TrimSpace(body.UID), Handle: strings.TrimSpace(body.Handle)}
	if len(body.Preferences) > 0 {
		prefs, err := matchmaking.DecodePreferences(body.Preferences)
		if err != nil {
			s.writeError(w, err)
			return
		}
		req.Preferences = prefs
	}
	ticket, err := s.matches.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.matches.Cancel(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createRoomRequest struct {
	UID      string        `json:"uid"`
	Handle   string        `json:"handle"`
	Settings room.Settings `json:"settings"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: apperr.KindValidation})
		return
	}
	req.UID = strings.TrimSpace(req.UID)
	if req.UID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "uid required", Kind: apperr.KindValidation})
		return
	}
	rm, err := s.rooms.Open(r.Context(), req.UID, strings.TrimSpace(req.Handle), req.Settings)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rm)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := s.rooms.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

type errorBody struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	kind := apperr.KindOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && kind == apperr.KindTransient {
		msg = ae.Msg
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
