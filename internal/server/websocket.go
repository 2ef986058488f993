package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"nhooyr.io/websocket"

	"fookiki/internal/apperr"
	"fookiki/internal/matchmaking"
	"fookiki/internal/room"
)

// WSMessage is the JSON envelope for WebSocket messages.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinPayload struct {
	UID    string `json:"uid"`
	Handle string `json:"handle"`
}

type errorPayload struct {
	Message string      `json:"message"`
	Kind    apperr.Kind `json:"kind,omitempty"`
}

const sendBuffer = 64

func accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for dev
	})
}

// writer drains send into conn until send is closed or ctx is done.
func writer(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-send:
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleRoomSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.rooms.Get(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := accept(w, r)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// First message must be a join
	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "join" {
		sendWSError(ctx, conn, apperr.Validation("first message must be a join"))
		return
	}
	var join joinPayload
	if err := json.Unmarshal(msg.Payload, &join); err != nil || strings.TrimSpace(join.UID) == "" {
		sendWSError(ctx, conn, apperr.Validation("invalid join payload"))
		return
	}
	uid := strings.TrimSpace(join.UID)

	if _, err := s.rooms.Join(ctx, id, uid, strings.TrimSpace(join.Handle)); err != nil {
		sendWSError(ctx, conn, err)
		return
	}

	send := make(chan []byte, sendBuffer)
	unsubscribe, closed, err := s.rooms.Subscribe(id, func(p []byte) {
		select {
		case send <- envelope("state", json.RawMessage(p)):
		default:
		}
	})
	if err != nil {
		sendWSError(ctx, conn, err)
		return
	}
	defer unsubscribe()

	log := s.log.With().Str("room_id", id).Str("uid", uid).Logger()
	log.Info().Msg("connected")

	// The snapshot goes out after subscribing so no update is missed.
	if snap, err := s.rooms.Get(ctx, id); err == nil {
		sendWSMsg(send, "state", snap)
	}

	go writer(ctx, conn, send)
	go func() {
		select {
		case <-ctx.Done():
		case <-closed:
			conn.Write(ctx, websocket.MessageText, envelope("closed", nil))
			conn.Close(websocket.StatusGoingAway, "room closed")
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendWSMsg(send, "error", errorPayload{Message: "invalid message", Kind: apperr.KindValidation})
			continue
		}
		if err := s.handleMessage(ctx, id, uid, msg); err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				log.Error().Err(err).Str("type", msg.Type).Msg("message failed")
			}
			sendWSMsg(send, "error", errorPayloadOf(err))
		}
	}

	// Disconnecting keeps the seat so the member can reconnect.
	log.Info().Msg("disconnected")
}

// handleMessage applies one client message. Accepted changes reach every
// subscriber, the sender included, through the room's topic.
func (s *Server) handleMessage(ctx context.Context, id, uid string, msg WSMessage) error {
	switch msg.Type {
	case "ready":
		_, err := s.rooms.SetReady(ctx, id, uid)
		return err
	case "action":
		var a room.Action
		if err := json.Unmarshal(msg.Payload, &a); err != nil {
			return apperr.Validation("invalid action payload")
		}
		_, _, err := s.rooms.Apply(ctx, id, uid, a)
		return err
	case "leave":
		_, err := s.rooms.Leave(ctx, id, uid)
		return err
	}
	return apperr.Validationf("unknown message type: %s", msg.Type)
}

// handlePlayerSocket streams match notifications for one uid.
func (s *Server) handlePlayerSocket(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if s.notes == nil {
		http.Error(w, "notifications unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := accept(w, r)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Reads only watch for the client going away.
	ctx := conn.CloseRead(r.Context())

	send := make(chan []byte, sendBuffer)
	stop, err := s.notes.Subscribe(ctx, uid, func(n matchmaking.Notification) {
		sendWSMsg(send, "match", n)
	})
	if err != nil {
		sendWSError(ctx, conn, err)
		return
	}
	defer stop()

	writer(ctx, conn, send)
}

func errorPayloadOf(err error) errorPayload {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		return errorPayload{Message: "internal error", Kind: kind}
	}
	return errorPayload{Message: err.Error(), Kind: kind}
}

func envelope(msgType string, payload any) []byte {
	p, _ := json.Marshal(payload)
	msg, _ := json.Marshal(WSMessage{Type: msgType, Payload: p})
	return msg
}

func sendWSMsg(send chan []byte, msgType string, payload any) {
	select {
	case send <- envelope(msgType, payload):
	default:
	}
}

func sendWSError(ctx context.Context, conn *websocket.Conn, err error) {
	conn.Write(ctx, websocket.MessageText, envelope("error", errorPayloadOf(err)))
}
