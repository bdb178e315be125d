package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/comigor/jobchat-go/internal/protocol"
)

const writeWait = 10 * time.Second

// handleSocket greets the client, then answers every user_message with a
// typing frame followed by the bot reply. Other frame types are ignored and
// malformed frames are dropped without closing the socket.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	log := s.log.With("session_id", sessionID)
	log.Info("chat socket opened")
	ctx := r.Context()

	if err := s.writeFrame(conn, protocol.BotMessage(s.responder.Welcome(), s.clock.Now())); err != nil {
		log.Warn("failed to send welcome", "error", err)
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("chat socket closed unexpectedly", "error", err)
			} else {
				log.Info("chat socket closed")
			}
			return
		}

		in, err := protocol.DecodeOutbound(data)
		if err != nil {
			log.Warn("dropping malformed frame", "error", err)
			continue
		}
		if in.Type != protocol.TypeUserMessage {
			log.Debug("ignoring frame", "type", in.Type)
			continue
		}

		if err := s.writeFrame(conn, protocol.Typing(s.clock.Now())); err != nil {
			log.Warn("failed to send typing", "error", err)
			return
		}
		// The responder reads the stored transcript as context, so the
		// current message is saved only once it has been answered.
		reply := s.responder.Reply(ctx, sessionID, in.Message)
		s.save(ctx, sessionID, "user", in.Message)
		s.save(ctx, sessionID, "bot", reply)
		if err := s.writeFrame(conn, protocol.BotMessage(reply, s.clock.Now())); err != nil {
			log.Warn("failed to send reply", "error", err)
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, frame protocol.Inbound) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}
