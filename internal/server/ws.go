package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/DragonSecurity/podrelay/pkg/proto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 14,
	WriteBufferSize: 1 << 14,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS answers each text frame as one JSON-RPC request, in order.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("ws upgrade: %v", err)
		return
	}
	if s.cfg.MaxBodyBytes > 0 {
		c.SetReadLimit(s.cfg.MaxBodyBytes)
	}
	sess := &Session{ID: uuid.NewString(), Remote: r.RemoteAddr, Started: s.now(), conn: c}
	s.sessions.Add(sess)
	log := s.log.With("session", sess.ID)
	log.Infof("ws session opened from %s", sess.Remote)
	defer func() {
		s.sessions.Remove(sess.ID)
		_ = c.Close()
		log.Infof("ws session closed after %s", time.Since(sess.Started).Truncate(time.Millisecond))
	}()

	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if s.limiter != nil && !s.limiter.Allow() {
			if sess.WriteText(proto.ErrorResponse(proto.PeekID(msg), proto.CodeRateLimited, "rate limit exceeded", nil)) != nil {
				return
			}
			continue
		}
		if err := sess.WriteText(s.answer(r, msg)); err != nil {
			log.Warnf("ws write: %v", err)
			return
		}
	}
}

// answer decodes and relays one request body. It always returns a JSON-RPC document.
func (s *Server) answer(r *http.Request, body []byte) []byte {
	req, err := proto.Decode(body)
	if err != nil {
		return proto.ErrorResponse(proto.PeekID(body), proto.CodeInvalidRequest, "Invalid Request", nil)
	}
	return s.relay.Do(r.Context(), req).Body
}
