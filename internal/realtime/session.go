package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	maxFrameSize = 64 << 10

	sendQueueSize = 64
)

// control is a message sent by the dashboard.
type control struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// session is one WebSocket connection. streams and detached are guarded by hub.mu.
type session struct {
	hub     *Hub
	conn    *websocket.Conn
	crew    string
	allowed map[string]struct{}
	queue   chan Message

	streams  map[string]struct{}
	detached bool

	closeOnce sync.Once
}

func newSession(hub *Hub, conn *websocket.Conn, crew string, allowed []string) *session {
	s := &session{
		hub:     hub,
		conn:    conn,
		crew:    crew,
		queue:   make(chan Message, sendQueueSize),
		streams: make(map[string]struct{}),
	}
	if len(allowed) > 0 {
		s.allowed = make(map[string]struct{}, len(allowed))
		for _, stream := range allowed {
			s.allowed[stream] = struct{}{}
		}
	}
	return s
}

func (s *session) permits(stream string) bool {
	if s.allowed == nil {
		return true
	}
	_, ok := s.allowed[stream]
	return ok
}

func (s *session) wants(stream string) bool {
	_, ok := s.streams[stream]
	return ok
}

// offer queues message without blocking. It reports false when the queue is full.
func (s *session) offer(message Message) bool {
	if s.detached {
		return true
	}
	select {
	case s.queue <- message:
		return true
	default:
		return false
	}
}

func (s *session) readLoop() {
	defer s.close()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.log.Debug("session closed unexpectedly", zap.String("crew", s.crew), zap.Error(err))
			}
			return
		}
		if len(payload) > 0 {
			s.handle(payload)
		}
	}
}

func (s *session) handle(payload []byte) {
	var msg control
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.hub.log.Debug("invalid control message", zap.String("crew", s.crew), zap.Error(err))
		return
	}

	switch strings.ToLower(strings.TrimSpace(msg.Action)) {
	case "subscribe":
		s.hub.subscribe(s, msg.Streams)
	case "unsubscribe":
		s.hub.unsubscribe(s, msg.Streams)
	case "ping":
		s.hub.reply(s, Message{Event: "pong"})
	default:
		s.hub.log.Debug("unknown control action", zap.String("action", msg.Action), zap.String("crew", s.crew))
	}
}

func (s *session) writeLoop() {
	defer s.close()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-s.queue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.hub.detach(s)
		close(s.queue)
		_ = s.conn.Close()
	})
}
