package realtime

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/crewbell/pkg/logger"
)

// Message is the JSON envelope delivered to dashboard sessions.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Subscription describes a session at connect time.
type Subscription struct {
	// Crew is the key targeted by SendToCrew, see CrewKey.
	Crew string
	// Streams are subscribed immediately.
	Streams []string
	// Allowed limits later subscribe requests. Empty allows every stream.
	Allowed []string
}

// Hub fans messages out to connected crew dashboards.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*session]struct{}
	byCrew   map[string]map[*session]struct{}
	closed   bool

	upgrader websocket.Upgrader
	log      *zap.Logger
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithAllowedOrigins accepts upgrades from the listed origin hosts in addition
// to same-host and loopback origins.
func WithAllowedOrigins(hosts ...string) HubOption {
	return func(h *Hub) {
		extra := make(map[string]struct{}, len(hosts))
		for _, host := range hosts {
			if host = originHost(host); host != "" {
				extra[host] = struct{}{}
			}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			if sameOrigin(r) {
				return true
			}
			_, ok := extra[originHost(r.Header.Get("Origin"))]
			return ok
		}
	}
}

// NewHub constructs a realtime hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		sessions: make(map[*session]struct{}),
		byCrew:   make(map[string]map[*session]struct{}),
		log:      logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Serve upgrades the request and blocks until the session ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sub Subscription) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	s := newSession(h, conn, sub.Crew, NormalizeStreams(sub.Allowed))
	if !h.attach(s) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}
	h.subscribe(s, sub.Streams)

	go s.writeLoop()
	s.readLoop()
}

// SendToCrew delivers message to every session of crew subscribed to stream.
func (h *Hub) SendToCrew(stream, crew string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" || crew == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	var slow []*session
	for s := range h.byCrew[crew] {
		if s.wants(stream) && !s.offer(message) {
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	h.evict(slow)
}

// Broadcast delivers message to every session subscribed to stream.
func (h *Hub) Broadcast(stream string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	var slow []*session
	for s := range h.sessions {
		if s.wants(stream) && !s.offer(message) {
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	h.evict(slow)
}

// Subscribers reports how many sessions listen on stream.
func (h *Hub) Subscribers(stream string) int {
	stream = normalizeStream(stream)

	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for s := range h.sessions {
		if s.wants(stream) {
			n++
		}
	}
	return n
}

// Sessions reports the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every session and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	open := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.close()
	}
}

func (h *Hub) attach(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = struct{}{}
	if h.byCrew[s.crew] == nil {
		h.byCrew[s.crew] = make(map[*session]struct{})
	}
	h.byCrew[s.crew][s] = struct{}{}
	return true
}

func (h *Hub) detach(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sessions, s)
	if crew := h.byCrew[s.crew]; crew != nil {
		delete(crew, s)
		if len(crew) == 0 {
			delete(h.byCrew, s.crew)
		}
	}
	s.streams = nil
	s.detached = true
}

func (h *Hub) subscribe(s *session, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.detached {
		return
	}

	for _, stream := range NormalizeStreams(streams) {
		if !s.permits(stream) {
			h.log.Debug("stream not permitted", zap.String("stream", stream), zap.String("crew", s.crew))
			continue
		}
		s.streams[stream] = struct{}{}
	}
}

func (h *Hub) unsubscribe(s *session, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range NormalizeStreams(streams) {
		delete(s.streams, stream)
	}
}

// reply queues a control response for s alone.
func (h *Hub) reply(s *session, message Message) {
	h.mu.RLock()
	ok := s.offer(message)
	h.mu.RUnlock()
	if !ok {
		h.evict([]*session{s})
	}
}

func (h *Hub) evict(slow []*session) {
	for _, s := range slow {
		h.log.Warn("dropping slow session", zap.String("crew", s.crew))
		s.close()
	}
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host := originHost(origin)
	return host == originHost(r.Host) || isLoopback(host)
}

// originHost strips scheme and port from an Origin header or Host value.
func originHost(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.Contains(value, "://") {
		if parsed, err := url.Parse(value); err == nil {
			value = parsed.Host
		}
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(value)
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return host == "localhost"
}
