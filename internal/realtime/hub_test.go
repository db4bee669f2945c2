package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, hub *Hub, allowed []string, streams ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, Subscription{Crew: r.URL.Query().Get("crew"), Streams: streams, Allowed: allowed})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, crew string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?crew=" + crew
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	roundTrip(t, conn)
	return conn
}

// roundTrip sends a ping so earlier control messages have been applied.
func roundTrip(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(control{Action: "ping"}))
	msg := read(t, conn)
	require.Equal(t, "pong", msg.Event)
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubDeliversToTargetCrewOnly(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.Close)
	srv := startHub(t, hub, nil, StreamNotifications)

	seven := dial(t, srv, "7")
	eight := dial(t, srv, "8")
	require.Equal(t, 2, hub.Subscribers(StreamNotifications))

	hub.SendToCrew(StreamNotifications, "8", Message{Event: "notification.created", Data: "for eight"})
	hub.SendToCrew(StreamNotifications, "7", Message{Event: "notification.created", Data: "for seven"})

	msg := read(t, seven)
	require.Equal(t, StreamNotifications, msg.Stream)
	require.Equal(t, "for seven", msg.Data)

	msg = read(t, eight)
	require.Equal(t, "for eight", msg.Data)
}

func TestHubControlSubscribeAndUnsubscribe(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.Close)
	srv := startHub(t, hub, nil)

	conn := dial(t, srv, "3")
	require.NoError(t, conn.WriteJSON(control{Action: "subscribe", Streams: []string{"Settings"}}))
	roundTrip(t, conn)
	require.Equal(t, 1, hub.Subscribers(StreamSettings))

	hub.Broadcast(StreamSettings, Message{Event: "settings.updated"})
	require.Equal(t, "settings.updated", read(t, conn).Event)

	require.NoError(t, conn.WriteJSON(control{Action: "unsubscribe", Streams: []string{StreamSettings}}))
	roundTrip(t, conn)
	require.Zero(t, hub.Subscribers(StreamSettings))

	require.NoError(t, conn.WriteJSON(control{Action: "subscribe", Streams: []string{StreamSettings}}))
	roundTrip(t, conn)
	require.Equal(t, 1, hub.Subscribers(StreamSettings))
}

func TestHubIgnoresStreamsOutsideAllowedSet(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.Close)
	srv := startHub(t, hub, []string{StreamNotifications}, StreamNotifications)

	conn := dial(t, srv, "5")
	require.NoError(t, conn.WriteJSON(control{Action: "subscribe", Streams: []string{StreamSound}}))
	roundTrip(t, conn)
	require.Zero(t, hub.Subscribers(StreamSound))

	hub.Broadcast(StreamSound, Message{Event: "sound.play"})
	hub.Broadcast(StreamNotifications, Message{Event: "notification.created"})
	require.Equal(t, "notification.created", read(t, conn).Event)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	srv := startHub(t, hub, nil, StreamServiceRequests)

	conn := dial(t, srv, "1")
	require.Equal(t, 1, hub.Subscribers(StreamServiceRequests))
	require.Equal(t, 1, hub.Sessions())

	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool { return hub.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, hub.Subscribers(StreamServiceRequests))

	hub.Broadcast(StreamServiceRequests, Message{Event: "ignored"})
}

func TestHubSendToCrewRespectsStreams(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.Close)
	srv := startHub(t, hub, nil, StreamSound)

	conn := dial(t, srv, "2")
	hub.SendToCrew(StreamNotifications, "2", Message{Event: "notification.created"})
	hub.SendToCrew(StreamSound, "2", Message{Event: "sound.play"})

	require.Equal(t, "sound.play", read(t, conn).Event)
}

func TestOriginChecks(t *testing.T) {
	request := func(host, origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://"+host+"/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	require.True(t, sameOrigin(request("bridge.local:8000", "")))
	require.True(t, sameOrigin(request("bridge.local:8000", "http://bridge.local:8000")))
	require.True(t, sameOrigin(request("bridge.local:8000", "http://localhost:5173")))
	require.False(t, sameOrigin(request("bridge.local:8000", "https://evil.example")))

	hub := NewHub(WithAllowedOrigins("https://Crew.Tablet:443"))
	require.True(t, hub.upgrader.CheckOrigin(request("bridge.local:8000", "https://crew.tablet")))
	require.False(t, hub.upgrader.CheckOrigin(request("bridge.local:8000", "https://evil.example")))
}

func TestHostHelpers(t *testing.T) {
	require.Equal(t, "example.com", originHost("https://Example.com:8443"))
	require.Equal(t, "10.0.0.2", originHost("10.0.0.2:8000"))
	require.True(t, isLoopback("localhost"))
	require.True(t, isLoopback("127.0.0.1"))
	require.False(t, isLoopback("10.0.0.2"))
	require.Equal(t, []string{"a", "b"}, NormalizeStreams([]string{"A", "", " b ", "a"}))
}
