package realtime

import (
	"strconv"
	"strings"
)

// Named realtime streams.
const (
	StreamNotifications   = "notifications"
	StreamSound           = "sound"
	StreamSettings        = "settings"
	StreamServiceRequests = "service-requests"
)

// Streams lists every stream a client may subscribe to.
func Streams() []string {
	return []string{StreamNotifications, StreamSound, StreamSettings, StreamServiceRequests}
}

// Broadcaster delivers realtime messages. *Hub implements it.
type Broadcaster interface {
	SendToCrew(stream, crew string, message Message)
	Broadcast(stream string, message Message)
}

// CrewKey formats a crew id as a subscriber key.
func CrewKey(crewID int64) string {
	return strconv.FormatInt(crewID, 10)
}

// NormalizeStreams lower-cases and trims names, dropping blanks and repeats
// while keeping first-seen order.
func NormalizeStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	var out []string
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, dup := seen[stream]; dup {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}
