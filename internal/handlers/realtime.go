package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/crewbell/internal/auth"
	"github.com/charlesng35/crewbell/internal/middleware"
	"github.com/charlesng35/crewbell/internal/realtime"
	"github.com/charlesng35/crewbell/pkg/errors"
	"github.com/charlesng35/crewbell/pkg/response"
)

// RealtimeHandler authenticates dashboard sessions and attaches them to the hub.
type RealtimeHandler struct {
	hub       *realtime.Hub
	jwt       *iauth.JWTService
	streams   []string
	permitted map[string]struct{}
}

// NewRealtimeHandler constructs a realtime handler restricted to streams.
// If no streams are provided, every known stream is allowed.
func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService, streams ...string) *RealtimeHandler {
	streams = realtime.NormalizeStreams(streams)
	if len(streams) == 0 {
		streams = realtime.Streams()
	}

	permitted := make(map[string]struct{}, len(streams))
	for _, stream := range streams {
		permitted[stream] = struct{}{}
	}
	return &RealtimeHandler{hub: hub, jwt: jwt, streams: streams, permitted: permitted}
}

// Stream validates the caller and hands the connection to the hub. Requested
// streams come from the path, ?stream= and ?streams=; none means all of them.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.jwt == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := streamToken(c)
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	requested := gatherStreams(c)
	for _, stream := range requested {
		if _, ok := h.permitted[stream]; !ok {
			response.Error(c, errors.ErrNotFound.WithMessage("unknown stream: "+stream))
			return
		}
	}
	if len(requested) == 0 {
		requested = h.streams
	}

	h.hub.Serve(c.Writer, c.Request, realtime.Subscription{
		Crew:    realtime.CrewKey(claims.CrewID),
		Streams: requested,
		Allowed: h.streams,
	})
}

// streamToken reads the access token. Browsers cannot set headers on a
// WebSocket upgrade, so query parameters are accepted too.
func streamToken(c *gin.Context) string {
	for _, key := range []string{"token", "access_token"} {
		if token := strings.TrimSpace(c.Query(key)); token != "" {
			return token
		}
	}
	token, _ := middleware.BearerToken(c.GetHeader("Authorization"))
	return token
}

func gatherStreams(c *gin.Context) []string {
	streams := []string{c.Param("stream")}
	streams = append(streams, c.QueryArray("stream")...)
	if raw := c.Query("streams"); raw != "" {
		streams = append(streams, strings.Split(raw, ",")...)
	}
	return realtime.NormalizeStreams(streams)
}
