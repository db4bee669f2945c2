package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crewbell/internal/handlers/testutil"
	"github.com/charlesng35/crewbell/internal/notifications"
)

func seedNotification(t *testing.T, env *testutil.Env, recipient int64, title string) notifications.Record {
	t.Helper()
	rec, err := env.Notifications.Notify(context.Background(), notifications.RecordInput{
		Recipient: recipient,
		Category:  notifications.CategorySystem,
		Title:     title,
	})
	require.NoError(t, err)
	return rec
}

func TestNotificationListAndMarkRead(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.CrewToken(7)

	first := seedNotification(t, env, 7, "Tender leaves at noon")
	seedNotification(t, env, 7, "Galley inspection")
	seedNotification(t, env, 8, "Not for seven")

	w := env.Request(http.MethodGet, "/api/notifications", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	require.Equal(t, 2, resp.Meta.Total)
	require.Equal(t, 2, resp.Meta.Unread)

	var records []notifications.Record
	testutil.DecodeInto(t, resp.Data, &records)
	require.Len(t, records, 2)
	require.Equal(t, "Tender leaves at noon", records[0].Title)

	w = env.Request(http.MethodPost, "/api/notifications/"+first.ID+"/read", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/notifications?unread=true", nil, token)
	resp = testutil.DecodeResponse(t, w)
	testutil.DecodeInto(t, resp.Data, &records)
	require.Len(t, records, 1)
	require.Equal(t, "Galley inspection", records[0].Title)
	require.Equal(t, 1, resp.Meta.Unread)
}

func TestNotificationListLimitKeepsNewest(t *testing.T) {
	env := testutil.NewEnv(t)
	for _, title := range []string{"one", "two", "three"} {
		seedNotification(t, env, 3, title)
	}

	w := env.Request(http.MethodGet, "/api/notifications?limit=2", nil, env.CrewToken(3))
	require.Equal(t, http.StatusOK, w.Code)

	var records []notifications.Record
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &records)
	require.Len(t, records, 2)
	require.Equal(t, "two", records[0].Title)
	require.Equal(t, "three", records[1].Title)
}

func TestNotificationMarkReadIgnoresOtherCrew(t *testing.T) {
	env := testutil.NewEnv(t)
	rec := seedNotification(t, env, 4, "Deck wash at dawn")

	w := env.Request(http.MethodPost, "/api/notifications/"+rec.ID+"/read", nil, env.CrewToken(5))
	require.Equal(t, http.StatusOK, w.Code)

	unread, err := env.Notifications.UnreadCount(context.Background(), 4)
	require.NoError(t, err)
	require.EqualValues(t, 1, unread)
}

func TestNotificationMarkAllReadAndBadge(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.CrewToken(9)
	seedNotification(t, env, 9, "a")
	seedNotification(t, env, 9, "b")

	w := env.Request(http.MethodGet, "/api/notifications/badge", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var badge struct {
		Unread       int64 `json:"unread"`
		SidebarBadge bool  `json:"sidebar_badge"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &badge)
	require.EqualValues(t, 2, badge.Unread)
	require.True(t, badge.SidebarBadge)

	w = env.Request(http.MethodPost, "/api/notifications/read-all", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var updated struct {
		Updated int64 `json:"updated"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &updated)
	require.EqualValues(t, 2, updated.Updated)

	w = env.Request(http.MethodGet, "/api/notifications/badge", nil, token)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &badge)
	require.Zero(t, badge.Unread)
}

func TestNotificationCreateRequiresAdmin(t *testing.T) {
	env := testutil.NewEnv(t)
	payload := map[string]any{
		"recipients": []int64{2, 3},
		"category":   "system",
		"title":      "Guests boarding in 10 minutes",
	}

	w := env.Request(http.MethodPost, "/api/notifications", payload, env.CrewToken(1))
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.Request(http.MethodPost, "/api/notifications", payload, env.AdminToken(1))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var records []notifications.Record
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &records)
	require.Len(t, records, 2)
	require.Len(t, env.Sounds.Cues(), 1)
}

func TestNotificationCreateRejectsUnknownCategory(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/notifications", map[string]any{
		"recipients": []int64{2},
		"category":   "gossip",
		"title":      "Hello",
	}, env.AdminToken(1))
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := testutil.DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error.Message, "gossip")
}

func TestNotificationCreateValidatesPayload(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/notifications", map[string]any{
		"category": "system",
		"title":    "Nobody to tell",
	}, env.AdminToken(1))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
