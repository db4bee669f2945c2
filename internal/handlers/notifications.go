package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewbell/internal/notifications"
	"github.com/charlesng35/crewbell/internal/settings"
	"github.com/charlesng35/crewbell/pkg/response"
)

// SettingsReader exposes the live notification settings.
type SettingsReader interface {
	Current() settings.Settings
}

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service  *notifications.Service
	settings SettingsReader
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *notifications.Service, settings SettingsReader) (*NotificationHandler, error) {
	if service == nil {
		return nil, errors.New("notification handler: service is required")
	}
	if settings == nil {
		return nil, errors.New("notification handler: settings are required")
	}
	return &NotificationHandler{service: service, settings: settings}, nil
}

type createNotificationPayload struct {
	Recipients []int64                `json:"recipients" validate:"required,min=1,dive,gt=0"`
	Category   string                 `json:"category" validate:"required"`
	Title      string                 `json:"title" validate:"required,max=255"`
	Body       string                 `json:"body" validate:"max=4000"`
	Payload    *notifications.Payload `json:"payload"`
}

// List returns the caller's notifications, oldest first. limit keeps only the newest entries.
func (h *NotificationHandler) List(c *gin.Context) {
	crewID, ok := currentCrew(c)
	if !ok {
		return
	}

	ctx := requestContext(c)
	records, err := h.service.List(ctx, crewID)
	if err != nil {
		response.Error(c, err)
		return
	}

	unread := 0
	filtered := make([]notifications.Record, 0, len(records))
	unreadOnly := parseBoolQuery(c, "unread")
	for _, record := range records {
		if !record.Read {
			unread++
		} else if unreadOnly {
			continue
		}
		filtered = append(filtered, record)
	}

	if limit := parseIntQuery(c, "limit", 0); limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}

	response.SuccessWithMeta(c, http.StatusOK, filtered, &response.Meta{
		Total:  len(records),
		Unread: unread,
	})
}

// Badge returns the unread count together with the sidebar badge preference.
func (h *NotificationHandler) Badge(c *gin.Context) {
	crewID, ok := currentCrew(c)
	if !ok {
		return
	}

	unread, err := h.service.UnreadCount(requestContext(c), crewID)
	if err != nil {
		response.Error(c, err)
		return
	}

	current := h.settings.Current()
	response.Success(c, http.StatusOK, gin.H{
		"unread":        unread,
		"sidebar_badge": current.SidebarBadge,
	})
}

// Create records a notification for each recipient. Restricted to administrators by the router.
func (h *NotificationHandler) Create(c *gin.Context) {
	var payload createNotificationPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	category, err := notifications.ParseCategory(payload.Category)
	if err != nil {
		response.Error(c, err)
		return
	}

	records, err := h.service.NotifyMany(requestContext(c), payload.Recipients, notifications.RecordInput{
		Category: category,
		Title:    payload.Title,
		Body:     payload.Body,
		Payload:  payload.Payload,
	})
	if err != nil && len(records) == 0 {
		response.Error(c, err)
		return
	}

	response.Created(c, records)
}

// MarkRead flags one of the caller's notifications as read. Unknown ids succeed without effect.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	crewID, ok := currentCrew(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.MarkRead(requestContext(c), crewID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"id": id, "read": true})
}

// MarkAllRead marks all of the caller's notifications read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	crewID, ok := currentCrew(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), crewID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}
