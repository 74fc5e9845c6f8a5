package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vigilearn/examguard-backend/internal/middleware"
	"github.com/vigilearn/examguard-backend/internal/response"
	"github.com/vigilearn/examguard-backend/internal/service"
)

// NotificationHandler handles notification endpoints.
type NotificationHandler struct {
	notificationService *service.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notificationService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// ListNotifications godoc
// GET /api/v1/student/notifications
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	list, err := h.notificationService.List(c.Request.Context(), claims.UserID, limit, offset)
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, list)
}

// MarkNotificationRead godoc
// POST /api/v1/student/notifications/:notification_id/read
func (h *NotificationHandler) MarkNotificationRead(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, err := strconv.ParseInt(c.Param("notification_id"), 10, 64)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ok, err := h.notificationService.MarkRead(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failFromError(c, err)
		return
	}
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"read": true})
}
