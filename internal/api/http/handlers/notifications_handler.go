package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-core/internal/api/dto"
	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/service"
	apperrors "github.com/spec-kit/support-core/pkg/util/errorutil"
)

// NotificationsHandler serves the caller's own notification inbox.
type NotificationsHandler struct {
	notifications *service.NotificationReconciler
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notifications *service.NotificationReconciler) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications}
}

// MarkRead POST /notifications/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.MarkReadRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("", "invalid payload")
	}
	id := strings.TrimSpace(req.ID())
	if id == "" {
		return apperrors.NewValidationError("notificationId", "notificationId required")
	}
	if err := h.notifications.MarkRead(c.UserContext(), id, actor.ID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// List GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	items, err := h.notifications.Inbox(c.UserContext(), actor.ID, c.QueryBool("unread"), pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	resp := make([]dto.NotificationResponse, 0, len(items))
	for i := range items {
		resp = append(resp, notificationResponse(&items[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// UnreadCount GET /notifications/unread-count.
func (h *NotificationsHandler) UnreadCount(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	count, err := h.notifications.UnreadCountFor(c.UserContext(), actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UnreadCountResponse{Unread: count}})
}

func notificationResponse(n *domain.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:        n.ID,
		Kind:      n.Kind,
		TicketID:  n.TicketID,
		Metadata:  n.Metadata,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}
