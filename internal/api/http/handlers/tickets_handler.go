package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-core/internal/api/dto"
	"github.com/spec-kit/support-core/internal/auth"
	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/render"
	"github.com/spec-kit/support-core/internal/repository"
	"github.com/spec-kit/support-core/internal/service"
	apperrors "github.com/spec-kit/support-core/pkg/util/errorutil"
)

// TicketsHandler serves the ticket endpoints for every role; what a caller
// may see or change is decided in the service.
type TicketsHandler struct {
	support  *service.Support
	markdown *render.Markdown
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(support *service.Support, markdown *render.Markdown) *TicketsHandler {
	if markdown == nil {
		markdown = render.NewMarkdown()
	}
	return &TicketsHandler{support: support, markdown: markdown}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("", "invalid payload")
	}
	ticket, err := h.support.Tickets.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		Subject:     req.Subject,
		Description: req.Description,
		Category:    domain.TicketCategory(strings.ToUpper(strings.TrimSpace(string(req.Category)))),
		Priority:    domain.TicketPriority(strings.ToUpper(strings.TrimSpace(string(req.Priority)))),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.support.Access.VisibleTickets(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id. Opening a ticket acknowledges the caller's
// notifications for it.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, replies, err := h.support.OpenTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.ticketDetail(ticket, replies)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("", "invalid payload")
	}
	if req.Status == nil && req.Priority == nil {
		return apperrors.NewValidationError("status", "status or priority required")
	}

	update := service.TicketUpdate{}
	if req.Status != nil {
		status := domain.TicketStatus(strings.ToUpper(strings.TrimSpace(string(*req.Status))))
		update.Status = &status
	}
	if req.Priority != nil {
		priority := domain.TicketPriority(strings.ToUpper(strings.TrimSpace(string(*req.Priority))))
		update.Priority = &priority
	}
	ticket, err := h.support.Tickets.Update(c.UserContext(), c.Params("id"), update, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// AddReply POST /tickets/:id/replies.
func (h *TicketsHandler) AddReply(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("", "invalid payload")
	}
	reply, err := h.support.Replies.AddReply(c.UserContext(), c.Params("id"), actor, req.Message)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": h.replyResponse(reply)})
}

// MarkTicketRead POST /tickets/:id/notifications/read.
func (h *TicketsHandler) MarkTicketRead(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	marked, err := h.support.MarkTicketRead(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MarkedResponse{Marked: marked}})
}

func currentActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func parseTicketQuery(c *fiber.Ctx) (repository.TicketFilter, error) {
	filter := repository.TicketFilter{}
	for _, part := range splitQuery(c.Query("status")) {
		status := domain.TicketStatus(part)
		if !status.Valid() {
			return filter, apperrors.NewValidationError("status", "unknown status "+part)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, part := range splitQuery(c.Query("priority")) {
		priority := domain.TicketPriority(part)
		if !priority.Valid() {
			return filter, apperrors.NewValidationError("priority", "unknown priority "+part)
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	for _, part := range splitQuery(c.Query("category")) {
		category := domain.TicketCategory(part)
		if !category.Valid() {
			return filter, apperrors.NewValidationError("category", "unknown category "+part)
		}
		filter.Categories = append(filter.Categories, category)
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func splitQuery(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:             ticket.ID,
		Subject:        ticket.Subject,
		Category:       ticket.Category,
		Status:         ticket.Status,
		Priority:       ticket.Priority,
		OwnerID:        ticket.OwnerID,
		OrganizationID: ticket.OrganizationID,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
	}
}

func (h *TicketsHandler) ticketDetail(ticket *domain.Ticket, replies []domain.Reply) dto.TicketDetailResponse {
	items := make([]dto.ReplyResponse, 0, len(replies))
	for i := range replies {
		items = append(items, h.replyResponse(&replies[i]))
	}
	return dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		Description:   ticket.Description,
		Replies:       items,
	}
}

func (h *TicketsHandler) replyResponse(reply *domain.Reply) dto.ReplyResponse {
	return dto.ReplyResponse{
		ID:          reply.ID,
		TicketID:    reply.TicketID,
		AuthorID:    reply.AuthorID,
		Message:     reply.Message,
		MessageHTML: h.markdown.HTML(reply.Message),
		CreatedAt:   reply.CreatedAt,
	}
}
