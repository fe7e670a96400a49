package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tire-request-service/internal/api/dto"
	"github.com/spec-kit/tire-request-service/internal/auth"
	"github.com/spec-kit/tire-request-service/internal/domain"
	"github.com/spec-kit/tire-request-service/internal/lifecycle"
	"github.com/spec-kit/tire-request-service/internal/repository"
	"github.com/spec-kit/tire-request-service/internal/service"
	apperrors "github.com/spec-kit/tire-request-service/pkg/util"
)

// RequestsHandler manages tire-request endpoints.
type RequestsHandler struct {
	service *service.RequestService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requestService *service.RequestService) *RequestsHandler {
	return &RequestsHandler{service: requestService}
}

// Submit POST /requests.
func (h *RequestsHandler) Submit(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	request, err := h.service.Submit(c.Context(), principal.Actor, lifecycle.SubmitInput{
		VehicleID: req.VehicleID,
		TireSize:  req.TireSize,
		Quantity:  req.Quantity,
		Reason:    req.Reason,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"success": true, "data": dto.FromRequest(request)})
}

// List GET /requests.
func (h *RequestsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	filter := parseRequestQuery(c)
	requests, err := h.service.List(c.Context(), principal.Actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.RequestResponse, 0, len(requests))
	for i := range requests {
		items = append(items, dto.FromRequest(&requests[i]))
	}
	return c.JSON(fiber.Map{"success": true, "data": items})
}

// Get GET /requests/:id.
func (h *RequestsHandler) Get(c *fiber.Ctx) error {
	requestID, err := parseID(c)
	if err != nil {
		return err
	}
	includeDeleted := strings.EqualFold(c.Query("include_deleted"), "true")
	request, err := h.service.Get(c.Context(), requestID, includeDeleted)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.FromRequest(request)})
}

// Transition PUT /requests/:id.
func (h *RequestsHandler) Transition(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	requestID, err := parseID(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	request, err := h.service.Transition(c.Context(), requestID, principal.Actor, req.Status, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.FromRequest(request)})
}

// SoftDelete DELETE /requests/:id.
func (h *RequestsHandler) SoftDelete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	requestID, err := parseID(c)
	if err != nil {
		return err
	}
	request, err := h.service.SoftDelete(c.Context(), requestID, principal.Actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.FromRequest(request)})
}

// Restore POST /requests/restore/:id.
func (h *RequestsHandler) Restore(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	requestID, err := parseID(c)
	if err != nil {
		return err
	}
	request, err := h.service.Restore(c.Context(), requestID, principal.Actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.FromRequest(request)})
}

// ListDeleted GET /requests/deleted.
func (h *RequestsHandler) ListDeleted(c *fiber.Ctx) error {
	filter := repository.DeletedFilter{
		SortBy:    c.Query("sortBy", "deletedAt"),
		SortOrder: c.Query("sortOrder", "desc"),
		Page:      parseIntQuery(c.Query("page"), 1),
		Limit:     parseIntQuery(c.Query("limit"), 20),
	}
	if submitter := c.Query("submitterId"); submitter != "" {
		filter.SubmitterID = &submitter
	}
	if deleter := c.Query("deletedBy"); deleter != "" {
		filter.DeletedBy = &deleter
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.RequestStatus(strings.TrimSpace(part)))
		}
	}
	if from := parseTimeQuery(c.Query("from")); from != nil {
		filter.DeletedFrom = from
	}
	if to := parseTimeQuery(c.Query("to")); to != nil {
		filter.DeletedTo = to
	}

	requests, pagination, err := h.service.ListDeleted(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.RequestResponse, 0, len(requests))
	for i := range requests {
		items = append(items, dto.FromRequest(&requests[i]))
	}
	return c.JSON(dto.DeletedListResponse{Success: true, Data: items, Pagination: pagination})
}

// ListEvents GET /requests/:id/events.
func (h *RequestsHandler) ListEvents(c *fiber.Ctx) error {
	requestID, err := parseID(c)
	if err != nil {
		return err
	}
	limit := parseIntQuery(c.Query("limit"), 100)
	offset := parseIntQuery(c.Query("offset"), 0)
	entries, err := h.service.ListEvents(c.Context(), requestID, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.EventResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.EventResponse{
			ID:        entry.ID,
			Type:      string(entry.Type),
			RequestID: entry.RequestID,
			NewStatus: entry.NewStatus,
			ActorID:   entry.ActorID,
			ActorRole: entry.ActorRole,
			Note:      entry.Note,
			Sequence:  entry.Sequence,
			Timestamp: entry.Timestamp,
		})
	}
	return c.JSON(fiber.Map{"success": true, "data": items})
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid request id", nil)
	}
	return id, nil
}

func parseRequestQuery(c *fiber.Ctx) repository.RequestFilter {
	filter := repository.RequestFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.RequestStatus(strings.TrimSpace(part)))
		}
	}
	if from := parseTimeQuery(c.Query("from")); from != nil {
		filter.SubmittedFrom = from
	}
	if to := parseTimeQuery(c.Query("to")); to != nil {
		filter.SubmittedTo = to
	}
	page := parseIntQuery(c.Query("page"), 1)
	limit := parseIntQuery(c.Query("limit"), 20)
	filter.Offset = (page - 1) * limit
	filter.Limit = limit
	return filter
}

func parseIntQuery(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func parseTimeQuery(value string) *time.Time {
	if value == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &parsed
}
