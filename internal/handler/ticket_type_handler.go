package handler

import (
	"errors"
	"net/http"

	"github.com/eventlane/ticketing/internal/domain"
	"github.com/eventlane/ticketing/internal/dto"
	"github.com/eventlane/ticketing/internal/service"
	"github.com/eventlane/ticketing/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TicketTypeHandler handles ticket type HTTP requests
type TicketTypeHandler struct {
	ticketTypeService service.TicketTypeService
}

// NewTicketTypeHandler creates a new ticket type handler
func NewTicketTypeHandler(ticketTypeService service.TicketTypeService) *TicketTypeHandler {
	return &TicketTypeHandler{ticketTypeService: ticketTypeService}
}

// CreateTicketType handles POST /organizer/ticket-types
func (h *TicketTypeHandler) CreateTicketType(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.ticket_type.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CreateTicketTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request",
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	span.SetAttributes(
		attribute.String("event_id", req.EventID),
		attribute.Int("quantity", req.Quantity),
	)

	result, err := h.ticketTypeService.CreateTicketType(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("ticket_type_id", result.ID))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusCreated, result)
}

// GetTicketType handles GET /ticket-types/:id
func (h *TicketTypeHandler) GetTicketType(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.ticket_type.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	ticketTypeID := c.Param("id")
	if ticketTypeID == "" {
		span.SetStatus(codes.Error, "ticket type id required")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "ticket type id required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	span.SetAttributes(attribute.String("ticket_type_id", ticketTypeID))

	result, err := h.ticketTypeService.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// ListEventTicketTypes handles GET /events/:event_id/ticket-types
func (h *TicketTypeHandler) ListEventTicketTypes(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.ticket_type.list_event")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("event_id")
	if eventID == "" {
		span.SetStatus(codes.Error, "event id required")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "event id required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	span.SetAttributes(attribute.String("event_id", eventID))

	result, err := h.ticketTypeService.ListEventTicketTypes(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("count", len(result)))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.SuccessResponse{
		Success: true,
		Data:    result,
	})
}

// UpdateTicketType handles PUT /organizer/ticket-types/:id
func (h *TicketTypeHandler) UpdateTicketType(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.ticket_type.update")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	ticketTypeID := c.Param("id")
	if ticketTypeID == "" {
		span.SetStatus(codes.Error, "ticket type id required")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "ticket type id required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	var req dto.UpdateTicketTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request",
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	span.SetAttributes(attribute.String("ticket_type_id", ticketTypeID))

	result, err := h.ticketTypeService.UpdateTicketType(ctx, ticketTypeID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// SetTicketTypeActive handles PUT /organizer/ticket-types/:id/active
// An inactive ticket type rejects new bookings; existing bookings keep
// their lifecycle.
func (h *TicketTypeHandler) SetTicketTypeActive(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.ticket_type.set_active")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	ticketTypeID := c.Param("id")
	if ticketTypeID == "" {
		span.SetStatus(codes.Error, "ticket type id required")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "ticket type id required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	var req dto.SetTicketTypeActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "active flag required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.Bool("active", *req.Active),
	)

	result, err := h.ticketTypeService.SetTicketTypeActive(ctx, ticketTypeID, *req.Active)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// handleError converts domain errors to HTTP responses
func (h *TicketTypeHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrTicketTypeNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "NOT_FOUND",
		})
	case errors.Is(err, domain.ErrQuantityBelowSold):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "QUANTITY_BELOW_SOLD",
		})
	case domain.IsValidationError(err):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
