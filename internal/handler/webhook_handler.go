package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/eventlane/ticketing/internal/dto"
	"github.com/eventlane/ticketing/internal/service"
	"github.com/eventlane/ticketing/pkg/logger"
	"github.com/eventlane/ticketing/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// WebhookHandler receives payment gateway callbacks
type WebhookHandler struct {
	paymentService service.PaymentService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(paymentService service.PaymentService) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
	}
}

// HandleWebhook handles POST /payments/:gateway/webhook
// Responds 200 to every delivery the gateway signed and we could decode,
// whatever the reconciliation outcome, so the gateway stops retrying.
// Only undecodable or unauthenticated payloads get a 400.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.webhook.receive")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	gatewayName := c.Param("gateway")
	span.SetAttributes(attribute.String("gateway", gatewayName))

	if gatewayName != h.paymentService.Gateway().Name() {
		span.SetStatus(codes.Error, "unknown gateway")
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: "unknown gateway",
			Code:  "NOT_FOUND",
		})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read body")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "failed to read request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		signature = c.GetHeader("X-Webhook-Signature")
	}

	ack, err := h.paymentService.HandleWebhook(ctx, payload, signature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Get().Warn(fmt.Sprintf("Webhook rejected: gateway=%s err=%v", gatewayName, err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid webhook payload",
			Code:    "INVALID_WEBHOOK",
			Message: err.Error(),
		})
		return
	}

	span.SetAttributes(attribute.String("result", ack.Result))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, ack)
}
