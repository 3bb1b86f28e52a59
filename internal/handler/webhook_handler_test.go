package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eventlane/ticketing/internal/dto"
	"github.com/gin-gonic/gin"
)

func setupWebhookRouter(h *WebhookHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/payments/:gateway/webhook", h.HandleWebhook)
	return router
}

func TestWebhookHandler_HandleWebhook(t *testing.T) {
	tests := []struct {
		name           string
		gatewayParam   string
		payload        string
		mockFunc       func(ctx context.Context, payload []byte, signature string) (*dto.WebhookAck, error)
		expectedStatus int
		expectedResult string
	}{
		{
			name:         "processed delivery",
			gatewayParam: "mock",
			payload:      `{"tx_ref":"tx-001","status":"success"}`,
			mockFunc: func(ctx context.Context, payload []byte, signature string) (*dto.WebhookAck, error) {
				return &dto.WebhookAck{Received: true, Result: "processed"}, nil
			},
			expectedStatus: http.StatusOK,
			expectedResult: "processed",
		},
		{
			name:         "replayed delivery still gets 200",
			gatewayParam: "mock",
			payload:      `{"tx_ref":"tx-001","status":"success"}`,
			mockFunc: func(ctx context.Context, payload []byte, signature string) (*dto.WebhookAck, error) {
				return &dto.WebhookAck{Received: true, Result: "replayed"}, nil
			},
			expectedStatus: http.StatusOK,
			expectedResult: "replayed",
		},
		{
			name:         "conflicting delivery still gets 200",
			gatewayParam: "mock",
			payload:      `{"tx_ref":"tx-001","status":"failed"}`,
			mockFunc: func(ctx context.Context, payload []byte, signature string) (*dto.WebhookAck, error) {
				return &dto.WebhookAck{Received: true, Result: "conflict"}, nil
			},
			expectedStatus: http.StatusOK,
			expectedResult: "conflict",
		},
		{
			name:         "unknown transaction still gets 200",
			gatewayParam: "mock",
			payload:      `{"tx_ref":"tx-forged","status":"success"}`,
			mockFunc: func(ctx context.Context, payload []byte, signature string) (*dto.WebhookAck, error) {
				return &dto.WebhookAck{Received: true, Result: "ignored"}, nil
			},
			expectedStatus: http.StatusOK,
			expectedResult: "ignored",
		},
		{
			name:         "undecodable payload gets 400",
			gatewayParam: "mock",
			payload:      "not json",
			mockFunc: func(ctx context.Context, payload []byte, signature string) (*dto.WebhookAck, error) {
				return nil, errors.New("failed to decode webhook payload")
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown gateway gets 404",
			gatewayParam:   "paypal",
			payload:        `{}`,
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockPaymentService{
				HandleWebhookFunc: tt.mockFunc,
			}
			h := NewWebhookHandler(mockService)
			router := setupWebhookRouter(h)

			req := httptest.NewRequest(http.MethodPost, "/payments/"+tt.gatewayParam+"/webhook", bytes.NewBufferString(tt.payload))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			if tt.expectedResult != "" {
				var ack dto.WebhookAck
				if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
					t.Fatalf("failed to decode ack: %v", err)
				}
				if !ack.Received {
					t.Error("expected received=true")
				}
				if ack.Result != tt.expectedResult {
					t.Errorf("expected result %s, got %s", tt.expectedResult, ack.Result)
				}
			}
		})
	}
}

func TestWebhookHandler_SignatureForwarded(t *testing.T) {
	var gotSignature string
	mockService := &MockPaymentService{
		HandleWebhookFunc: func(ctx context.Context, payload []byte, signature string) (*dto.WebhookAck, error) {
			gotSignature = signature
			return &dto.WebhookAck{Received: true, Result: "processed"}, nil
		},
	}
	h := NewWebhookHandler(mockService)
	router := setupWebhookRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/payments/mock/webhook", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", "t=123,v1=abc")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if gotSignature != "t=123,v1=abc" {
		t.Errorf("expected signature forwarded, got %q", gotSignature)
	}
}
