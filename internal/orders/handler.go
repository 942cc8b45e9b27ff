package orders

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/pkg/response"
)

// SignatureHeader carries base64(HMAC-SHA256(secret, body)).
const SignatureHeader = "X-Order-Signature"

const maxBodyBytes = 1 << 20

// Processor is implemented by *Service.
type Processor interface {
	Process(ctx context.Context, o *Order) (*Result, error)
}

// WebhookHandler receives order-completed webhooks.
type WebhookHandler struct {
	svc    Processor
	secret []byte
	logger *zap.Logger
}

// NewWebhookHandler creates a webhook handler. An empty secret rejects every delivery.
func NewWebhookHandler(svc Processor, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{svc: svc, secret: []byte(secret), logger: logger}
}

// VerifySignature reports whether sig is the base64 HMAC-SHA256 of body under secret.
func VerifySignature(secret, body []byte, sig string) bool {
	if len(secret) == 0 || sig == "" {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// OrderCompleted handles POST /webhooks/orders/completed.
func (h *WebhookHandler) OrderCompleted(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	if !VerifySignature(h.secret, body, c.GetHeader(SignatureHeader)) {
		h.logger.Warn("order webhook signature mismatch", zap.String("ip", c.ClientIP()))
		response.Unauthorized(c, "invalid signature")
		return
	}
	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		response.BadRequest(c, "invalid order: "+err.Error())
		return
	}

	res, err := h.svc.Process(c.Request.Context(), &order)
	if errors.Is(err, ErrInvalidOrder) {
		response.BadRequest(c, "order id and billing email required")
		return
	}
	if err != nil {
		h.logger.Error("process order failed", zap.String("order_id", string(order.ID)), zap.Error(err))
		response.Internal(c, "failed to process order")
		return
	}
	response.OK(c, res)
}
