package orders

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec-test"

type stubProcessor struct {
	got *Order
	res *Result
	err error
}

func (s *stubProcessor) Process(_ context.Context, o *Order) (*Result, error) {
	s.got = o
	return s.res, s.err
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func serve(h *WebhookHandler, body []byte, sig string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/orders/completed", h.OrderCompleted)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders/completed", bytes.NewReader(body))
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":1}`)
	assert.True(t, VerifySignature([]byte(testSecret), body, sign(body)))
	assert.False(t, VerifySignature([]byte(testSecret), []byte(`{"id":2}`), sign(body)))
	assert.False(t, VerifySignature([]byte(testSecret), body, "not base64!"))
	assert.False(t, VerifySignature(nil, body, sign(body)))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	p := &stubProcessor{}
	body := []byte(`{"id":1,"status":"completed"}`)

	w := serve(NewWebhookHandler(p, testSecret, nil), body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(NewWebhookHandler(p, testSecret, nil), body, sign([]byte("other")))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, p.got)
}

func TestWebhookProcessesSignedOrder(t *testing.T) {
	p := &stubProcessor{res: &Result{OrderID: "1", Outcome: OutcomeProcessed}}
	body := []byte(`{"id":1,"status":"completed","billing":{"email":"a@b.test"},"line_items":[{"product_id":501}]}`)

	w := serve(NewWebhookHandler(p, testSecret, nil), body, sign(body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"processed"`)
	if assert.NotNil(t, p.got) {
		assert.Equal(t, int64(501), p.got.LineItems[0].ProductID)
	}
}

func TestWebhookMapsErrors(t *testing.T) {
	body := []byte(`{"id":1,"status":"completed"}`)

	w := serve(NewWebhookHandler(&stubProcessor{err: ErrInvalidOrder}, testSecret, nil), body, sign(body))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(NewWebhookHandler(&stubProcessor{err: assert.AnError}, testSecret, nil), body, sign(body))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	bad := []byte(`{"id":`)
	w = serve(NewWebhookHandler(&stubProcessor{}, testSecret, nil), bad, sign(bad))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
