package emaillogs

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ce-seminars/backend/internal/models"
)

type fakeResender struct {
	calls []uuid.UUID
	err   error
}

func (f *fakeResender) ResendConfirmation(_ context.Context, _, registrationID uuid.UUID) error {
	f.calls = append(f.calls, registrationID)
	return f.err
}

type noLogs struct{}

func (noLogs) ListBySeminar(context.Context, uuid.UUID) ([]*models.EmailLog, error) { return nil, nil }

func resend(h *Handler, seminarID uuid.UUID, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/seminars/:id/emails/resend", h.Resend)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/seminars/"+seminarID.String()+"/emails/resend", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestResendQueuesConfirmation(t *testing.T) {
	rs := &fakeResender{}
	regID := uuid.New()

	w := resend(NewHandler(noLogs{}, rs), uuid.New(), `{"registration_id":"`+regID.String()+`"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []uuid.UUID{regID}, rs.calls)
}

func TestResendRejectsMalformedRegistrationID(t *testing.T) {
	rs := &fakeResender{}

	w := resend(NewHandler(noLogs{}, rs), uuid.New(), `{"registration_id":"urn:uuid:nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rs.calls)
}

func TestResendRegistrationFromOtherSeminar(t *testing.T) {
	rs := &fakeResender{err: ErrRegistrationMismatch}

	w := resend(NewHandler(noLogs{}, rs), uuid.New(), `{"registration_id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
