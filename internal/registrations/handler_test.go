package registrations

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ce-seminars/backend/internal/middleware"
	"github.com/ce-seminars/backend/internal/models"
)

func signupRouter(svc *Service, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextUserRole, models.RoleRegistrant)
		c.Next()
	})
	r.POST("/seminars/:id/signup", NewHandler(svc, nil, nil).Signup)
	return r
}

func TestSignupHandlerStatus(t *testing.T) {
	cases := []struct {
		name     string
		seminars SeminarLookup
		want     int
	}{
		{"unknown seminar", fakeSeminars{}, http.StatusNotFound},
		{"lookup failure", failingSeminars{err: errors.New("connection reset")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(Deps{Store: newMemStore(), Seminars: tc.seminars}, nil)
			r := signupRouter(svc, uuid.New())

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/seminars/"+uuid.NewString()+"/signup", nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
