// Package orders turns completed e-commerce orders into seminar registrations.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/auth"
	"github.com/ce-seminars/backend/internal/metrics"
	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/internal/seminars"
	"github.com/ce-seminars/backend/pkg/utils"
)

// StatusCompleted is the only order status that creates registrations.
const StatusCompleted = "completed"

// Outcome reports what happened to a delivered order.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeNoSeminar Outcome = "no_seminar"
	OutcomeFailed    Outcome = "failed"
)

// ErrInvalidOrder is returned for orders missing an id or billing email.
var ErrInvalidOrder = errors.New("invalid order")

// Order is the webhook body. Only the fields used for registration are decoded.
type Order struct {
	ID        flexID     `json:"id"`
	Status    string     `json:"status"`
	Billing   Billing    `json:"billing"`
	LineItems []LineItem `json:"line_items"`
}

// Billing holds the purchaser's contact details.
type Billing struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LineItem is one purchased product.
type LineItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Result is returned to the webhook caller.
type Result struct {
	OrderID         string      `json:"order_id"`
	Outcome         Outcome     `json:"outcome"`
	RegistrationIDs []uuid.UUID `json:"registration_ids,omitempty"`
}

// Claims tracks processed orders; *Repository implements it.
type Claims interface {
	Claim(ctx context.Context, orderID string) (bool, error)
	Complete(ctx context.Context, orderID string, registrationIDs []uuid.UUID) error
	Release(ctx context.Context, orderID string) error
}

// Users finds or creates purchaser accounts.
type Users interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, email, passwordHash, fullName string, role models.Role, licenseNo string) (*models.User, error)
}

// Seminars maps products to seminars.
type Seminars interface {
	GetByProductID(ctx context.Context, productID int64) (*models.Seminar, error)
}

// Registrar creates registrations; *registrations.Service implements it.
type Registrar interface {
	Create(ctx context.Context, userID, seminarID uuid.UUID, orderID *string) (*models.Registration, bool, error)
}

// Service processes order webhooks.
type Service struct {
	claims    Claims
	users     Users
	seminars  Seminars
	registrar Registrar
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewService creates an order service.
func NewService(claims Claims, users Users, sems Seminars, registrar Registrar, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{claims: claims, users: users, seminars: sems, registrar: registrar, metrics: m, logger: logger}
}

// Process registers the purchaser for every seminar in a completed order, at most once per order id.
// A failed order is released so the shop's retry can process it again.
func (s *Service) Process(ctx context.Context, o *Order) (*Result, error) {
	orderID := string(o.ID)
	res := &Result{OrderID: orderID}
	if orderID == "" || strings.TrimSpace(o.Billing.Email) == "" {
		return nil, ErrInvalidOrder
	}
	if o.Status != StatusCompleted {
		res.Outcome = OutcomeIgnored
		s.metrics.OrderProcessed(string(res.Outcome))
		return res, nil
	}

	claimed, err := s.claims.Claim(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("claim order: %w", err)
	}
	if !claimed {
		res.Outcome = OutcomeDuplicate
		s.metrics.OrderProcessed(string(res.Outcome))
		return res, nil
	}

	ids, err := s.register(ctx, o)
	if err != nil {
		if rerr := s.claims.Release(ctx, orderID); rerr != nil {
			s.logger.Error("release order claim failed", zap.String("order_id", orderID), zap.Error(rerr))
		}
		s.metrics.OrderProcessed(string(OutcomeFailed))
		return nil, err
	}
	if err := s.claims.Complete(ctx, orderID, ids); err != nil {
		s.logger.Warn("record order registrations failed", zap.String("order_id", orderID), zap.Error(err))
	}

	res.RegistrationIDs = ids
	res.Outcome = OutcomeProcessed
	if len(ids) == 0 {
		res.Outcome = OutcomeNoSeminar
	}
	s.metrics.OrderProcessed(string(res.Outcome))
	s.logger.Info("order processed", zap.String("order_id", orderID), zap.Int("registrations", len(ids)))
	return res, nil
}

func (s *Service) register(ctx context.Context, o *Order) ([]uuid.UUID, error) {
	orderID := string(o.ID)
	var user *models.User
	var ids []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, item := range o.LineItems {
		sem, err := s.seminars.GetByProductID(ctx, item.ProductID)
		if errors.Is(err, seminars.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup product %d: %w", item.ProductID, err)
		}
		if seen[sem.ID] {
			continue
		}
		seen[sem.ID] = true

		if user == nil {
			if user, err = s.purchaser(ctx, o.Billing); err != nil {
				return nil, err
			}
		}
		reg, _, err := s.registrar.Create(ctx, user.ID, sem.ID, &orderID)
		if err != nil {
			return nil, fmt.Errorf("register for seminar %s: %w", sem.ID, err)
		}
		ids = append(ids, reg.ID)
	}
	return ids, nil
}

// purchaser returns the account for the billing email, creating a registrant account if none exists.
func (s *Service) purchaser(ctx context.Context, b Billing) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(b.Email))
	u, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return nil, fmt.Errorf("lookup purchaser: %w", err)
	}
	pw, err := utils.RandomPassword()
	if err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(pw)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	name := strings.TrimSpace(b.FirstName + " " + b.LastName)
	if name == "" {
		name = email
	}
	u, err = s.users.Create(ctx, email, hash, name, models.RoleRegistrant, "")
	if err != nil {
		return nil, fmt.Errorf("create purchaser: %w", err)
	}
	s.logger.Info("created account for purchaser", zap.String("user_id", u.ID.String()))
	return u, nil
}

// flexID accepts an order id sent either as a JSON number or a string.
type flexID string

func (j *flexID) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*j = ""
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		*j = flexID(unq)
		return nil
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return fmt.Errorf("order id: %w", err)
	}
	*j = flexID(s)
	return nil
}
