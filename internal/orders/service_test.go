package orders

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/auth"
	"github.com/ce-seminars/backend/internal/metrics"
	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/internal/seminars"
)

type memClaims struct {
	mu       sync.Mutex
	claimed  map[string][]uuid.UUID
	released []string
}

func newMemClaims() *memClaims { return &memClaims{claimed: map[string][]uuid.UUID{}} }

func (m *memClaims) Claim(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claimed[id]; ok {
		return false, nil
	}
	m.claimed[id] = nil
	return true, nil
}

func (m *memClaims) Complete(_ context.Context, id string, regs []uuid.UUID) error {
	m.mu.Lock()
	m.claimed[id] = regs
	m.mu.Unlock()
	return nil
}

func (m *memClaims) Release(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.claimed, id)
	m.released = append(m.released, id)
	m.mu.Unlock()
	return nil
}

type memUsers struct {
	byEmail map[string]*models.User
	created int
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) Create(_ context.Context, email, hash, name string, role models.Role, _ string) (*models.User, error) {
	u := &models.User{ID: uuid.New(), Email: email, Password: hash, FullName: name, Role: role}
	m.byEmail[email] = u
	m.created++
	return u, nil
}

type productSeminars map[int64]*models.Seminar

func (p productSeminars) GetByProductID(_ context.Context, id int64) (*models.Seminar, error) {
	if s, ok := p[id]; ok {
		return s, nil
	}
	return nil, seminars.ErrNotFound
}

type call struct {
	userID, seminarID uuid.UUID
	orderID           string
}

type fakeRegistrar struct {
	calls []call
	err   error
}

func (f *fakeRegistrar) Create(_ context.Context, userID, seminarID uuid.UUID, orderID *string) (*models.Registration, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	f.calls = append(f.calls, call{userID, seminarID, *orderID})
	return &models.Registration{ID: uuid.New(), UserID: userID, SeminarID: seminarID, OrderID: orderID}, true, nil
}

type fixture struct {
	svc       *Service
	claims    *memClaims
	users     *memUsers
	registrar *fakeRegistrar
	seminar   *models.Seminar
}

func newFixture() *fixture {
	sem := &models.Seminar{ID: uuid.New(), Title: "Implant Prosthodontics"}
	f := &fixture{
		claims:    newMemClaims(),
		users:     &memUsers{byEmail: map[string]*models.User{}},
		registrar: &fakeRegistrar{},
		seminar:   sem,
	}
	m := metrics.New(prometheus.NewRegistry())
	f.svc = NewService(f.claims, f.users, productSeminars{501: sem}, f.registrar, m, zap.NewNop())
	return f
}

func completedOrder(id string) *Order {
	return &Order{
		ID:        flexID(id),
		Status:    StatusCompleted,
		Billing:   Billing{Email: "Dr.Lee@Example.com", FirstName: "Ana", LastName: "Lee"},
		LineItems: []LineItem{{ProductID: 501, Quantity: 1}, {ProductID: 999, Quantity: 1}},
	}
}

func TestProcessCreatesAccountAndRegistration(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Process(context.Background(), completedOrder("1001"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeProcessed, res.Outcome)
	require.Len(t, res.RegistrationIDs, 1)
	require.Len(t, f.registrar.calls, 1)
	assert.Equal(t, f.seminar.ID, f.registrar.calls[0].seminarID)
	assert.Equal(t, "1001", f.registrar.calls[0].orderID)

	u := f.users.byEmail["dr.lee@example.com"]
	require.NotNil(t, u)
	assert.Equal(t, "Ana Lee", u.FullName)
	assert.Equal(t, models.RoleRegistrant, u.Role)
	assert.NotEmpty(t, u.Password)
	assert.Equal(t, res.RegistrationIDs, f.claims.claimed["1001"])
}

func TestProcessReusesExistingAccount(t *testing.T) {
	f := newFixture()
	existing := &models.User{ID: uuid.New(), Email: "dr.lee@example.com"}
	f.users.byEmail[existing.Email] = existing

	_, err := f.svc.Process(context.Background(), completedOrder("1002"))
	require.NoError(t, err)
	assert.Zero(t, f.users.created)
	assert.Equal(t, existing.ID, f.registrar.calls[0].userID)
}

func TestProcessOnlyOncePerOrder(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Process(context.Background(), completedOrder("1003"))
	require.NoError(t, err)

	res, err := f.svc.Process(context.Background(), completedOrder("1003"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Len(t, f.registrar.calls, 1)
}

func TestProcessIgnoresIncompleteOrders(t *testing.T) {
	f := newFixture()
	o := completedOrder("1004")
	o.Status = "processing"

	res, err := f.svc.Process(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Empty(t, f.registrar.calls)
	assert.Empty(t, f.claims.claimed)
}

func TestProcessWithoutSeminarProducts(t *testing.T) {
	f := newFixture()
	o := completedOrder("1005")
	o.LineItems = []LineItem{{ProductID: 7}}

	res, err := f.svc.Process(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoSeminar, res.Outcome)
	assert.Zero(t, f.users.created)
}

func TestProcessFailureReleasesClaim(t *testing.T) {
	f := newFixture()
	f.registrar.err = errors.New("db down")

	_, err := f.svc.Process(context.Background(), completedOrder("1006"))
	require.Error(t, err)
	assert.Equal(t, []string{"1006"}, f.claims.released)

	f.registrar.err = nil
	res, err := f.svc.Process(context.Background(), completedOrder("1006"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
}

func TestProcessRejectsInvalidOrder(t *testing.T) {
	f := newFixture()
	o := completedOrder("1007")
	o.Billing.Email = " "
	_, err := f.svc.Process(context.Background(), o)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestOrderIDAcceptsNumberOrString(t *testing.T) {
	var a, b Order
	require.NoError(t, json.Unmarshal([]byte(`{"id":1234,"status":"completed"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"id":"wc-77","status":"completed"}`), &b))
	assert.Equal(t, flexID("1234"), a.ID)
	assert.Equal(t, flexID("wc-77"), b.ID)

	var bad Order
	assert.Error(t, json.Unmarshal([]byte(`{"id":true}`), &bad))
}
