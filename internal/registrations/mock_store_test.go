package registrations

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/internal/seminars"
)

type memStore struct {
	mu   sync.Mutex
	regs map[uuid.UUID]*models.Registration
}

func newMemStore() *memStore {
	return &memStore{regs: map[uuid.UUID]*models.Registration{}}
}

func (m *memStore) Create(_ context.Context, reg *models.Registration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regs {
		if r.UserID == reg.UserID && r.SeminarID == reg.SeminarID {
			*reg = *r
			return false, nil
		}
	}
	reg.ID = uuid.New()
	reg.RegisteredAt = time.Now()
	reg.SessionsRemaining = models.SessionsPerSeminar
	reg.Status = models.RegistrationActive
	cp := *reg
	m.regs[reg.ID] = &cp
	return true, nil
}

func (m *memStore) SetQRImage(_ context.Context, id uuid.UUID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[id].QRImagePath = path
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) GetByUserAndSeminar(_ context.Context, userID, seminarID uuid.UUID) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regs {
		if r.UserID == userID && r.SeminarID == seminarID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ListBySeminar(_ context.Context, seminarID uuid.UUID) ([]models.RegistrationWithUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RegistrationWithUser
	for _, r := range m.regs {
		if r.SeminarID == seminarID {
			out = append(out, models.RegistrationWithUser{Registration: *r})
		}
	}
	return out, nil
}

func (m *memStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Registration
	for _, r := range m.regs {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) CountActive(_ context.Context, seminarID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.regs {
		if r.SeminarID == seminarID && r.Status == models.RegistrationActive {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Cancel(_ context.Context, reg *models.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[reg.ID]
	if !ok || r.Status != models.RegistrationActive {
		return models.ErrInvalidTransition
	}
	r.Status = models.RegistrationCancelled
	r.Notes = reg.Notes
	return nil
}

type fakeSeminars map[uuid.UUID]*models.Seminar

func (f fakeSeminars) GetByID(_ context.Context, id uuid.UUID) (*models.Seminar, error) {
	s, ok := f[id]
	if !ok {
		return nil, seminars.ErrNotFound
	}
	return s, nil
}

type failingSeminars struct{ err error }

func (f failingSeminars) GetByID(context.Context, uuid.UUID) (*models.Seminar, error) {
	return nil, f.err
}

type fakeSessions struct{ next *models.Session }

func (f fakeSessions) NextUpcoming(context.Context, uuid.UUID, time.Time) (*models.Session, error) {
	if f.next == nil {
		return nil, errors.New("no upcoming session")
	}
	return f.next, nil
}

type fakeUsers map[uuid.UUID]*models.User

func (f fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

type fakeQR struct {
	err      error
	contents []string
}

func (f *fakeQR) Generate(_ context.Context, seminarID, registrationID uuid.UUID, content string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.contents = append(f.contents, content)
	return "/qr/" + seminarID.String() + "/" + registrationID.String() + ".png", nil
}

type fakeWaitlist struct{ entries []*models.WaitlistEntry }

func (f *fakeWaitlist) Join(_ context.Context, e *models.WaitlistEntry) error {
	e.ID = uuid.New()
	e.Position = len(f.entries) + 1
	e.Status = models.WaitlistWaiting
	f.entries = append(f.entries, e)
	return nil
}

type fakePromoter struct {
	calls []uuid.UUID
	err   error
}

func (f *fakePromoter) NotifyNext(_ context.Context, seminarID uuid.UUID, slots int) (int, error) {
	f.calls = append(f.calls, seminarID)
	return slots, f.err
}

type recordingListener struct {
	created, cancelled []uuid.UUID
}

func (l *recordingListener) RegistrationCreated(_ context.Context, reg *models.Registration) {
	l.created = append(l.created, reg.ID)
}

func (l *recordingListener) RegistrationCancelled(_ context.Context, reg *models.Registration) {
	l.cancelled = append(l.cancelled, reg.ID)
}
