package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/internal/registrations"
	"github.com/ce-seminars/backend/internal/sessions"
)

type attendanceKey struct {
	registrationID uuid.UUID
	sessionID      uuid.UUID
}

// memStore mimics the PostgreSQL store: InTx applies changes to a copy and swaps it in on success.
type memStore struct {
	mu         sync.Mutex
	regs       map[uuid.UUID]models.Registration
	attendance map[attendanceKey]models.Attendance
	ledger     []models.CreditEntry

	// hideAttendance makes HasAttendance report false, simulating a concurrent insert
	// that the pre-check could not see.
	hideAttendance bool
	awardErr       error
}

func newMemStore() *memStore {
	return &memStore{
		regs:       map[uuid.UUID]models.Registration{},
		attendance: map[attendanceKey]models.Attendance{},
	}
}

type memState struct {
	regs       map[uuid.UUID]models.Registration
	attendance map[attendanceKey]models.Attendance
	ledger     []models.CreditEntry
}

func (m *memStore) snapshot() *memState {
	s := &memState{
		regs:       make(map[uuid.UUID]models.Registration, len(m.regs)),
		attendance: make(map[attendanceKey]models.Attendance, len(m.attendance)),
		ledger:     append([]models.CreditEntry(nil), m.ledger...),
	}
	for k, v := range m.regs {
		s.regs[k] = v
	}
	for k, v := range m.attendance {
		s.attendance[k] = v
	}
	return s
}

func (m *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.snapshot()
	if err := fn(&memTx{state: work, awardErr: m.awardErr}); err != nil {
		return err
	}
	m.regs, m.attendance, m.ledger = work.regs, work.attendance, work.ledger
	return nil
}

func (m *memStore) HasAttendance(_ context.Context, registrationID, sessionID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hideAttendance {
		return false, nil
	}
	_, ok := m.attendance[attendanceKey{registrationID, sessionID}]
	return ok, nil
}

func (m *memStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.AttendeeRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AttendeeRow
	for k, a := range m.attendance {
		if k.sessionID == sessionID {
			out = append(out, models.AttendeeRow{AttendanceID: a.ID, RegistrationID: a.RegistrationID, Method: a.Method})
		}
	}
	return out, nil
}

func (m *memStore) ListByRegistration(_ context.Context, registrationID uuid.UUID) ([]models.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Attendance
	for k, a := range m.attendance {
		if k.registrationID == registrationID {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetByID serves as the RegistrationReader.
func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return nil, registrations.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) put(reg models.Registration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[reg.ID] = reg
}

func (m *memStore) reg(id uuid.UUID) models.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[id]
}

func (m *memStore) creditTotal(userID, seminarID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, e := range m.ledger {
		if e.UserID == userID && e.EventID == seminarID {
			total += e.Credits
		}
	}
	return total
}

func (m *memStore) counts() (attendance, ledger int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attendance), len(m.ledger)
}

type memTx struct {
	state    *memState
	awardErr error
}

func (t *memTx) LockRegistration(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	r, ok := t.state.regs[id]
	if !ok {
		return nil, registrations.ErrNotFound
	}
	return &r, nil
}

func (t *memTx) InsertAttendance(_ context.Context, a *models.Attendance) (bool, error) {
	k := attendanceKey{a.RegistrationID, a.SessionID}
	if _, ok := t.state.attendance[k]; ok {
		return false, nil
	}
	a.ID = uuid.New()
	a.CheckedInAt = time.Now()
	t.state.attendance[k] = *a
	return true, nil
}

func (t *memTx) UpdateSessionCounts(_ context.Context, reg *models.Registration) error {
	reg.CompleteSession()
	t.state.regs[reg.ID] = *reg
	return nil
}

func (t *memTx) IncrementScanCount(_ context.Context, reg *models.Registration) error {
	stored := t.state.regs[reg.ID]
	if stored.QRScanCount >= models.MaxQRScans {
		return registrations.ErrScanCapReached
	}
	stored.QRScanCount++
	reg.QRScanCount = stored.QRScanCount
	t.state.regs[reg.ID] = stored
	return nil
}

func (t *memTx) UseMakeup(_ context.Context, reg *models.Registration) error {
	stored := t.state.regs[reg.ID]
	stored.MakeupUsed = true
	reg.MakeupUsed = true
	t.state.regs[reg.ID] = stored
	return nil
}

func (t *memTx) AwardCredits(_ context.Context, e *models.CreditEntry) (bool, error) {
	if t.awardErr != nil {
		return false, t.awardErr
	}
	if e.IdempotencyKey != nil {
		for _, x := range t.state.ledger {
			if x.IdempotencyKey != nil && *x.IdempotencyKey == *e.IdempotencyKey {
				return false, nil
			}
		}
	}
	e.ID = uuid.New()
	t.state.ledger = append(t.state.ledger, *e)
	return true, nil
}

type fakeSessions map[uuid.UUID]*models.Session

func (f fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s, ok := f[id]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	return s, nil
}

type recordingListener struct {
	results []*Result
}

func (l *recordingListener) CheckedIn(_ context.Context, r *Result) {
	l.results = append(l.results, r)
}

var errBoom = errors.New("boom")
