package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ce-seminars/backend/internal/credential"
	"github.com/ce-seminars/backend/internal/metrics"
	"github.com/ce-seminars/backend/internal/models"
)

const testSecret = "desk-secret"

type harness struct {
	svc       *Service
	store     *memStore
	sessions  fakeSessions
	signer    *credential.Signer
	listener  *recordingListener
	seminarID uuid.UUID
	order     []uuid.UUID // session ids by session number - 1
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     newMemStore(),
		sessions:  fakeSessions{},
		signer:    credential.NewSigner(testSecret),
		listener:  &recordingListener{},
		seminarID: uuid.New(),
	}
	start := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 12; i++ {
		s := &models.Session{ID: uuid.New(), SeminarID: h.seminarID, SessionNumber: i, SessionDate: start.AddDate(0, i-1, 0)}
		h.sessions[s.ID] = s
		h.order = append(h.order, s.ID)
	}
	h.svc = NewService(h.signer, h.store, h.sessions, h.store, metrics.New(prometheus.NewRegistry()), nil)
	h.svc.AddListener(h.listener)
	return h
}

func (h *harness) newRegistration(mutate func(*models.Registration)) models.Registration {
	reg := models.Registration{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		SeminarID:         h.seminarID,
		SessionsRemaining: models.SessionsPerSeminar,
		Status:            models.RegistrationActive,
		QRToken:           "tok-" + uuid.NewString(),
	}
	if mutate != nil {
		mutate(&reg)
	}
	h.store.put(reg)
	return reg
}

func (h *harness) credentialFor(t *testing.T, reg models.Registration) string {
	t.Helper()
	raw, err := h.signer.Encode(h.signer.Issue(reg.ID, reg.UserID, reg.SeminarID, reg.QRToken))
	require.NoError(t, err)
	return raw
}

func (h *harness) session(n int) uuid.UUID { return h.order[n-1] }

func TestCheckInRecordsAttendanceCountersAndCredits(t *testing.T) {
	h := newHarness(t)
	reg := h.newRegistration(nil)

	res, err := h.svc.CheckIn(context.Background(), h.credentialFor(t, reg), h.session(1))
	require.NoError(t, err)

	assert.Equal(t, 1, res.SessionsCompleted)
	assert.Equal(t, 9, res.SessionsRemaining)
	assert.Equal(t, models.RegistrationActive, res.Status)
	assert.Equal(t, 1, res.QRScanCount)
	assert.False(t, res.IsMakeup)
	assert.Equal(t, 2, res.CreditsAwarded)
	assert.Equal(t, models.CheckInQR, res.Method)

	stored := h.store.reg(reg.ID)
	assert.Equal(t, 1, stored.SessionsCompleted)
	assert.Equal(t, 9, stored.SessionsRemaining)
	assert.Equal(t, 1, stored.QRScanCount)
	assert.Equal(t, 2, h.store.creditTotal(reg.UserID, h.seminarID))

	require.Len(t, h.store.ledger, 1)
	entry := h.store.ledger[0]
	require.NotNil(t, entry.IdempotencyKey)
	assert.Equal(t, res.AttendanceID.String(), *entry.IdempotencyKey)
	assert.Equal(t, models.CreditSourceSeminar, entry.Source)
	assert.Equal(t, models.TransactionEarned, entry.TransactionType)

	att := h.store.attendance[attendanceKey{reg.ID, h.session(1)}]
	assert.Nil(t, att.CheckedInBy)
	assert.Equal(t, 2, att.CreditsAwarded)
	require.Len(t, h.listener.results, 1)
}

func TestCountersStayConsistentThroughFullSeries(t *testing.T) {
	h := newHarness(t)
	reg := h.newRegistration(nil)
	raw := h.credentialFor(t, reg)
	ctx := context.Background()

	for n := 1; n <= models.SessionsPerSeminar; n++ {
		res, err := h.svc.CheckIn(ctx, raw, h.session(n))
		require.NoError(t, err, "session %d", n)
		assert.Equal(t, models.SessionsPerSeminar, res.SessionsCompleted+res.SessionsRemaining)
		assert.Equal(t, res.SessionsRemaining == 0, res.Status == models.RegistrationCompleted)
		assert.Equal(t, n, res.QRScanCount)
	}

	stored := h.store.reg(reg.ID)
	assert.Equal(t, models.RegistrationCompleted, stored.Status)
	assert.Equal(t, 10, stored.QRScanCount)
	assert.Equal(t, 20, h.store.creditTotal(reg.UserID, h.seminarID))

	_, err := h.svc.CheckIn(ctx, raw, h.session(11))
	assert.ErrorIs(t, err, ErrInactiveRegistration)
	assert.Equal(t, 20, h.store.creditTotal(reg.UserID, h.seminarID))
}

func TestNinthToTenthSessionCompletesRegistration(t *testing.T) {
	h := newHarness(t)
	reg := h.newRegistration(func(r *models.Registration) {
		r.SessionsCompleted = 9
		r.SessionsRemaining = 1
		r.QRScanCount = 9
	})

	res, err := h.svc.CheckIn(context.Background(), h.credentialFor(t, reg), h.session(10))
	require.NoError(t, err)
	assert.Equal(t, 10, res.SessionsCompleted)
	assert.Equal(t, 0, res.SessionsRemaining)
	assert.Equal(t, models.RegistrationCompleted, res.Status)
	assert.Equal(t, 10, res.QRScanCount)
	assert.True(t, res.SeriesCompleted)
}

func TestDuplicateCheckInAwardsCreditsOnce(t *testing.T) {
	h := newHarness(t)
	reg := h.newRegistration(nil)
	raw := h.credentialFor(t, reg)
	ctx := context.Background()

	_, err := h.svc.CheckIn(ctx, raw, h.session(1))
	require.NoError(t, err)
	_, err = h.svc.CheckIn(ctx, raw, h.session(1))
	assert.ErrorIs(t, err, ErrDuplicateCheckIn)

	assert.Equal(t, 2, h.store.creditTotal(reg.UserID, h.seminarID))
	stored := h.store.reg(reg.ID)
	assert.Equal(t, 1, stored.SessionsCompleted)
	assert.Equal(t, 1, stored.QRScanCount)
}

func TestConcurrentDuplicateCaughtByConflictingInsert(t *testing.T) {
	h := newHarness(t)
	reg := h.newRegistration(nil)
	raw := h.credentialFor(t, reg)
	ctx := context.Background()

	_, err := h.svc.CheckIn(ctx, raw, h.session(1))
	require.NoError(t, err)

	h.store.hideAttendance = true
	_, err = h.svc.CheckIn(ctx, raw, h.session(1))
	assert.ErrorIs(t, err, ErrDuplicateCheckIn)

	attendance, ledger := h.store.counts()
	assert.Equal(t, 1, attendance)
	assert.Equal(t, 1, ledger)
	assert.Equal(t, 1, h.store.reg(reg.ID).SessionsCompleted)
}

func TestTamperedCredentialWritesNothing(t *testing.T) {
	h := newHarness(t)
	reg := h.newRegistration(nil)
	p := h.signer.Issue(reg.ID, reg.UserID, reg.SeminarID, reg.QRToken)
	p.UserID = uuid.New()
	raw, err := h.signer.Encode(p)
	require.NoError(t, err)

	_, err = h.svc.CheckIn(context.Background(), raw, h.session(1))
	assert.ErrorIs(t, err, ErrInvalidCredential)

	attendance, ledger := h.store.counts()
	assert.Zero(t, attendance)
	assert.Zero(t, ledger)
	assert.Equal(t, reg, h.store.reg(reg.ID))
	assert.Empty(t, h.listener.results)
}

func TestCredentialRejections(t *testing.T) {
	h := newHarness(t)
	reg := h.newRegistration(nil)
	ctx := context.Background()

	t.Run("garbage", func(t *testing.T) {
		_, err := h.svc.CheckIn(ctx, "not-json", h.session(1))
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})
	t.Run("other secret", func(t *testing.T) {
		other := credential.NewSigner("another-secret")
		raw, err := other.Encode(other.Issue(reg.ID, reg.UserID, reg.SeminarID, reg.QRToken))
		require.NoError(t, err)
		_, err = h.svc.CheckIn(ctx, raw, h.session(1))
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})
	t.Run("stale token", func(t *testing.T) {
		raw, err := h.signer.Encode(h.signer.Issue(reg.ID, reg.UserID, reg.SeminarID, "old-token"))
		require.NoError(t, err)
		_, err = h.svc.CheckIn(ctx, raw, h.session(1))
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})
	t.Run("unknown registration", func(t *testing.T) {
		raw, err := h.signer.Encode(h.signer.Issue(uuid.New(), reg.UserID, reg.SeminarID, reg.QRToken))
		require.NoError(t, err)
		_, err = h.svc.CheckIn(ctx, raw, h.session(1))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	attendance, _ := h.store.counts()
	assert.Zero(t, attendance)
}

func TestGuardChain(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.Registration)
		session func(h *harness) uuid.UUID
		want    *Error
	}{
		{
			name:   "cancelled",
			mutate: func(r *models.Registration) { r.Status = models.RegistrationCancelled },
			want:   ErrInactiveRegistration,
		},
		{
			name: "completed",
			mutate: func(r *models.Registration) {
				r.Status = models.RegistrationCompleted
				r.SessionsCompleted, r.SessionsRemaining = 10, 0
			},
			want: ErrInactiveRegistration,
		},
		{
			name:   "no sessions remaining",
			mutate: func(r *models.Registration) { r.SessionsCompleted, r.SessionsRemaining = 10, 0 },
			want:   ErrSessionsExhausted,
		},
		{
			name: "scan cap",
			mutate: func(r *models.Registration) {
				r.SessionsCompleted, r.SessionsRemaining = 5, 5
				r.QRScanCount = models.MaxQRScans
			},
			want: ErrScanCapReached,
		},
		{
			name:    "unknown session",
			session: func(*harness) uuid.UUID { return uuid.New() },
			want:    ErrSessionNotFound,
		},
		{
			name: "session of another seminar",
			session: func(h *harness) uuid.UUID {
				s := &models.Session{ID: uuid.New(), SeminarID: uuid.New(), SessionNumber: 1}
				h.sessions[s.ID] = s
				return s.ID
			},
			want: ErrSeminarMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			reg := h.newRegistration(tt.mutate)
			sessionID := h.session(1)
			if tt.session != nil {
				sessionID = tt.session(h)
			}

			_, err := h.svc.CheckIn(context.Background(), h.credentialFor(t, reg), sessionID)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			attendance, ledger := h.store.counts()
			assert.Zero(t, attendance)
			assert.Zero(t, ledger)
			assert.Equal(t, reg, h.store.reg(reg.ID))
		})
	}
}

func TestManualCheckInBypassesRegistrationGuards(t *testing.T) {
	h := newHarness(t)
	reg := h.newRegistration(func(r *models.Registration) {
		r.Status = models.RegistrationCancelled
		r.QRScanCount = models.MaxQRScans
		r.SessionsCompleted, r.SessionsRemaining = 4, 6
	})
	admin := uuid.New()

	res, err := h.svc.ManualCheckIn(context.Background(), reg.ID, h.session(5), false, admin)
	require.NoError(t, err)
	assert.Equal(t, models.CheckInManual, res.Method)
	assert.Equal(t, 5, res.SessionsCompleted)
	assert.Equal(t, models.RegistrationCancelled, res.Status)
	assert.Equal(t, models.MaxQRScans, res.QRScanCount)
	assert.Equal(t, 2, h.store.creditTotal(reg.UserID, h.seminarID))

	att := h.store.attendance[attendanceKey{reg.ID, h.session(5)}]
	require.NotNil(t, att.CheckedInBy)
	assert.Equal(t, admin, *att.CheckedInBy)
}

func TestManualCheckInDoesNotCountScans(t *testing.T) {
	h := newHarness(t)
	reg := h.newRegistration(nil)

	res, err := h.svc.ManualCheckIn(context.Background(), reg.ID, h.session(1), false, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, res.QRScanCount)
	assert.Equal(t, 1, res.SessionsCompleted)
}

func TestManualCheckInSaturatesCountersOnExhaustedRegistration(t *testing.T) {
	h := newHarness(t)
	reg := h.newRegistration(func(r *models.Registration) {
		r.Status = models.RegistrationCompleted
		r.SessionsCompleted, r.SessionsRemaining = 10, 0
	})

	res, err := h.svc.ManualCheckIn(context.Background(), reg.ID, h.session(11), false, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 10, res.SessionsCompleted)
	assert.Equal(t, 0, res.SessionsRemaining)
	assert.Equal(t, models.RegistrationCompleted, res.Status)
	assert.False(t, res.SeriesCompleted)
}

func TestManualMakeupOnlyOnce(t *testing.T) {
	h := newHarness(t)
	reg := h.newRegistration(nil)
	ctx := context.Background()

	res, err := h.svc.ManualCheckIn(ctx, reg.ID, h.session(1), true, uuid.New())
	require.NoError(t, err)
	assert.True(t, res.IsMakeup)
	assert.True(t, res.MakeupUsed)
	assert.True(t, h.store.reg(reg.ID).MakeupUsed)

	_, err = h.svc.ManualCheckIn(ctx, reg.ID, h.session(2), true, uuid.New())
	assert.ErrorIs(t, err, ErrMakeupExhausted)

	res, err = h.svc.ManualCheckIn(ctx, reg.ID, h.session(2), false, uuid.New())
	require.NoError(t, err)
	assert.False(t, res.IsMakeup)
	assert.True(t, h.store.reg(reg.ID).MakeupUsed)
}

func TestManualCheckInKeepsSessionAndDuplicateGuards(t *testing.T) {
	h := newHarness(t)
	reg := h.newRegistration(nil)
	ctx := context.Background()

	_, err := h.svc.ManualCheckIn(ctx, uuid.New(), h.session(1), false, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.svc.ManualCheckIn(ctx, reg.ID, uuid.New(), false, uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = h.svc.CheckIn(ctx, h.credentialFor(t, reg), h.session(1))
	require.NoError(t, err)
	_, err = h.svc.ManualCheckIn(ctx, reg.ID, h.session(1), false, uuid.New())
	assert.ErrorIs(t, err, ErrDuplicateCheckIn)
}

func TestFailedLedgerWriteRollsBackCheckIn(t *testing.T) {
	h := newHarness(t)
	reg := h.newRegistration(nil)
	h.store.awardErr = errBoom

	_, err := h.svc.CheckIn(context.Background(), h.credentialFor(t, reg), h.session(1))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, errBoom)

	attendance, ledger := h.store.counts()
	assert.Zero(t, attendance)
	assert.Zero(t, ledger)
	assert.Equal(t, reg, h.store.reg(reg.ID))
	assert.Empty(t, h.listener.results)
}

func TestListBySession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.newRegistration(nil)
	b := h.newRegistration(nil)
	_, err := h.svc.CheckIn(ctx, h.credentialFor(t, a), h.session(3))
	require.NoError(t, err)
	_, err = h.svc.ManualCheckIn(ctx, b.ID, h.session(3), false, uuid.New())
	require.NoError(t, err)

	rows, err := h.svc.ListBySession(ctx, h.session(3))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	history, err := h.svc.ListByRegistration(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
