// Package attendance records seminar check-ins: it validates credentials, enforces the per-registration
// guard chain and, in one transaction, writes the attendance row, session counters and CE credits.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/credential"
	"github.com/ce-seminars/backend/internal/metrics"
	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/internal/registrations"
	"github.com/ce-seminars/backend/internal/sessions"
)

// Tx is the unit of work a check-in runs in. LockRegistration must hold the row until commit.
type Tx interface {
	LockRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	InsertAttendance(ctx context.Context, a *models.Attendance) (inserted bool, err error)
	UpdateSessionCounts(ctx context.Context, reg *models.Registration) error
	IncrementScanCount(ctx context.Context, reg *models.Registration) error
	UseMakeup(ctx context.Context, reg *models.Registration) error
	AwardCredits(ctx context.Context, e *models.CreditEntry) (inserted bool, err error)
}

// Store persists attendance. InTx commits when fn returns nil and rolls back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	HasAttendance(ctx context.Context, registrationID, sessionID uuid.UUID) (bool, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.AttendeeRow, error)
	ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]models.Attendance, error)
}

// RegistrationReader resolves registrations outside the transaction.
type RegistrationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
}

// SessionReader resolves sessions.
type SessionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// Listener is told about every committed check-in.
type Listener interface {
	CheckedIn(ctx context.Context, r *Result)
}

// Result describes a committed check-in.
type Result struct {
	AttendanceID      uuid.UUID                 `json:"attendance_id"`
	RegistrationID    uuid.UUID                 `json:"registration_id"`
	UserID            uuid.UUID                 `json:"user_id"`
	SeminarID         uuid.UUID                 `json:"seminar_id"`
	SessionID         uuid.UUID                 `json:"session_id"`
	SessionNumber     int                       `json:"session_number"`
	Method            models.CheckInMethod      `json:"method"`
	SessionsCompleted int                       `json:"sessions_completed"`
	SessionsRemaining int                       `json:"sessions_remaining"`
	Status            models.RegistrationStatus `json:"status"`
	QRScanCount       int                       `json:"qr_scan_count"`
	IsMakeup          bool                      `json:"is_makeup"`
	MakeupUsed        bool                      `json:"makeup_used"`
	SeriesCompleted   bool                      `json:"series_completed"`
	CreditsAwarded    int                       `json:"credits_awarded"`
	CheckedInAt       time.Time                 `json:"checked_in_at"`
}

// Service is the check-in state machine.
type Service struct {
	signer        *credential.Signer
	registrations RegistrationReader
	sessions      SessionReader
	store         Store
	listeners     []Listener
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewService creates the attendance service. m may be nil.
func NewService(signer *credential.Signer, regs RegistrationReader, sess SessionReader, store Store, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{signer: signer, registrations: regs, sessions: sess, store: store, metrics: m, logger: logger}
}

// AddListener registers l for committed check-ins.
func (s *Service) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

type recordInput struct {
	registrationID uuid.UUID
	session        *models.Session
	method         models.CheckInMethod
	isMakeup       bool
	checkedInBy    *uuid.UUID
}

func (in recordInput) automatic() bool { return in.method == models.CheckInQR }

// CheckIn performs an automatic check-in from scanned QR content.
func (s *Service) CheckIn(ctx context.Context, rawCredential string, sessionID uuid.UUID) (*Result, error) {
	res, err := s.checkIn(ctx, rawCredential, sessionID)
	s.observe(models.CheckInQR, res, err)
	return res, err
}

func (s *Service) checkIn(ctx context.Context, rawCredential string, sessionID uuid.UUID) (*Result, error) {
	p, err := s.signer.Decode(rawCredential)
	if err != nil {
		return nil, wrap(ErrInvalidCredential, err)
	}
	if err := s.signer.Verify(p); err != nil {
		return nil, wrap(ErrInvalidCredential, err)
	}
	reg, err := s.loadRegistration(ctx, p.RegistrationID)
	if err != nil {
		return nil, err
	}
	if reg.UserID != p.UserID || reg.SeminarID != p.SeminarID || !credential.TokenMatches(p.Token, reg.QRToken) {
		return nil, ErrInvalidCredential
	}
	if err := checkEligible(reg); err != nil {
		return nil, err
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkSession(reg, session); err != nil {
		return nil, err
	}
	if err := s.checkNotAttended(ctx, reg.ID, session.ID); err != nil {
		return nil, err
	}
	makeup := isMakeupSession(reg, session)
	if makeup && reg.MakeupUsed {
		return nil, ErrMakeupExhausted
	}
	return s.record(ctx, recordInput{
		registrationID: reg.ID,
		session:        session,
		method:         models.CheckInQR,
		isMakeup:       makeup,
	})
}

// ManualCheckIn records attendance on an administrator's authority. The credential, status,
// remaining-session and scan-cap guards are skipped; the session, duplicate and makeup guards apply.
func (s *Service) ManualCheckIn(ctx context.Context, registrationID, sessionID uuid.UUID, isMakeup bool, adminID uuid.UUID) (*Result, error) {
	res, err := s.manualCheckIn(ctx, registrationID, sessionID, isMakeup, adminID)
	s.observe(models.CheckInManual, res, err)
	return res, err
}

func (s *Service) manualCheckIn(ctx context.Context, registrationID, sessionID uuid.UUID, isMakeup bool, adminID uuid.UUID) (*Result, error) {
	reg, err := s.loadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkSession(reg, session); err != nil {
		return nil, err
	}
	if err := s.checkNotAttended(ctx, reg.ID, session.ID); err != nil {
		return nil, err
	}
	if isMakeup && reg.MakeupUsed {
		return nil, ErrMakeupExhausted
	}
	admin := adminID
	return s.record(ctx, recordInput{
		registrationID: reg.ID,
		session:        session,
		method:         models.CheckInManual,
		isMakeup:       isMakeup,
		checkedInBy:    &admin,
	})
}

// record re-evaluates the guards under the registration lock and applies every side effect atomically.
func (s *Service) record(ctx context.Context, in recordInput) (*Result, error) {
	var res *Result
	err := s.store.InTx(ctx, func(tx Tx) error {
		reg, err := tx.LockRegistration(ctx, in.registrationID)
		if err != nil {
			if errors.Is(err, registrations.ErrNotFound) {
				return ErrNotFound
			}
			return wrap(ErrPersistence, err)
		}
		if in.automatic() {
			if err := checkEligible(reg); err != nil {
				return err
			}
		}
		if in.isMakeup && reg.MakeupUsed {
			return ErrMakeupExhausted
		}

		a := &models.Attendance{
			RegistrationID: reg.ID,
			SessionID:      in.session.ID,
			IsMakeup:       in.isMakeup,
			CheckedInBy:    in.checkedInBy,
			Method:         in.method,
			CreditsAwarded: models.CreditsPerSession,
		}
		inserted, err := tx.InsertAttendance(ctx, a)
		if err != nil {
			return wrap(ErrPersistence, err)
		}
		if !inserted {
			return ErrDuplicateCheckIn
		}
		before := reg.Status
		if err := tx.UpdateSessionCounts(ctx, reg); err != nil {
			return wrap(ErrPersistence, err)
		}
		if in.automatic() {
			if err := tx.IncrementScanCount(ctx, reg); err != nil {
				if errors.Is(err, registrations.ErrScanCapReached) {
					return ErrScanCapReached
				}
				return wrap(ErrPersistence, err)
			}
		}
		if in.isMakeup {
			if err := tx.UseMakeup(ctx, reg); err != nil {
				return wrap(ErrPersistence, err)
			}
		}

		key := a.ID.String()
		entry := &models.CreditEntry{
			UserID:          reg.UserID,
			EventID:         reg.SeminarID,
			Credits:         models.CreditsPerSession,
			Source:          models.CreditSourceSeminar,
			TransactionType: models.TransactionEarned,
			Note:            fmt.Sprintf("Session %d attendance", in.session.SessionNumber),
			IdempotencyKey:  &key,
		}
		awarded, err := tx.AwardCredits(ctx, entry)
		if err != nil {
			return wrap(ErrPersistence, err)
		}

		res = &Result{
			AttendanceID:      a.ID,
			RegistrationID:    reg.ID,
			UserID:            reg.UserID,
			SeminarID:         reg.SeminarID,
			SessionID:         in.session.ID,
			SessionNumber:     in.session.SessionNumber,
			Method:            in.method,
			SessionsCompleted: reg.SessionsCompleted,
			SessionsRemaining: reg.SessionsRemaining,
			Status:            reg.Status,
			QRScanCount:       reg.QRScanCount,
			IsMakeup:          in.isMakeup,
			MakeupUsed:        reg.MakeupUsed,
			SeriesCompleted:   before == models.RegistrationActive && reg.Status == models.RegistrationCompleted,
			CheckedInAt:       a.CheckedInAt,
		}
		if awarded {
			res.CreditsAwarded = entry.Credits
		}
		return nil
	})
	if err != nil {
		var ce *Error
		if !errors.As(err, &ce) {
			err = wrap(ErrPersistence, err)
		}
		return nil, err
	}

	s.logger.Info("attendance recorded",
		zap.String("registration_id", res.RegistrationID.String()),
		zap.String("session_id", res.SessionID.String()),
		zap.String("method", string(res.Method)),
		zap.Int("sessions_completed", res.SessionsCompleted),
		zap.String("status", string(res.Status)))
	for _, l := range s.listeners {
		l.CheckedIn(ctx, res)
	}
	return res, nil
}

func (s *Service) loadRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := s.registrations.GetByID(ctx, id)
	if errors.Is(err, registrations.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	return reg, nil
}

func (s *Service) loadSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if errors.Is(err, sessions.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	return session, nil
}

func (s *Service) checkNotAttended(ctx context.Context, registrationID, sessionID uuid.UUID) error {
	seen, err := s.store.HasAttendance(ctx, registrationID, sessionID)
	if err != nil {
		return wrap(ErrPersistence, err)
	}
	if seen {
		return ErrDuplicateCheckIn
	}
	return nil
}

func (s *Service) observe(method models.CheckInMethod, res *Result, err error) {
	if err != nil {
		code := codeOf(err)
		s.metrics.CheckIn(string(method), string(code))
		if code == CodePersistence {
			s.logger.Error("check-in failed", zap.String("method", string(method)), zap.Error(err))
		} else {
			s.logger.Debug("check-in refused", zap.String("method", string(method)), zap.String("code", string(code)))
		}
		return
	}
	s.metrics.CheckIn(string(method), "ok")
	s.metrics.CreditsAwarded(res.CreditsAwarded)
}

// ListBySession returns the attendee sheet for a session.
func (s *Service) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.AttendeeRow, error) {
	return s.store.ListBySession(ctx, sessionID)
}

// ListByRegistration returns every session a registration attended.
func (s *Service) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]models.Attendance, error) {
	return s.store.ListByRegistration(ctx, registrationID)
}
