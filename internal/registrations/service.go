package registrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/credential"
	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/internal/seminars"
)

// ErrSeminarNotFound is returned when signing up for an unknown seminar.
var ErrSeminarNotFound = errors.New("seminar not found")

// Store is the persistence the service needs; *Repository implements it.
type Store interface {
	Create(ctx context.Context, reg *models.Registration) (bool, error)
	SetQRImage(ctx context.Context, id uuid.UUID, path string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	GetByUserAndSeminar(ctx context.Context, userID, seminarID uuid.UUID) (*models.Registration, error)
	ListBySeminar(ctx context.Context, seminarID uuid.UUID) ([]models.RegistrationWithUser, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error)
	CountActive(ctx context.Context, seminarID uuid.UUID) (int, error)
	Cancel(ctx context.Context, reg *models.Registration) error
}

// SeminarLookup resolves seminars for capacity checks.
type SeminarLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Seminar, error)
}

// SessionLookup finds the session a new registration starts with.
type SessionLookup interface {
	NextUpcoming(ctx context.Context, seminarID uuid.UUID, from time.Time) (*models.Session, error)
}

// UserLookup resolves registrant contact details.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// QRGenerator renders and stores credential images.
type QRGenerator interface {
	Generate(ctx context.Context, seminarID, registrationID uuid.UUID, content string) (string, error)
}

// Waitlist receives signups for full seminars.
type Waitlist interface {
	Join(ctx context.Context, e *models.WaitlistEntry) error
}

// Promoter is signalled when a seat frees up.
type Promoter interface {
	NotifyNext(ctx context.Context, seminarID uuid.UUID, slots int) (int, error)
}

// Listener observes registration lifecycle changes after they are persisted.
type Listener interface {
	RegistrationCreated(ctx context.Context, reg *models.Registration)
	RegistrationCancelled(ctx context.Context, reg *models.Registration)
}

// SignupResult is either a registration or a waitlist entry.
type SignupResult struct {
	Waitlisted   bool                  `json:"waitlisted"`
	Registration *models.Registration  `json:"registration,omitempty"`
	Waitlist     *models.WaitlistEntry `json:"waitlist,omitempty"`
}

// Deps groups the service collaborators.
type Deps struct {
	Store     Store
	Seminars  SeminarLookup
	Sessions  SessionLookup
	Users     UserLookup
	Signer    *credential.Signer
	QR        QRGenerator
	Waitlist  Waitlist
	Promoter  Promoter
	Listeners []Listener
}

// Service implements registration creation, signup and cancellation.
type Service struct {
	Deps
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a registration service.
func NewService(deps Deps, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Deps: deps, now: time.Now, logger: logger}
}

// Create returns the existing registration for (user, seminar) or creates one, issues its QR token
// and renders the credential image. created reports whether a new row was inserted.
func (s *Service) Create(ctx context.Context, userID, seminarID uuid.UUID, orderID *string) (reg *models.Registration, created bool, err error) {
	token, err := credential.NewToken()
	if err != nil {
		return nil, false, err
	}
	reg = &models.Registration{
		UserID:    userID,
		SeminarID: seminarID,
		OrderID:   orderID,
		QRToken:   token,
	}
	if s.Sessions != nil {
		if next, err := s.Sessions.NextUpcoming(ctx, seminarID, s.now()); err == nil {
			d := next.SessionDate
			reg.StartSessionDate = &d
		}
	}
	created, err = s.Store.Create(ctx, reg)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return reg, false, nil
	}
	s.renderQR(ctx, reg)
	s.logger.Info("registration created",
		zap.String("registration_id", reg.ID.String()),
		zap.String("seminar_id", seminarID.String()),
		zap.String("user_id", userID.String()))
	for _, l := range s.Listeners {
		l.RegistrationCreated(ctx, reg)
	}
	return reg, true, nil
}

// renderQR issues the signed credential and stores its image. Failures leave the image path empty.
func (s *Service) renderQR(ctx context.Context, reg *models.Registration) {
	if s.QR == nil || s.Signer == nil {
		return
	}
	content, err := s.Credential(reg)
	if err != nil {
		s.logger.Warn("encode credential failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
		return
	}
	path, err := s.QR.Generate(ctx, reg.SeminarID, reg.ID, content)
	if err != nil {
		s.logger.Warn("qr image generation failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
		return
	}
	if err := s.Store.SetQRImage(ctx, reg.ID, path); err != nil {
		s.logger.Warn("store qr image path failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
		return
	}
	reg.QRImagePath = path
}

// Credential returns the QR content for a registration.
func (s *Service) Credential(reg *models.Registration) (string, error) {
	return s.Signer.Encode(s.Signer.Issue(reg.ID, reg.UserID, reg.SeminarID, reg.QRToken))
}

// Signup registers the user while seats remain and otherwise appends them to the waitlist.
// A user who is already registered gets their existing registration back.
func (s *Service) Signup(ctx context.Context, userID, seminarID uuid.UUID) (*SignupResult, error) {
	seminar, err := s.Seminars.GetByID(ctx, seminarID)
	if errors.Is(err, seminars.ErrNotFound) {
		return nil, ErrSeminarNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load seminar: %w", err)
	}
	existing, err := s.Store.GetByUserAndSeminar(ctx, userID, seminarID)
	if err == nil {
		return &SignupResult{Registration: existing}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if seminar.Capacity > 0 {
		active, err := s.Store.CountActive(ctx, seminarID)
		if err != nil {
			return nil, fmt.Errorf("count active registrations: %w", err)
		}
		if active >= seminar.Capacity {
			return s.joinWaitlist(ctx, userID, seminarID)
		}
	}
	reg, _, err := s.Create(ctx, userID, seminarID, nil)
	if err != nil {
		return nil, err
	}
	return &SignupResult{Registration: reg}, nil
}

func (s *Service) joinWaitlist(ctx context.Context, userID, seminarID uuid.UUID) (*SignupResult, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	uid := userID
	entry := &models.WaitlistEntry{
		SeminarID: seminarID,
		UserID:    &uid,
		Email:     u.Email,
		FullName:  u.FullName,
	}
	if err := s.Waitlist.Join(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info("seminar full, user waitlisted",
		zap.String("seminar_id", seminarID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("position", entry.Position))
	return &SignupResult{Waitlisted: true, Waitlist: entry}, nil
}

// Cancel cancels an active registration, keeps earned credits and signals the waitlist.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Registration, error) {
	reg, err := s.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := reg.Cancel(reason); err != nil {
		return nil, err
	}
	if err := s.Store.Cancel(ctx, reg); err != nil {
		return nil, err
	}
	s.logger.Info("registration cancelled",
		zap.String("registration_id", reg.ID.String()),
		zap.String("seminar_id", reg.SeminarID.String()))
	if s.Promoter != nil {
		if n, err := s.Promoter.NotifyNext(ctx, reg.SeminarID, 1); err != nil {
			s.logger.Error("waitlist promotion failed", zap.String("seminar_id", reg.SeminarID.String()), zap.Error(err))
		} else {
			s.logger.Debug("waitlist promoted", zap.Int("notified", n))
		}
	}
	for _, l := range s.Listeners {
		l.RegistrationCancelled(ctx, reg)
	}
	return reg, nil
}

// Get returns a registration by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return s.Store.GetByID(ctx, id)
}

// ListBySeminar returns a seminar's registrants.
func (s *Service) ListBySeminar(ctx context.Context, seminarID uuid.UUID) ([]models.RegistrationWithUser, error) {
	return s.Store.ListBySeminar(ctx, seminarID)
}

// ListByUser returns a user's registrations.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error) {
	return s.Store.ListByUser(ctx, userID)
}
