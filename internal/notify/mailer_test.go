package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ce-seminars/backend/internal/attendance"
	"github.com/ce-seminars/backend/internal/emaillogs"
	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/pkg/queue"
)

type fakeLogs struct {
	created []*models.EmailLog
	failed  map[uuid.UUID]string
}

func (f *fakeLogs) Create(_ context.Context, el *models.EmailLog) error {
	el.ID = uuid.New()
	el.Status = models.EmailLogStatusPending
	f.created = append(f.created, el)
	return nil
}

func (f *fakeLogs) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	if f.failed == nil {
		f.failed = map[uuid.UUID]string{}
	}
	f.failed[id] = reason
	return nil
}

type fakeQueue struct {
	err  error
	jobs []queue.EmailPayload
}

func (f *fakeQueue) EnqueueEmail(_ context.Context, p queue.EmailPayload) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, p)
	return nil
}

type users map[uuid.UUID]*models.User

func (u users) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if x, ok := u[id]; ok {
		return x, nil
	}
	return nil, errors.New("no user")
}

type seminars map[uuid.UUID]*models.Seminar

func (s seminars) GetByID(_ context.Context, id uuid.UUID) (*models.Seminar, error) {
	if x, ok := s[id]; ok {
		return x, nil
	}
	return nil, errors.New("no seminar")
}

type regs map[uuid.UUID]*models.Registration

func (r regs) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	if x, ok := r[id]; ok {
		return x, nil
	}
	return nil, errors.New("no registration")
}

type fixture struct {
	mailer *Mailer
	logs   *fakeLogs
	queue  *fakeQueue
	user   *models.User
	sem    *models.Seminar
	reg    *models.Registration
}

func newFixture() *fixture {
	u := &models.User{ID: uuid.New(), Email: "dr.patel@example.com", FullName: "Asha Patel"}
	s := &models.Seminar{ID: uuid.New(), Title: "Endodontics Monthly"}
	start := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	r := &models.Registration{ID: uuid.New(), UserID: u.ID, SeminarID: s.ID, StartSessionDate: &start, Status: models.RegistrationActive}
	f := &fixture{logs: &fakeLogs{}, queue: &fakeQueue{}, user: u, sem: s, reg: r}
	f.mailer = NewMailer(f.logs, f.queue, users{u.ID: u}, seminars{s.ID: s}, regs{r.ID: r}, nil)
	return f
}

func TestRegistrationCreatedQueuesConfirmation(t *testing.T) {
	f := newFixture()
	f.mailer.RegistrationCreated(context.Background(), f.reg)

	require.Len(t, f.logs.created, 1)
	require.Len(t, f.queue.jobs, 1)
	job := f.queue.jobs[0]
	assert.Equal(t, f.logs.created[0].ID, job.EmailLogID)
	assert.Equal(t, models.EmailTypeRegistrationConfirmation, job.EmailType)
	assert.Equal(t, "dr.patel@example.com", job.RecipientEmail)
	assert.Contains(t, job.Subject, "Endodontics Monthly")
	assert.Contains(t, job.BodyText, "Wednesday, February 4, 2026")
	require.NotNil(t, job.RegistrationID)
	assert.Equal(t, f.reg.ID, *job.RegistrationID)
}

func TestQueueFailureMarksLogFailed(t *testing.T) {
	f := newFixture()
	f.queue.err = errors.New("redis down")

	err := f.mailer.NotifyWaitlist(context.Background(), &models.WaitlistEntry{
		ID: uuid.New(), SeminarID: f.sem.ID, Email: "wait@example.com",
	}, time.Now().Add(48*time.Hour))
	require.Error(t, err)
	require.Len(t, f.logs.created, 1)
	assert.Equal(t, "redis down", f.logs.failed[f.logs.created[0].ID])
}

func TestCheckedInOnlyMailsOnSeriesCompletion(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res := &attendance.Result{RegistrationID: f.reg.ID, UserID: f.user.ID, SeminarID: f.sem.ID, SessionsCompleted: 9}

	f.mailer.CheckedIn(ctx, res)
	assert.Empty(t, f.queue.jobs)

	res.SessionsCompleted = 10
	res.SeriesCompleted = true
	f.mailer.CheckedIn(ctx, res)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, models.EmailTypeSeminarCompleted, f.queue.jobs[0].EmailType)
	assert.Contains(t, f.queue.jobs[0].BodyText, "20 CE credits")
}

func TestResendConfirmationChecksSeminar(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	err := f.mailer.ResendConfirmation(ctx, uuid.New(), f.reg.ID)
	assert.ErrorIs(t, err, emaillogs.ErrRegistrationMismatch)

	require.NoError(t, f.mailer.ResendConfirmation(ctx, f.sem.ID, f.reg.ID))
	assert.Len(t, f.queue.jobs, 1)
}

func TestCancellationBodyKeepsCredits(t *testing.T) {
	f := newFixture()
	f.reg.Status = models.RegistrationCancelled
	f.reg.Notes = "relocating"
	f.reg.SessionsCompleted = 3
	f.mailer.RegistrationCancelled(context.Background(), f.reg)

	require.Len(t, f.queue.jobs, 1)
	body := f.queue.jobs[0].BodyText
	assert.Contains(t, body, "Reason: relocating")
	assert.Contains(t, body, "6 CE credits")
}
