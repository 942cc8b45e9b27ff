package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/attendance"
	"github.com/ce-seminars/backend/internal/models"
)

func newViewer(seminarID uuid.UUID) *Client {
	return &Client{ID: uuid.NewString(), SeminarID: seminarID, send: make(chan WSMessage, 8)}
}

func receive(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return WSMessage{}
	}
}

func sampleResult(seminarID uuid.UUID) *attendance.Result {
	return &attendance.Result{
		RegistrationID:    uuid.New(),
		UserID:            uuid.New(),
		SeminarID:         seminarID,
		SessionID:         uuid.New(),
		SessionNumber:     3,
		Method:            models.CheckInQR,
		SessionsCompleted: 3,
		SessionsRemaining: 7,
		Status:            models.RegistrationActive,
		CheckedInAt:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestCheckedInReachesOnlyThatSeminar(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	seminarID := uuid.New()
	viewer := newViewer(seminarID)
	other := newViewer(uuid.New())
	hub.Register(viewer)
	hub.Register(other)

	hub.CheckedIn(context.Background(), sampleResult(seminarID))

	msg := receive(t, viewer)
	assert.Equal(t, EventCheckIn, msg.Event)
	var entry BoardEntry
	require.NoError(t, json.Unmarshal(msg.Data, &entry))
	assert.Equal(t, 3, entry.SessionNumber)
	assert.Equal(t, 7, entry.SessionsRemaining)
	assert.Equal(t, "qr", entry.Method)
	assert.Equal(t, "2026-03-02T09:00:00Z", entry.CheckedInAt)

	assert.Len(t, other.send, 0)
}

func TestUnregisterDropsViewer(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	seminarID := uuid.New()
	a, b := newViewer(seminarID), newViewer(seminarID)
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, hub.ViewerCount(seminarID))

	hub.Unregister(a)
	assert.Equal(t, 1, hub.ViewerCount(seminarID))
	hub.Unregister(b)
	assert.Equal(t, 0, hub.ViewerCount(seminarID))
}

func TestBroadcastSkipsFullBuffer(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	seminarID := uuid.New()
	c := &Client{ID: "slow", SeminarID: seminarID, send: make(chan WSMessage, 1)}
	hub.Register(c)

	hub.Broadcast(seminarID, "a", map[string]int{"n": 1})
	hub.Broadcast(seminarID, "b", map[string]int{"n": 2})

	assert.Equal(t, "a", receive(t, c).Event)
	assert.Len(t, c.send, 0)
}

func TestPublishFansOutThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ps := NewRedisPubSub(rdb, zap.NewNop())
	// two instances sharing one Redis
	hubA := NewHub(zap.NewNop(), ps, ps)
	hubB := NewHub(zap.NewNop(), ps, ps)
	seminarID := uuid.New()
	viewerA, viewerB := newViewer(seminarID), newViewer(seminarID)
	hubA.Register(viewerA)
	hubB.Register(viewerB)

	hubA.CheckedIn(context.Background(), sampleResult(seminarID))

	for _, v := range []*Client{viewerA, viewerB} {
		msg := receive(t, v)
		assert.Equal(t, EventCheckIn, msg.Event)
	}
	// published once, so no local duplicate
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, viewerA.send, 0)
}

type failingPublisher struct{}

func (failingPublisher) PublishSeminarEvent(uuid.UUID, string, []byte) error {
	return assert.AnError
}

func TestPublishFallsBackToLocal(t *testing.T) {
	hub := NewHub(zap.NewNop(), failingPublisher{}, nil)
	seminarID := uuid.New()
	viewer := newViewer(seminarID)
	hub.Register(viewer)

	hub.Publish(seminarID, EventViewers, map[string]int{"count": 1})
	assert.Equal(t, EventViewers, receive(t, viewer).Event)
}
