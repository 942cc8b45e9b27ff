package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ce-seminars/backend/internal/models"
)

func day(d int) time.Time { return time.Date(2026, 11, d, 0, 0, 0, 0, time.UTC) }

func TestFillRegisteredCountsRegistrationsStartedByEachSession(t *testing.T) {
	third, tenth, seventeenth := day(3), day(10), day(17)
	list := []models.Session{
		{SessionNumber: 1, SessionDate: third},
		{SessionNumber: 2, SessionDate: tenth},
		{SessionNumber: 3, SessionDate: seventeenth},
	}
	fillRegistered(list, []registrationStart{
		{date: nil, n: 2},
		{date: &third, n: 5},
		{date: &tenth, n: 3},
	})

	assert.Equal(t, 7, list[0].RegisteredCount)
	assert.Equal(t, 10, list[1].RegisteredCount)
	assert.Equal(t, 10, list[2].RegisteredCount)
}

func TestFillRegisteredWithoutRegistrations(t *testing.T) {
	list := []models.Session{{SessionNumber: 1, SessionDate: day(3), RegisteredCount: 4}}
	fillRegistered(list, nil)
	assert.Zero(t, list[0].RegisteredCount)
}
