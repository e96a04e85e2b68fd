package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshotIsACopy(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/incidences", "GET", 200, time.Millisecond)
	m.RecordNotification("new_incidence", nil)
	m.RecordNotification("new_incidence", errors.New("down"))
	m.RecordOutcome("completed")
	m.RecordReminderPass("skipped")

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Requests["/incidences|GET|200"])
	assert.Equal(t, int64(1), snap.Notifications["new_incidence|sent"])
	assert.Equal(t, int64(1), snap.Notifications["new_incidence|failed"])
	assert.Equal(t, int64(1), snap.Outcomes["completed"])
	assert.Equal(t, int64(1), snap.Reminders["skipped"])

	snap.Outcomes["completed"] = 99
	assert.Equal(t, int64(1), m.Snapshot().Outcomes["completed"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOutcome("ignored")
		m.RecordNotification("reminder", nil)
		_ = m.Snapshot()
	})
}
