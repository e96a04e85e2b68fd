package observability

import (
	"maps"
	"strconv"
	"sync"
	"time"
)

// Metrics provides in-memory counters exposed through the admin API.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	notifications map[string]int64
	outcomes      map[string]int64
	reminders     map[string]int64
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Requests      map[string]int64 `json:"requests"`
	Errors        map[string]int64 `json:"errors"`
	Notifications map[string]int64 `json:"notifications"`
	Outcomes      map[string]int64 `json:"outcomes"`
	Reminders     map[string]int64 `json:"reminders"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		notifications: make(map[string]int64),
		outcomes:      make(map[string]int64),
		reminders:     make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, _ time.Duration) {
	if m == nil {
		return
	}
	m.bump(m.requestCount, path+"|"+method+"|"+strconv.Itoa(status))
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.bump(m.errorCount, path+"|"+method+"|"+code)
}

// RecordNotification counts one outbound attempt for a template.
func (m *Metrics) RecordNotification(template string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	if m == nil {
		return
	}
	m.bump(m.notifications, template+"|"+result)
}

// RecordOutcome counts inbound messages by what the engine did with them.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.bump(m.outcomes, outcome)
}

// RecordReminderPass counts scheduler passes by result (ran, skipped, failed).
func (m *Metrics) RecordReminderPass(result string) {
	if m == nil {
		return
	}
	m.bump(m.reminders, result)
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Requests:      maps.Clone(m.requestCount),
		Errors:        maps.Clone(m.errorCount),
		Notifications: maps.Clone(m.notifications),
		Outcomes:      maps.Clone(m.outcomes),
		Reminders:     maps.Clone(m.reminders),
	}
}

func (m *Metrics) bump(bucket map[string]int64, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket[key]++
}
