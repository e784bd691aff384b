package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity bounds the event log; the oldest entry is evicted once
// the bound is exceeded.
const DefaultCapacity = 200

// Event types.
const (
	TypeBlock  = "block"
	TypeTx     = "tx"
	TypeSystem = "system"
)

// Event severities.
const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityError   = "error"
)

// Event is one observed state transition. Events are immutable once created;
// the log owns eviction.
type Event struct {
	ID       string                 `json:"id"`
	Time     time.Time              `json:"time"`
	Type     string                 `json:"type"`
	Severity string                 `json:"severity"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// New creates an event stamped with the given time.
func New(at time.Time, eventType, severity, message string, metadata map[string]interface{}) Event {
	return Event{
		ID:       uuid.NewString(),
		Time:     at,
		Type:     eventType,
		Severity: severity,
		Message:  message,
		Metadata: metadata,
	}
}

// Log is a bounded, newest-first record of events. Safe for concurrent use.
type Log struct {
	mutex    sync.RWMutex
	capacity int
	entries  []Event
}

// NewLog creates an event log with the given capacity; capacity <= 0 falls
// back to DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity}
}

// Append inserts events at the head of the log, evicting the oldest entries
// once capacity is exceeded.
func (l *Log) Append(evts ...Event) {
	if len(evts) == 0 {
		return
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	for _, evt := range evts {
		l.entries = append([]Event{evt}, l.entries...)
	}
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
}

// Snapshot returns a copy of the log, newest first.
func (l *Log) Snapshot() []Event {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	out := make([]Event, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.entries)
}
