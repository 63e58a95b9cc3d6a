package audit

import (
	"sync"
	"time"
)

// Activity types.
const (
	TypeProductAdded   = "product_added"
	TypeProductRemoved = "product_removed"
	TypeOrderPlaced    = "order_placed"
)

// Activity is one recorded catalog event.
type Activity struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	ProductID  uint      `json:"product_id"`
	OrderID    uint      `json:"order_id,omitempty"`
	Summary    string    `json:"summary"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DefaultCapacity is the default number of activities retained.
const DefaultCapacity = 1000

// Log is a bounded, thread-safe ring of recent activity.
type Log struct {
	mu       sync.RWMutex
	entries  []Activity
	next     int
	full     bool
	total    int64
	capacity int
}

// NewLog creates a log retaining at most capacity entries.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries:  make([]Activity, capacity),
		capacity: capacity,
	}
}

// Record appends a, overwriting the oldest entry when full.
func (l *Log) Record(a Activity) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = a
	l.next = (l.next + 1) % l.capacity
	if l.next == 0 {
		l.full = true
	}
	l.total++
}

// Recent returns up to limit activities, newest first.
func (l *Log) Recent(limit int) []Activity {
	l.mu.RLock()
	defer l.mu.RUnlock()

	size := l.next
	if l.full {
		size = l.capacity
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	result := make([]Activity, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + l.capacity) % l.capacity
		result = append(result, l.entries[idx])
	}
	return result
}

// Total returns how many activities were ever recorded.
func (l *Log) Total() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// RecentRequest is the request for the recent service.
type RecentRequest struct {
	Limit int `json:"limit"`
}

// RecentResponse is the response of the recent service.
type RecentResponse struct {
	Activities []Activity `json:"activities"`
	Total      int64      `json:"total"`
}
