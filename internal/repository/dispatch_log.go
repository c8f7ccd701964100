package repository

import (
	"sync"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/internal/domain/repository"
)

// RingDispatchLog keeps the most recent delivery attempts in a fixed ring.
type RingDispatchLog struct {
	mu   sync.Mutex
	buf  []models.DispatchRecord
	next int
	full bool
}

func NewRingDispatchLog(capacity int) *RingDispatchLog {
	if capacity < 1 {
		capacity = 1
	}
	return &RingDispatchLog{buf: make([]models.DispatchRecord, capacity)}
}

var _ repository.DispatchLog = (*RingDispatchLog)(nil)

func (l *RingDispatchLog) Append(rec models.DispatchRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.next] = rec
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
}

// Recent returns up to limit records, newest first. limit <= 0 means all.
func (l *RingDispatchLog) Recent(limit int) []models.DispatchRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.DispatchRecord, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}
