package timeclock

import "sync"

// SubjectLocks hands out one mutex per subject id. The clock and
// correction paths share one instance so every read-modify-write of a
// subject's event log is a single critical section; different subjects
// proceed concurrently.
type SubjectLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

// NewSubjectLocks creates an empty lock map.
func NewSubjectLocks() *SubjectLocks {
	return &SubjectLocks{m: make(map[string]*sync.Mutex)}
}

// For returns the mutex guarding one subject's log.
func (l *SubjectLocks) For(subjectID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.m[subjectID]
	if !ok {
		m = &sync.Mutex{}
		l.m[subjectID] = m
	}
	return m
}
