package app

import "sync"

// studentLocks serializes the read-modify-write of one student's final scores.
// Entries are dropped once no caller holds or waits on them.
type studentLocks struct {
	mu    sync.Mutex
	locks map[string]*studentLock
}

type studentLock struct {
	mu   sync.Mutex
	refs int
}

func (l *studentLocks) lock(studentID string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*studentLock)
	}
	sl, ok := l.locks[studentID]
	if !ok {
		sl = &studentLock{}
		l.locks[studentID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, studentID)
		}
		l.mu.Unlock()
	}
}
