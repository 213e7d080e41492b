package rwlock

import "sync"

// Lock is a writer-preferring read/write lock used for one path in the naming
// server's directory tree. A reader blocks not only while a writer holds the
// lock but also while any writer is waiting, so a steady stream of readers
// cannot starve a writer.
//
// The lock also keeps a cumulative count of granted read locks, which the
// replication policy consults, and supports Interrupt as a shutdown escape
// hatch: once interrupted, every blocked and future acquire fails with
// ErrStopped while holders may still release.
type Lock struct {
	mu   sync.Mutex
	cond *sync.Cond

	readers        int
	writerHeld     bool
	writersWaiting int
	readsGranted   int
	stopped        bool
}

func New() *Lock {
	l := &Lock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// AcquireRead blocks until no writer holds or is waiting for the lock.
func (l *Lock) AcquireRead() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for !l.stopped && (l.writerHeld || l.writersWaiting > 0) {
		l.cond.Wait()
	}
	if l.stopped {
		return ErrStopped
	}

	l.readers++
	l.readsGranted++
	return nil
}

// ReleaseRead drops one read grant. The caller must hold a read grant.
func (l *Lock) ReleaseRead() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.readers--
	l.cond.Broadcast()
}

// AcquireWrite blocks until the lock is free of readers and writers. The
// waiting writer is counted immediately so that new readers queue behind it.
func (l *Lock) AcquireWrite() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writersWaiting++
	for !l.stopped && (l.readers > 0 || l.writerHeld) {
		l.cond.Wait()
	}
	l.writersWaiting--

	if l.stopped {
		l.cond.Broadcast()
		return ErrStopped
	}

	l.writerHeld = true
	return nil
}

// ReleaseWrite drops the write grant. The caller must hold it.
func (l *Lock) ReleaseWrite() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writerHeld = false
	l.cond.Broadcast()
}

// Interrupt permanently stops the lock. Blocked acquires wake and fail with
// ErrStopped; releases continue to work.
func (l *Lock) Interrupt() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopped = true
	l.cond.Broadcast()
}

// ReadsGranted returns the cumulative number of read grants since the last
// reset. Advisory; used only by the replication policy.
func (l *Lock) ReadsGranted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readsGranted
}

// ResetReadCount clears the cumulative read-grant counter.
func (l *Lock) ResetReadCount() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readsGranted = 0
}
