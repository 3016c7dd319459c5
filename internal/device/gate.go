package device

import "sync/atomic"

// Gate admits at most one holder at a time.
//
// Acquisition is a non-blocking test-and-set: a caller that loses the race
// is told so immediately instead of queueing behind the holder.
//
// Thread-safety: Gate is safe for concurrent use.
type Gate struct {
	held atomic.Bool
}

// TryAcquire moves the gate from free to held. It returns false, without
// changing anything, if the gate is already held.
func (g *Gate) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release moves the gate back to free. Releasing a free gate is a no-op and
// reports false.
func (g *Gate) Release() bool {
	return g.held.CompareAndSwap(true, false)
}

// Held reports whether a holder currently owns the gate.
func (g *Gate) Held() bool {
	return g.held.Load()
}
