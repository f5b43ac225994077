package core

import "context"

// Gate is a counting semaphore bounding simultaneously executing jobs.
// All N batch goroutines are launched immediately; the gate throttles how
// many run at once.
type Gate struct {
	permits chan struct{}
}

// NewGate returns a gate with n permits. n below 1 is clamped to 1.
func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{permits: make(chan struct{}, n)}
}

// Acquire blocks until a permit is available or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit. Callers must release on every exit path of the
// protected section.
func (g *Gate) Release() {
	<-g.permits
}

// InUse returns the number of currently held permits.
func (g *Gate) InUse() int {
	return len(g.permits)
}
