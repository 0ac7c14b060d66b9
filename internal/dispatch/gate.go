package dispatch

// Gate is a binary permit. Holding it means "a write may be outstanding at the
// transport". The dispatcher acquires it before taking the next command; the
// transport acknowledgment, a local send failure, or shutdown gives it back.
//
// Releasing an already available gate is a no-op, so the permit count never
// exceeds one.
type Gate struct {
	permit chan struct{}
}

// NewGate returns an available gate.
func NewGate() *Gate {
	g := &Gate{permit: make(chan struct{}, 1)}
	g.permit <- struct{}{}
	return g
}

// Acquire blocks until the permit is available and takes it.
func (g *Gate) Acquire() {
	<-g.permit
}

// TryAcquire takes the permit if it is available without blocking.
func (g *Gate) TryAcquire() bool {
	select {
	case <-g.permit:
		return true
	default:
		return false
	}
}

// Release returns the permit. It reports false if the permit was already
// available.
func (g *Gate) Release() bool {
	select {
	case g.permit <- struct{}{}:
		return true
	default:
		return false
	}
}

// ForceRelease makes the permit available regardless of who holds it. It is
// used on shutdown to unblock a worker waiting for an acknowledgment that will
// never arrive.
func (g *Gate) ForceRelease() {
	g.Release()
}

// Available reports whether the permit can be taken right now.
func (g *Gate) Available() bool {
	return len(g.permit) == 1
}
