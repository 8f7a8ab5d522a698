package worker

import "sync"

// workgroup tracks the set of in-flight task execution units: a
// WaitGroup for join-on-shutdown, paired with a sync.Map so removal is
// idempotent under a race between a unit finishing on its own and the
// shutdown drain observing it.
type workgroup struct {
	wg      sync.WaitGroup
	members sync.Map // id -> struct{}
	seq     uint64   // monotonically increasing member id
	mu      sync.Mutex
}

// add registers a new in-flight unit and returns its membership id.
func (g *workgroup) add() uint64 {
	g.mu.Lock()
	g.seq++
	id := g.seq
	g.mu.Unlock()

	g.members.Store(id, struct{}{})
	g.wg.Add(1)
	return id
}

// done marks the unit identified by id as finished. Safe to call more
// than once for the same id; only the first call has an effect.
func (g *workgroup) done(id uint64) {
	if _, ok := g.members.LoadAndDelete(id); ok {
		g.wg.Done()
	}
}

// wait blocks until every currently registered unit has called done.
func (g *workgroup) wait() {
	g.wg.Wait()
}

// size returns the number of units currently in flight.
func (g *workgroup) size() int {
	n := 0
	g.members.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
