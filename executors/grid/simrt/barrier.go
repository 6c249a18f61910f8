package simrt

import "sync"

// barrier is a reusable phase barrier for a fixed number of parties. Each
// await blocks until all parties have arrived, then all proceed together into
// the next phase. The mutex handoff makes writes performed before an await
// visible to every party after it.
type barrier struct {
	mu   sync.Mutex
	cond sync.Cond

	parties int
	arrived int
	phase   uint64
	broken  bool
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.Cond{L: &b.mu}
	return b
}

// await blocks until every party has arrived. If the barrier is broken (a
// party panicked), await panics with groupAborted so the caller unwinds
// instead of waiting forever.
func (b *barrier) await() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broken {
		panic(groupAborted{})
	}

	b.arrived++
	if b.arrived == b.parties {
		b.arrived = 0
		b.phase++
		b.cond.Broadcast()
		return
	}

	phase := b.phase
	for phase == b.phase && !b.broken {
		b.cond.Wait()
	}
	if b.broken {
		panic(groupAborted{})
	}
}

// abort breaks the barrier: current and future waiters unwind with
// groupAborted. Breaking an already-broken barrier is a no-op.
func (b *barrier) abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broken = true
	b.cond.Broadcast()
}
