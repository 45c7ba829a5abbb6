package syncer

import "sync"

// gate serializes runs per key. A run requested while one is in flight
// for the same key is coalesced into a single follow-up run of the holder.
type gate struct {
	mu      sync.Mutex
	running map[string]bool // key -> follow-up requested
}

func newGate() *gate {
	return &gate{running: make(map[string]bool)}
}

// Do runs fn while holding key, repeating it once per batch of requests
// that arrived during the previous run. It returns false without running
// fn if another caller holds key; that caller will run again.
func (g *gate) Do(key string, fn func()) bool {
	if !g.acquire(key) {
		return false
	}

	released := false
	defer func() {
		if !released {
			g.forget(key)
		}
	}()

	for {
		fn()
		if !g.release(key) {
			released = true
			return true
		}
	}
}

// Busy returns true if a run holds key
func (g *gate) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[key]
	return ok
}

func (g *gate) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.running[key]; ok {
		g.running[key] = true
		return false
	}
	g.running[key] = false
	return true
}

// release drops key unless a follow-up was requested, in which case the
// request is consumed and the caller keeps key.
func (g *gate) release(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running[key] {
		g.running[key] = false
		return true
	}
	delete(g.running, key)
	return false
}

func (g *gate) forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, key)
}
