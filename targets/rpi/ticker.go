//go:build linux

package main

import (
	"sync"
	"time"

	"pipetter/core"
)

// timeTicker drives a callback from a time.Ticker goroutine. Attach and
// Detach may be called from inside the callback.
//
// Callbacks of one ticker never overlap, and a goroutine left over from an
// earlier Attach exits at its next tick. Detach does not wait for a
// callback already past that check; callers that need a hard stop
// serialize with their own callback.
type timeTicker struct {
	mu   sync.Mutex // guards gen and stop
	gen  uint64
	stop chan struct{}

	cb sync.Mutex // held while a callback runs
}

// NewTicker implements core.TickerFactory
func NewTicker() core.Ticker {
	return &timeTicker{}
}

func (t *timeTicker) Attach(fn func(), period time.Duration) {
	stop := make(chan struct{})
	t.mu.Lock()
	t.retire()
	t.gen++
	gen := t.gen
	t.stop = stop
	t.mu.Unlock()

	go t.run(gen, stop, fn, core.ClampPeriod(period))
}

func (t *timeTicker) Detach() {
	t.mu.Lock()
	t.retire()
	t.gen++
	t.mu.Unlock()
}

// retire stops the current goroutine. Called with mu held.
func (t *timeTicker) retire() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *timeTicker) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen
}

func (t *timeTicker) run(gen uint64, stop <-chan struct{}, fn func(), period time.Duration) {
	tk := time.NewTicker(period)
	defer tk.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tk.C:
		}
		t.cb.Lock()
		if !t.current(gen) {
			t.cb.Unlock()
			return
		}
		fn()
		t.cb.Unlock()
	}
}
