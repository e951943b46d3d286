//go:build rp2040

package main

import (
	"sync"
	"sync/atomic"
	"time"

	"pipetter/core"

	"tinygo.org/x/drivers/delay"
)

// Waits longer than this yield to the scheduler; the remainder is
// busy-waited so step edges land on time
const spinThreshold = 500 * time.Microsecond

// goTicker runs its callback on a dedicated goroutine. Each Attach bumps
// the generation, which retires the goroutine of the previous Attach.
// Callbacks of one ticker never overlap.
type goTicker struct {
	gen atomic.Uint32
	cb  sync.Mutex // held while a callback runs
}

// NewTicker implements core.TickerFactory
func NewTicker() core.Ticker {
	return &goTicker{}
}

func (t *goTicker) Attach(fn func(), period time.Duration) {
	period = core.ClampPeriod(period)
	gen := t.gen.Add(1)
	go t.run(gen, fn, period)
}

func (t *goTicker) Detach() {
	t.gen.Add(1)
}

func (t *goTicker) run(gen uint32, fn func(), period time.Duration) {
	next := time.Now().Add(period)
	for {
		wait := time.Until(next)
		if wait > spinThreshold {
			time.Sleep(wait - spinThreshold)
			wait = time.Until(next)
		}
		if wait > 0 {
			delay.Sleep(wait)
		}
		t.cb.Lock()
		if t.gen.Load() != gen {
			t.cb.Unlock()
			return
		}
		UpdateSystemTime()
		fn()
		t.cb.Unlock()
		next = next.Add(period)
		// An overrun callback resynchronizes instead of bursting
		if now := time.Now(); next.Before(now) {
			next = now
		}
		if t.gen.Load() != gen {
			return
		}
	}
}
