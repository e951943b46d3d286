package core

import "time"

// Ticker is a periodic hardware timer. The callback runs in ticker
// ("interrupt") context and may call Detach or Attach on its own ticker.
//
// The primitive has no in-place interval update: changing the period is
// a Detach followed by a new Attach.
type Ticker interface {
	// Attach starts calling fn every period, first call one period from now.
	// Attaching an attached ticker replaces its callback and period.
	Attach(fn func(), period time.Duration)

	// Detach stops the callbacks. Idempotent.
	Detach()
}

// TickerFactory allocates one ticker per axis or interpolator.
type TickerFactory func() Ticker

// Sleeper is the coarse sleep primitive of the control loop.
type Sleeper interface {
	Sleep(d time.Duration)
}

// SystemSleeper sleeps on the runtime clock.
type SystemSleeper struct{}

func (SystemSleeper) Sleep(d time.Duration) {
	time.Sleep(d)
}

// minTickerPeriod bounds attach periods so a zero period cannot spin.
const minTickerPeriod = time.Microsecond

// ClampPeriod returns period, or the smallest supported period.
func ClampPeriod(period time.Duration) time.Duration {
	if period < minTickerPeriod {
		return minTickerPeriod
	}
	return period
}
