package lifecycle

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown runs action once, when the duration elapses or when Dismiss is
// called, whichever happens first.
type Countdown struct {
	clock    clockwork.Clock
	deadline time.Time
	action   func()

	once    sync.Once
	stop    chan struct{}
	stopped sync.Once
	done    chan struct{}
}

func startCountdown(clock clockwork.Clock, d time.Duration, action func()) *Countdown {
	c := &Countdown{
		clock:    clock,
		deadline: clock.Now().Add(d),
		action:   action,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	timer := clock.NewTimer(d)
	go func() {
		select {
		case <-timer.Chan():
			c.fire()
		case <-c.stop:
			timer.Stop()
		}
	}()
	return c
}

// Dismiss runs the action now if it has not run yet. It returns after the
// action has completed.
func (c *Countdown) Dismiss() {
	c.stopped.Do(func() { close(c.stop) })
	c.fire()
}

// Remaining is the time left before the action fires on its own.
func (c *Countdown) Remaining() time.Duration {
	select {
	case <-c.done:
		return 0
	default:
	}
	if r := c.deadline.Sub(c.clock.Now()); r > 0 {
		return r
	}
	return 0
}

// Done is closed once the action has run.
func (c *Countdown) Done() <-chan struct{} { return c.done }

func (c *Countdown) fire() {
	c.once.Do(func() {
		c.action()
		close(c.done)
	})
}
