package engine

import "time"

// sessionCloseHour is the civil-time hour (24h, local time) at which
// GoodForDay orders are cancelled, per spec.md §4.6.
const sessionCloseHour = 16

// pruneSlack is added to the computed wait so the pruner wakes slightly
// after the boundary rather than racing it.
const pruneSlack = 100 * time.Millisecond

// Clock is the civil-time collaborator the pruner consumes. Implementations
// may inject a fake for deterministic tests, the same way the teacher
// injects ob.now into its tests.
type Clock interface {
	Now() time.Time
}

// systemClock is the default Clock, backed by time.Now.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the default wall-clock Clock.
func SystemClock() Clock { return systemClock{} }

// pruner is the background activity that cancels GoodForDay orders at
// session close. It runs as a second actor alongside OrderBook's owning
// goroutine, synchronized only through the book's request channel (a
// goodForDayOrderIDs query, then the ordinary CancelOrders path) — never by
// touching the indices directly.
type pruner struct {
	book  *OrderBook
	clock Clock

	shutdown chan struct{}
	done     chan struct{}
}

func newPruner(book *OrderBook, clock Clock) *pruner {
	if clock == nil {
		clock = SystemClock()
	}
	return &pruner{
		book:     book,
		clock:    clock,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *pruner) start() {
	go p.run()
}

// stop signals the pruner to terminate and waits for it to exit, mirroring
// the destructor sequence in spec.md §4.6: set the shutdown flag, wake the
// waiter, join.
func (p *pruner) stop() {
	close(p.shutdown)
	<-p.done
}

func (p *pruner) run() {
	defer close(p.done)

	for {
		wait := nextCutoff(p.clock.Now(), sessionCloseHour) + pruneSlack

		timer := time.NewTimer(wait)
		select {
		case <-p.shutdown:
			timer.Stop()
			return
		case <-timer.C:
		}

		p.pruneGoodForDayOrders()
	}
}

func (p *pruner) pruneGoodForDayOrders() {
	ids := p.book.goodForDayOrderIDs()
	if len(ids) > 0 {
		p.book.CancelOrders(ids)
	}
}

// nextCutoff computes the duration from now until the next occurrence of
// hour:00:00 local civil time strictly after now.
func nextCutoff(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
