package ledger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gkobilansky/funnelstat/internal/store"
)

// Handler receives committed events. Returned errors and panics are logged
// and counted; they never affect the ledger or other subscribers.
type Handler func(event store.Event) error

// Subscription delivers one test's events to a handler on its own
// goroutine, in commit order. Its mailbox is unbounded so writers never
// wait on a slow handler.
type Subscription struct {
	ledger  *Ledger
	testID  string
	handler Handler

	mu     sync.Mutex
	queue  []store.Event
	signal chan struct{}

	done chan struct{}
	once sync.Once
}

// Subscribe registers handler for events recorded against testID from now
// on. On a closed ledger the returned subscription never delivers.
func (l *Ledger) Subscribe(testID string, handler Handler) *Subscription {
	sub := &Subscription{
		ledger:  l,
		testID:  testID,
		handler: handler,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	if l.closed {
		sub.once.Do(func() { close(sub.done) })
		return sub
	}
	if l.subs[testID] == nil {
		l.subs[testID] = make(map[*Subscription]struct{})
	}
	l.subs[testID][sub] = struct{}{}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		sub.run()
	}()
	return sub
}

// Unsubscribe stops delivery. Events still queued are dropped. Safe to call
// more than once, concurrently, and from inside the handler.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		l := s.ledger
		l.subsMu.Lock()
		if set, ok := l.subs[s.testID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(l.subs, s.testID)
			}
		}
		l.subsMu.Unlock()
		close(s.done)
	})
}

// publish queues a committed batch for every subscriber of its tests.
// Called with writeMu held.
func (l *Ledger) publish(events []store.Event) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	if len(l.subs) == 0 {
		return
	}
	for _, e := range events {
		for sub := range l.subs[e.TestID] {
			sub.enqueue(e)
		}
	}
}

func (s *Subscription) enqueue(e store.Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		for {
			s.mu.Lock()
			pending := s.queue
			s.queue = nil
			s.mu.Unlock()

			if len(pending) == 0 {
				break
			}
			for _, e := range pending {
				select {
				case <-s.done:
					return
				default:
				}
				s.deliver(e)
			}
		}
	}
}

func (s *Subscription) deliver(e store.Event) {
	log := s.ledger.logger()
	defer func() {
		if r := recover(); r != nil {
			subscriberFailures.Inc()
			log.Error("subscriber panicked",
				zap.String("test_id", s.testID),
				zap.String("event_id", e.ID),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	if err := s.handler(e); err != nil {
		subscriberFailures.Inc()
		log.Warn("subscriber failed",
			zap.String("test_id", s.testID),
			zap.String("event_id", e.ID),
			zap.Error(err),
		)
	}
}
