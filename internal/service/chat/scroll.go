package chat

import "sync"

// ScrollScheduler serializes scroll-to-end side effects on one worker.
// Requests made while one is already pending collapse into it.
type ScrollScheduler struct {
	scroll   func()
	requests chan struct{}
	quit     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func NewScrollScheduler(scroll func()) *ScrollScheduler {
	s := &ScrollScheduler{
		scroll:   scroll,
		requests: make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Request asks for a scroll; it never blocks.
func (s *ScrollScheduler) Request() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

// Close stops the worker and waits for it.
func (s *ScrollScheduler) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

func (s *ScrollScheduler) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.requests:
			s.scroll()
		}
	}
}
