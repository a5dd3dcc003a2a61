package core

import (
	"context"
	"fmt"
	"sync"
)

// signal counts processed envelopes and wakes waiters on every advance.
// A failed dispatch still advances the count and is reported to the waiters
// whose window it falls in.
type signal struct {
	mu      sync.Mutex
	seq     uint64
	ch      chan struct{}
	failSeq uint64
	failErr error
	stopped bool
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

func (s *signal) current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *signal) advance(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if err != nil {
		s.failSeq = s.seq
		s.failErr = err
	}
	if s.stopped {
		return
	}
	close(s.ch)
	s.ch = make(chan struct{})
}

func (s *signal) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.ch)
}

// wait blocks until at least n envelopes arrived after from.
func (s *signal) wait(ctx context.Context, from uint64, n int) error {
	target := from + uint64(n)
	for {
		s.mu.Lock()
		if s.failSeq > from && s.failSeq <= s.seq {
			err := s.failErr
			s.mu.Unlock()
			return fmt.Errorf("core: reply failed: %w", err)
		}
		if s.seq >= target {
			s.mu.Unlock()
			return nil
		}
		if s.stopped {
			s.mu.Unlock()
			return ErrStopped
		}
		ch := s.ch
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("core: waiting for message: %w", ctx.Err())
		}
	}
}
