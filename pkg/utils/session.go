package utils

import (
	"context"
	"sync"
	"time"
)

// Session is the lifetime of a background component. Goroutines started
// with Go are awaited by Wait after Cancel.
type Session struct {
	context   context.Context
	cancel    context.CancelFunc
	startTime time.Time
	group     *sync.WaitGroup
}

func NewSession(ctx context.Context) Session {
	ctx, cancel := context.WithCancel(ctx)
	return Session{
		context:   ctx,
		cancel:    cancel,
		startTime: time.Now(),
		group:     &sync.WaitGroup{},
	}
}

func (s *Session) Started() time.Time {
	return s.startTime
}

func (s *Session) Ctx() context.Context {
	return s.context
}

func (s *Session) IsDone() bool {
	return s.context.Err() != nil
}

func (s *Session) Cancel() {
	s.cancel()
}

func (s *Session) Go(fn func(ctx context.Context)) {
	s.group.Add(1)
	go func() {
		defer s.group.Done()
		fn(s.context)
	}()
}

func (s *Session) Wait() {
	s.group.Wait()
}

// Poll calls fn every interval until the session ends.
func (s *Session) Poll(interval time.Duration, fn func(ctx context.Context)) {
	s.Go(func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	})
}
