package httpapi

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-soilcast/internal/application"
)

// flight is the context of one shared pipeline run and the number of callers
// waiting on it. The context is canceled only when the last waiter leaves, so
// one caller hanging up never aborts the run for the others.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// runShared runs in through the singleflight group under key. It returns
// ok=false when ctx ends before the result arrives.
func (s *Server) runShared(ctx context.Context, key string, in application.Request) (res singleflight.Result, ok bool) {
	f := s.join(ctx, key)
	defer s.leave(key, f)

	ch := s.inflight.DoChan(key, func() (v any, err error) {
		// DoChan re-panics on a fresh goroutine, beyond any recoverer.
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("forecast panicked: %v\n%s", p, debug.Stack())
			}
		}()
		return s.forecaster.Run(f.ctx, in.InitialState, in.Weather)
	})

	select {
	case res = <-ch:
		return res, true
	case <-ctx.Done():
		return singleflight.Result{}, false
	}
}

// join registers the caller as a waiter on the flight for key, starting a new
// flight detached from ctx's cancellation but carrying its values.
func (s *Server) join(ctx context.Context, key string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flights == nil {
		s.flights = make(map[string]*flight)
	}
	f, ok := s.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	return f
}

// leave drops the caller from f. The last waiter out cancels the run and
// forgets the key, so later requests start fresh instead of joining a run
// that is being torn down.
func (s *Server) leave(key string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
	s.inflight.Forget(key)
}

// waiting reports how many callers share the flight for key.
func (s *Server) waiting(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.flights[key]; ok {
		return f.waiters
	}
	return 0
}
