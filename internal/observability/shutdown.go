package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ShutdownCoordinator closes components in the reverse of the order they
// registered, so the node closes before the state store it sits on. The
// zero value is ready to use.
type ShutdownCoordinator struct {
	mu      sync.Mutex
	closers []closer
	done    bool
}

type closer struct {
	name  string
	close func(context.Context) error
}

// Register adds a component to close. Registering after Shutdown has
// started closes the component at once.
func (s *ShutdownCoordinator) Register(name string, fn func(context.Context) error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		_ = runCloser(context.Background(), closer{name: name, close: fn})
		return
	}
	s.closers = append(s.closers, closer{name: name, close: fn})
	s.mu.Unlock()
}

// Shutdown closes every registered component, continuing past failures,
// and joins their errors. Later calls return nil.
func (s *ShutdownCoordinator) Shutdown(ctx context.Context) error {
	var errs []error
	for {
		c, ok := s.pop()
		if !ok {
			break
		}
		if err := runCloser(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *ShutdownCoordinator) pop() (closer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	if len(s.closers) == 0 {
		return closer{}, false
	}
	c := s.closers[len(s.closers)-1]
	s.closers = s.closers[:len(s.closers)-1]
	return c, true
}

func runCloser(ctx context.Context, c closer) error {
	start := time.Now()
	if err := c.close(ctx); err != nil {
		slog.ErrorContext(ctx, "shutdown failed", "component", c.name, "error", err)
		return fmt.Errorf("%s: %w", c.name, err)
	}
	slog.DebugContext(ctx, "component closed", "component", c.name, "duration", time.Since(start))
	return nil
}
