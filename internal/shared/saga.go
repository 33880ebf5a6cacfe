package shared

import (
	"context"
	"log/slog"
)

// Saga records compensating actions for side effects already applied during a
// multi-step ledger operation. The store has no multi-statement transactions,
// so a failure mid-operation must undo the applied steps in reverse order
// before the error reaches the caller.
type Saga struct {
	undos []undo
}

type undo struct {
	name string
	fn   func(context.Context) error
}

// Record registers the compensation for a step that just succeeded.
func (s *Saga) Record(name string, fn func(context.Context) error) {
	s.undos = append(s.undos, undo{name: name, fn: fn})
}

// Compensate runs every recorded compensation LIFO. A failing compensation is
// logged and the remaining ones still run; there is nothing better to do once
// the operation itself has already failed.
func (s *Saga) Compensate(ctx context.Context, logger *slog.Logger) {
	for i := len(s.undos) - 1; i >= 0; i-- {
		u := s.undos[i]
		if err := u.fn(ctx); err != nil && logger != nil {
			logger.Error("compensation failed",
				slog.String("step", u.name),
				slog.Any("error", err))
		}
	}
	s.undos = nil
}
