package app

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// Component is one long-running piece of the daemon. It must return when its
// context is cancelled.
type Component struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runtime supervises the daemon's components and shuts all of them down when
// one fails or a termination signal arrives.
type Runtime struct {
	logger     *slog.Logger
	components []Component
}

// NewRuntime constructs a runtime.
func NewRuntime(logger *slog.Logger) *Runtime {
	return &Runtime{logger: logger}
}

// Add registers a component.
func (r *Runtime) Add(name string, run func(ctx context.Context) error) {
	r.components = append(r.components, Component{Name: name, Run: run})
}

// Run blocks until every component has stopped.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range r.components {
		c := c
		g.Go(func() error {
			r.logger.Info("component started", "component", c.Name)
			err := c.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("component stopped", "component", c.Name, "error", err)
				return err
			}
			r.logger.Info("component stopped", "component", c.Name)
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
