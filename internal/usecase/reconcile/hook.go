package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/credits/internal/domain"
)

// TickReport summarises one tick for post-tick hooks.
type TickReport struct {
	At         time.Time
	Duration   time.Duration
	Users      int
	BalanceSum int64
	Granted    int64
	Billed     int64
	Stopped    int
	Errors     int
}

// PostTickHook runs after every tick. Its failure never aborts the engine.
type PostTickHook interface {
	AfterTick(ctx context.Context, r TickReport) error
}

// HookFunc adapts a function to PostTickHook.
type HookFunc func(ctx context.Context, r TickReport) error

// AfterTick calls f.
func (f HookFunc) AfterTick(ctx context.Context, r TickReport) error { return f(ctx, r) }

// Named attaches a name used in error reports.
type Named struct {
	Name string
	Hook PostTickHook
}

// AfterTick delegates and wraps failures in *domain.HookError.
func (n Named) AfterTick(ctx context.Context, r TickReport) error {
	if err := n.Hook.AfterTick(ctx, r); err != nil {
		return &domain.HookError{Hook: n.Name, Err: err}
	}
	return nil
}

// Hooks runs every hook in order. All hooks run even if one fails.
type Hooks []PostTickHook

// AfterTick runs the chain and joins the failures.
func (h Hooks) AfterTick(ctx context.Context, r TickReport) error {
	var errs []error
	for _, hook := range h {
		if err := runHook(ctx, hook, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runHook(ctx context.Context, hook PostTickHook, r TickReport) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &domain.HookError{Hook: "post_tick", Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return hook.AfterTick(ctx, r)
}
