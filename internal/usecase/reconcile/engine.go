// Package reconcile runs the periodic credit reconciliation: every tick grants
// credits to each stored record and bills the owner's active leases, stopping
// leases whose next interval the balance cannot cover.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/credits/internal/domain"
	domcredit "github.com/kailas-cloud/credits/internal/domain/credit"
	"github.com/kailas-cloud/credits/internal/domain/lease"
)

// Error scopes reported to the Recorder.
const (
	ScopeTick  = "tick"
	ScopeUser  = "user"
	ScopeLease = "lease"
	ScopeHook  = "hook"
	ScopeStop  = "stop"
)

// ErrAlreadyStarted is returned by Start on a running engine.
var ErrAlreadyStarted = errors.New("reconcile: engine already started")

// Config holds engine timing.
type Config struct {
	Interval    time.Duration
	StopTimeout time.Duration
}

// Engine is the credit reconciliation loop.
type Engine struct {
	records  Records
	dir      Directory
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
	recorder Recorder
	hook     PostTickHook

	tickMu sync.Mutex
	stops  sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

// WithPostTickHook sets the hook run after each tick.
func WithPostTickHook(h PostTickHook) Option { return func(e *Engine) { e.hook = h } }

// New creates an engine. Zero durations fall back to the package defaults.
func New(records Records, dir Directory, cfg Config, opts ...Option) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Duration(domain.DefaultTaskInterval) * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	e := &Engine{
		records:  records,
		dir:      dir,
		cfg:      cfg,
		now:      time.Now,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start runs the first tick immediately and then one tick per interval until
// ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(ctx, e.done)

	e.logger.Info("credit reconciliation started", zap.Duration("interval", e.cfg.Interval))
	return nil
}

// Stop ends the loop and waits for the running tick and in-flight stop commands.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	e.stops.Wait()
	e.logger.Info("credit reconciliation stopped")
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer e.release(done)

	// A tick in progress finishes its commits after Stop.
	tickCtx := context.WithoutCancel(ctx)
	e.Tick(tickCtx)
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(tickCtx)
		}
	}
}

// Tick runs one grant and billing pass over every stored record. Failures are
// isolated per lease, then per user, then per tick; Tick never fails.
func (e *Engine) Tick(ctx context.Context) TickReport {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	start := time.Now()
	now := e.now()
	report := TickReport{At: now}

	records, err := e.records.List(ctx)
	if err != nil {
		report.Errors++
		e.fail(ScopeTick, "list credit records", err)
	}

	for i := range records {
		e.reconcileUser(ctx, &records[i], now, &report)
		report.BalanceSum += records[i].Balance()
	}
	report.Users = len(records)
	report.Duration = time.Since(start)

	if e.hook != nil {
		if err := runHook(ctx, e.hook, report); err != nil {
			report.Errors++
			e.fail(ScopeHook, "post tick hook", err)
		}
	}

	e.recorder.TickCompleted(report.Duration)
	e.logger.Debug("credit task finished",
		zap.Int("users", report.Users),
		zap.Duration("duration", report.Duration),
	)
	return report
}

func (e *Engine) reconcileUser(ctx context.Context, rec *domcredit.Record, now time.Time, report *TickReport) {
	defer func() {
		if p := recover(); p != nil {
			report.Errors++
			e.fail(ScopeUser, "reconcile user", fmt.Errorf("panic: %v", p), zap.String("user", rec.Name()))
		}
	}()

	prev := rec.Balance()
	gained, changed := rec.ApplyGrant(now)
	if changed {
		if err := e.records.Commit(ctx, rec); err != nil {
			// Skip billing; the user is retried from persisted state next tick.
			report.Errors++
			e.fail(ScopeUser, "commit grant", err, zap.String("user", rec.Name()))
			return
		}
	}
	if gained > 0 {
		report.Granted += gained
		e.recorder.CreditsGranted(gained)
		e.logger.Debug("credits granted",
			zap.String("action", "creditsgained"),
			zap.String("user", rec.Name()),
			zap.Int64("from", prev),
			zap.Int64("to", rec.Balance()),
			zap.Int64("gained", gained),
			zap.Int64("cap", rec.Cap()),
		)
	}

	leases, ok := e.dir.Leases(rec.Name())
	if !ok || len(leases) == 0 {
		return
	}

	var toStop []lease.Lease
	var stopped []string
	pending := false
	for _, l := range leases {
		if !l.Running() {
			stopped = append(stopped, l.ID())
		}
		res := e.billLease(ctx, rec, l, now, report)
		switch res {
		case billStop:
			toStop = append(toStop, l)
		case billPruned:
			pending = true
		case billCommitted:
			pending = false
		case billFailed:
			pending = true
		}
	}

	if pending {
		if err := e.records.Commit(ctx, rec); err != nil {
			report.Errors++
			e.fail(ScopeUser, "commit lease bills", err, zap.String("user", rec.Name()))
			stopped = nil
		}
	}
	if len(stopped) > 0 {
		e.dir.Forget(rec.Name(), stopped)
	}

	for _, l := range toStop {
		report.Stopped++
		e.dispatchStop(ctx, l)
	}
}

type billResult int

const (
	billSkipped billResult = iota
	billPruned
	billStop
	billCommitted
	billFailed
)

func (e *Engine) billLease(ctx context.Context, rec *domcredit.Record, l lease.Lease, now time.Time, report *TickReport) (res billResult) {
	fields := []zap.Field{zap.String("user", rec.Name()), zap.String("lease", l.ID())}
	defer func() {
		if p := recover(); p != nil {
			report.Errors++
			e.fail(ScopeLease, "bill lease", fmt.Errorf("panic: %v", p), fields...)
			res = billSkipped
		}
	}()

	if !l.Running() {
		if rec.RemoveLeaseBill(l.ID()) {
			return billPruned
		}
		return billSkipped
	}
	if !l.Ready() {
		return billSkipped
	}

	interval := l.BillingInterval()
	if interval <= 0 {
		report.Errors++
		e.fail(ScopeLease, "bill lease", domain.NewValidationError("billing_interval", "must be positive"), fields...)
		return billSkipped
	}

	// A stored timestamp older than the lease start belongs to an earlier
	// session with the same id.
	last, ok := rec.LeaseBill(l.ID())
	force := false
	if !ok || last.Before(l.StartedAt()) {
		last = now
		force = true
	}

	elapsed := now.Sub(last)
	if elapsed < interval && !force {
		return billSkipped
	}

	bills := max(int64(elapsed/interval), 1)
	prev := rec.Balance()
	cost, ok := rec.ChargeIntervals(bills, l.BillingValue())
	if !ok {
		e.logger.Info("credits exceeded, stopping lease",
			zap.String("action", "creditsexceeded"),
			zap.String("user", rec.Name()),
			zap.String("lease", l.ID()),
			zap.String("lease_name", l.Name()),
			zap.Int64("balance", prev),
			zap.Int64("intervals", bills),
			zap.Int64("billing_value", l.BillingValue()),
		)
		return billStop
	}

	last = last.Add(time.Duration(bills) * interval)
	rec.SetLeaseBill(l.ID(), last)
	report.Billed += cost
	e.recorder.CreditsBilled(cost)
	e.logger.Debug("credits paid",
		zap.String("action", "creditspaid"),
		zap.String("user", rec.Name()),
		zap.String("lease", l.ID()),
		zap.Int64("from", prev),
		zap.Int64("to", rec.Balance()),
		zap.Int64("cost", cost),
		zap.Duration("elapsed", elapsed),
	)

	if err := e.records.Commit(ctx, rec); err != nil {
		report.Errors++
		e.fail(ScopeLease, "commit bill", err, fields...)
		return billFailed
	}
	return billCommitted
}

// dispatchStop issues the stop without blocking the tick. Engine.Stop waits
// for in-flight commands, each bounded by the stop timeout.
func (e *Engine) dispatchStop(ctx context.Context, l lease.Lease) {
	e.stops.Add(1)
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.StopTimeout)
	go func() {
		defer e.stops.Done()
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				e.fail(ScopeStop, "stop lease", fmt.Errorf("panic: %v", p),
					zap.String("user", l.Owner()), zap.String("lease", l.ID()))
			}
		}()

		if err := e.dir.Stop(stopCtx, l); err != nil {
			e.fail(ScopeStop, "stop lease", err, zap.String("user", l.Owner()), zap.String("lease", l.ID()))
			return
		}
		e.recorder.LeaseStopped()
	}()
}

// release clears the run state when the loop exits on parent cancellation,
// so the engine can be started again without an intervening Stop.
func (e *Engine) release(done chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done == done {
		e.cancel()
		e.cancel, e.done = nil, nil
	}
}

func (e *Engine) fail(scope, msg string, err error, fields ...zap.Field) {
	e.recorder.Error(scope)
	e.logger.Error(msg, append(fields, zap.String("scope", scope), zap.Error(err))...)
}
