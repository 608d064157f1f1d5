// Package nats connects the service to the compute fabric over NATS: it
// consumes login and lease state events into the directory and publishes
// stop commands and tick summaries.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/credits/internal/directory"
	"github.com/kailas-cloud/credits/internal/domain/lease"
	"github.com/kailas-cloud/credits/internal/domain/user"
	"github.com/kailas-cloud/credits/internal/usecase/reconcile"
)

const (
	// DefaultPrefix is the subject prefix used when none is configured.
	DefaultPrefix = "credits"

	flushTimeout = 5 * time.Second
)

// ErrNotConnected is returned by HealthCheck when the connection is down.
var ErrNotConnected = errors.New("nats: not connected")

// Registrar handles user logins.
type Registrar interface {
	Register(ctx context.Context, id user.Identity) error
}

// LeaseSink receives lease state updates.
type LeaseSink interface {
	UpsertLease(l lease.Lease)
	RemoveLease(owner, id string) bool
}

// Bus is the NATS side of the lease directory.
type Bus struct {
	nc     *natsgo.Conn
	prefix string
	logger *zap.Logger

	mu   sync.Mutex
	subs []*natsgo.Subscription
}

var (
	_ reconcile.PostTickHook = (*Bus)(nil)
	_ directory.Stopper      = (*Bus)(nil)
)

// NewBus wraps an established connection.
func NewBus(nc *natsgo.Conn, prefix string, logger *zap.Logger) *Bus {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{nc: nc, prefix: prefix, logger: logger}
}

// Subject returns the full subject for a suffix.
func (b *Bus) Subject(suffix string) string {
	return b.prefix + "." + suffix
}

// Subscribe starts consuming login and lease events.
func (b *Bus) Subscribe(reg Registrar, leases LeaseSink) error {
	handlers := map[string]natsgo.MsgHandler{
		SubjectLogin:        b.handleLogin(reg),
		SubjectLeaseState:   b.handleLeaseState(leases),
		SubjectLeaseRemoved: b.handleLeaseRemoved(leases),
	}
	for _, suffix := range []string{SubjectLogin, SubjectLeaseState, SubjectLeaseRemoved} {
		sub, err := b.nc.Subscribe(b.Subject(suffix), handlers[suffix])
		if err != nil {
			_ = b.Close()
			return fmt.Errorf("subscribe %s: %w", b.Subject(suffix), err)
		}
		b.mu.Lock()
		b.subs = append(b.subs, sub)
		b.mu.Unlock()
	}
	if err := b.nc.Flush(); err != nil {
		return fmt.Errorf("flush subscriptions: %w", err)
	}
	return nil
}

// Close drops every subscription. The connection itself is owned by the caller.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for _, sub := range b.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, natsgo.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	b.subs = nil
	return errors.Join(errs...)
}

func (b *Bus) handleLogin(reg Registrar) natsgo.MsgHandler {
	return func(msg *natsgo.Msg) {
		var m loginMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			b.logger.Warn("malformed login event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		id, err := m.toDomain()
		if err != nil {
			b.logger.Warn("invalid login event", zap.Error(err))
			return
		}
		if err := reg.Register(context.Background(), id); err != nil {
			b.logger.Error("register user", zap.String("user", id.Name), zap.Error(err))
		}
	}
}

func (b *Bus) handleLeaseState(leases LeaseSink) natsgo.MsgHandler {
	return func(msg *natsgo.Msg) {
		var m leaseStateMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			b.logger.Warn("malformed lease event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		l, err := m.toDomain()
		if err != nil {
			b.logger.Warn("invalid lease event", zap.String("lease", m.ID), zap.Error(err))
			return
		}
		leases.UpsertLease(l)
	}
}

func (b *Bus) handleLeaseRemoved(leases LeaseSink) natsgo.MsgHandler {
	return func(msg *natsgo.Msg) {
		var m leaseRemovedMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil || m.ID == "" || m.Owner == "" {
			b.logger.Warn("malformed lease removal", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		if !leases.RemoveLease(m.Owner, m.ID) {
			b.logger.Debug("removal of unknown lease", zap.String("user", m.Owner), zap.String("lease", m.ID))
		}
	}
}

// StopLease publishes a stop command and waits for the server to accept it.
func (b *Bus) StopLease(ctx context.Context, l lease.Lease) error {
	cmd := stopCommand{
		RequestID: uuid.NewString(),
		User:      l.Owner(),
		LeaseID:   l.ID(),
		LeaseName: l.Name(),
		Reason:    ReasonInsufficientCredits,
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode stop command: %w", err)
	}
	if err := b.publish(ctx, SubjectLeaseStop, data); err != nil {
		return fmt.Errorf("stop lease %s/%s: %w", l.Owner(), l.ID(), err)
	}
	b.logger.Info("stop command sent",
		zap.String("request_id", cmd.RequestID),
		zap.String("user", cmd.User),
		zap.String("lease", cmd.LeaseID),
	)
	return nil
}

// AfterTick publishes the tick summary.
func (b *Bus) AfterTick(ctx context.Context, r reconcile.TickReport) error {
	data, err := json.Marshal(tickEventFrom(r))
	if err != nil {
		return fmt.Errorf("encode tick event: %w", err)
	}
	return b.publish(ctx, SubjectTicks, data)
}

// HealthCheck reports whether the connection is usable.
func (b *Bus) HealthCheck(_ context.Context) error {
	if b.nc == nil || !b.nc.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (b *Bus) publish(ctx context.Context, suffix string, data []byte) error {
	if err := b.nc.Publish(b.Subject(suffix), data); err != nil {
		return fmt.Errorf("publish %s: %w", b.Subject(suffix), err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", b.Subject(suffix), err)
	}
	return nil
}
