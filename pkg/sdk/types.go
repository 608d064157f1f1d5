package credits

import (
	"context"
	"time"

	domcredit "github.com/kailas-cloud/credits/internal/domain/credit"
	"github.com/kailas-cloud/credits/internal/domain/lease"
	"github.com/kailas-cloud/credits/internal/domain/user"
	"github.com/kailas-cloud/credits/internal/usecase/reconcile"
)

// User identifies a user to the rule resolver.
type User struct {
	Name   string
	Groups []string
	Admin  bool
}

// Credit is a snapshot of a user's credit record.
type Credit struct {
	User            string
	Balance         int64
	Cap             int64
	GrantValue      int64
	GrantInterval   time.Duration
	GrantLastUpdate time.Time
}

// Override is a partial administrative update. Nil fields are left unchanged.
type Override struct {
	Balance       *int64
	Cap           *int64
	GrantValue    *int64
	GrantInterval *int64 // seconds
}

// Lease is a metered session billed against its owner.
type Lease struct {
	ID              string
	Name            string
	Owner           string
	Running         bool
	Ready           bool
	StartedAt       time.Time
	BillingValue    int64
	BillingInterval time.Duration
}

// TickReport summarises one reconciliation tick.
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

// Stopper stops a lease whose owner ran out of credits.
type Stopper interface {
	StopLease(ctx context.Context, l Lease) error
}

// StopperFunc adapts a function to Stopper.
type StopperFunc func(ctx context.Context, l Lease) error

// StopLease calls f.
func (f StopperFunc) StopLease(ctx context.Context, l Lease) error { return f(ctx, l) }

func (u User) toDomain() user.Identity {
	return user.Identity{Name: u.Name, Groups: u.Groups, Admin: u.Admin}
}

func creditFromDomain(r *domcredit.Record) Credit {
	return Credit{
		User:            r.Name(),
		Balance:         r.Balance(),
		Cap:             r.Cap(),
		GrantValue:      r.GrantValue(),
		GrantInterval:   time.Duration(r.GrantInterval()) * time.Second,
		GrantLastUpdate: r.GrantLastUpdate(),
	}
}

func (o Override) toDomain() domcredit.Override {
	return domcredit.Override{
		Balance:       o.Balance,
		Cap:           o.Cap,
		GrantValue:    o.GrantValue,
		GrantInterval: o.GrantInterval,
	}
}

func (l Lease) toDomain() lease.Lease {
	return lease.New(lease.Spec{
		ID:              l.ID,
		Name:            l.Name,
		Owner:           l.Owner,
		Running:         l.Running,
		Ready:           l.Ready,
		StartedAt:       l.StartedAt,
		BillingValue:    l.BillingValue,
		BillingInterval: int64(l.BillingInterval / time.Second),
	})
}

func leaseFromDomain(l lease.Lease) Lease {
	return Lease{
		ID:              l.ID(),
		Name:            l.Name(),
		Owner:           l.Owner(),
		Running:         l.Running(),
		Ready:           l.Ready(),
		StartedAt:       l.StartedAt(),
		BillingValue:    l.BillingValue(),
		BillingInterval: l.BillingInterval(),
	}
}

func reportFromDomain(r reconcile.TickReport) TickReport {
	return TickReport{
		At:         r.At,
		Duration:   r.Duration,
		Users:      r.Users,
		BalanceSum: r.BalanceSum,
		Granted:    r.Granted,
		Billed:     r.Billed,
		Stopped:    r.Stopped,
		Errors:     r.Errors,
	}
}

// stopperAdapter exposes a public Stopper to the lease directory.
type stopperAdapter struct {
	inner Stopper
}

func (a stopperAdapter) StopLease(ctx context.Context, l lease.Lease) error {
	return a.inner.StopLease(ctx, leaseFromDomain(l))
}
