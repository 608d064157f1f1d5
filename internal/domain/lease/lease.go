// Package lease models a metered compute session billed against its owner's credits.
package lease

import "time"

// Lease is a snapshot of one compute session as reported by the lease directory.
type Lease struct {
	id              string
	name            string
	owner           string
	running         bool
	ready           bool
	startedAt       time.Time
	billingValue    int64
	billingInterval int64 // seconds
}

// Spec carries the attributes used to build a Lease.
type Spec struct {
	ID              string
	Name            string
	Owner           string
	Running         bool
	Ready           bool
	StartedAt       time.Time
	BillingValue    int64
	BillingInterval int64
}

// New creates a Lease snapshot.
func New(s Spec) Lease {
	return Lease{
		id:              s.ID,
		name:            s.Name,
		owner:           s.Owner,
		running:         s.Running,
		ready:           s.Ready,
		startedAt:       s.StartedAt.UTC(),
		billingValue:    s.BillingValue,
		billingInterval: s.BillingInterval,
	}
}

// ID returns the lease identifier. IDs may be reused by later sessions.
func (l Lease) ID() string { return l.id }

// Name returns the human-readable lease name.
func (l Lease) Name() string { return l.name }

// Owner returns the name of the user billed for the lease.
func (l Lease) Owner() string { return l.owner }

// Running reports whether the lease has a backing server.
func (l Lease) Running() bool { return l.running }

// Ready reports whether the lease is usable. Startup time is not billed.
func (l Lease) Ready() bool { return l.ready }

// StartedAt returns when the current session of this lease id started.
func (l Lease) StartedAt() time.Time { return l.startedAt }

// BillingValue returns the credits charged per billing interval.
func (l Lease) BillingValue() int64 { return l.billingValue }

// BillingInterval returns the billing period.
func (l Lease) BillingInterval() time.Duration {
	return time.Duration(l.billingInterval) * time.Second
}

// WithReady returns a copy with the readiness flag replaced.
func (l Lease) WithReady(ready bool) Lease {
	l.ready = ready
	return l
}

// Stopped returns a copy with no backing server.
func (l Lease) Stopped() Lease {
	l.running = false
	l.ready = false
	return l
}
