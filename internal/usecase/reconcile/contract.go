package reconcile

import (
	"context"
	"time"

	domcredit "github.com/kailas-cloud/credits/internal/domain/credit"
	"github.com/kailas-cloud/credits/internal/domain/lease"
)

// Records is the storage contract the engine reads and commits through.
type Records interface {
	List(ctx context.Context) ([]domcredit.Record, error)
	Commit(ctx context.Context, rec *domcredit.Record) error
}

// Directory exposes the in-process leases of a user and the stop action.
// Forget is called with the ids of stopped leases once their bill entries
// are no longer stored.
type Directory interface {
	Leases(user string) ([]lease.Lease, bool)
	Stop(ctx context.Context, l lease.Lease) error
	Forget(user string, ids []string)
}

// Recorder receives engine counters. Implemented by internal/metrics.
type Recorder interface {
	TickCompleted(d time.Duration)
	CreditsGranted(n int64)
	CreditsBilled(n int64)
	LeaseStopped()
	Error(scope string)
}

type nopRecorder struct{}

func (nopRecorder) TickCompleted(time.Duration) {}
func (nopRecorder) CreditsGranted(int64)        {}
func (nopRecorder) CreditsBilled(int64)         {}
func (nopRecorder) LeaseStopped()               {}
func (nopRecorder) Error(string)                {}
