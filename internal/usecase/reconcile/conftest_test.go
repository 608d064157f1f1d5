package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	domcredit "github.com/kailas-cloud/credits/internal/domain/credit"
	"github.com/kailas-cloud/credits/internal/domain/lease"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// memRecords stores deep copies so tests observe only committed state.
type memRecords struct {
	mu        sync.Mutex
	records   map[string]domcredit.Record
	commits   map[string]int
	commitErr map[string]error
	listErr   error
}

func newMemRecords(recs ...domcredit.Record) *memRecords {
	m := &memRecords{
		records:   make(map[string]domcredit.Record),
		commits:   make(map[string]int),
		commitErr: make(map[string]error),
	}
	for i := range recs {
		m.records[recs[i].Name()] = clone(&recs[i])
	}
	return m
}

func clone(r *domcredit.Record) domcredit.Record {
	return domcredit.Reconstruct(r.Name(), r.Balance(), r.Cap(), r.GrantValue(), r.GrantInterval(),
		r.GrantLastUpdate(), r.LeaseBills())
}

func (m *memRecords) List(context.Context) ([]domcredit.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.records))
	for n := range m.records {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]domcredit.Record, 0, len(names))
	for _, n := range names {
		r := m.records[n]
		out = append(out, clone(&r))
	}
	return out, m.listErr
}

func (m *memRecords) Commit(_ context.Context, rec *domcredit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.commitErr[rec.Name()]; err != nil {
		return err
	}
	m.commits[rec.Name()]++
	m.records[rec.Name()] = clone(rec)
	return nil
}

func (m *memRecords) get(name string) domcredit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[name]
}

func (m *memRecords) commitCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits[name]
}

func (m *memRecords) totalCommits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, c := range m.commits {
		total += c
	}
	return total
}

type fakeDirectory struct {
	mu       sync.Mutex
	leases   map[string][]lease.Lease
	stopped  []string
	forgot   []string
	stopErr  error
	panicFor string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{leases: make(map[string][]lease.Lease)}
}

func (d *fakeDirectory) add(l lease.Lease) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leases[l.Owner()] = append(d.leases[l.Owner()], l)
}

func (d *fakeDirectory) Leases(name string) ([]lease.Lease, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name == d.panicFor {
		panic("directory corrupted")
	}
	ls, ok := d.leases[name]
	return append([]lease.Lease(nil), ls...), ok
}

func (d *fakeDirectory) Stop(_ context.Context, l lease.Lease) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = append(d.stopped, l.Owner()+"/"+l.ID())
	return d.stopErr
}

func (d *fakeDirectory) Forget(name string, ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.forgot = append(d.forgot, name+"/"+id)
	}
}

func (d *fakeDirectory) forgotten() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.forgot...)
}

func (d *fakeDirectory) stops() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.stopped...)
}

type countingRecorder struct {
	mu      sync.Mutex
	ticks   int
	granted int64
	billed  int64
	stopped int
	errors  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{errors: make(map[string]int)}
}

func (c *countingRecorder) TickCompleted(time.Duration) { c.mu.Lock(); c.ticks++; c.mu.Unlock() }
func (c *countingRecorder) CreditsGranted(n int64)      { c.mu.Lock(); c.granted += n; c.mu.Unlock() }
func (c *countingRecorder) CreditsBilled(n int64)       { c.mu.Lock(); c.billed += n; c.mu.Unlock() }
func (c *countingRecorder) LeaseStopped()               { c.mu.Lock(); c.stopped++; c.mu.Unlock() }
func (c *countingRecorder) Error(scope string)          { c.mu.Lock(); c.errors[scope]++; c.mu.Unlock() }

func (c *countingRecorder) errorCount(scope string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors[scope]
}

func (c *countingRecorder) stoppedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

var errIO = errors.New("connection reset")

func rec(name string, balance, capValue, grantValue, grantInterval int64, last time.Time, bills map[string]time.Time) domcredit.Record {
	return domcredit.Reconstruct(name, balance, capValue, grantValue, grantInterval, last, bills)
}

func readyLease(owner, id string, started time.Time, value, interval int64) lease.Lease {
	return lease.New(lease.Spec{
		ID: id, Name: "lab-" + id, Owner: owner, Running: true, Ready: true,
		StartedAt: started, BillingValue: value, BillingInterval: interval,
	})
}

func clockAt(t time.Time) func() time.Time { return func() time.Time { return t } }
