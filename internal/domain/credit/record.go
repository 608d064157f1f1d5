// Package credit models a user's credit balance and the grant/bill arithmetic applied to it.
package credit

import (
	"time"

	"github.com/kailas-cloud/credits/internal/domain"
)

// Record is the persisted credit state of one user.
type Record struct {
	name            string
	balance         int64
	cap             int64
	grantValue      int64
	grantInterval   int64 // seconds
	grantLastUpdate time.Time
	leaseBills      map[string]time.Time
}

// New creates a record for a newly registered user, seeded with a full balance.
func New(name string, p Params, now time.Time) (Record, error) {
	if name == "" {
		return Record{}, domain.NewValidationError("name", "is required")
	}
	if err := p.Validate(); err != nil {
		return Record{}, err
	}
	return Record{
		name:            name,
		balance:         p.Cap,
		cap:             p.Cap,
		grantValue:      p.GrantValue,
		grantInterval:   p.GrantInterval,
		grantLastUpdate: now.UTC(),
		leaseBills:      make(map[string]time.Time),
	}, nil
}

// Reconstruct restores a record from storage without validation.
func Reconstruct(
	name string, balance, capValue, grantValue, grantInterval int64,
	grantLastUpdate time.Time, leaseBills map[string]time.Time,
) Record {
	bills := make(map[string]time.Time, len(leaseBills))
	for id, t := range leaseBills {
		bills[id] = t.UTC()
	}
	return Record{
		name:            name,
		balance:         balance,
		cap:             capValue,
		grantValue:      grantValue,
		grantInterval:   grantInterval,
		grantLastUpdate: grantLastUpdate.UTC(),
		leaseBills:      bills,
	}
}

// Name returns the user name (primary key).
func (r *Record) Name() string { return r.name }

// Balance returns the credits currently available.
func (r *Record) Balance() int64 { return r.balance }

// Cap returns the maximum balance reachable by granting.
func (r *Record) Cap() int64 { return r.cap }

// GrantValue returns the credits granted per interval.
func (r *Record) GrantValue() int64 { return r.grantValue }

// GrantInterval returns the grant interval in seconds.
func (r *Record) GrantInterval() int64 { return r.grantInterval }

// GrantLastUpdate returns the last grant evaluation time.
func (r *Record) GrantLastUpdate() time.Time { return r.grantLastUpdate }

// Params returns the grant parameters currently stored on the record.
func (r *Record) Params() Params {
	return Params{Cap: r.cap, GrantValue: r.grantValue, GrantInterval: r.grantInterval}
}

// LeaseBills returns a copy of the last-billed timestamps keyed by lease id.
func (r *Record) LeaseBills() map[string]time.Time {
	out := make(map[string]time.Time, len(r.leaseBills))
	for id, t := range r.leaseBills {
		out[id] = t
	}
	return out
}

// LeaseBill returns the last-billed timestamp of a lease.
func (r *Record) LeaseBill(id string) (time.Time, bool) {
	t, ok := r.leaseBills[id]
	return t, ok
}

// SetLeaseBill stores the last-billed timestamp of a lease.
func (r *Record) SetLeaseBill(id string, t time.Time) {
	if r.leaseBills == nil {
		r.leaseBills = make(map[string]time.Time)
	}
	r.leaseBills[id] = t.UTC()
}

// RemoveLeaseBill drops the bill entry of a stopped lease. Reports whether one existed.
func (r *Record) RemoveLeaseBill(id string) bool {
	if _, ok := r.leaseBills[id]; !ok {
		return false
	}
	delete(r.leaseBills, id)
	return true
}

// ApplyGrant runs the grant phase for one tick and returns the credits gained
// and whether any field changed.
//
// At cap the clock is reset to now, so fractional progress toward the next
// grant is discarded. Below cap the clock advances by whole intervals only.
func (r *Record) ApplyGrant(now time.Time) (int64, bool) {
	now = now.UTC()
	switch {
	case r.balance == r.cap:
		r.grantLastUpdate = now
		return 0, true
	case r.balance > r.cap:
		r.balance = r.cap
		r.grantLastUpdate = now
		return 0, true
	}

	if r.grantInterval <= 0 {
		return 0, false
	}
	interval := r.Params().Interval()
	elapsed := now.Sub(r.grantLastUpdate)
	if elapsed < interval {
		return 0, false
	}

	n := int64(elapsed / interval)
	prev := r.balance
	if r.grantValue > 0 && n > (r.cap-prev)/r.grantValue {
		r.balance = r.cap
	} else {
		r.balance = prev + n*r.grantValue
	}
	r.grantLastUpdate = r.grantLastUpdate.Add(time.Duration(n) * interval)
	return r.balance - prev, true
}

// ApplyParams stores newly resolved grant parameters. Lowering the cap below
// the balance clamps the balance immediately. Reports whether anything changed.
func (r *Record) ApplyParams(p Params) bool {
	changed := false
	if r.cap != p.Cap {
		r.cap = p.Cap
		if r.balance > r.cap {
			r.balance = r.cap
		}
		changed = true
	}
	if r.grantValue != p.GrantValue {
		r.grantValue = p.GrantValue
		changed = true
	}
	if r.grantInterval != p.GrantInterval {
		r.grantInterval = p.GrantInterval
		changed = true
	}
	return changed
}

// ChargeIntervals debits n intervals at value credits each. It refuses and
// leaves the balance untouched when the balance cannot cover the cost. The
// product is checked against the balance before it is computed, so oversized
// values are refused instead of wrapping.
func (r *Record) ChargeIntervals(n, value int64) (int64, bool) {
	if n < 0 || value < 0 {
		return 0, false
	}
	if value > 0 && n > r.balance/value {
		return 0, false
	}
	cost := n * value
	r.balance -= cost
	return cost, true
}
