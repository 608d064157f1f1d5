package credits

import "time"

// LeaseService reports lease state to the engine.
type LeaseService struct {
	dir leaseDirectory
	obs *observer
}

// Upsert records the current state of a lease. An unknown owner is
// registered without groups.
func (s *LeaseService) Upsert(l Lease) {
	start := time.Now()
	s.dir.UpsertLease(l.toDomain())
	s.obs.observe("lease_upsert", start, nil)
}

// Remove forgets a lease. It reports whether the lease was known.
func (s *LeaseService) Remove(owner, id string) bool {
	start := time.Now()
	ok := s.dir.RemoveLease(owner, id)
	s.obs.observe("lease_remove", start, nil)
	return ok
}

// List returns the leases of a user sorted by ID, and whether the user is known.
func (s *LeaseService) List(owner string) ([]Lease, bool) {
	leases, ok := s.dir.Leases(owner)
	if !ok {
		return nil, false
	}
	out := make([]Lease, 0, len(leases))
	for _, l := range leases {
		out = append(out, leaseFromDomain(l))
	}
	return out, true
}
