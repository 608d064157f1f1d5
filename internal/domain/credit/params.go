package credit

import (
	"time"

	"github.com/kailas-cloud/credits/internal/domain"
)

// Params are the per-user grant parameters produced by the rule resolver.
type Params struct {
	Cap           int64
	GrantValue    int64
	GrantInterval int64 // seconds
}

// Validate checks the invariants every stored record relies on.
func (p Params) Validate() error {
	if p.Cap < 0 {
		return domain.NewValidationError("cap", "must not be negative")
	}
	if p.GrantValue < 0 {
		return domain.NewValidationError("grant_value", "must not be negative")
	}
	if p.GrantInterval <= 0 {
		return domain.NewValidationError("grant_interval", "must be positive")
	}
	return nil
}

// Interval returns the grant interval as a duration.
func (p Params) Interval() time.Duration {
	return time.Duration(p.GrantInterval) * time.Second
}
