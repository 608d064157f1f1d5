package credit

import (
	"fmt"

	"github.com/kailas-cloud/credits/internal/domain"
)

// Override is a partial administrative update. Nil fields are left unchanged.
type Override struct {
	Balance       *int64
	Cap           *int64
	GrantValue    *int64
	GrantInterval *int64
}

// IsEmpty reports whether the override carries no field.
func (o Override) IsEmpty() bool {
	return o.Balance == nil && o.Cap == nil && o.GrantValue == nil && o.GrantInterval == nil
}

// Validate checks the override against the record it will be applied to.
func (o Override) Validate(current *Record) error {
	if o.Balance != nil && o.Cap != nil && *o.Balance > *o.Cap {
		return domain.NewValidationError("balance",
			fmt.Sprintf("can't be bigger than cap (%d / %d)", *o.Balance, *o.Cap))
	}
	if o.Balance != nil && o.Cap == nil && *o.Balance > current.Cap() {
		return domain.NewValidationError("balance",
			fmt.Sprintf("can't be bigger than cap (%d / %d)", *o.Balance, current.Cap()))
	}
	if o.Balance != nil && *o.Balance < 0 {
		return domain.NewValidationError("balance", "can't be negative")
	}
	if o.Cap != nil && *o.Cap < 0 {
		return domain.NewValidationError("cap", "can't be negative")
	}
	if o.GrantValue != nil && *o.GrantValue < 0 {
		return domain.NewValidationError("grant_value", "can't be negative")
	}
	if o.GrantInterval != nil && *o.GrantInterval <= 0 {
		return domain.NewValidationError("grant_interval", "must be positive")
	}
	return nil
}

// ApplyOverride validates and applies an administrative update.
// A lowered cap is not clamped here; the next grant phase does that.
func (r *Record) ApplyOverride(o Override) error {
	if err := o.Validate(r); err != nil {
		return err
	}
	if o.Balance != nil {
		r.balance = *o.Balance
	}
	if o.Cap != nil {
		r.cap = *o.Cap
	}
	if o.GrantValue != nil {
		r.grantValue = *o.GrantValue
	}
	if o.GrantInterval != nil {
		r.grantInterval = *o.GrantInterval
	}
	return nil
}
