package rules

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/credits/internal/domain"
	"github.com/kailas-cloud/credits/internal/domain/credit"
	"github.com/kailas-cloud/credits/internal/domain/user"
)

// Hook names reported in HookError.
const (
	HookUserCap           = "user_cap"
	HookUserGrantValue    = "user_grant_value"
	HookUserGrantInterval = "user_grant_interval"
)

// Resolver combines the three parameter sources.
type Resolver struct {
	cap           Source
	grantValue    Source
	grantInterval Source
}

// New creates a Resolver. Nil sources fall back to the package defaults.
func New(capSource, grantValue, grantInterval Source) *Resolver {
	if capSource == nil {
		capSource = Fixed(domain.DefaultUserCap)
	}
	if grantValue == nil {
		grantValue = Fixed(domain.DefaultUserGrantValue)
	}
	if grantInterval == nil {
		grantInterval = Fixed(domain.DefaultUserGrantInterval)
	}
	return &Resolver{cap: capSource, grantValue: grantValue, grantInterval: grantInterval}
}

// Resolve evaluates all sources for id. Source failures and out of range
// values are returned as *domain.HookError.
func (r *Resolver) Resolve(ctx context.Context, id user.Identity) (credit.Params, error) {
	var p credit.Params
	var err error

	if p.Cap, err = resolve(ctx, HookUserCap, r.cap, id); err != nil {
		return credit.Params{}, err
	}
	if p.GrantValue, err = resolve(ctx, HookUserGrantValue, r.grantValue, id); err != nil {
		return credit.Params{}, err
	}
	if p.GrantInterval, err = resolve(ctx, HookUserGrantInterval, r.grantInterval, id); err != nil {
		return credit.Params{}, err
	}

	if err := p.Validate(); err != nil {
		return credit.Params{}, fmt.Errorf("resolve %s: %w", id.Name, &domain.HookError{Hook: "rules", Err: err})
	}
	return p, nil
}

func resolve(ctx context.Context, hook string, s Source, id user.Identity) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &domain.HookError{Hook: hook, Err: err}
	}
	v, err := s.Resolve(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", id.Name, &domain.HookError{Hook: hook, Err: err})
	}
	return v, nil
}
