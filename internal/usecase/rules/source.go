// Package rules resolves the per-user credit parameters (cap, grant value and
// grant interval) from fixed values, config tables or caller supplied functions.
package rules

import (
	"context"
	"slices"

	"github.com/kailas-cloud/credits/internal/domain/user"
)

// Source yields one integer parameter for a user. Implementations may block;
// they should honour ctx cancellation.
type Source interface {
	Resolve(ctx context.Context, id user.Identity) (int64, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, id user.Identity) (int64, error)

// Resolve calls f.
func (f SourceFunc) Resolve(ctx context.Context, id user.Identity) (int64, error) {
	return f(ctx, id)
}

// Fixed is a Source returning the same value for every user.
type Fixed int64

// Resolve returns the fixed value.
func (f Fixed) Resolve(context.Context, user.Identity) (int64, error) {
	return int64(f), nil
}

// Rule matches users by name, group membership or admin flag.
// Every non-empty criterion must hold for the rule to match.
type Rule struct {
	Users  []string
	Groups []string
	Admin  *bool
	Value  int64
}

// Matches reports whether the identity satisfies the rule.
func (r Rule) Matches(id user.Identity) bool {
	if len(r.Users) > 0 && !slices.Contains(r.Users, id.Name) {
		return false
	}
	if len(r.Groups) > 0 && !anyGroup(id, r.Groups) {
		return false
	}
	if r.Admin != nil && *r.Admin != id.Admin {
		return false
	}
	return true
}

// Table is an ordered rule list; the first matching rule wins.
type Table struct {
	Default int64
	Rules   []Rule
}

// Resolve returns the value of the first matching rule, or the default.
func (t Table) Resolve(_ context.Context, id user.Identity) (int64, error) {
	for _, r := range t.Rules {
		if r.Matches(id) {
			return r.Value, nil
		}
	}
	return t.Default, nil
}

func anyGroup(id user.Identity, groups []string) bool {
	for _, g := range groups {
		if id.InGroup(g) {
			return true
		}
	}
	return false
}
