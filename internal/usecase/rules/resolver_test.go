package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/credits/internal/domain"
	"github.com/kailas-cloud/credits/internal/domain/user"
)

func boolPtr(b bool) *bool { return &b }

func TestResolve_Defaults(t *testing.T) {
	r := New(nil, nil, nil)
	p, err := r.Resolve(context.Background(), user.Identity{Name: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Cap != domain.DefaultUserCap || p.GrantValue != domain.DefaultUserGrantValue ||
		p.GrantInterval != domain.DefaultUserGrantInterval {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestResolve_FixedAndFunc(t *testing.T) {
	calls := 0
	capFn := SourceFunc(func(_ context.Context, id user.Identity) (int64, error) {
		calls++
		if id.Admin {
			return 1000, nil
		}
		return 50, nil
	})
	r := New(capFn, Fixed(5), Fixed(60))

	p, err := r.Resolve(context.Background(), user.Identity{Name: "root", Admin: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Cap != 1000 || p.GrantValue != 5 || p.GrantInterval != 60 {
		t.Errorf("unexpected params: %+v", p)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestResolve_BlockingSourceHonoursContext(t *testing.T) {
	slow := SourceFunc(func(ctx context.Context, _ user.Identity) (int64, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return 1, nil
		}
	})
	r := New(slow, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, user.Identity{Name: "bob"})
	if !errors.Is(err, domain.ErrHook) {
		t.Fatalf("expected ErrHook, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline cause, got %v", err)
	}
}

func TestResolve_SourceErrorIsHookError(t *testing.T) {
	boom := errors.New("ldap unavailable")
	r := New(nil, SourceFunc(func(context.Context, user.Identity) (int64, error) {
		return 0, boom
	}), nil)

	_, err := r.Resolve(context.Background(), user.Identity{Name: "bob"})
	var he *domain.HookError
	if !errors.As(err, &he) {
		t.Fatalf("expected *HookError, got %T", err)
	}
	if he.Hook != HookUserGrantValue {
		t.Errorf("expected hook %q, got %q", HookUserGrantValue, he.Hook)
	}
	if !errors.Is(err, boom) {
		t.Error("expected cause to be preserved")
	}
}

func TestResolve_RejectsNonPositiveInterval(t *testing.T) {
	r := New(nil, nil, Fixed(0))
	_, err := r.Resolve(context.Background(), user.Identity{Name: "bob"})
	if !errors.Is(err, domain.ErrHook) || !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected hook validation error, got %v", err)
	}
}

func TestResolve_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil, nil, nil).Resolve(ctx, user.Identity{Name: "bob"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTable_FirstMatchWins(t *testing.T) {
	table := Table{
		Default: 100,
		Rules: []Rule{
			{Users: []string{"vip"}, Value: 5000},
			{Groups: []string{"premium", "staff"}, Value: 500},
			{Admin: boolPtr(true), Value: 1000},
		},
	}

	tests := []struct {
		name string
		id   user.Identity
		want int64
	}{
		{"default", user.Identity{Name: "alice"}, 100},
		{"by name", user.Identity{Name: "vip", Groups: []string{"premium"}}, 5000},
		{"by group", user.Identity{Name: "carol", Groups: []string{"staff"}}, 500},
		{"group before admin", user.Identity{Name: "dave", Groups: []string{"premium"}, Admin: true}, 500},
		{"admin", user.Identity{Name: "root", Admin: true}, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Resolve(context.Background(), tt.id)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestRule_AllCriteriaMustHold(t *testing.T) {
	r := Rule{Groups: []string{"staff"}, Admin: boolPtr(false), Value: 1}
	if r.Matches(user.Identity{Name: "x", Groups: []string{"staff"}, Admin: true}) {
		t.Error("admin staff must not match non-admin rule")
	}
	if !r.Matches(user.Identity{Name: "x", Groups: []string{"staff"}}) {
		t.Error("non-admin staff should match")
	}
	if !(Rule{}).Matches(user.Identity{Name: "anyone"}) {
		t.Error("empty rule matches everyone")
	}
}
