package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/credits/internal/config"
	"github.com/kailas-cloud/credits/internal/domain/user"
	"github.com/kailas-cloud/credits/internal/usecase/reconcile"
	"github.com/kailas-cloud/credits/internal/usecase/rules"
)

func i64(v int64) *int64 { return &v }

func TestParamSource_Fixed(t *testing.T) {
	src := paramSource(config.ParamConfig{Default: i64(75)})
	if _, ok := src.(rules.Fixed); !ok {
		t.Fatalf("expected Fixed, got %T", src)
	}
	v, err := src.Resolve(context.Background(), user.Identity{Name: "a"})
	if err != nil || v != 75 {
		t.Errorf("expected 75, got %d (%v)", v, err)
	}
}

func TestParamSource_Table(t *testing.T) {
	admin := true
	src := paramSource(config.ParamConfig{
		Default: i64(100),
		Rules: []config.RuleConfig{
			{Groups: []string{"premium"}, Value: 500},
			{Admin: &admin, Value: 1000},
		},
	})

	tests := []struct {
		id   user.Identity
		want int64
	}{
		{user.Identity{Name: "a"}, 100},
		{user.Identity{Name: "b", Groups: []string{"premium"}}, 500},
		{user.Identity{Name: "c", Admin: true}, 1000},
	}
	for _, tc := range tests {
		v, err := src.Resolve(context.Background(), tc.id)
		if err != nil || v != tc.want {
			t.Errorf("%s: expected %d, got %d (%v)", tc.id.Name, tc.want, v, err)
		}
	}
}

func TestPostTickHooks(t *testing.T) {
	hooks := postTickHooks([]string{config.HookMetrics, config.HookNATS}, nil)
	if len(hooks) != 1 {
		t.Fatalf("expected only the metrics hook without a bus, got %d", len(hooks))
	}
	if err := hooks.AfterTick(context.Background(), reconcile.TickReport{Users: 1}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthTokens(t *testing.T) {
	out := authTokens([]config.TokenConfig{{Token: "t", User: "u", Admin: true}})
	if len(out) != 1 || out[0].Token != "t" || out[0].User != "u" || !out[0].Admin {
		t.Errorf("unexpected tokens %+v", out)
	}
}

func TestOpenStore_SQLiteMemory(t *testing.T) {
	store, err := openStore(config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	if _, err := openStore(config.DatabaseConfig{Driver: "mongo"}, zap.NewNop()); err == nil {
		t.Fatal("expected error")
	}
}
