package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/credits/internal/db"
	dbRedis "github.com/kailas-cloud/credits/internal/db/redis"
	dbSQLite "github.com/kailas-cloud/credits/internal/db/sqlite"
	"github.com/kailas-cloud/credits/internal/directory"
	"github.com/kailas-cloud/credits/internal/domain"
	domcredit "github.com/kailas-cloud/credits/internal/domain/credit"
	"github.com/kailas-cloud/credits/internal/domain/lease"
	"github.com/kailas-cloud/credits/internal/domain/user"
	creditrepo "github.com/kailas-cloud/credits/internal/repository/credit"
	credituc "github.com/kailas-cloud/credits/internal/usecase/credit"
	healthuc "github.com/kailas-cloud/credits/internal/usecase/health"
	"github.com/kailas-cloud/credits/internal/usecase/reconcile"
	"github.com/kailas-cloud/credits/internal/usecase/rules"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultStopTimeout      = 30 * time.Second
)

// Внутренние интерфейсы для подмены в тестах.
type creditUseCase interface {
	Register(ctx context.Context, id user.Identity) error
	Balance(ctx context.Context, name string) (domcredit.Record, error)
	AdminUpdate(ctx context.Context, name string, o domcredit.Override) error
}

type leaseDirectory interface {
	UpsertLease(l lease.Lease)
	RemoveLease(owner, id string) bool
	Leases(name string) ([]lease.Lease, bool)
	Users() []string
}

type engineUseCase interface {
	Start(ctx context.Context) error
	Stop()
	Tick(ctx context.Context) reconcile.TickReport
}

// Client is the credits SDK entry point.
type Client struct {
	store     db.Store
	creditSvc creditUseCase
	dir       leaseDirectory
	engine    engineUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New creates a Client and connects to the database.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		keyPrefix:         domain.DefaultKeyPrefix,
		taskInterval:      time.Duration(domain.DefaultTaskInterval) * time.Second,
		stopTimeout:       defaultStopTimeout,
		userCap:           domain.DefaultUserCap,
		userGrantValue:    domain.DefaultUserGrantValue,
		userGrantInterval: time.Duration(domain.DefaultUserGrantInterval) * time.Second,
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("credits: database not ready: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return wireClient(store, cfg, obs), nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "valkey", "redis":
		if len(cfg.addrs) == 0 {
			return nil, errors.New("credits: database address required")
		}
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("credits: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	case "sqlite":
		s, err := dbSQLite.NewStore(dbSQLite.Config{Path: cfg.path})
		if err != nil {
			return nil, fmt.Errorf("credits: create sqlite store: %w", err)
		}
		return s, nil
	case "":
		return nil, errors.New("credits: database required (use WithValkey, WithRedis or WithSQLite)")
	default:
		return nil, fmt.Errorf("credits: unknown driver %q", cfg.driver)
	}
}

func wireClient(store db.Store, cfg *clientConfig, obs *observer) *Client {
	var stopper directory.Stopper
	if cfg.stopper != nil {
		stopper = stopperAdapter{inner: cfg.stopper}
	}
	dir := directory.New(stopper)
	repo := creditrepo.New(store, cfg.keyPrefix)

	defaults := cfg.defaults()
	resolver := rules.New(
		capSource(cfg),
		rules.Fixed(defaults.GrantValue),
		rules.Fixed(defaults.GrantInterval),
	)
	creditSvc := credituc.New(repo, resolver, dir, true)

	hooks := cfg.hooks
	engine := reconcile.New(repo, dir,
		reconcile.Config{Interval: cfg.taskInterval, StopTimeout: cfg.stopTimeout},
		reconcile.WithPostTickHook(reconcile.HookFunc(func(_ context.Context, r reconcile.TickReport) error {
			rep := reportFromDomain(r)
			obs.tick(rep)
			for _, fn := range hooks {
				fn(rep)
			}
			return nil
		})),
	)

	return &Client{
		store:     store,
		creditSvc: creditSvc,
		dir:       dir,
		engine:    engine,
		healthSvc: healthuc.New(store, nil),
		obs:       obs,
	}
}

// defaults returns the grant parameters applied to users without a group cap.
func (c *clientConfig) defaults() domcredit.Params {
	return domcredit.Params{
		Cap:           c.userCap,
		GrantValue:    c.userGrantValue,
		GrantInterval: int64(c.userGrantInterval / time.Second),
	}
}

// validate rejects defaults that would make every login fail.
// The grant interval is stored in whole seconds.
func (c *clientConfig) validate() error {
	if c.userGrantInterval < time.Second {
		return fmt.Errorf("credits: grant interval %s is shorter than 1s: %w", c.userGrantInterval, domain.ErrValidation)
	}
	if err := c.defaults().Validate(); err != nil {
		return fmt.Errorf("credits: invalid defaults: %w", err)
	}
	for _, g := range c.groupCaps {
		if g.cap < 0 {
			return fmt.Errorf("credits: negative cap for group %q: %w", g.group, domain.ErrValidation)
		}
	}
	return nil
}

func capSource(cfg *clientConfig) rules.Source {
	if len(cfg.groupCaps) == 0 {
		return rules.Fixed(cfg.userCap)
	}
	table := rules.Table{Default: cfg.userCap}
	for _, g := range cfg.groupCaps {
		table.Rules = append(table.Rules, rules.Rule{Groups: []string{g.group}, Value: g.cap})
	}
	return table
}

// Start runs reconciliation in the background until Close.
// The first tick runs immediately.
func (c *Client) Start(ctx context.Context) error {
	if err := c.engine.Start(ctx); err != nil {
		return fmt.Errorf("credits: start: %w", err)
	}
	return nil
}

// Tick runs one reconciliation pass synchronously.
func (c *Client) Tick(ctx context.Context) TickReport {
	start := time.Now()
	r := c.engine.Tick(ctx)
	c.obs.observe("tick", start, nil)
	return reportFromDomain(r)
}

// Close stops reconciliation, waits for pending lease stops and releases the store.
func (c *Client) Close() {
	if c.engine != nil {
		c.engine.Stop()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Login registers a user and brings its credit record in line with the rules.
func (c *Client) Login(ctx context.Context, u User) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("login", start, err) }()

	return c.creditSvc.Register(ctx, u.toDomain())
}

// Balance returns the stored credit record of a user.
func (c *Client) Balance(ctx context.Context, name string) (_ Credit, err error) {
	start := time.Now()
	defer func() { c.obs.observe("balance", start, err) }()

	rec, err := c.creditSvc.Balance(ctx, name)
	if err != nil {
		return Credit{}, err
	}
	return creditFromDomain(&rec), nil
}

// Update applies an administrative override to a known user's record.
func (c *Client) Update(ctx context.Context, name string, o Override) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("update", start, err) }()

	return c.creditSvc.AdminUpdate(ctx, name, o.toDomain())
}

// Users returns the names of all logged-in users.
func (c *Client) Users() []string {
	return c.dir.Users()
}

// Leases returns the lease directory service.
func (c *Client) Leases() *LeaseService {
	return &LeaseService{dir: c.dir, obs: c.obs}
}
