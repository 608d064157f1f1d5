// Package credit implements the user facing credit operations: seeding and
// refreshing records on login, reading a balance and administrative overrides.
package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/credits/internal/domain"
	domcredit "github.com/kailas-cloud/credits/internal/domain/credit"
	"github.com/kailas-cloud/credits/internal/domain/user"
)

// Service handles credit record lifecycle outside the reconciliation tick.
type Service struct {
	repo    Repository
	rules   ParamResolver
	dir     Directory
	enabled bool
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a credit service. When enabled is false every operation
// behaves as if no credit data existed.
func New(repo Repository, rules ParamResolver, dir Directory, enabled bool, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		rules:   rules,
		dir:     dir,
		enabled: enabled,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enabled reports whether the credits feature is on.
func (s *Service) Enabled() bool { return s.enabled }

// Register records the identity in the lease directory and refreshes its credits.
func (s *Service) Register(ctx context.Context, id user.Identity) error {
	if id.Name == "" {
		return domain.NewValidationError("name", "is required")
	}
	s.dir.Register(id)
	return s.UpdateUserCredit(ctx, id)
}

// UpdateUserCredit resolves the user's parameters and creates or refreshes
// the stored record. Writes happen only when something changed.
func (s *Service) UpdateUserCredit(ctx context.Context, id user.Identity) error {
	if !s.enabled {
		return nil
	}

	params, err := s.rules.Resolve(ctx, id)
	if err != nil {
		return fmt.Errorf("update credits of %s: %w", id.Name, err)
	}

	rec, err := s.repo.Get(ctx, id.Name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if cerr := s.create(ctx, id.Name, params); !errors.Is(cerr, domain.ErrAlreadyExists) {
			return cerr
		}
		// Lost a create race with another writer; refresh the winner's record.
		if rec, err = s.repo.Get(ctx, id.Name); err != nil {
			return fmt.Errorf("update credits of %s: %w", id.Name, err)
		}
	case err != nil:
		return fmt.Errorf("update credits of %s: %w", id.Name, err)
	}

	if !rec.ApplyParams(params) {
		return nil
	}
	if err := s.repo.Commit(ctx, &rec); err != nil {
		return fmt.Errorf("update credits of %s: %w", id.Name, err)
	}
	s.logger.Debug("credit parameters updated",
		zap.String("user", id.Name),
		zap.Int64("balance", rec.Balance()),
		zap.Int64("cap", rec.Cap()),
		zap.Int64("grant_value", rec.GrantValue()),
		zap.Int64("grant_interval", rec.GrantInterval()),
	)
	return nil
}

func (s *Service) create(ctx context.Context, name string, params domcredit.Params) error {
	rec, err := domcredit.New(name, params, s.now())
	if err != nil {
		return fmt.Errorf("create credits of %s: %w", name, err)
	}
	if err := s.repo.Create(ctx, &rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("create credits of %s: %w", name, err)
	}
	s.logger.Info("credit record created",
		zap.String("user", name),
		zap.Int64("balance", rec.Balance()),
		zap.Int64("cap", rec.Cap()),
	)
	return nil
}

// Balance returns the credit record of a user.
// A disabled feature reports domain.ErrNotFound.
func (s *Service) Balance(ctx context.Context, name string) (domcredit.Record, error) {
	if !s.enabled {
		return domcredit.Record{}, fmt.Errorf("%w: %w", domain.ErrNotFound, domain.ErrDisabled)
	}
	rec, err := s.repo.Get(ctx, name)
	if err != nil {
		return domcredit.Record{}, fmt.Errorf("get credits of %s: %w", name, err)
	}
	return rec, nil
}

// AdminUpdate applies a partial override to a user's record and commits it.
func (s *Service) AdminUpdate(ctx context.Context, name string, o domcredit.Override) error {
	if !s.enabled {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, domain.ErrDisabled)
	}
	if !s.dir.HasUser(name) {
		return fmt.Errorf("admin update %s: %w", name, domain.ErrUserNotFound)
	}

	rec, err := s.repo.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("admin update %s: %w", name, err)
	}
	if err := rec.ApplyOverride(o); err != nil {
		return fmt.Errorf("admin update %s: %w", name, err)
	}
	if o.IsEmpty() {
		return nil
	}
	if err := s.repo.Commit(ctx, &rec); err != nil {
		return fmt.Errorf("admin update %s: %w", name, err)
	}

	s.logger.Info("credits updated by admin",
		zap.String("user", name),
		zap.Int64("balance", rec.Balance()),
		zap.Int64("cap", rec.Cap()),
		zap.Int64("grant_value", rec.GrantValue()),
		zap.Int64("grant_interval", rec.GrantInterval()),
	)
	return nil
}
