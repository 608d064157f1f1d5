package credit

import (
	"context"

	domcredit "github.com/kailas-cloud/credits/internal/domain/credit"
	"github.com/kailas-cloud/credits/internal/domain/user"
)

// Repository defines the storage contract for credit records.
type Repository interface {
	Get(ctx context.Context, name string) (domcredit.Record, error)
	Create(ctx context.Context, rec *domcredit.Record) error
	Commit(ctx context.Context, rec *domcredit.Record) error
}

// ParamResolver computes the grant parameters of a user.
type ParamResolver interface {
	Resolve(ctx context.Context, id user.Identity) (domcredit.Params, error)
}

// Directory is the subset of the lease directory the service writes to.
type Directory interface {
	Register(id user.Identity)
	HasUser(name string) bool
}
