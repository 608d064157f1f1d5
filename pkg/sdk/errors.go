package credits

import "github.com/kailas-cloud/credits/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound      = domain.ErrNotFound
	ErrUserNotFound  = domain.ErrUserNotFound
	ErrAlreadyExists = domain.ErrAlreadyExists
	ErrValidation    = domain.ErrValidation
	ErrStore         = domain.ErrStore
	ErrHook          = domain.ErrHook
	ErrDisabled      = domain.ErrDisabled
)
