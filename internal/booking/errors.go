package booking

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. Callers match with errors.Is and map to
// transport responses; conflicts and quota rejections carry distinct
// identities so the gateway can re-offer slots or prompt an upgrade.
var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrValidation    = errors.New("validation failed")
	ErrConflict      = errors.New("slot conflict")
	ErrQuotaExceeded = errors.New("monthly appointment quota exceeded")
)

// validationf builds a field-carrying validation error.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
