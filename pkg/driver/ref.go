package driver

import (
	"fmt"

	"github.com/ekaya-inc/dbx/pkg/apperrors"
)

// Ref identifies a driver either by registry name or as an already-resolved
// implementation. The two-variant form replaces open-ended "string, symbol,
// or object" dispatch with something the compiler can check.
type Ref struct {
	name string
	drv  Driver
}

// ByName references a driver looked up in the registry at resolve time.
func ByName(name string) Ref { return Ref{name: name} }

// Resolved references a concrete driver directly, bypassing the registry.
func Resolved(d Driver) Ref { return Ref{drv: d} }

// String returns the driver name for logging.
func (r Ref) String() string {
	if r.drv != nil {
		return r.drv.Name()
	}
	return r.name
}

// Resolve returns the concrete driver. A zero Ref fails with
// apperrors.ErrInvalidDriver; an unknown name fails with
// apperrors.ErrUnknownDriver.
func (r Ref) Resolve() (Driver, error) {
	if r.drv != nil {
		return r.drv, nil
	}
	if r.name == "" {
		return nil, fmt.Errorf("empty driver reference: %w", apperrors.ErrInvalidDriver)
	}
	return Get(r.name)
}
