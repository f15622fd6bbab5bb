package driver

import (
	"fmt"
	"sync"

	"github.com/ekaya-inc/dbx/pkg/apperrors"
)

// Info describes a registered driver for discovery surfaces (CLIs, UIs).
type Info struct {
	Name        string `json:"name"`         // "postgres", "mssql", "sqlite"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
}

// Registration pairs driver info with its implementation.
type Registration struct {
	Info   Info
	Driver Driver
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each driver package's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Name] = reg
}

// Registered returns info for all registered drivers.
func Registered() []Info {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Info, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	return result
}

// Get returns the driver registered under name, or an error naming the
// missing driver (usually a build-tag omission).
func Get(name string) (Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[name]; ok {
		return reg.Driver, nil
	}
	return nil, fmt.Errorf("driver %q (not compiled in): %w", name, apperrors.ErrUnknownDriver)
}

// IsRegistered checks if a driver name is available.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}
