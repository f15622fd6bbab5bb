//go:build sqlite || all_drivers

package sqlite

import (
	"github.com/ekaya-inc/dbx/pkg/driver"
)

func init() {
	driver.Register(driver.Registration{
		Info: driver.Info{
			Name:        "sqlite",
			DisplayName: "SQLite",
			Description: "Connect to a local SQLite database file",
		},
		Driver: Driver{},
	})
}
