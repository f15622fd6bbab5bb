//go:build postgres || all_drivers

package postgres

import (
	"github.com/ekaya-inc/dbx/pkg/driver"
)

func init() {
	driver.Register(driver.Registration{
		Info: driver.Info{
			Name:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
		},
		Driver: Driver{},
	})
}
