//go:build mssql || all_drivers

package mssql

import (
	"github.com/ekaya-inc/dbx/pkg/driver"
)

func init() {
	driver.Register(driver.Registration{
		Info: driver.Info{
			Name:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2016+, Azure SQL Database",
		},
		Driver: Driver{},
	})
}
