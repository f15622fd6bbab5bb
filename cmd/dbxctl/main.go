// dbxctl is a small operator tool over the dbx connectivity layer: it lists
// compiled-in drivers and pings configured datasources, directly or through
// a pool.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/dbx/pkg/config"
	"github.com/ekaya-inc/dbx/pkg/dbx"
	"github.com/ekaya-inc/dbx/pkg/driver"
	"github.com/ekaya-inc/dbx/pkg/logging"

	_ "github.com/ekaya-inc/dbx/pkg/driver/mssql"
	_ "github.com/ekaya-inc/dbx/pkg/driver/postgres"
	_ "github.com/ekaya-inc/dbx/pkg/driver/sqlite"
)

var (
	configPath string
	timeout    time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dbxctl",
		Short: "dbxctl - operate dbx datasources",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Config file path")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-command timeout")

	rootCmd.AddCommand(
		driversCmd(),
		pingCmd(),
		configCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func driversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List compiled-in drivers",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDISPLAY NAME\tDESCRIPTION")
			for _, info := range driver.Registered() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", info.Name, info.DisplayName, info.Description)
			}
			return w.Flush()
		},
	}
}

func pingCmd() *cobra.Command {
	var pooled bool

	cmd := &cobra.Command{
		Use:   "ping <datasource>",
		Short: "Ping a configured datasource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ds, ok := cfg.Datasources[args[0]]
			if !ok {
				return fmt.Errorf("datasource %q not in %s", args[0], configPath)
			}

			logger, err := buildLogger(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db := dbx.New(logger, dbx.WithPoolMax(cfg.Pool.DefaultMax))
			ref := driver.ByName(ds.Driver)

			if pooled {
				if _, err := db.ConnectCached(ctx, ref, ds.Expand(), dbx.WithPoolName(args[0])); err != nil {
					return err
				}
				avg, err := db.Pool(args[0]).Ping(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%s: pool mean ping %.0f ms\n", args[0], avg)
				return nil
			}

			latency, err := db.Ping(ctx, ref, ds.Expand())
			if err != nil {
				return err
			}
			fmt.Printf("%s: %.2f ms\n", args[0], latency)
			return nil
		},
	}

	cmd.Flags().BoolVar(&pooled, "pooled", false, "Ping through a pool instead of a direct connection")
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			for name, ds := range cfg.Datasources {
				ds.Params = logging.SanitizeConfig(ds.Params)
				cfg.Datasources[name] = ds
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}
