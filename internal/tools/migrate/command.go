package migrate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/storefront-inventory-service/internal/database"
	"github.com/sandeepkv93/storefront-inventory-service/internal/di"
	"github.com/sandeepkv93/storefront-inventory-service/internal/tools/common"
	"github.com/sandeepkv93/storefront-inventory-service/internal/tools/ui"
)

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Catalog schema tooling",
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newCommand(opts, "up", "Create or update the catalog tables", up),
		newCommand(opts, "status", "Report connectivity and pending tables", status),
		newCommand(opts, "plan", "Show what up would change without applying it", plan),
	)
	return cmd
}

func newCommand(opts *options, use, short string, fn func(context.Context, *di.MigrationRunner) ([]string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := ui.Run(ui.Options{Tool: "migrate", Command: use, CI: opts.ci, Timeout: opts.timeout}, func(ctx context.Context) ([]string, error) {
				if err := common.LoadEnvFile(opts.envFile); err != nil {
					return nil, err
				}
				runner, err := di.InitializeMigrationRunner()
				if err != nil {
					return nil, err
				}
				defer common.CloseDB(runner.DB())
				return fn(ctx, runner)
			})
			if err != nil {
				os.Exit(common.ExitCommandFailed)
			}
			return nil
		},
	}
}

func up(ctx context.Context, runner *di.MigrationRunner) ([]string, error) {
	return runner.Run(ctx)
}

func status(ctx context.Context, runner *di.MigrationRunner) ([]string, error) {
	db := runner.DB()
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	pending, err := database.PendingTables(db.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	details := []string{"database reachable", "dialect: " + db.Dialector.Name()}
	if len(pending) == 0 {
		return append(details, "migrations: up to date"), nil
	}
	return append(details, "pending tables: "+strings.Join(pending, ", ")), nil
}

func plan(ctx context.Context, runner *di.MigrationRunner) ([]string, error) {
	pending, err := database.PendingTables(runner.DB().WithContext(ctx))
	if err != nil {
		return nil, err
	}
	details := make([]string, 0, len(pending)+2)
	for _, table := range pending {
		details = append(details, "would create table "+table)
	}
	if len(pending) == 0 {
		details = append(details, "would reconcile columns and indexes on existing tables")
	}
	return append(details, "no mutation executed in plan mode"), nil
}
