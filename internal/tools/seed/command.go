package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/storefront-inventory-service/internal/database"
	"github.com/sandeepkv93/storefront-inventory-service/internal/domain"
	"github.com/sandeepkv93/storefront-inventory-service/internal/tools/common"
	"github.com/sandeepkv93/storefront-inventory-service/internal/tools/ui"
)

type options struct {
	envFile string
	timeout time.Duration
	migrate bool
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "seed", Short: "Sample catalog tooling"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	apply := newCommand(opts, "apply", "Insert sample products that are not present yet", func(ctx context.Context, db *gorm.DB) ([]string, error) {
		return applySeed(ctx, db, opts.migrate)
	})
	apply.Flags().BoolVar(&opts.migrate, "migrate", true, "run schema migration before seeding")

	cmd.AddCommand(
		apply,
		newCommand(opts, "dry-run", "Show which sample products would be inserted", dryRun),
		newCommand(opts, "stats", "Summarize the current catalog", stats),
	)
	return cmd
}

func newCommand(opts *options, use, short string, fn func(context.Context, *gorm.DB) ([]string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := ui.Run(ui.Options{Tool: "seed", Command: use, CI: opts.ci, Timeout: opts.timeout}, func(ctx context.Context) ([]string, error) {
				_, db, err := common.LoadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDB(db)
				return fn(ctx, db)
			})
			if err != nil {
				os.Exit(common.ExitCommandFailed)
			}
			return nil
		},
	}
}

func applySeed(ctx context.Context, db *gorm.DB, migrate bool) ([]string, error) {
	if migrate {
		if err := database.Migrate(db.WithContext(ctx)); err != nil {
			return nil, err
		}
	}
	report, err := database.SeedSampleCatalog(ctx, db)
	if err != nil {
		return nil, err
	}
	details := []string{
		fmt.Sprintf("created_products=%d", report.CreatedProducts),
		fmt.Sprintf("existing_skipped=%d", report.ExistingSkipped),
	}
	if report.Noop {
		details = append(details, "catalog already seeded")
	}
	return details, nil
}

func dryRun(ctx context.Context, db *gorm.DB) ([]string, error) {
	pending, err := database.PendingTables(db.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	missingTable := len(pending) > 0 && !db.Migrator().HasTable(&domain.Product{})

	details := make([]string, 0, len(database.SampleProducts())+1)
	for _, p := range database.SampleProducts() {
		if !missingTable {
			var count int64
			if err := db.WithContext(ctx).Model(&domain.Product{}).Where("name = ?", p.Name).Count(&count).Error; err != nil {
				return nil, err
			}
			if count > 0 {
				details = append(details, fmt.Sprintf("would skip %q (already present)", p.Name))
				continue
			}
		}
		details = append(details, fmt.Sprintf("would insert %q category=%s price=%s stock=%d", p.Name, p.Category, p.Price.StringFixed(2), p.Stock))
	}
	return append(details, "no mutation executed in dry-run mode"), nil
}

func stats(ctx context.Context, db *gorm.DB) ([]string, error) {
	s, err := database.ReadCatalogStats(ctx, db)
	if err != nil {
		return nil, err
	}
	return []string{
		fmt.Sprintf("products=%d", s.Products),
		fmt.Sprintf("categories=%d", s.Categories),
		fmt.Sprintf("total_stock=%d", s.TotalStock),
		"avg_price=" + s.AvgPrice.StringFixed(2),
		"min_price=" + s.MinPrice.StringFixed(2),
		"max_price=" + s.MaxPrice.StringFixed(2),
	}, nil
}
