package loadgen

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/storefront-inventory-service/internal/tools/common"
	"github.com/sandeepkv93/storefront-inventory-service/internal/tools/ui"
)

type options struct {
	baseURL     string
	profile     string
	duration    time.Duration
	rps         int
	concurrency int
	seed        int64
	stock       int
	buyers      int
	quantity    int
	ci          bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "loadgen", Short: "Drive catalog traffic and verify purchase consistency"}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newRunCommand(opts), newRaceCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run load generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := ui.Run(ui.Options{Tool: "loadgen", Command: "run", CI: opts.ci, Timeout: opts.duration + 15*time.Second}, func(ctx context.Context) ([]string, error) {
				res, err := Run(ctx, Config{
					BaseURL:     opts.baseURL,
					Profile:     opts.profile,
					Duration:    opts.duration,
					RPS:         opts.rps,
					Concurrency: opts.concurrency,
					Seed:        opts.seed,
				})
				if err != nil {
					return nil, err
				}
				return []string{
					fmt.Sprintf("total_requests=%d", res.TotalRequests),
					fmt.Sprintf("purchases=%d", res.Purchases),
					fmt.Sprintf("failures=%d", res.Failures),
					fmt.Sprintf("status_2xx=%d", res.Status2xx),
					fmt.Sprintf("status_4xx=%d", res.Status4xx),
					fmt.Sprintf("status_5xx=%d", res.Status5xx),
				}, nil
			})
			if err != nil {
				os.Exit(common.ExitLoadFailed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.profile, "profile", "mixed", "traffic profile: browse|mixed|purchase-heavy|error-heavy")
	cmd.Flags().DurationVar(&opts.duration, "duration", 15*time.Second, "traffic duration")
	cmd.Flags().IntVar(&opts.rps, "rps", 20, "requests per second")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 6, "concurrent workers")
	cmd.Flags().Int64Var(&opts.seed, "seed", 42, "random seed")
	return cmd
}

func newRaceCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "race",
		Short: "Fire concurrent purchases at one product and check for overselling",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := ui.Run(ui.Options{Tool: "loadgen", Command: "race", CI: opts.ci, Timeout: time.Minute}, func(ctx context.Context) ([]string, error) {
				res, err := Race(ctx, RaceConfig{
					BaseURL:  opts.baseURL,
					Stock:    opts.stock,
					Buyers:   opts.buyers,
					Quantity: opts.quantity,
				})
				details := []string{
					fmt.Sprintf("product_id=%d", res.ProductID),
					fmt.Sprintf("succeeded=%d expected=%d", res.Succeeded, res.ExpectedSucceeded()),
					fmt.Sprintf("insufficient_stock=%d", res.Insufficient),
					fmt.Sprintf("rate_limited=%d", res.RateLimited),
					fmt.Sprintf("failed=%d", res.Failed),
					fmt.Sprintf("final_stock=%d", res.FinalStock),
				}
				return details, err
			})
			if err != nil {
				os.Exit(common.ExitLoadFailed)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.stock, "stock", 10, "initial stock of the race product")
	cmd.Flags().IntVar(&opts.buyers, "buyers", 25, "concurrent purchase requests")
	cmd.Flags().IntVar(&opts.quantity, "quantity", 1, "units per purchase")
	return cmd
}
