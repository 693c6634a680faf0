// Command booking-sweep concludes expired PENDING appointments. It runs once by default, for
// cron; --interval keeps it running as a standalone worker.
package main

import (
	"context"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/agendei/libs/config"
	"github.com/md-rashed-zaman/agendei/libs/db"
	"github.com/md-rashed-zaman/agendei/libs/runtime"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/sweep"
	"github.com/spf13/cobra"
)

type options struct {
	databaseURL string
	timezone    string
	batchSize   int
	interval    time.Duration
	migrate     bool
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "booking-sweep",
		Short:        "Conclude PENDING appointments whose end time has passed",
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			config.LoadDotEnv()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.databaseURL == "" {
				opts.databaseURL = config.String("DATABASE_URL", "")
			}
			if opts.databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.databaseURL, "database-url", "", "postgres connection string (defaults to DATABASE_URL)")
	cmd.Flags().StringVar(&opts.timezone, "timezone", config.String("BOOKING_TIMEZONE", "America/Sao_Paulo"), "IANA zone wall-clock times are read in")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", booking.DefaultSweepBatchSize, "appointments loaded per page")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "repeat the sweep on this interval instead of exiting")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply schema migrations before sweeping")
	return cmd
}

func run(ctx context.Context, opts options) error {
	logger := runtime.NewLogger("booking-sweep")

	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	pool, err := db.Open(ctx, opts.databaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()
	if opts.migrate {
		if err := storage.Migrate(ctx, pool, logger); err != nil {
			return err
		}
	}

	m := metrics.New()
	store := storage.NewPostgres(pool).OnRetry(func(int, error) { m.TxRetry() })
	engine := booking.NewEngine(store, nil, logger, m, booking.Config{Location: loc, SweepBatchSize: opts.batchSize})
	worker := sweep.NewWorker(engine, logger, m, sweep.WorkerConfig{Interval: opts.interval})

	if opts.interval > 0 {
		worker.Run(ctx)
		return nil
	}
	res, err := worker.RunOnce(ctx)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d appointments could not be concluded", res.Failed)
	}
	return nil
}

func main() {
	ctx, stop := runtime.SignalContext()
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
