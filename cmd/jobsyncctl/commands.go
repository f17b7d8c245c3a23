package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/app"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/engine"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/ledger"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/notify"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/store"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

type rootOptions struct {
	dbURL   string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "jobsyncctl",
		Short:        "Operate the job sync store: migrations, legacy import and sweeps",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.dbURL, "db-url", os.Getenv("DB_URL"), "Postgres connection URL (default $DB_URL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall command timeout")

	root.AddCommand(
		migrateCmd(opts),
		importCmd(opts),
		relocateCmd(opts),
		expireOffersCmd(opts),
	)
	return root
}

// withPool connects, runs fn and closes the pool.
func (o *rootOptions) withPool(cmd *cobra.Command, fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
	if o.dbURL == "" {
		return errors.New("--db-url or DB_URL is required")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	pool, err := app.ConnectDB(ctx, o.dbURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}

// sweepEngine builds an engine for the maintenance sweeps, which never notify anyone.
func sweepEngine(s store.Store) *engine.Engine {
	return engine.New(s, ledger.NewMemoryLedger(utils.SystemClock), notify.LogChannel{}, nil, utils.SystemClock, nil, engine.Options{})
}

func migrateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
				if err := store.Migrate(ctx, pool); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func importCmd(o *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import legacy job documents (native and web-app exports)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if dryRun {
				_, err := importJobs(cmd.Context(), nil, data, time.Now(), cmd.OutOrStdout())
				return err
			}
			return o.withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
				_, err := importJobs(ctx, store.NewPostgresStore(pool), data, time.Now(), cmd.OutOrStdout())
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and validate only")
	return cmd
}

type importSummary struct {
	Imported  int
	Duplicate int
	Rejected  int
}

// importJobs parses data and creates every valid job in s. A nil store only validates.
func importJobs(ctx context.Context, s store.Store, data []byte, now time.Time, out io.Writer) (importSummary, error) {
	var sum importSummary
	jobs, skipped, err := store.ParseLegacyExport(data, now.UTC().Truncate(time.Microsecond))
	if err != nil {
		return sum, err
	}
	for _, e := range skipped {
		sum.Rejected++
		fmt.Fprintf(out, "rejected: %v\n", e)
	}
	for _, j := range jobs {
		if s == nil {
			sum.Imported++
			continue
		}
		_, err := s.Create(ctx, j)
		switch {
		case err == nil:
			sum.Imported++
		case errors.Is(err, utils.ErrDuplicateJob):
			sum.Duplicate++
		default:
			return sum, fmt.Errorf("import job %s: %w", j.ID, err)
		}
	}
	fmt.Fprintf(out, "imported %d, already present %d, rejected %d\n", sum.Imported, sum.Duplicate, sum.Rejected)
	return sum, nil
}

func relocateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "relocate",
		Short: "Move COMPLETED jobs left in the active table to completed_jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
				n, err := sweepEngine(store.NewPostgresStore(pool)).RelocateCompleted(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "relocated %d jobs\n", n)
				return err
			})
		},
	}
}

func expireOffersCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "expire-offers",
		Short: "Return OFFERED jobs whose offer ran out to PENDING",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
				n, err := sweepEngine(store.NewPostgresStore(pool)).ExpireOffers(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d offers\n", n)
				return err
			})
		},
	}
}
