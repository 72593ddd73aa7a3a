package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/dealdesk/cmd/dealdesk/cli"
	"github.com/odyssey-erp/dealdesk/internal/app"
	"github.com/odyssey-erp/dealdesk/internal/erps"
	"github.com/odyssey-erp/dealdesk/internal/fx"
	"github.com/odyssey-erp/dealdesk/internal/logistics"
	"github.com/odyssey-erp/dealdesk/internal/masterdata"
	"github.com/odyssey-erp/dealdesk/internal/observability"
	"github.com/odyssey-erp/dealdesk/internal/payments"
	"github.com/odyssey-erp/dealdesk/internal/platform/db"
	"github.com/odyssey-erp/dealdesk/internal/procurement"
	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/sales"
	"github.com/odyssey-erp/dealdesk/internal/specifications"
	"github.com/odyssey-erp/dealdesk/jobs"
	"github.com/odyssey-erp/dealdesk/migrations"
	"github.com/odyssey-erp/dealdesk/report"
)

const usage = `usage: dealdesk <command> [flags]

commands:
  serve                      run the HTTP API (default)
  migrate                    apply pending migrations
  fx import -file PATH       append rates from a CSV or XLSX file
  fx gaps -from D -to D      report missing rate rows
  logistics backfill         provision stages for deals that have none
  jobs trigger NAME          enqueue fx:refresh or logistics:backfill
  jobs stats                 print default queue statistics
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"serve"}
	}
	os.Exit(run(ctx, cfg, logger, args, os.Stdout, os.Stderr))
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "serve":
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			return 1
		}
		return 0
	case "migrate":
		if err := db.Migrate(migrations.FS, cfg.PGDSN); err != nil {
			fmt.Fprintf(stderr, "migrate: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "migrations applied")
		return 0
	case "fx":
		return runFX(ctx, cfg, logger, args[1:], stdout, stderr)
	case "logistics":
		return runLogistics(ctx, cfg, logger, args[1:], stdout, stderr)
	case "jobs":
		return runJobs(ctx, cfg, args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	}
	fmt.Fprint(stderr, usage)
	return 2
}

func runFX(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] {
	case "import":
		fs := flag.NewFlagSet("fx import", flag.ContinueOnError)
		fs.SetOutput(stderr)
		opts := cli.FXImportOptions{Stdout: stdout, Stderr: stderr}
		fs.StringVar(&opts.Source, "file", "", "CSV or XLSX file, - for stdin")
		fs.StringVar(&opts.Format, "format", "", "csv or xlsx (default: file extension)")
		fs.StringVar(&opts.Sheet, "sheet", "", "XLSX sheet name (default: first sheet)")
		fs.BoolVar(&opts.DryRun, "dry-run", false, "parse and print without writing")
		fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		service, closeFn, err := rateService(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(stderr, "fx import: %v\n", err)
			return 1
		}
		defer closeFn()
		ops, err := cli.NewFXOpsCLI(service)
		if err != nil {
			fmt.Fprintf(stderr, "fx import: %v\n", err)
			return 1
		}
		return ops.ImportCommand(ctx, opts)
	case "gaps":
		fs := flag.NewFlagSet("fx gaps", flag.ContinueOnError)
		fs.SetOutput(stderr)
		opts := cli.FXGapsOptions{Stdout: stdout, Stderr: stderr}
		today := time.Now().UTC().Format("2006-01-02")
		fs.StringVar(&opts.From, "from", today, "first date YYYY-MM-DD")
		fs.StringVar(&opts.To, "to", today, "last date YYYY-MM-DD")
		fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		service, closeFn, err := rateService(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(stderr, "fx gaps: %v\n", err)
			return 1
		}
		defer closeFn()
		ops, err := cli.NewFXOpsCLI(service)
		if err != nil {
			fmt.Fprintf(stderr, "fx gaps: %v\n", err)
			return 1
		}
		return ops.GapsCommand(ctx, opts)
	}
	fmt.Fprint(stderr, usage)
	return 2
}

// rateService wires only the rate table so rate maintenance works before the
// rest of the schema exists.
func rateService(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*fx.Service, func(), error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.VerifySchema(ctx, pool, []db.TableSpec{fx.Table}); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return fx.NewService(fx.NewRepository(pool), fx.NewFeedClient(cfg.FXFeedURL), logger), pool.Close, nil
}

func runLogistics(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "backfill" {
		fmt.Fprint(stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("logistics backfill", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.LogisticsBackfillOptions{Stdout: stdout, Stderr: stderr}
	fs.IntVar(&opts.Batch, "batch", 100, "deals per scan")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	services, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "logistics backfill: %v\n", err)
		return 1
	}
	defer services.Close()
	ops, err := cli.NewLogisticsOpsCLI(services.Logistics)
	if err != nil {
		fmt.Fprintf(stderr, "logistics backfill: %v\n", err)
		return 1
	}
	return ops.BackfillCommand(ctx, opts)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	ops, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = ops.Close() }()
	switch args[0] {
	case "trigger":
		if len(args) != 2 {
			fmt.Fprint(stderr, usage)
			return 2
		}
		return ops.TriggerCommand(ctx, args[1], stdout, stderr)
	case "stats":
		return ops.StatsCommand(ctx, stdout, stderr)
	}
	fmt.Fprint(stderr, usage)
	return 2
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	services, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer services.Close()

	rbacMiddleware := rbac.Middleware{Logger: logger}
	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		RBACMiddleware:        rbacMiddleware,
		SalesHandler:          sales.NewHandler(logger, services.Sales, rbacMiddleware),
		ProcurementHandler:    procurement.NewHandler(logger, services.Procurement, rbacMiddleware),
		LogisticsHandler:      logistics.NewHandler(logger, services.Logistics, rbacMiddleware),
		SpecificationsHandler: specifications.NewHandler(logger, services.Specifications, rbacMiddleware),
		PaymentsHandler:       payments.NewHandler(logger, services.Payments, rbacMiddleware),
		ERPSHandler:           erps.NewHandler(logger, services.ERPS, rbacMiddleware),
		FXHandler:             fx.NewHandler(logger, services.FX, rbacMiddleware),
		MasterDataHandler:     masterdata.NewHandler(logger, services.MasterData, rbacMiddleware),
		ReportHandler:         report.NewHandler(services.Report, logger),
		JobHandler:            jobs.NewHandler(inspector, logger),
		PermissionsHandler:    rbac.NewPermissionsHandler(rbacMiddleware),
		Metrics:               metrics,
		Ready: func(r *http.Request) error {
			return services.Ping(r.Context())
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
