// Command co2load bulk-loads the EEA CO2 emissions CSV export into Cassandra
// or a relational database.
//
// Connection settings come from flags or backend-prefixed environment
// variables (PG_HOST, CASSANDRA_HOST, ...), which may be kept in a .env file:
//
//	co2load -backend=postgres -csv=data.csv -table=co2_vehicles -create-table
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"co2load/internal/co2"
	"co2load/internal/config"
	"co2load/internal/loader"
	"co2load/internal/metrics"
	"co2load/internal/metrics/datadog"
	"co2load/internal/metrics/prompush"
	"co2load/internal/parser/csv"
	"co2load/internal/storage"

	// register all backends with the storage factory.
	_ "co2load/internal/storage/all"
)

const defaultEnvFile = ".env"

// errInvalidConfig has already been reported issue by issue.
var errInvalidConfig = errors.New("configuration is invalid")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		stop()
		fatalf("co2load: %v", err)
	}
}

// run is main without process exits, so tests can drive a whole import.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	envFile, envRequired := envFileArg(args)
	if err := config.LoadDotEnv(envFile, envRequired); err != nil {
		return err
	}

	fs := flag.NewFlagSet("co2load", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("env-file", defaultEnvFile, "dotenv file loaded before flags are parsed")
	cfg, err := config.LoadFromArgs(fs, getenv, args)
	if err != nil {
		return err
	}

	issues := cfg.Lint()
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if issues.HasErrors() {
		return errInvalidConfig
	}
	if cfg.Import.ValidateOnly {
		fmt.Fprintln(stdout, "configuration is valid")
		return nil
	}

	// Rejections and flush progress always reach stderr; -v adds run detail.
	logger := log.New(stderr, "", log.LstdFlags)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	closeMetrics, err := setupMetrics(runCtx, g, cfg.Import)
	if err != nil {
		cancelRun()
		return err
	}

	g.Go(func() error {
		defer cancelRun()
		return importCSV(runCtx, cfg, logger, stdout)
	})
	err = g.Wait()
	closeMetrics()
	return err
}

// envFileArg finds -env-file in args before the full flag set is parsed,
// since .env must be loaded before flag defaults are seeded from the
// environment. An explicit file is required to exist.
func envFileArg(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			break
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "env-file="); ok {
			return v, true
		}
		if name == "env-file" && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return defaultEnvFile, false
}

// setupMetrics installs the configured backend. With a push interval the
// Pushgateway backend pushes from a goroutine in g until ctx ends. The
// returned func performs the final flush.
func setupMetrics(ctx context.Context, g *errgroup.Group, im config.Import) (func(), error) {
	flushAtExit := func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}

	switch im.MetricsBackend {
	case "pushgateway":
		b, err := prompush.NewBackend(im.Job, im.PushgatewayURL)
		if err != nil {
			return nil, err
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", im.PushgatewayURL, im.MetricsBackend, im.Job)
		metrics.SetBackend(b)
		if im.PushInterval > 0 {
			g.Go(func() error { return b.Run(ctx, im.PushInterval) })
		}
		return flushAtExit, nil

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       im.DatadogAddr,
			Namespace:  "co2load.",
			GlobalTags: []string{"job:" + im.Job, "backend:" + im.Backend},
		})
		if err != nil {
			return nil, err
		}
		log.Printf("metrics: addr=%v, backend=%v", im.DatadogAddr, im.MetricsBackend)
		metrics.SetBackend(b)
		return func() {
			flushAtExit()
			_ = b.Close()
		}, nil

	default:
		return func() {}, nil
	}
}

// sinkConfig maps the validated configuration onto the storage factory.
func sinkConfig(cfg *config.Config) (storage.Config, error) {
	table, err := co2.Lookup(cfg.Import.Table)
	if err != nil {
		return storage.Config{}, err
	}
	c := cfg.Connection
	return storage.Config{
		Kind:     cfg.Import.Backend,
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		Username: c.Username,
		Password: c.Password,
		Timeout:  c.Timeout,
		Table:    table,
	}, nil
}

// budgetFor keeps the sink default unless an override is configured. When
// both overrides are set both limits apply.
func budgetFor(s storage.Sink, im config.Import) loader.Budget {
	if im.BudgetBytes == 0 && im.BudgetRows == 0 {
		return s.DefaultBudget()
	}
	return loader.Budget{MaxBytes: im.BudgetBytes, MaxRows: im.BudgetRows}
}

func importCSV(ctx context.Context, cfg *config.Config, logger *log.Logger, stdout io.Writer) error {
	im := cfg.Import
	scfg, err := sinkConfig(cfg)
	if err != nil {
		return err
	}

	sink, err := storage.New(ctx, scfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	if v, ok := sink.(storage.Versioner); ok {
		if ver, err := v.ServerVersion(ctx); err == nil {
			fmt.Fprintf(stdout, "%s release version : %s\n", im.Backend, ver)
		}
	}

	if im.CreateTable {
		if err := storage.EnsureTable(ctx, im.Backend, sink, scfg.Table); err != nil {
			return err
		}
		if tl, ok := sink.(storage.TableLister); ok {
			names, err := tl.ListTables(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "tables: %s\n", strings.Join(names, ", "))
		}
	}

	f, err := csv.Open(im.CSVPath)
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := csv.NewReader(f, csv.Options{
		Comma:     im.CommaRune(),
		HasHeader: true,
		Encoding:  im.Encoding,
	})
	if err != nil {
		return err
	}

	budget := budgetFor(sink, im)
	if im.Verbose {
		logger.Printf("co2load: backend=%s table=%s csv=%s budget=%s", im.Backend, scfg.Table.Name, im.CSVPath, budget)
	}

	start := time.Now()
	opts := []loader.Option{loader.WithLogger(logger), loader.WithJob(im.Job)}
	if len(im.Dedup) > 0 {
		opts = append(opts, loader.WithDedup(im.Dedup...))
	}
	st, err := loader.Load(ctx, src, sink.Encoder(), budget, sink, opts...)
	metrics.RecordStep(im.Job, "import", err, time.Since(start))
	fmt.Fprintf(stdout, "processed=%d rejected=%d batches=%d size=%.1fkB elapsed=%s\n",
		st.Processed, st.Rejected, st.Batches, float64(st.Bytes)/1024, time.Since(start).Truncate(time.Millisecond))
	if err != nil {
		return err
	}

	if im.Preview > 0 {
		return preview(ctx, sink, im.Preview, scfg.Table.Columns(), stdout)
	}
	return nil
}

// preview prints the first n stored rows as a tab-separated table.
func preview(ctx context.Context, sink storage.Sink, n int, columns []string, w io.Writer) error {
	s, ok := sink.(storage.Sampler)
	if !ok {
		return nil
	}
	rows, err := s.Sample(ctx, n)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, strings.Join(columns, "\t"))
	for _, r := range rows {
		fmt.Fprintln(w, strings.Join(r, "\t"))
	}
	return nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
