package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/dvloznov/budget-tracker/internal/config"
	"github.com/dvloznov/budget-tracker/internal/connectivity"
	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/gateway"
	"github.com/dvloznov/budget-tracker/internal/gcsuploader"
	"github.com/dvloznov/budget-tracker/internal/logger"
	"github.com/dvloznov/budget-tracker/internal/pending"
	"github.com/dvloznov/budget-tracker/internal/pending/durable"
	"github.com/dvloznov/budget-tracker/internal/pending/inmemory"
	"github.com/dvloznov/budget-tracker/internal/reconcile"
	"github.com/dvloznov/budget-tracker/internal/report"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		runWrite("add", true)
	case "sub":
		runWrite("sub", false)
	case "show":
		runShow()
	case "sync":
		runSync()
	case "watch":
		runWatch()
	case "export":
		runExport()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Budget Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  add       Record funds coming in")
	fmt.Println("  sub       Record funds going out")
	fmt.Println("  show      Show the total, the transactions and the balance over time")
	fmt.Println("  sync      Send transactions saved while offline")
	fmt.Println("  watch     Stay running and sync whenever connectivity returns")
	fmt.Println("  export    Write a JSON snapshot to a file or gs:// URI")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// client is one page session: config, queue, coordinator and probe.
type client struct {
	cfg     config.ClientConfig
	unit    domain.Unit
	log     zerolog.Logger
	queue   pending.Queue
	coord   *reconcile.Coordinator
	monitor *connectivity.Monitor
}

type commonFlags struct {
	configPath *string
	ephemeral  *bool
}

func registerCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", os.Getenv("BUDGET_CONFIG"), "Path to client TOML config (or set BUDGET_CONFIG env)"),
		ephemeral:  fs.Bool("ephemeral", false, "Keep the pending queue in memory only"),
	}
}

func openClient(flags commonFlags) *client {
	cfg, err := config.LoadClientConfig(*flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel})

	unit, err := domain.ParseUnit(cfg.Unit)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid unit")
	}

	var queue pending.Queue
	if *flags.ephemeral {
		queue = inmemory.NewQueue()
	} else {
		q, err := durable.Open(cfg.QueuePath)
		if err != nil {
			// the session still works, just without offline support
			log.Error().Err(err).Str("path", cfg.QueuePath).Msg("Could not open pending queue")
		} else {
			queue = q
		}
	}

	gw := gateway.New(cfg.ServerURL, nil, logger.Component(log, "gateway"))
	coord := reconcile.NewCoordinator(queue, gw, reconcile.NewSession(), logger.Component(log, "reconcile"))
	monitor := connectivity.NewMonitor(cfg.ServerURL+cfg.HealthPath, cfg.ProbeInterval.Duration, cfg.ProbeTimeout.Duration, logger.Component(log, "connectivity"))

	return &client{cfg: cfg, unit: unit, log: log, queue: queue, coord: coord, monitor: monitor}
}

func (c *client) close() {
	if c.queue == nil {
		return
	}
	if q, ok := c.queue.(*durable.Queue); ok {
		if n, err := q.Quarantined(context.Background()); err == nil && n > 0 {
			c.log.Warn().Int("records", n).Str("path", c.cfg.QueuePath).Msg("Pending store holds undecodable records")
		}
	}
	if err := c.queue.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to close pending queue")
	}
}

// load fetches the list and reconciles the queue the way a page load does.
func (c *client) load(ctx context.Context) bool {
	online := c.monitor.Probe(ctx)
	if err := c.coord.Load(ctx, online); err != nil {
		c.log.Warn().Err(err).Msg("Load finished with errors")
	}
	return online
}

func (c *client) render() {
	if err := report.Render(os.Stdout, c.coord.Session().Transactions(), c.unit, time.Local); err != nil {
		c.log.Error().Err(err).Msg("Failed to render report")
	}
}

func runWrite(name string, adding bool) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	common := registerCommon(fs)
	txName := fs.String("name", "", "Name of the transaction")
	amount := fs.String("amount", "", "Amount, e.g. 12.50 (no sign)")
	fs.Parse(os.Args[2:])

	c := openClient(common)
	defer c.close()
	ctx := logger.WithContext(context.Background(), c.log)

	value, err := domain.ParseAmount(*amount, c.unit)
	if err != nil {
		printValidation(err)
		os.Exit(1)
	}
	tx := domain.NewTransaction(*txName, value, adding, time.Now())
	if err := tx.Validate(); err != nil {
		printValidation(err)
		os.Exit(1)
	}

	c.load(ctx)

	outcome, err := c.coord.Submit(ctx, tx)
	if err != nil {
		printValidation(err)
		os.Exit(1)
	}

	switch outcome {
	case reconcile.Persisted:
		fmt.Println("Saved.")
	case reconcile.Queued:
		fmt.Println("Offline: saved locally, it will be sent when you are back online.")
	case reconcile.Dropped:
		fmt.Println("Offline and local storage is unavailable: this transaction was not saved.")
	}
	fmt.Println()
	c.render()
}

func runShow() {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	common := registerCommon(fs)
	fs.Parse(os.Args[2:])

	c := openClient(common)
	defer c.close()
	ctx := logger.WithContext(context.Background(), c.log)

	online := c.load(ctx)
	c.render()

	n, err := c.coord.Pending(ctx)
	if err != nil {
		return
	}
	if n > 0 || !online {
		fmt.Printf("\nOnline: %v, pending: %d\n", online, n)
	}
}

func runSync() {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	common := registerCommon(fs)
	fs.Parse(os.Args[2:])

	c := openClient(common)
	defer c.close()
	ctx := logger.WithContext(context.Background(), c.log)

	if !c.monitor.Probe(ctx) {
		n, _ := c.coord.Pending(ctx)
		fmt.Printf("Offline: %d transaction(s) still pending.\n", n)
		os.Exit(2)
	}

	n, err := c.coord.OnConnectivityRestored(ctx)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			printValidation(err)
		}
		c.log.Fatal().Err(err).Msg("Sync failed, pending transactions kept")
	}
	fmt.Printf("Synced %d transaction(s).\n", n)
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	common := registerCommon(fs)
	fs.Parse(os.Args[2:])

	c := openClient(common)
	defer c.close()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, c.log)

	c.log.Info().
		Str("server", c.cfg.ServerURL).
		Dur("interval", c.cfg.ProbeInterval.Duration).
		Bool("offline_support", c.coord.OfflineSupport()).
		Msg("Watching connectivity")

	c.monitor.Run(ctx, func(ctx context.Context, ev connectivity.Event) {
		c.log.Info().Bool("online", ev.Online).Bool("initial", ev.Initial).Msg("Connectivity")
		c.coord.HandleConnectivity(ctx, ev)
		if ev.Online {
			fmt.Println()
			c.render()
		}
	})

	c.log.Info().Msg("Watch stopped")
}

func runExport() {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	common := registerCommon(fs)
	dest := fs.String("dest", "", "Local file path or gs://bucket/prefix/ destination")
	fs.Parse(os.Args[2:])

	if *dest == "" {
		fmt.Fprintln(os.Stderr, "Usage: cli export -dest PATH|gs://BUCKET/PREFIX/")
		os.Exit(1)
	}

	c := openClient(common)
	defer c.close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, c.log)

	c.load(ctx)

	where, err := gcsuploader.ExportTransactions(ctx, gcsuploader.NewGCSStorageService(), *dest, c.coord.Session().Transactions(), time.Now())
	if err != nil {
		c.log.Fatal().Err(err).Msg("Export failed")
	}
	fmt.Printf("Exported %d transaction(s) to %s\n", len(c.coord.Session().Transactions()), where)
}

func printValidation(err error) {
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, verr.Message)
	fields := make([]string, 0, len(verr.Fields))
	for k := range verr.Fields {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for _, k := range fields {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", k, verr.Fields[k])
	}
}
