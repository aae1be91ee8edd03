package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/config"
	"github.com/marmos91/dittosync/pkg/engine"
	"github.com/marmos91/dittosync/pkg/index"
	"github.com/marmos91/dittosync/pkg/metrics"
	"github.com/marmos91/dittosync/pkg/retry"
)

const usage = `DittoSync - Sync Coordination Engine

Usage:
  dittosync [flags] <command> [args]

Commands:
  get <path>           Download an item until it is locally readable
  put <local> <cloud>  Upload a local file into the container
  ls [root]            List container items (with live metadata)
  rm <path>            Delete an item from the container
  mv <src> <dst>       Move an item within the container
  cp <src> <dst>       Copy an item within the container
  exists <path>        Report whether an item is locally available

Flags:
`

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	dumpConfig := flag.Bool("dump-config", false, "Print the effective configuration as YAML and exit")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *dumpConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			log.Fatalf("Failed to marshal configuration: %v", err)
		}
		fmt.Print(string(out))
		return
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Configure logger
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure log output: %v", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Debug("metrics registry enabled")
	}

	// Cancel on interrupt so in-flight operations release their
	// subscriptions instead of idling to a timeout.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Interrupt received, cancelling...")
		cancel()
	}()

	idx, catalog, err := config.CreateIndex(ctx, &cfg.Index)
	if err != nil {
		log.Fatalf("Failed to create index: %v", err)
	}
	if catalog != nil {
		defer catalog.Close()
	}
	defer idx.Close()

	coord, err := config.CreateCoordinator(ctx, &cfg.Remote, &cfg.Engine, idx)
	if err != nil {
		log.Fatalf("Failed to create remote coordinator: %v", err)
	}

	eng := engine.New(idx, coord, engine.Options{
		IdleInterval: cfg.Engine.IdleInterval,
		MaxAttempts:  cfg.Engine.MaxAttempts,
		Backoff: retry.Backoff{
			Initial:    cfg.Engine.Backoff.Initial,
			Max:        cfg.Engine.Backoff.Max,
			Multiplier: cfg.Engine.Backoff.Multiplier,
			Jitter:     cfg.Engine.Backoff.Jitter,
		},
		Metrics: metrics.NewEngineMetrics(),
	})

	if err := run(ctx, eng, flag.Arg(0), flag.Args()[1:]); err != nil {
		logger.Error("%s failed: %v", flag.Arg(0), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, eng *engine.Engine, command string, args []string) error {
	switch command {
	case "get":
		return runGet(ctx, eng, args)
	case "put":
		return runPut(ctx, eng, args)
	case "ls":
		return runLs(ctx, eng, args)
	case "rm":
		return runOne(ctx, eng.Delete, args, "rm <path>")
	case "mv":
		return runTwo(ctx, eng.Move, args, "mv <src> <dst>")
	case "cp":
		return runTwo(ctx, eng.Copy, args, "cp <src> <dst>")
	case "exists":
		return runExists(ctx, eng, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runGet(ctx context.Context, eng *engine.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <path>")
	}

	path := args[0]
	available, err := eng.Download(ctx, path, func(ev engine.ProgressEvent) {
		if ev.Kind == engine.EventProgress {
			fmt.Printf("\r%s: %.0f%%", path, ev.Percent)
		}
	})
	fmt.Println()
	if err != nil {
		return err
	}
	if !available {
		return fmt.Errorf("%s: not available", path)
	}

	fmt.Printf("%s: downloaded\n", path)
	return nil
}

func runPut(ctx context.Context, eng *engine.Engine, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: put <local> <cloud>")
	}

	local, cloud := args[0], args[1]
	err := eng.Upload(ctx, local, cloud, func(ev engine.ProgressEvent) {
		if ev.Kind == engine.EventProgress {
			fmt.Printf("\r%s: %.0f%%", cloud, ev.Percent)
		}
	})
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Printf("%s: uploaded\n", cloud)
	return nil
}

func runLs(ctx context.Context, eng *engine.Engine, args []string) error {
	root := ""
	if len(args) > 0 {
		root = args[0]
	}

	items, invalid, err := eng.Gather(ctx, root)
	if err != nil {
		return err
	}

	for _, item := range items {
		fmt.Println(formatItem(item))
	}
	for _, bad := range invalid {
		fmt.Fprintf(os.Stderr, "warning: entry %d unreadable: %s\n", bad.Position, bad.Reason)
	}
	return nil
}

func formatItem(item index.Item) string {
	kind := "file"
	if item.IsDirectory {
		kind = "dir "
	}

	size := "-"
	if item.SizeBytes != nil {
		size = fmt.Sprintf("%d", *item.SizeBytes)
	}

	state := string(item.DownloadStatus)
	switch {
	case item.IsDownloading:
		state = "downloading"
		if item.Progress != nil {
			state = fmt.Sprintf("downloading %.0f%%", *item.Progress)
		}
	case item.IsUploading:
		state = "uploading"
	case item.HasUnresolvedConflicts:
		state = "conflict"
	}

	return fmt.Sprintf("%s %12s  %-24s %s", kind, size, state, item.Path)
}

func runExists(ctx context.Context, eng *engine.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: exists <path>")
	}

	ok, err := eng.Exists(ctx, args[0])
	if err != nil {
		return err
	}
	if ok {
		fmt.Println("available")
	} else {
		fmt.Println("not available")
	}
	return nil
}

func runOne(ctx context.Context, op func(context.Context, string) error, args []string, usage string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", usage)
	}
	return op(ctx, args[0])
}

func runTwo(ctx context.Context, op func(context.Context, string, string) error, args []string, usage string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: %s", usage)
	}
	return op(ctx, args[0], args[1])
}
