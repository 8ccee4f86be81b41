package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/countdown.report/internal/api"
	"github.com/banshee-data/countdown.report/internal/config"
	"github.com/banshee-data/countdown.report/internal/db"
	"github.com/banshee-data/countdown.report/internal/export"
	"github.com/banshee-data/countdown.report/internal/ingest"
)

const defaultDBPath = "segments.db"

// loadTuning loads the tuning config from path, or returns the built-in
// defaults when path is empty.
func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	dbPath := fs.String("db-path", defaultDBPath, "Path to the sqlite database")
	listen := fs.String("listen", ":8080", "Listen address")
	configPath := fs.String("config", "", "Tuning config JSON file")
	detect := fs.Bool("detect", true, "Run the periodic detection worker while serving")
	fs.Parse(args)

	cfg, err := loadTuning(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *detect {
		worker := db.NewDetectionWorker(database, cfg.Thresholds(), cfg.GetModelVersion())
		worker.Interval = cfg.GetDetectInterval()
		worker.Window = cfg.GetDetectWindow()
		worker.Start()
		defer worker.Stop()
	}

	server := api.NewServer(database, cfg.GetModelVersion())
	mux := server.ServeMux()
	database.AttachAdminRoutes(mux)

	httpServer := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	log.Printf("countdown-report serving on %s (db %s, model %s)", *listen, *dbPath, cfg.GetModelVersion())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("HTTP server error: %v", err)
	}
}

func handleIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	dbPath := fs.String("db-path", defaultDBPath, "Path to the sqlite database")
	fs.Parse(args)

	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: countdown-report ingest [options] <file.jsonl|file.csv> ...")
		os.Exit(1)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	totalAccepted, totalRejected := 0, 0
	for _, path := range files {
		summary, err := ingest.File(ctx, database, path)
		if err != nil {
			log.Fatalf("Failed to ingest %s: %v", path, err)
		}
		log.Printf("%s: %d accepted, %d rejected", path, summary.Accepted, summary.Rejected)
		for _, e := range summary.Errors {
			log.Printf("  %s", e)
		}
		totalAccepted += summary.Accepted
		totalRejected += summary.Rejected
	}
	log.Printf("Ingest complete: %d accepted, %d rejected", totalAccepted, totalRejected)
}

func handleDetect(args []string) {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	dbPath := fs.String("db-path", defaultDBPath, "Path to the sqlite database")
	configPath := fs.String("config", "", "Tuning config JSON file")
	fs.Parse(args)

	cfg, err := loadTuning(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	cli := db.NewDetectionCLI(database, cfg.Thresholds(), cfg.GetModelVersion(), os.Stdout)

	action := "run"
	rest := fs.Args()
	if len(rest) > 0 {
		action = rest[0]
	}

	ctx := context.Background()
	switch action {
	case "run":
		_, err = cli.Run(ctx)
	case "analyse", "analyze":
		_, err = cli.Analyse(ctx)
	case "delete":
		if len(rest) < 2 {
			log.Fatal("Usage: countdown-report detect delete <model-version>")
		}
		_, err = cli.Delete(ctx, rest[1])
	case "migrate":
		if len(rest) < 3 {
			log.Fatal("Usage: countdown-report detect migrate <from-version> <to-version>")
		}
		err = cli.Migrate(ctx, rest[1], rest[2])
	case "rebuild":
		err = cli.Rebuild(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown detect action: %s\n\n", action)
		cli.PrintUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Detect %s failed: %v", action, err)
	}
}

func handleExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dbPath := fs.String("db-path", defaultDBPath, "Path to the sqlite database")
	configPath := fs.String("config", "", "Tuning config JSON file")
	format := fs.String("format", "groups", "Export format: groups or urls")
	output := fs.String("o", "", "Output file (default: stdout)")
	fs.Parse(args)

	cfg, err := loadTuning(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	ctx := context.Background()
	var rows int
	switch *format {
	case "groups":
		rows, err = export.Groups(ctx, database, cfg.GetModelVersion(), out)
	case "urls":
		rows, err = export.TimerURLs(ctx, database, cfg.GetModelVersion(), out)
	default:
		log.Fatalf("Unknown export format %q (want groups or urls)", *format)
	}
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}
	if *output != "" {
		log.Printf("Wrote %d rows to %s", rows, *output)
	}
}

func handleMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db-path", defaultDBPath, "Path to the sqlite database")
	fs.Parse(args)

	db.RunMigrateCommand(fs.Args(), *dbPath)
}
