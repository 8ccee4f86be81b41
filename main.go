// countdown-report finds countdown timers in crawl segment logs: it
// ingests time-ordered snapshots of on-page text segments, groups
// repeated snapshots of the same element and classifies each group with
// a pair of numeric-decrease heuristics.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/banshee-data/countdown.report/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "serve":
		handleServe(args)
	case "ingest":
		handleIngest(args)
	case "detect":
		handleDetect(args)
	case "export":
		handleExport(args)
	case "migrate":
		handleMigrate(args)
	case "version":
		fmt.Printf("countdown-report version %s (%s, built %s)\n",
			version.Version, version.GitSHA, version.BuildTime)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`countdown-report - countdown timer detection over crawl segment logs

Usage: countdown-report <command> [options]

Commands:
  ingest     Load a segment log file (JSONL or CSV) into the database
  detect     Run timer detection over the stored segment log
  export     Write classified groups or confirmed timer URLs as CSV
  serve      Serve the JSON API over classified results
  migrate    Manage the database schema
  version    Show countdown-report version
  help       Show this help message

Common Flags:
  --db-path <path>     Path to the sqlite database (default: segments.db)
  --config <file>      Tuning config JSON (thresholds, model version)

Examples:
  # Load a crawl's segment log
  countdown-report ingest --db-path segments.db crawl-2026-08.jsonl

  # Classify everything and print the run summary
  countdown-report detect run

  # Export the confirmed timer URLs for manual review
  countdown-report export --format urls -o timers.csv

  # Serve the API (and tailsql debug UI) on :8080
  countdown-report serve --listen :8080`)
}
