// Command sweep runs parameter sweeps and maintains their result files.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/banshee-data/throughput.report/internal/monitoring"
	"github.com/banshee-data/throughput.report/internal/version"
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
	case "run":
		handleRun(args)
	case "merge":
		handleMerge(args)
	case "runs":
		handleRuns(args)
	case "version":
		fmt.Println(version.String("sweep"))
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sweep - run throughput experiment sweeps

Usage: sweep <command> [options]

Commands:
  run        Run every point of a sweep and append the summaries to a CSV file
  merge      Merge per-shard result files into one
  runs       List sweeps recorded in a history database
  version    Show sweep version
  help       Show this help message

Run Flags:
  -config <file>         Sweep configuration (JSON)
  -output <file>         Result file (default results.csv)
  -trials <n>            Trials per point (default 10)
  -seed <n>              Master seed for trial randomness
  -levels <list>         Confidence levels, e.g. 0.99,0.95
  -shard <i/n>           Run only points whose index mod n is i (0-based)
  -axis <name=values>    Add or replace an axis (repeatable)
  -duplicates <policy>   replace, reject or keep
  -history <file>        Record the run in a SQLite history database
  -metrics <addr>        Serve Prometheus metrics on addr
  -quiet / -v            Less or more logging

Every flag can also be set through the environment, e.g. OUTPUT=r.csv.

Examples:
  # Reproduce the four-variant experiment with the synthetic model
  sweep run -config config/sweep.defaults.json

  # Split a sweep over three machines, then merge
  sweep run -config sim.json -shard 0/3 -output part0.csv
  sweep merge -output results.csv part0.csv part1.csv part2.csv`)
}

// setupLogging routes library diagnostics through charmbracelet/log.
func setupLogging(quiet, verbose bool) {
	log.SetReportTimestamp(true)
	switch {
	case quiet:
		log.SetLevel(log.WarnLevel)
	case verbose:
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
	monitoring.SetLogger(monitoring.Printer(log.Info))
}
