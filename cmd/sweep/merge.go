package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/banshee-data/throughput.report/internal/history"
	"github.com/banshee-data/throughput.report/internal/results"
)

func handleMerge(args []string) {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	output := fs.String("output", "results.csv", "Destination result file")
	duplicates := fs.String("duplicates", "replace", "Duplicate policy: replace, reject or keep")
	quiet := fs.Bool("quiet", false, "Only log warnings and errors")
	fs.Parse(args)
	rtx.Must(flagx.ArgsFromEnv(fs), "failed to read flags from the environment")

	setupLogging(*quiet, false)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: merge needs at least one source file")
		fs.Usage()
		os.Exit(1)
	}
	policy, err := results.ParseDuplicatePolicy(*duplicates)
	rtx.Must(err, "invalid -duplicates")

	res, err := results.Merge(*output, fs.Args(), results.WithDuplicatePolicy(policy))
	rtx.Must(err, "merge failed")
	log.Info("Merged result files",
		"output", res.Path, "sources", res.Sources, "added", res.Added,
		"replaced", res.Replaced, "rows", res.Rows, "skipped", len(res.Warnings))
}

func handleRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	historyPath := fs.String("history", "history.db", "History database")
	limit := fs.Int("limit", 20, "Number of runs to list (max 100)")
	fs.Parse(args)
	rtx.Must(flagx.ArgsFromEnv(fs), "failed to read flags from the environment")

	setupLogging(true, false)

	db, err := history.Open(*historyPath)
	rtx.Must(err, "failed to open history database")
	defer db.Close()

	runs, err := db.ListRuns(*limit)
	rtx.Must(err, "failed to list runs")
	printRuns(os.Stdout, runs)
}

// printRuns writes one line per run, newest first.
func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no recorded runs")
		return
	}
	fmt.Fprintf(w, "%-36s  %-9s  %-20s  %8s  %6s  %5s  %s\n",
		"RUN", "STATUS", "STARTED", "DURATION", "ROWS", "SHARD", "OUTPUT")
	for _, r := range runs {
		duration := "-"
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		rows := fmt.Sprintf("%d", r.Rows)
		if r.Incomplete > 0 {
			rows = fmt.Sprintf("%d/%d", r.Rows-r.Incomplete, r.Rows)
		}
		fmt.Fprintf(w, "%-36s  %-9s  %-20s  %8s  %6s  %5s  %s\n",
			r.ID, r.Status, r.StartedAt.UTC().Format("2006-01-02 15:04:05"),
			duration, rows, r.Shard, r.Output)
		if r.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", r.Error)
		}
	}
}
