package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/banshee-data/throughput.report/internal/chart"
	"github.com/banshee-data/throughput.report/internal/history"
	"github.com/banshee-data/throughput.report/internal/server"
)

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var inputs stringList
	fs.Var(&inputs, "input", "Result file to serve (repeatable)")
	historyPath := fs.String("history", "", "Sweep history database")
	listen := fs.String("listen", ":8090", "Listen address")
	cacheTTL := fs.Duration("cache-ttl", server.DefaultCacheTTL, "How long parsed result files are cached")
	unit := fs.String("unit", "kbps", "Default throughput display unit")
	assetsHost := fs.String("assets-host", "", "Script host for HTML charts")
	quiet := fs.Bool("quiet", false, "Only log warnings and errors")
	fs.Parse(args)
	rtx.Must(flagx.ArgsFromEnv(fs), "failed to read flags from the environment")

	setupLogging(*quiet)

	if len(inputs) == 0 {
		inputs = stringList{"results.csv"}
	}

	cfg := server.Config{
		Address:  *listen,
		Inputs:   inputs,
		CacheTTL: *cacheTTL,
		Chart:    chart.Options{YUnit: *unit, AssetsHost: *assetsHost},
	}
	if *historyPath != "" {
		db, err := history.Open(*historyPath)
		rtx.Must(err, "failed to open history database")
		defer db.Close()
		cfg.History = db
	}

	srv, err := server.New(cfg)
	rtx.Must(err, "failed to create server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	rtx.Must(srv.Start(ctx), "server failed")
}
