// Command report draws charts from sweep result files and serves them over
// HTTP.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

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
	case "plot":
		handlePlot(args)
	case "serve":
		handleServe(args)
	case "version":
		fmt.Println(version.String("report"))
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`report - charts for sweep result files

Usage: report <command> [options]

Commands:
  plot       Render one chart to a PNG or HTML file
  serve      Serve interactive charts and JSON views over HTTP
  version    Show report version
  help       Show this help message

Plot Flags:
  -input <file>        Result file (default results.csv)
  -fix <axis=value>    Keep only rows with this value (repeatable)
  -group <axis>        One bar or line per value of this axis
  -x <axis>            Axis along the x axis
  -stat <column>       mean or an interval column such as off95
  -missing <policy>    omit (default) or zero
  -kind <bar|line>     Chart shape (default bar)
  -format <png|html>   Output encoding (default png)
  -out <dir>           Output directory (default .)

Serve Flags:
  -input <file>        Result file (repeatable)
  -history <file>      Sweep history database for /api/runs and /debug/
  -listen <addr>       Listen address (default :8090)

Examples:
  # Throughput of each variant over bit-error rate at 10ms delay
  report plot -input results.csv -fix delay=10ms -group tcp -x ber -stat off95

  # Throughput over delay at one bit-error rate, as a line chart
  report plot -input results.csv -fix ber=1e-5 -group tcp -x delay -kind line

  # Browse results at http://localhost:8090/
  report serve -input results.csv -history history.db`)
}

// setupLogging routes library diagnostics through charmbracelet/log.
func setupLogging(quiet bool) {
	log.SetReportTimestamp(true)
	if quiet {
		log.SetLevel(log.WarnLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	monitoring.SetLogger(monitoring.Printer(log.Info))
}

// stringList collects a repeatable flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, " ") }

func (l *stringList) Set(s string) error {
	*l = append(*l, s)
	return nil
}
