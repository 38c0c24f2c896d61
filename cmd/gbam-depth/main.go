// Command gbam-depth computes per-base read depth over a columnar gbam
// file and prints it as tab-separated rows.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/grailbio/base/grail"
	"v.io/x/lib/vlog"

	"github.com/grailbio/gbam/columnar"
	"github.com/grailbio/gbam/depth"
)

var (
	bedPath   = flag.String("bed", "", "BED file restricting the query to specific regions")
	query     = flag.String("query", "", "Comma-separated chr:begin-end regions (inclusive), in addition to -bed")
	mapq      = flag.Uint("mapq", 0, "Skip records with MAPQ below this value")
	threads   = flag.Int("threads", runtime.NumCPU(), "Maximum number of references to scan concurrently")
	tolerance = flag.Uint("merge-tolerance", 0, "Coalesce query regions on the same chromosome within this many bases before scanning")
)

func depthUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] <gbam-file>\n", os.Args[0])
	flag.PrintDefaults()
}

// run returns the CLI's exit code: 0 success, 1 I/O or format error, 2 query
// parse error or bad usage.
func run() int {
	flag.Usage = depthUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 {
		depthUsage()
		return 2
	}
	path := flag.Arg(0)

	queries, err := depth.ParseQueryFlag(*query)
	if err != nil {
		vlog.Errorf("gbam-depth: %v", err)
		return 2
	}
	if *bedPath != "" {
		bedQueries, err := depth.ParseBEDFile(*bedPath)
		if err != nil {
			vlog.Errorf("gbam-depth: %v", err)
			return 2
		}
		queries = depth.Merge(queries, bedQueries)
	}

	f, err := os.Open(path)
	if err != nil {
		vlog.Errorf("gbam-depth: %v", err)
		return 1
	}
	defer f.Close() // nolint: errcheck

	stat, err := f.Stat()
	if err != nil {
		vlog.Errorf("gbam-depth: %v", err)
		return 1
	}

	reader, err := columnar.Open(f, stat.Size())
	if err != nil {
		vlog.Errorf("gbam-depth: %v", err)
		return 1
	}

	engine := depth.NewEngine(reader, depth.Opts{Threads: *threads, MinMapQ: uint32(*mapq), MergeTolerance: uint32(*tolerance)})
	printer := depth.NewPrinter(os.Stdout)
	if err := engine.Run(queries, printer); err != nil {
		vlog.Errorf("gbam-depth: %v", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
