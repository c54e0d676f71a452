package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/delaneyj/turnsignal/subtree"
	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

const (
	itersKey      = "iters"
	sequentialKey = "sequential"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Benchmark turnsignal subtree propagation",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  itersKey,
				Usage: "Turns per configuration",
				Value: 100,
			},
			&cli.BoolFlag{
				Name:  sequentialKey,
				Usage: "Disable parallel ticking",
				Value: false,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "latency",
				Usage:  "Turn latency percentiles across graph sizes",
				Action: runLatency,
			},
			{
				Name:   "shapes",
				Usage:  "Throughput across graph shapes",
				Action: runShapes,
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

var (
	ww = []int{1, 10, 100, 1_000}
	hh = []int{1, 10, 100}
)

func graphOpts(cmd *cli.Command) []subtree.Option {
	if cmd.Bool(sequentialKey) {
		return []subtree.Option{subtree.WithSequential()}
	}
	return nil
}

// buildGrid wires w independent chains of h transform nodes off a single
// source, all merged into one sink, and returns the source and sink.
func buildGrid(g *subtree.Graph, w, h int) (*subtree.EventSource[int], *subtree.OpNode[int]) {
	src := subtree.NewEventSource[int](g)
	deps := make([]subtree.Op[int], 0, w)
	for i := 0; i < w; i++ {
		prev := subtree.Dep[int](src)
		for j := 0; j < h; j++ {
			n := subtree.NewOpNode(g, subtree.Transform(func(x int) int {
				return x + 1
			}, prev))
			prev = subtree.Dep[int](n)
		}
		deps = append(deps, prev)
	}
	sink := subtree.NewOpNode(g, subtree.Merge(deps...))
	return src, sink
}

func runLatency(ctx context.Context, cmd *cli.Command) error {
	iters := int(cmd.Uint(itersKey))

	tbl := table.NewWriter()
	tbl.SetTitle("Subtree Propagation")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})

	for _, w := range ww {
		for _, h := range hh {
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			g := subtree.NewGraph(graphOpts(cmd)...)
			src, sink := buildGrid(g, w, h)

			for i := 0; i < iters; i++ {
				src.Append(i)
				start := time.Now()
				if err := g.RunTurn(); err != nil {
					return err
				}
				tach.AddTime(time.Since(start))
			}
			if got := len(sink.Events()); got != w {
				return fmt.Errorf("propagate %d*%d: sink saw %d events, expected %d", w, h, got, w)
			}

			calc := tach.Calc()
			tbl.AppendRows([]table.Row{
				{
					fmt.Sprintf("propagate: %d * %d", w, h),
					calc.Time.Avg,
					calc.Time.Min,
					calc.Time.P75,
					calc.Time.P99,
					calc.Time.Max,
				},
			})
		}
	}

	tbl.Render()
	return nil
}

func runShapes(ctx context.Context, cmd *cli.Command) error {
	iters := int64(cmd.Uint(itersKey))

	type shapeConfig struct {
		name     string
		width    int
		layers   int
		nSources int
	}
	cfgs := []shapeConfig{
		{name: "deep chain", width: 1, layers: 500, nSources: 1},
		{name: "wide fan", width: 500, layers: 1, nSources: 1},
		{name: "grid", width: 50, layers: 50, nSources: 1},
		{name: "multi source", width: 20, layers: 20, nSources: 8},
	}

	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.SetHeader([]string{"shape", "size", "nSources", "nTurns", "time", "turnRate", "fingerprint"})

	for _, cfg := range cfgs {
		log.Printf("Running '%s' shape", cfg.name)

		g := subtree.NewGraph(graphOpts(cmd)...)
		srcs := make([]*subtree.EventSource[int], cfg.nSources)
		sinkDeps := make([]subtree.Op[int], 0, cfg.nSources)
		for si := range srcs {
			src, sink := buildGrid(g, cfg.width, cfg.layers)
			srcs[si] = src
			sinkDeps = append(sinkDeps, subtree.Dep[int](sink))
		}
		subtree.NewOpNode(g, subtree.Merge(sinkDeps...))

		start := time.Now()
		for i := int64(0); i < iters; i++ {
			for _, src := range srcs {
				src.Append(int(i))
			}
			if err := g.RunTurn(); err != nil {
				return err
			}
		}
		duration := time.Since(start)
		turnRate := float64(iters) / (float64(duration) / float64(time.Second))

		tbl.Append([]string{
			cfg.name,
			fmt.Sprintf("%dx%d", cfg.width, cfg.layers),
			fmt.Sprint(cfg.nSources),
			humanize.Comma(iters),
			fmt.Sprint(duration),
			humanize.Comma(int64(turnRate)),
			fmt.Sprintf("%016x", g.Fingerprint()),
		})
	}

	tbl.Render()
	return nil
}
