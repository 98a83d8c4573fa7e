package main

import (
	"context"
	"flag"
	"log"
	"path/filepath"

	"github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/yanun0323/pkg/sys"

	"marketsim/internal/engine"
	"marketsim/internal/feed"
	"marketsim/internal/journal"
	"marketsim/internal/ledger"
	"marketsim/internal/ops"
	"marketsim/internal/schema"
	"marketsim/internal/strategy"
	"marketsim/internal/stream"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON run config")
	snapshotPath := flag.String("snapshot-path", "", "Final portfolio snapshot output (default: <journal-dir>/portfolio.json)")
	profile := flag.Bool("profile", false, "Start the pyroscope profiler")
	profileAddr := flag.String("profile-addr", "http://localhost:4040", "Pyroscope server address")
	flag.Parse()

	_ = godotenv.Load()

	if *profile {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "marketsim/backtest",
			ServerAddress:   *profileAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	eng, err := wire(loaded)
	if err != nil {
		log.Fatalf("engine wiring failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sys.Shutdown()
		cancel()
	}()

	summary, err := eng.Run(ctx)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}

	snapOut := *snapshotPath
	if snapOut == "" {
		snapOut = filepath.Join(loaded.JournalDir, "portfolio.json")
	}
	snap := eng.LedgerSnapshot(summary.LastSeq)
	if err := ledger.WriteSnapshot(snapOut, snap); err != nil {
		log.Fatalf("snapshot write failed: %v", err)
	}

	log.Printf("run %s completed: ticks=%d orders=%d fills=%d netliq=%s",
		summary.RunID, summary.Ticks, summary.Orders, summary.Fills, summary.NetLiq)
}

// wire builds the full engine from the resolved config.
func wire(loaded ops.Loaded) (*engine.Engine, error) {
	sources := make([]stream.Source, 0, len(loaded.Data))
	for _, d := range loaded.Data {
		csvFeed, err := feed.OpenCSV(d.Path, d.InstrumentID, d.Resolution)
		if err != nil {
			return nil, err
		}
		sources = append(sources, csvFeed)
	}
	merged, err := stream.New(sources...)
	if err != nil {
		return nil, err
	}

	book, err := ledger.New(loaded.LedgerCfg, loaded.Calendar, loaded.Registry)
	if err != nil {
		return nil, err
	}
	for _, p := range loaded.Positions {
		book.SeedPosition(p.InstrumentID, p.Qty, p.Entry)
	}

	journalCfg := journal.DefaultConfig(loaded.JournalDir)
	if loaded.SegmentMax > 0 {
		journalCfg.SegmentMaxBytes = loaded.SegmentMax
	}
	writer, err := journal.NewWriter(journalCfg)
	if err != nil {
		return nil, err
	}

	policy, err := ops.BuildFillPolicy(loaded.FillPolicy, loaded.FillCfg, loaded.Seed)
	if err != nil {
		return nil, err
	}

	strat, err := buildStrategy(loaded)
	if err != nil {
		return nil, err
	}

	return engine.New(loaded.Engine, engine.Deps{
		Registry:   loaded.Registry,
		Calendar:   loaded.Calendar,
		Stream:     merged,
		FillPolicy: policy,
		Costs:      loaded.Costs,
		Latency:    loaded.Latency,
		Ledger:     book,
		Journal:    writer,
		Strategies: []*strategy.Strategy{strat},
	})
}

// buildStrategy assembles the built-in crossover strategy from config.
func buildStrategy(loaded ops.Loaded) (*strategy.Strategy, error) {
	var instruments []schema.InstrumentID
	var subs []strategy.Subscription
	for _, d := range loaded.Data {
		instruments = append(instruments, d.InstrumentID)
		subs = append(subs, strategy.Subscription{
			InstrumentID: d.InstrumentID,
			Resolution:   d.Resolution,
			WarmupBars:   loaded.Strategy.WarmupBars,
		})
	}
	fast := loaded.Strategy.Fast
	slow := loaded.Strategy.Slow
	if fast == 0 {
		fast = 10
	}
	if slow == 0 {
		slow = 30
	}
	rebalance := loaded.Strategy.RebalanceBars
	if rebalance == 0 {
		rebalance = 1
	}
	return &strategy.Strategy{
		ID:       1,
		Name:     "ma-cross",
		Universe: &strategy.StaticUniverse{Instruments: instruments},
		Alpha:    strategy.NewMACross(fast, slow, loaded.StrategyRes),
		Construction: &strategy.EqualWeight{
			LeverageBps: loaded.Strategy.LeverageBps,
		},
		Risk: &strategy.Caps{
			MaxWeightBps:   loaded.Strategy.MaxWeightBps,
			MaxSectorBps:   loaded.Strategy.MaxSectorBps,
			MaxDrawdownBps: loaded.Strategy.MaxDrawdownBps,
		},
		Execution:     strategy.Immediate{},
		Subscriptions: subs,
		RebalanceBars: rebalance,
	}, nil
}
