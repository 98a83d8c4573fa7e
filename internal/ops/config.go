// Package ops loads and resolves the run configuration: a JSON file
// describing the calendar, instruments, account, policies, seeds, and
// data sources, with environment overrides applied on top.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/yanun0323/decimal"

	"marketsim/internal/calendar"
	"marketsim/internal/cost"
	"marketsim/internal/engine"
	"marketsim/internal/fill"
	"marketsim/internal/latency"
	"marketsim/internal/ledger"
	"marketsim/internal/schema"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Run         RunConfig          `json:"run"`
	Calendar    CalendarConfig     `json:"calendar"`
	Instruments []InstrumentConfig `json:"instruments"`
	Account     AccountConfig      `json:"account"`
	Fill        FillConfig         `json:"fill"`
	Costs       CostsConfig        `json:"costs"`
	Latency     LatencyConfig      `json:"latency"`
	Journal     JournalConfig      `json:"journal"`
	Data        []DataConfig       `json:"data"`
	Positions   []PositionConfig   `json:"positions"`
	Strategy    StrategyConfig     `json:"strategy"`
}

// RunConfig describes the run window and mode.
type RunConfig struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Mode        string    `json:"mode"`
	Seed        uint64    `json:"seed"`
	FaultPolicy string    `json:"faultPolicy"`
}

// CalendarConfig is the opaque venue schedule.
type CalendarConfig struct {
	Name        string            `json:"name"`
	OpenOffset  string            `json:"openOffset"`
	CloseOffset string            `json:"closeOffset"`
	Holidays    []string          `json:"holidays"`
	EarlyCloses map[string]string `json:"earlyCloses"`
}

// InstrumentConfig describes one instrument entry.
type InstrumentConfig struct {
	Symbol         string `json:"symbol"`
	Class          string `json:"class"`
	Currency       string `json:"currency"`
	Sector         string `json:"sector"`
	QuotePrecision int32  `json:"quotePrecision"`
	SettlementDays int    `json:"settlementDays"`
	ListedAt       string `json:"listedAt"`
	DelistedAt     string `json:"delistedAt"`
}

// AccountConfig describes the portfolio account.
type AccountConfig struct {
	Currency   string          `json:"currency"`
	Capital    decimal.Decimal `json:"capital"`
	Settlement string          `json:"settlement"`
	Type       string          `json:"type"`
	Violations string          `json:"violations"`
}

// FillConfig selects and parameterizes the fill policy.
type FillConfig struct {
	Policy           string  `json:"policy"`
	FillOnTouch      *bool   `json:"fillOnTouch"`
	BarPrice         string  `json:"barPrice"`
	SlippageBps      int64   `json:"slippageBps"`
	ParticipationBps int64   `json:"participationBps"`
	BaseRate         float64 `json:"baseRate"`
	Queue            string  `json:"queue"`
}

// CommissionConfig describes the commission component.
type CommissionConfig struct {
	Kind    string          `json:"kind"`
	Bps     int64           `json:"bps"`
	PerUnit decimal.Decimal `json:"perUnit"`
	Minimum decimal.Decimal `json:"minimum"`
}

// CostsConfig composes the cost engine.
type CostsConfig struct {
	SlippageBps       int64            `json:"slippageBps"`
	Commission        CommissionConfig `json:"commission"`
	RegulatorySellBps int64            `json:"regulatorySellBps"`
	BorrowDailyBps    int64            `json:"borrowDailyBps"`
	FinancingDailyBps int64            `json:"financingDailyBps"`
}

// DelayConfig describes one latency stream.
type DelayConfig struct {
	Kind   string `json:"kind"`
	Mean   string `json:"mean"`
	Min    string `json:"min"`
	Max    string `json:"max"`
	StdDev string `json:"stdDev"`
}

// LatencyConfig holds the three delay streams.
type LatencyConfig struct {
	Order DelayConfig `json:"order"`
	Data  DelayConfig `json:"data"`
	Exec  DelayConfig `json:"exec"`
}

// JournalConfig locates the event log.
type JournalConfig struct {
	Dir             string `json:"dir"`
	SegmentMaxBytes int64  `json:"segmentMaxBytes"`
}

// DataConfig points one CSV source at an instrument.
type DataConfig struct {
	Path       string `json:"path"`
	Symbol     string `json:"symbol"`
	Resolution string `json:"resolution"`
}

// PositionConfig seeds an opening position.
type PositionConfig struct {
	Symbol string          `json:"symbol"`
	Qty    decimal.Decimal `json:"qty"`
	Entry  decimal.Decimal `json:"entry"`
}

// StrategyConfig parameterizes the built-in crossover strategy.
type StrategyConfig struct {
	Fast           int    `json:"fast"`
	Slow           int    `json:"slow"`
	Resolution     string `json:"resolution"`
	LeverageBps    int64  `json:"leverageBps"`
	MaxWeightBps   int64  `json:"maxWeightBps"`
	MaxSectorBps   int64  `json:"maxSectorBps"`
	MaxDrawdownBps int64  `json:"maxDrawdownBps"`
	RebalanceBars  int    `json:"rebalanceBars"`
	WarmupBars     int    `json:"warmupBars"`
}

// EnvOverrides are applied after the file loads.
type EnvOverrides struct {
	JournalDir string `env:"MARKETSIM_JOURNAL_DIR"`
	Seed       uint64 `env:"MARKETSIM_SEED"`
	DataDir    string `env:"MARKETSIM_DATA_DIR"`
}

// Loaded is the resolved configuration ready for wiring.
type Loaded struct {
	Engine      engine.Config
	Registry    *schema.Registry
	Calendar    *calendar.Calendar
	LedgerCfg   ledger.Config
	FillCfg     fill.Config
	FillPolicy  string
	Costs       *cost.Engine
	Latency     *latency.Model
	JournalDir  string
	SegmentMax  int64
	Data        []ResolvedData
	Positions   []ResolvedPosition
	Strategy    StrategyConfig
	StrategyRes schema.Resolution
	Seed        uint64
}

// ResolvedData is one data source bound to a registered instrument.
type ResolvedData struct {
	Path         string
	InstrumentID schema.InstrumentID
	Resolution   schema.Resolution
}

// ResolvedPosition is one seeded opening position.
type ResolvedPosition struct {
	InstrumentID schema.InstrumentID
	Qty          schema.Quantity
	Entry        schema.Price
}

// Load reads a JSON config file, applies env overrides, and resolves
// every section. Configuration errors are fatal at startup.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, fmt.Errorf("parse config: %w", err)
	}
	var overrides EnvOverrides
	if err := env.Parse(&overrides); err != nil {
		return Loaded{}, fmt.Errorf("parse env overrides: %w", err)
	}
	return resolve(cfg, overrides)
}

func resolve(cfg FileConfig, overrides EnvOverrides) (Loaded, error) {
	var out Loaded

	cal, err := resolveCalendar(cfg.Calendar)
	if err != nil {
		return out, err
	}
	out.Calendar = cal

	reg, err := resolveRegistry(cfg.Instruments)
	if err != nil {
		return out, err
	}
	out.Registry = reg

	out.Seed = cfg.Run.Seed
	if overrides.Seed != 0 {
		out.Seed = overrides.Seed
	}

	out.Engine, err = resolveEngine(cfg.Run)
	if err != nil {
		return out, err
	}
	out.Engine.Seed = out.Seed

	out.LedgerCfg, err = resolveAccount(cfg.Account)
	if err != nil {
		return out, err
	}

	out.FillCfg, out.FillPolicy, err = resolveFill(cfg.Fill)
	if err != nil {
		return out, err
	}

	out.Costs, err = resolveCosts(cfg.Costs)
	if err != nil {
		return out, err
	}

	out.Latency, err = resolveLatency(cfg.Latency, out.Seed)
	if err != nil {
		return out, err
	}

	out.JournalDir = cfg.Journal.Dir
	if overrides.JournalDir != "" {
		out.JournalDir = overrides.JournalDir
	}
	if out.JournalDir == "" {
		return out, fmt.Errorf("journal dir is empty")
	}
	out.SegmentMax = cfg.Journal.SegmentMaxBytes

	for _, d := range cfg.Data {
		id, ok := reg.IDBySymbol(d.Symbol)
		if !ok {
			return out, fmt.Errorf("data source symbol not found: %s", d.Symbol)
		}
		res, ok := schema.ParseResolution(d.Resolution)
		if !ok {
			return out, fmt.Errorf("data source resolution invalid: %s", d.Resolution)
		}
		path := d.Path
		if overrides.DataDir != "" {
			path = overrides.DataDir + "/" + path
		}
		out.Data = append(out.Data, ResolvedData{Path: path, InstrumentID: id, Resolution: res})
	}

	for _, p := range cfg.Positions {
		id, ok := reg.IDBySymbol(p.Symbol)
		if !ok {
			return out, fmt.Errorf("seed position symbol not found: %s", p.Symbol)
		}
		qty, err := schema.ParseQuantity(decString(p.Qty))
		if err != nil {
			return out, fmt.Errorf("seed position qty for %s: %w", p.Symbol, err)
		}
		entry, err := schema.ParsePrice(decString(p.Entry))
		if err != nil {
			return out, fmt.Errorf("seed position entry for %s: %w", p.Symbol, err)
		}
		out.Positions = append(out.Positions, ResolvedPosition{InstrumentID: id, Qty: qty, Entry: entry})
	}

	out.Strategy = cfg.Strategy
	out.StrategyRes = schema.ResDay
	if cfg.Strategy.Resolution != "" {
		res, ok := schema.ParseResolution(cfg.Strategy.Resolution)
		if !ok {
			return out, fmt.Errorf("strategy resolution invalid: %s", cfg.Strategy.Resolution)
		}
		out.StrategyRes = res
	}
	return out, nil
}

func resolveCalendar(cfg CalendarConfig) (*calendar.Calendar, error) {
	open, err := parseDuration(cfg.OpenOffset, 0)
	if err != nil {
		return nil, fmt.Errorf("calendar openOffset: %w", err)
	}
	closeOff, err := parseDuration(cfg.CloseOffset, 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("calendar closeOffset: %w", err)
	}
	ccfg := calendar.Config{
		Name:        cfg.Name,
		OpenOffset:  open,
		CloseOffset: closeOff,
	}
	for _, h := range cfg.Holidays {
		day, err := time.Parse("2006-01-02", h)
		if err != nil {
			return nil, fmt.Errorf("calendar holiday %q: %w", h, err)
		}
		ccfg.Holidays = append(ccfg.Holidays, day)
	}
	if len(cfg.EarlyCloses) > 0 {
		ccfg.EarlyCloses = make(map[string]time.Duration, len(cfg.EarlyCloses))
		for day, offset := range cfg.EarlyCloses {
			d, err := time.ParseDuration(offset)
			if err != nil {
				return nil, fmt.Errorf("calendar early close %q: %w", day, err)
			}
			ccfg.EarlyCloses[day] = d
		}
	}
	return calendar.New(ccfg)
}

func resolveRegistry(instruments []InstrumentConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, ic := range instruments {
		class, err := parseClass(ic.Class)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", ic.Symbol, err)
		}
		currency := ic.Currency
		if currency == "" {
			currency = "USD"
		}
		meta := schema.InstrumentMeta{
			QuotePrecision: ic.QuotePrecision,
			SettlementDays: ic.SettlementDays,
			Sector:         ic.Sector,
		}
		if ic.ListedAt != "" {
			ts, err := time.Parse(time.RFC3339, ic.ListedAt)
			if err != nil {
				return nil, fmt.Errorf("instrument %s listedAt: %w", ic.Symbol, err)
			}
			meta.ListedAt = ts.UTC().UnixNano()
		}
		if ic.DelistedAt != "" {
			ts, err := time.Parse(time.RFC3339, ic.DelistedAt)
			if err != nil {
				return nil, fmt.Errorf("instrument %s delistedAt: %w", ic.Symbol, err)
			}
			meta.DelistedAt = ts.UTC().UnixNano()
		}
		inst := schema.Instrument{Symbol: ic.Symbol, Class: class, QuoteCurrency: currency}
		if _, err := reg.Add(inst, meta); err != nil {
			return nil, err
		}
	}
	if reg.Count() == 0 {
		return nil, fmt.Errorf("no instruments configured")
	}
	return reg, nil
}

func resolveEngine(cfg RunConfig) (engine.Config, error) {
	out := engine.Config{
		Start: cfg.Start.UTC().UnixNano(),
		End:   cfg.End.UTC().UnixNano(),
	}
	if cfg.Start.IsZero() || cfg.End.IsZero() {
		return out, fmt.Errorf("run start and end are required")
	}
	if !cfg.End.After(cfg.Start) {
		return out, fmt.Errorf("run end must be after start")
	}
	switch cfg.Mode {
	case "", "backtest":
		out.Mode = engine.ModeBacktest
	case "paper":
		out.Mode = engine.ModePaper
	case "live":
		out.Mode = engine.ModeLive
	default:
		return out, fmt.Errorf("run mode invalid: %s", cfg.Mode)
	}
	switch cfg.FaultPolicy {
	case "", "halt":
		out.FaultPolicy = schema.FaultHaltStrategy
	case "abort":
		out.FaultPolicy = schema.FaultAbortRun
	default:
		return out, fmt.Errorf("fault policy invalid: %s", cfg.FaultPolicy)
	}
	return out, nil
}

func resolveAccount(cfg AccountConfig) (ledger.Config, error) {
	out := ledger.Config{Currency: cfg.Currency}
	capital, err := schema.ParseCash(decString(cfg.Capital))
	if err != nil {
		return out, fmt.Errorf("account capital: %w", err)
	}
	out.CapitalBase = capital
	switch cfg.Settlement {
	case "", "t0":
		out.Settlement = ledger.SettleT0
	case "realistic":
		out.Settlement = ledger.SettleRealistic
	default:
		return out, fmt.Errorf("settlement mode invalid: %s", cfg.Settlement)
	}
	switch cfg.Type {
	case "", "cash":
		out.Account = ledger.AccountCash
	case "margin":
		out.Account = ledger.AccountMargin
	case "portfolio-margin":
		out.Account = ledger.AccountPortfolioMargin
		out.RiskRequirement = DefaultRiskRequirement
	default:
		return out, fmt.Errorf("account type invalid: %s", cfg.Type)
	}
	switch cfg.Violations {
	case "", "reject":
		out.Violations = ledger.ViolationReject
	case "warn":
		out.Violations = ledger.ViolationWarn
	default:
		return out, fmt.Errorf("violation policy invalid: %s", cfg.Violations)
	}
	return out, nil
}

// DefaultRiskRequirement is the portfolio-margin house requirement:
// 15% of gross market value.
func DefaultRiskRequirement(positions []*ledger.Position) schema.Cash {
	var gross schema.Cash
	for _, p := range positions {
		mv := p.MarketValue()
		if mv < 0 {
			mv = -mv
		}
		gross += mv
	}
	return schema.PortionCash(gross, 15, 100)
}

func resolveFill(cfg FillConfig) (fill.Config, string, error) {
	out := fill.Config{
		FillOnTouch:      true,
		SlippageBps:      cfg.SlippageBps,
		ParticipationBps: cfg.ParticipationBps,
		BaseRate:         cfg.BaseRate,
	}
	if cfg.FillOnTouch != nil {
		out.FillOnTouch = *cfg.FillOnTouch
	}
	switch cfg.BarPrice {
	case "", "close":
		out.BarPrice = fill.BarClose
	case "open":
		out.BarPrice = fill.BarOpen
	default:
		return out, "", fmt.Errorf("bar price mode invalid: %s", cfg.BarPrice)
	}
	switch cfg.Queue {
	case "", "back":
		out.Queue = fill.QueueBack
	case "random":
		out.Queue = fill.QueueRandom
	case "front":
		out.Queue = fill.QueueFront
	default:
		return out, "", fmt.Errorf("queue policy invalid: %s", cfg.Queue)
	}
	policy := cfg.Policy
	if policy == "" {
		policy = "spread"
	}
	switch policy {
	case "instant", "spread", "tape", "book", "probabilistic":
	default:
		return out, "", fmt.Errorf("fill policy invalid: %s", policy)
	}
	if err := out.Validate(); err != nil {
		return out, "", err
	}
	return out, policy, nil
}

// BuildFillPolicy constructs the named policy with the run seed.
func BuildFillPolicy(name string, cfg fill.Config, seed uint64) (fill.Policy, error) {
	switch name {
	case "instant":
		return fill.NewInstant(cfg)
	case "spread":
		return fill.NewSpreadAware(cfg)
	case "tape":
		return fill.NewTradeTape(cfg)
	case "book":
		return fill.NewBook(cfg, seed)
	case "probabilistic":
		return fill.NewProbabilistic(cfg, seed)
	default:
		return nil, fmt.Errorf("fill policy invalid: %s", name)
	}
}

func resolveCosts(cfg CostsConfig) (*cost.Engine, error) {
	var components []cost.Component
	switch cfg.Commission.Kind {
	case "":
	case "per-share":
		perUnit, err := schema.ParseCash(decString(cfg.Commission.PerUnit))
		if err != nil {
			return nil, fmt.Errorf("commission perUnit: %w", err)
		}
		minimum, err := schema.ParseCash(decString(cfg.Commission.Minimum))
		if err != nil {
			return nil, fmt.Errorf("commission minimum: %w", err)
		}
		components = append(components, cost.PerShare{PerUnit: perUnit, Minimum: minimum})
	case "percent":
		minimum, err := schema.ParseCash(decString(cfg.Commission.Minimum))
		if err != nil {
			return nil, fmt.Errorf("commission minimum: %w", err)
		}
		components = append(components, cost.Percent{Bps: cfg.Commission.Bps, Minimum: minimum})
	default:
		return nil, fmt.Errorf("commission kind invalid: %s", cfg.Commission.Kind)
	}
	if cfg.RegulatorySellBps > 0 {
		components = append(components, cost.RegulatoryFee{SellBps: cfg.RegulatorySellBps})
	}
	var session []cost.SessionComponent
	if cfg.BorrowDailyBps > 0 {
		session = append(session, cost.BorrowFee{DailyBps: cfg.BorrowDailyBps})
	}
	if cfg.FinancingDailyBps > 0 {
		session = append(session, cost.Financing{DailyBps: cfg.FinancingDailyBps})
	}
	return cost.NewEngine(cfg.SlippageBps, components, session)
}

func resolveLatency(cfg LatencyConfig, seed uint64) (*latency.Model, error) {
	order, err := resolveDelay(cfg.Order)
	if err != nil {
		return nil, fmt.Errorf("latency order: %w", err)
	}
	data, err := resolveDelay(cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("latency data: %w", err)
	}
	exec, err := resolveDelay(cfg.Exec)
	if err != nil {
		return nil, fmt.Errorf("latency exec: %w", err)
	}
	return latency.New(seed, order, data, exec)
}

func resolveDelay(cfg DelayConfig) (latency.Config, error) {
	kind, ok := latency.ParseKind(cfg.Kind)
	if !ok {
		return latency.Config{}, fmt.Errorf("delay kind invalid: %s", cfg.Kind)
	}
	out := latency.Config{Kind: kind}
	var err error
	if out.Mean, err = parseDuration(cfg.Mean, 0); err != nil {
		return out, err
	}
	if out.Min, err = parseDuration(cfg.Min, 0); err != nil {
		return out, err
	}
	if out.Max, err = parseDuration(cfg.Max, 0); err != nil {
		return out, err
	}
	if out.StdDev, err = parseDuration(cfg.StdDev, 0); err != nil {
		return out, err
	}
	return out, nil
}

// decString renders a boundary decimal, mapping the zero value to "0".
func decString(d decimal.Decimal) string {
	s := d.String()
	if s == "" {
		return "0"
	}
	return s
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

func parseClass(s string) (schema.AssetClass, error) {
	switch s {
	case "equity":
		return schema.AssetEquity, nil
	case "option":
		return schema.AssetOption, nil
	case "future":
		return schema.AssetFuture, nil
	case "forex":
		return schema.AssetForex, nil
	case "crypto":
		return schema.AssetCrypto, nil
	default:
		return schema.AssetUnknown, fmt.Errorf("asset class invalid: %s", s)
	}
}
