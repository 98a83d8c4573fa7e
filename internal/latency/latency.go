// Package latency models the three delay streams of the simulated
// venue: order transmission, market-data dissemination, and venue-side
// execution processing. Each stream draws from its own seeded RNG so a
// run's delays are reproducible.
package latency

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"marketsim/internal/rng"
)

// Kind selects the delay distribution.
type Kind uint16

const (
	KindFixed Kind = iota
	KindUniform
	KindNormal
	KindLognormal
	KindExponential
)

// ParseKind maps a config string onto a distribution kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "", "fixed":
		return KindFixed, true
	case "uniform":
		return KindUniform, true
	case "normal":
		return KindNormal, true
	case "lognormal":
		return KindLognormal, true
	case "exponential":
		return KindExponential, true
	default:
		return 0, false
	}
}

// Config describes one delay distribution. Mean is used by fixed,
// normal, lognormal, and exponential; Min/Max bound uniform; StdDev
// shapes normal and lognormal. For lognormal, Mean is the median
// (mu = ln Mean) and StdDev/Mean is the sigma of the underlying normal.
type Config struct {
	Kind   Kind
	Mean   time.Duration
	Min    time.Duration
	Max    time.Duration
	StdDev time.Duration
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	switch c.Kind {
	case KindFixed, KindNormal, KindLognormal, KindExponential:
		if c.Mean < 0 {
			return fmt.Errorf("invalid latency config: Mean must be >= 0")
		}
	case KindUniform:
		if c.Min < 0 || c.Max < c.Min {
			return fmt.Errorf("invalid latency config: need 0 <= Min <= Max")
		}
	default:
		return fmt.Errorf("invalid latency config: unknown kind %d", c.Kind)
	}
	if c.StdDev < 0 {
		return fmt.Errorf("invalid latency config: StdDev must be >= 0")
	}
	return nil
}

type stream struct {
	cfg Config
	r   *rand.Rand
}

func (s *stream) sample() time.Duration {
	var d float64
	switch s.cfg.Kind {
	case KindFixed:
		return s.cfg.Mean
	case KindUniform:
		span := float64(s.cfg.Max - s.cfg.Min)
		d = float64(s.cfg.Min) + s.r.Float64()*span
	case KindNormal:
		d = float64(s.cfg.Mean) + s.r.NormFloat64()*float64(s.cfg.StdDev)
	case KindLognormal:
		if s.cfg.Mean <= 0 {
			return 0
		}
		mu := math.Log(float64(s.cfg.Mean))
		sigma := 0.0
		if s.cfg.Mean > 0 && s.cfg.StdDev > 0 {
			sigma = float64(s.cfg.StdDev) / float64(s.cfg.Mean)
		}
		d = math.Exp(mu + s.r.NormFloat64()*sigma)
	case KindExponential:
		d = s.r.ExpFloat64() * float64(s.cfg.Mean)
	}
	if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return time.Duration(d)
}

// Model holds the three independent delay streams.
type Model struct {
	order *stream
	data  *stream
	exec  *stream
}

// New derives the three streams from the master seed. The child seed of
// each stream is rng.Child(master, "latency/<stream>").
func New(master uint64, orderCfg, dataCfg, execCfg Config) (*Model, error) {
	for name, cfg := range map[string]Config{"order": orderCfg, "data": dataCfg, "exec": execCfg} {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s stream: %w", name, err)
		}
	}
	return &Model{
		order: &stream{cfg: orderCfg, r: rng.New(rng.Child(master, "latency/order"))},
		data:  &stream{cfg: dataCfg, r: rng.New(rng.Child(master, "latency/data"))},
		exec:  &stream{cfg: execCfg, r: rng.New(rng.Child(master, "latency/exec"))},
	}, nil
}

// OrderDelay samples the strategy-to-venue transmission delay.
func (m *Model) OrderDelay() time.Duration { return m.order.sample() }

// DataDelay samples the venue-to-strategy dissemination delay. It shifts
// the visibility timestamp of market events, never their clock order.
func (m *Model) DataDelay() time.Duration { return m.data.sample() }

// ExecDelay samples the venue-side processing delay.
func (m *Model) ExecDelay() time.Duration { return m.exec.sample() }
