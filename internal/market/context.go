// Package market holds the point-in-time view of market data. The
// context caches the latest bar and a bounded lookback ring per
// (instrument, resolution) and never exposes a bar whose effective
// timestamp exceeds the simulation clock, which is the structural
// defense against look-ahead bias.
package market

import (
	"fmt"

	"marketsim/internal/schema"
)

type seriesKey struct {
	id  schema.InstrumentID
	res schema.Resolution
}

type ring struct {
	bars []schema.Bar
	head int
	size int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{bars: make([]schema.Bar, capacity)}
}

func (r *ring) push(b schema.Bar) {
	r.bars[r.head] = b
	r.head = (r.head + 1) % len(r.bars)
	if r.size < len(r.bars) {
		r.size++
	}
}

func (r *ring) latest() (schema.Bar, bool) {
	if r.size == 0 {
		return schema.Bar{}, false
	}
	idx := (r.head - 1 + len(r.bars)) % len(r.bars)
	return r.bars[idx], true
}

// last returns up to count bars, oldest first.
func (r *ring) last(count int) []schema.Bar {
	if count > r.size {
		count = r.size
	}
	if count <= 0 {
		return nil
	}
	out := make([]schema.Bar, count)
	start := (r.head - count + len(r.bars)*2) % len(r.bars)
	for i := 0; i < count; i++ {
		out[i] = r.bars[(start+i)%len(r.bars)]
	}
	return out
}

// Context is the engine-owned market data cache. It is mutated only
// between pipeline invocations and read-only during them.
type Context struct {
	reg          *schema.Registry
	now          int64
	defaultDepth int
	depth        map[schema.Resolution]int
	series       map[seriesKey]*ring
	lastQuote    map[schema.InstrumentID]schema.QuoteTick
	lastTrade    map[schema.InstrumentID]schema.TradeTick
}

// NewContext creates an empty context. defaultDepth bounds each lookback
// ring unless overridden per resolution.
func NewContext(reg *schema.Registry, defaultDepth int) *Context {
	if defaultDepth < 1 {
		defaultDepth = 1
	}
	return &Context{
		reg:          reg,
		defaultDepth: defaultDepth,
		depth:        make(map[schema.Resolution]int),
		series:       make(map[seriesKey]*ring),
		lastQuote:    make(map[schema.InstrumentID]schema.QuoteTick),
		lastTrade:    make(map[schema.InstrumentID]schema.TradeTick),
	}
}

// SetDepth overrides the ring capacity for one resolution. Effective for
// series created afterwards; warm-up sizing calls this before the run.
func (c *Context) SetDepth(res schema.Resolution, n int) {
	if n > 0 {
		c.depth[res] = n
	}
}

// Advance moves the context clock forward. Time never moves backwards.
func (c *Context) Advance(now int64) {
	if now > c.now {
		c.now = now
	}
}

// Now returns the context clock.
func (c *Context) Now() int64 { return c.now }

// ApplyBar records a completed bar. The bar must already be effective
// (its interval closed at or before the context clock); feeding a bar
// from the future is a programming error in the engine, not bad data.
func (c *Context) ApplyBar(b schema.Bar) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if eff := b.EffectiveAt(); eff > c.now {
		return fmt.Errorf("bar effective at %d is ahead of clock %d", eff, c.now)
	}
	if !c.reg.Tradable(b.InstrumentID, b.Start) {
		return fmt.Errorf("bar for instrument %d outside its listing window at %d", b.InstrumentID, b.Start)
	}
	key := seriesKey{b.InstrumentID, b.Resolution}
	r, ok := c.series[key]
	if !ok {
		capacity := c.defaultDepth
		if d, ok := c.depth[b.Resolution]; ok {
			capacity = d
		}
		r = newRing(capacity)
		c.series[key] = r
	}
	r.push(b)
	return nil
}

// ApplyQuote records the latest top-of-book for an instrument.
func (c *Context) ApplyQuote(q schema.QuoteTick) {
	c.lastQuote[q.InstrumentID] = q
}

// ApplyTrade records the latest trade print for an instrument.
func (c *Context) ApplyTrade(tk schema.TradeTick) {
	c.lastTrade[tk.InstrumentID] = tk
}

// Bar returns the most recent bar for the pair.
func (c *Context) Bar(id schema.InstrumentID, res schema.Resolution) (schema.Bar, bool) {
	r, ok := c.series[seriesKey{id, res}]
	if !ok {
		return schema.Bar{}, false
	}
	return r.latest()
}

// Bars returns up to count bars ordered oldest to newest.
func (c *Context) Bars(id schema.InstrumentID, res schema.Resolution, count int) []schema.Bar {
	r, ok := c.series[seriesKey{id, res}]
	if !ok {
		return nil
	}
	return r.last(count)
}

// HasBar reports whether at least one bar is cached for the pair.
func (c *Context) HasBar(id schema.InstrumentID, res schema.Resolution) bool {
	r, ok := c.series[seriesKey{id, res}]
	return ok && r.size > 0
}

// BarCount returns the number of cached bars for the pair.
func (c *Context) BarCount(id schema.InstrumentID, res schema.Resolution) int {
	r, ok := c.series[seriesKey{id, res}]
	if !ok {
		return 0
	}
	return r.size
}

// LastQuote returns the latest top-of-book, if any.
func (c *Context) LastQuote(id schema.InstrumentID) (schema.QuoteTick, bool) {
	q, ok := c.lastQuote[id]
	return q, ok
}

// LastTrade returns the latest trade print, if any.
func (c *Context) LastTrade(id schema.InstrumentID) (schema.TradeTick, bool) {
	tk, ok := c.lastTrade[id]
	return tk, ok
}

// Registry exposes instrument lookups to strategies.
func (c *Context) Registry() *schema.Registry { return c.reg }
