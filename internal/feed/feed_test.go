package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketsim/internal/calendar"
	"marketsim/internal/schema"
)

const sampleCSV = `time,open,high,low,close,volume
2024-01-10T00:00:00Z,100,101,99,100.5,1200
2024-01-11T00:00:00Z,100.5,102,100,101.75,900
2024-01-12T00:00:00Z,101.75,103,101,102.25,1500
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	return path
}

func TestOpenCSVParsesBars(t *testing.T) {
	f, err := OpenCSV(writeSample(t), 1, schema.ResDay)
	require.NoError(t, err)

	ev, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, schema.PayloadBar, ev.Kind)
	wantStart := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC).UnixNano()
	require.Equal(t, wantStart, ev.Bar.Start)
	// The bar event lands at its effective time, one interval later.
	require.Equal(t, wantStart+int64(24*time.Hour), ev.Ts)
	px, _ := schema.ParsePrice("100.5")
	require.Equal(t, px, ev.Bar.Close)

	count := 1
	for {
		_, ok := f.Next()
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 3, count)
}

func TestCSVRejectsDirtyData(t *testing.T) {
	dir := t.TempDir()
	inverted := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(inverted, []byte(
		"time,open,high,low,close,volume\n2024-01-10T00:00:00Z,100,99,101,100,10\n"), 0o644))
	_, err := OpenCSV(inverted, 1, schema.ResDay)
	require.Error(t, err)

	outOfOrder := filepath.Join(dir, "ooo.csv")
	require.NoError(t, os.WriteFile(outOfOrder, []byte(
		"time,open,high,low,close,volume\n"+
			"2024-01-11T00:00:00Z,100,101,99,100,10\n"+
			"2024-01-10T00:00:00Z,100,101,99,100,10\n"), 0o644))
	_, err = OpenCSV(outOfOrder, 1, schema.ResDay)
	require.Error(t, err)
}

func TestWarmupReturnsPriorBars(t *testing.T) {
	f, err := OpenCSV(writeSample(t), 1, schema.ResDay)
	require.NoError(t, err)
	// Start at the 12th: the first two bars are effective by then.
	start := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC).UnixNano()
	bars := f.Warmup(1, schema.ResDay, start, 0)
	require.Len(t, bars, 2)
	bars = f.Warmup(1, schema.ResDay, start, 1)
	require.Len(t, bars, 1)
	px, _ := schema.ParsePrice("101.75")
	require.Equal(t, px, bars[0].Close)
}

func TestGeneratorDeterministic(t *testing.T) {
	reg := schema.NewRegistry()
	_, err := reg.Add(schema.Instrument{Symbol: "A", Class: schema.AssetCrypto, QuoteCurrency: "USD"}, schema.InstrumentMeta{})
	require.NoError(t, err)
	cal, err := calendar.New(calendar.Config{Name: "ALL", OpenOffset: 0, CloseOffset: 24 * time.Hour, WeekendDays: []time.Weekday{}})
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano()
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC).UnixNano()
	base, _ := schema.ParsePrice("100")

	run := func() []schema.Price {
		g := NewGenerator(reg, cal, schema.ResDay, start, end, base, 7)
		var closes []schema.Price
		for {
			ev, ok := g.Next()
			if !ok {
				break
			}
			require.NoError(t, ev.Bar.Validate())
			closes = append(closes, ev.Bar.Close)
		}
		return closes
	}
	first := run()
	require.NotEmpty(t, first)
	require.Equal(t, first, run())
}
