package schema

import "testing"

func TestRegistryAddLookup(t *testing.T) {
	reg := NewRegistry()
	id, err := reg.Add(Instrument{Symbol: "ACME", Class: AssetEquity, QuoteCurrency: "USD"}, InstrumentMeta{QuotePrecision: 2, SettlementDays: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if id != 1 {
		t.Fatalf("first id: got %d", id)
	}
	got, ok := reg.Instrument(id)
	if !ok || got.Symbol != "ACME" {
		t.Fatalf("lookup: got %+v ok=%v", got, ok)
	}
	if _, err := reg.Add(Instrument{Symbol: "ACME", Class: AssetEquity}, InstrumentMeta{}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := reg.Add(Instrument{Symbol: "X", Class: AssetUnknown}, InstrumentMeta{}); err == nil {
		t.Fatalf("expected class error")
	}
	if _, ok := reg.Instrument(99); ok {
		t.Fatalf("expected missing id")
	}
}

func TestRegistryTradableWindow(t *testing.T) {
	reg := NewRegistry()
	id, err := reg.Add(Instrument{Symbol: "NEWCO", Class: AssetEquity, QuoteCurrency: "USD"}, InstrumentMeta{ListedAt: 100, DelistedAt: 200})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if reg.Tradable(id, 99) {
		t.Fatalf("tradable before listing")
	}
	if !reg.Tradable(id, 100) {
		t.Fatalf("not tradable at listing")
	}
	if reg.Tradable(id, 200) {
		t.Fatalf("tradable at delisting")
	}
}

func TestBarValidate(t *testing.T) {
	mk := func(o, h, l, c string) Bar {
		open, _ := ParsePrice(o)
		high, _ := ParsePrice(h)
		low, _ := ParsePrice(l)
		cl, _ := ParsePrice(c)
		return Bar{InstrumentID: 1, Resolution: ResDay, Kind: BarTrade, Open: open, High: high, Low: low, Close: cl}
	}
	if err := mk("10", "11", "9", "10.5").Validate(); err != nil {
		t.Fatalf("valid bar rejected: %v", err)
	}
	if err := mk("10", "9", "11", "10").Validate(); err == nil {
		t.Fatalf("inverted bar accepted")
	}
	crossed := Bar{InstrumentID: 1, Resolution: ResMinute, Kind: BarQuote, BidClose: 1001, AskClose: 1000}
	if err := crossed.Validate(); err == nil {
		t.Fatalf("crossed quote bar accepted")
	}
}
