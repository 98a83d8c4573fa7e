package schema

import "testing"

func TestParseScaledRoundTrip(t *testing.T) {
	cases := []struct {
		in    string
		scale int
		want  int64
	}{
		{"100", 4, 1_000_000},
		{"100.05", 4, 1_000_500},
		{"-0.0001", 4, -1},
		{"0.12345000", 4, 1234},
		{"10.02", 4, 100_200},
	}
	for _, c := range cases {
		got, err := ParseScaled(c.in, c.scale)
		if err != nil {
			t.Fatalf("parse %q: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("parse %q: got %d want %d", c.in, got, c.want)
		}
	}
}

func TestParseScaledRejectsExcessPrecision(t *testing.T) {
	if _, err := ParseScaled("1.00001", 4); err == nil {
		t.Fatalf("expected precision error")
	}
	if _, err := ParseScaled("", 4); err == nil {
		t.Fatalf("expected empty error")
	}
}

func TestNotionalExact(t *testing.T) {
	p, err := ParsePrice("10.02")
	if err != nil {
		t.Fatalf("parse price: %v", err)
	}
	q, err := ParseQuantity("50")
	if err != nil {
		t.Fatalf("parse qty: %v", err)
	}
	got := Notional(p, q)
	want, err := ParseCash("501")
	if err != nil {
		t.Fatalf("parse cash: %v", err)
	}
	if got != want {
		t.Fatalf("notional: got %s want %s", got, want)
	}
}

func TestAvgPriceHalfEven(t *testing.T) {
	// 100 + 50 + 400 shares at 10.00 / 10.01 / 10.02: the weighted
	// average 5508.5/550 = 10.015454... rounds to 10.0155.
	var notional Cash
	var qty Quantity
	for _, leg := range []struct{ px, sz string }{
		{"10.00", "100"}, {"10.01", "50"}, {"10.02", "400"},
	} {
		p, _ := ParsePrice(leg.px)
		q, _ := ParseQuantity(leg.sz)
		notional += Notional(p, q)
		qty += q
	}
	avg := AvgPrice(notional, qty)
	want, _ := ParsePrice("10.0155")
	if avg != want {
		t.Fatalf("avg price: got %s want %s", avg, want)
	}
}

func TestRoundHalfEven(t *testing.T) {
	cases := []struct{ in, unit, want int64 }{
		{150, 100, 200}, // half up to even 2
		{250, 100, 200}, // half down to even 2
		{-150, 100, -200},
		{-250, 100, -200},
		{149, 100, 100},
		{151, 100, 200},
	}
	for _, c := range cases {
		if got := roundHalfEven(c.in, c.unit); got != c.want {
			t.Fatalf("roundHalfEven(%d,%d): got %d want %d", c.in, c.unit, got, c.want)
		}
	}
}

func TestRoundCashToCents(t *testing.T) {
	c, err := ParseCash("1.005")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want, _ := ParseCash("1.00")
	if got := RoundCashToCents(c); got != want {
		t.Fatalf("round to cents: got %s want %s", got, want)
	}
}

func TestApplyBps(t *testing.T) {
	p, _ := ParsePrice("100")
	up := ApplyBps(p, 10)
	want, _ := ParsePrice("100.10")
	if up != want {
		t.Fatalf("apply +10bps: got %s want %s", up, want)
	}
	down := ApplyBps(p, -10)
	want, _ = ParsePrice("99.90")
	if down != want {
		t.Fatalf("apply -10bps: got %s want %s", down, want)
	}
}

func TestFormatScaled(t *testing.T) {
	p, _ := ParsePrice("0.05")
	if p.String() != "0.0500" {
		t.Fatalf("format: got %s", p.String())
	}
	n, _ := ParseCash("-12.5")
	if n.String() != "-12.50000000" {
		t.Fatalf("format: got %s", n.String())
	}
}
