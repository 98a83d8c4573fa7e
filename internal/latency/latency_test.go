package latency

import (
	"testing"
	"time"
)

func TestFixedDelay(t *testing.T) {
	m, err := New(1, Config{Kind: KindFixed, Mean: time.Millisecond}, Config{}, Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 5; i++ {
		if d := m.OrderDelay(); d != time.Millisecond {
			t.Fatalf("fixed delay: got %s", d)
		}
	}
	if d := m.DataDelay(); d != 0 {
		t.Fatalf("zero fixed delay: got %s", d)
	}
}

func TestUniformBounds(t *testing.T) {
	cfg := Config{Kind: KindUniform, Min: time.Millisecond, Max: 2 * time.Millisecond}
	m, err := New(1, cfg, cfg, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 1000; i++ {
		d := m.OrderDelay()
		if d < time.Millisecond || d > 2*time.Millisecond {
			t.Fatalf("uniform out of bounds: %s", d)
		}
	}
}

func TestSeededStreamsReproduce(t *testing.T) {
	cfg := Config{Kind: KindExponential, Mean: time.Millisecond}
	m1, _ := New(99, cfg, cfg, cfg)
	m2, _ := New(99, cfg, cfg, cfg)
	for i := 0; i < 100; i++ {
		if m1.OrderDelay() != m2.OrderDelay() {
			t.Fatalf("order stream diverged at %d", i)
		}
		if m1.DataDelay() != m2.DataDelay() {
			t.Fatalf("data stream diverged at %d", i)
		}
	}
}

func TestStreamsAreIndependent(t *testing.T) {
	cfg := Config{Kind: KindExponential, Mean: time.Millisecond}
	m1, _ := New(99, cfg, cfg, cfg)
	m2, _ := New(99, cfg, cfg, cfg)
	// Consuming one stream must not perturb the others.
	for i := 0; i < 10; i++ {
		m1.OrderDelay()
	}
	if m1.DataDelay() != m2.DataDelay() {
		t.Fatalf("data stream coupled to order stream")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{Kind: KindUniform, Min: 2, Max: 1}).Validate(); err == nil {
		t.Fatalf("inverted uniform accepted")
	}
	if err := (Config{Kind: KindFixed, Mean: -1}).Validate(); err == nil {
		t.Fatalf("negative mean accepted")
	}
	if _, err := New(1, Config{Kind: Kind(99)}, Config{}, Config{}); err == nil {
		t.Fatalf("unknown kind accepted")
	}
}
