package factory

import (
	"strings"
	"testing"
	"time"
)

type sample struct {
	A       int
	Timeout time.Duration
}

type sampleConf struct {
	A       int           `json:"a"`
	Timeout time.Duration `json:"timeout"`
}

func sampleFactory(conf map[string]any) (*sample, error) {
	var c sampleConf
	if err := Decode(conf, &c); err != nil {
		return nil, err
	}
	return &sample{A: c.A, Timeout: c.Timeout}, nil
}

// Test registry registration and instantiation using Decode.
func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry[*sample]()
	if err := reg.Register("s", sampleFactory); err != nil {
		t.Fatalf("register: %v", err)
	}
	inst, err := reg.Create(ModuleConfig{Type: "s", Conf: map[string]any{"a": "3", "timeout": "2s"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.A != 3 {
		t.Fatalf("expected 3 got %d", inst.A)
	}
	if inst.Timeout != 2*time.Second {
		t.Fatalf("expected 2s got %v", inst.Timeout)
	}
}

// Test duplicate registration, unknown type and unknown key errors.
func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry[*sample]()
	if err := reg.Register("x", sampleFactory); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("x", sampleFactory); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := reg.Register("y", nil); err == nil {
		t.Fatal("expected nil factory error")
	}
	_, err := reg.Create(ModuleConfig{Type: "y"})
	if err == nil || !strings.Contains(err.Error(), "known: x") {
		t.Fatalf("expected unknown type error listing x, got %v", err)
	}
	if _, err := reg.Create(ModuleConfig{Type: "x", Conf: map[string]any{"b": 1}}); err == nil {
		t.Fatal("expected unused key error")
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry[int]()
	_ = reg.Register("b", func(map[string]any) (int, error) { return 0, nil })
	_ = reg.Register("a", func(map[string]any) (int, error) { return 0, nil })
	if got := strings.Join(reg.Names(), ","); got != "a,b" {
		t.Fatalf("names: %s", got)
	}
}
