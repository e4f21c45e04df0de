package cache

import (
	"context"
	"strings"
	"testing"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok := m.GetCache(ctx, "k"); ok {
		t.Error("expected miss on empty cache")
	}

	val := []byte("value")
	if err := m.SetCache(ctx, "k", val); err != nil {
		t.Fatal(err)
	}
	val[0] = 'X'

	got, ok := m.GetCache(ctx, "k")
	if !ok || string(got) != "value" {
		t.Errorf("GetCache = %q, %v; stored value must be copied", got, ok)
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", m.Len())
	}
}

func TestKey(t *testing.T) {
	a := Key("geocode", "nominatim", "Midlothian, TX")
	b := Key("geocode", "nominatim", "  midlothian, tx ")
	if a != b {
		t.Errorf("keys should normalize case and whitespace: %s != %s", a, b)
	}
	if !strings.HasPrefix(a, "geocode:") {
		t.Errorf("missing namespace: %s", a)
	}
	if Key("geocode", "ab", "c") == Key("geocode", "a", "bc") {
		t.Error("part boundaries must affect the key")
	}
}

func TestOverlay(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	_ = base.SetCache(ctx, "shared", []byte("base"))

	o := NewOverlay(base)
	if v, ok := o.GetCache(ctx, "shared"); !ok || string(v) != "base" {
		t.Errorf("expected read-through, got %q %v", v, ok)
	}
	if err := o.SetCache(ctx, "new", []byte("mem")); err != nil {
		t.Fatal(err)
	}
	if v, ok := o.GetCache(ctx, "new"); !ok || string(v) != "mem" {
		t.Errorf("expected overlay hit, got %q %v", v, ok)
	}
	if _, ok := base.GetCache(ctx, "new"); ok {
		t.Error("overlay write reached the base cache")
	}

	if _, ok := NewOverlay(nil).GetCache(ctx, "x"); ok {
		t.Error("nil base should miss")
	}
}
