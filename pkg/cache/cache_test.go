package cache

import (
	"testing"
	"time"
)

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory()

	if _, ok := m.Get("missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	m.Set("a", 1, 0)
	v, ok := m.Get("a")
	if !ok || v.(int) != 1 {
		t.Fatalf("expected 1, got %v (present=%v)", v, ok)
	}

	m.Set("a", 2, 0)
	if v, _ := m.Get("a"); v.(int) != 2 {
		t.Errorf("expected overwrite to 2, got %v", v)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Set("ttl", "x", time.Minute)
	m.Set("forever", "y", 0)

	now = now.Add(59 * time.Second)
	if _, ok := m.Get("ttl"); !ok {
		t.Fatal("entry expired too early")
	}

	now = now.Add(time.Second)
	if _, ok := m.Get("ttl"); ok {
		t.Error("entry should have expired")
	}
	if m.Len() != 1 {
		t.Errorf("expected expired entry to be evicted, len=%d", m.Len())
	}

	now = now.Add(24 * time.Hour)
	if _, ok := m.Get("forever"); !ok {
		t.Error("entry without ttl must never expire")
	}
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	m.Set(Key("perms", "1", "root"), 1, 0)
	m.Set(Key("perms", "1", "child"), 2, 0)
	m.Set(Key("rules", "1", "root"), 3, 0)

	m.Delete("does-not-exist")
	m.Delete(Key("rules", "1", "root"))
	if _, ok := m.Get(Key("rules", "1", "root")); ok {
		t.Error("deleted key still present")
	}

	if n := m.DeletePrefix("perms:"); n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if m.Len() != 0 {
		t.Errorf("expected empty store, len=%d", m.Len())
	}

	m.Set("x", 1, 0)
	m.Flush()
	if m.Len() != 0 {
		t.Error("flush did not clear entries")
	}
}
