package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestKey(t *testing.T) {
	a := Key("journal", "nature")
	b := Key("journal", "nature")
	c := Key("journal", "science")

	if a != b {
		t.Errorf("Expected stable keys, got %s and %s", a, b)
	}
	if a == c {
		t.Error("Expected different keys for different parts")
	}
	if !strings.HasPrefix(a, "scitrue:journal:v1:") {
		t.Errorf("Unexpected key prefix: %s", a)
	}
	if Key("journal", "a", "b") == Key("journal", "ab") {
		t.Error("Expected part boundaries to matter")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	value := []byte("hello")
	if err := c.Set("k", value, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value[0] = 'j'

	got, ok := c.Get("k")
	if !ok || string(got) != "hello" {
		t.Errorf("Expected stored copy 'hello', got %q (found=%v)", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", c.Len())
	}

	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Expected miss after delete")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	_ = c.Set("k", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("Expected entry to expire")
	}
}

func TestDiskCache(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := Key("journal", "nature")

	if err := c.Set(key, []byte(`{"sjr":"18.5"}`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("Expected hit")
	}
	if diff := cmp.Diff(`{"sjr":"18.5"}`, string(got)); diff != "" {
		t.Errorf("value mismatch (-want +got):\n%s", diff)
	}

	// Only the committed file should remain, no temp files
	matches, _ := filepath.Glob(filepath.Join(dir, "*", ".tmp-*"))
	if len(matches) != 0 {
		t.Errorf("Expected no temp files, found %v", matches)
	}

	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(key); err != nil {
		t.Errorf("Expected deleting a missing key to succeed, got %v", err)
	}
}

func TestDiskCache_Expired(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := Key("journal", "x")
	_ = c.Set(key, []byte("v"), time.Minute)

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(key); ok {
		t.Error("Expected expired entry to miss")
	}
	if _, err := os.Stat(c.path(key)); !os.IsNotExist(err) {
		t.Error("Expected expired file to be removed")
	}
}

func TestDiskCache_CorruptFileIsMiss(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	key := Key("journal", "x")
	path := c.path(key)
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	_ = os.WriteFile(path, []byte("{not json"), 0644)

	if _, ok := c.Get(key); ok {
		t.Error("Expected corrupt entry to miss")
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	c := NewLayeredCache(time.Minute, dir, time.Hour)
	key := Key("journal", "cell")

	if err := c.Set(key, []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_ = c.memory.Clear()

	got, ok := c.Get(key)
	if !ok || string(got) != "v" {
		t.Fatalf("Expected disk hit, got %q (found=%v)", got, ok)
	}
	if _, ok := c.memory.Get(key); !ok {
		t.Error("Expected disk hit to be promoted to memory")
	}
}

func TestLayeredCache_MemoryOnly(t *testing.T) {
	c := NewLayeredCache(time.Minute, "", 0)
	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := c.Get("k"); !ok {
		t.Error("Expected hit")
	}
	if err := c.Clear(); err != nil {
		t.Errorf("Clear: %v", err)
	}
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	type metrics struct {
		SJR     string
		Country string
	}

	in := metrics{SJR: "18.5", Country: "United Kingdom"}
	if err := SetJSON(c, "m", in, 0); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var out metrics
	if !GetJSON(c, "m", &out) {
		t.Fatal("Expected hit")
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	_ = c.Set("bad", []byte("{"), 0)
	if GetJSON(c, "bad", &out) {
		t.Error("Expected undecodable value to be a miss")
	}
}
