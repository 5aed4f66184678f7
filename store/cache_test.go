package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/tutor/compiler"
	"github.com/chazu/tutor/compiler/hash"
)

func openCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheGetMissing(t *testing.T) {
	c := openCache(t)
	if _, err := c.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestCachePutGet(t *testing.T) {
	c := openCache(t)
	if err := c.Put("k", []byte{1, 2, 3}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Put("k", []byte{4}); err != nil {
		t.Fatalf("Put (replace) failed: %v", err)
	}
	got, err := c.Get("k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 1 || got[0] != 4 {
		t.Errorf("Get() = %v, want [4]", got)
	}
}

func TestCacheReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put("k", []byte("image")); err != nil {
		t.Fatal(err)
	}
	c.Close()

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	got, err := c.Get("k")
	if err != nil || string(got) != "image" {
		t.Errorf("Get() = %q, %v; want image", got, err)
	}
}

func TestCachePrune(t *testing.T) {
	c := openCache(t)
	if err := c.Put("old", []byte{1}); err != nil {
		t.Fatal(err)
	}
	n, err := c.Prune(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if _, err := c.Get("old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("pruned entry still present: %v", err)
	}
}

func TestCacheByTreeHash(t *testing.T) {
	c := openCache(t)
	u, err := compiler.DecodeYAML([]byte(program))
	if err != nil {
		t.Fatal(err)
	}
	data, err := EncodeImage(compile(t, program))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put(hash.Key(u), data); err != nil {
		t.Fatal(err)
	}

	types := newTypes(t)
	again, _ := compiler.DecodeYAML([]byte(program))
	cached, err := c.Get(hash.Key(again))
	if err != nil {
		t.Fatalf("same tree missed the cache: %v", err)
	}
	res, err := DecodeImage(cached, types)
	if err != nil {
		t.Fatal(err)
	}
	if out := runResult(t, types, res); out != programOutput {
		t.Errorf("output = %q", out)
	}
}
