package cache

import (
	"context"
	"testing"
	"time"
)

func TestCachePutThenGetWithinTTL(t *testing.T) {
	c := New(Options{Distributed: NewMemoryStore()})
	ctx := context.Background()
	key := Key{Kind: KindBranch, Repo: "foo/bar", Branch: "main"}

	c.Put(ctx, key, []byte("payload"), time.Minute)

	got, ok := c.Get(ctx, key)
	if !ok || string(got) != "payload" {
		t.Fatalf("Get() = %q, %v; want \"payload\", true", got, ok)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	store := NewMemoryStore()
	c := New(Options{Distributed: store})
	ctx := context.Background()
	key := Key{Kind: KindComparison, Repo: "foo/bar", PRNumber: 7}

	c.Put(ctx, key, []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, key); ok {
		t.Fatalf("expected expired entry to be absent")
	}
}

func TestCacheFallsBackToLocalWhenDistributedErrors(t *testing.T) {
	store := NewMemoryStore()
	c := New(Options{Distributed: store, LocalCapacity: 10})
	ctx := context.Background()
	key := Key{Kind: KindTool, Repo: "foo/bar", Tool: "govet"}

	// Distributed healthy at write time: local tier is NOT populated
	// (write succeeded against the primary).
	c.Put(ctx, key, []byte("v1"), time.Minute)

	// Now the distributed backend goes down for both reads and writes.
	store.SetFailAll(true)

	key2 := Key{Kind: KindTool, Repo: "foo/bar", Tool: "staticgrep"}
	c.Put(ctx, key2, []byte("v2"), time.Minute)

	got, ok := c.Get(ctx, key2)
	if !ok || string(got) != "v2" {
		t.Fatalf("expected fallback get to succeed with v2, got %q, %v", got, ok)
	}

	stats := c.Stats()
	if stats.MemoryFallbacks == 0 {
		t.Errorf("expected memory fallback counter to be incremented")
	}

	if stats.Errors == 0 {
		t.Errorf("expected error counter to be incremented")
	}
}

func TestCacheInvalidateRepoRemovesOnlyMatchingKeys(t *testing.T) {
	store := NewMemoryStore()
	c := New(Options{Distributed: store})
	ctx := context.Background()

	kept := Key{Kind: KindBranch, Repo: "other/repo", Branch: "main"}
	removed1 := Key{Kind: KindBranch, Repo: "foo/bar", Branch: "main"}
	removed2 := Key{Kind: KindTool, Repo: "foo/bar", Tool: "govet"}

	c.Put(ctx, kept, []byte("k"), time.Hour)
	c.Put(ctx, removed1, []byte("r1"), time.Hour)
	c.Put(ctx, removed2, []byte("r2"), time.Hour)

	n := c.InvalidateRepo(ctx, "foo/bar")
	if n != 2 {
		t.Errorf("InvalidateRepo removed %d entries, want 2", n)
	}

	if _, ok := c.Get(ctx, kept); !ok {
		t.Errorf("unrelated key was unexpectedly invalidated")
	}

	if _, ok := c.Get(ctx, removed1); ok {
		t.Errorf("expected removed1 to be gone")
	}

	if _, ok := c.Get(ctx, removed2); ok {
		t.Errorf("expected removed2 to be gone")
	}
}

func TestCacheCompressesLargePayloads(t *testing.T) {
	c := New(Options{Distributed: NewMemoryStore(), CompressionThreshold: 16})
	ctx := context.Background()
	key := Key{Kind: KindFile, Repo: "foo/bar", ContentHashPrefix: "abc123"}

	large := make([]byte, 1024)
	for i := range large {
		large[i] = byte('a' + i%26)
	}

	c.Put(ctx, key, large, time.Minute)

	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatalf("expected large payload to round-trip")
	}

	if string(got) != string(large) {
		t.Errorf("decompressed payload mismatch")
	}

	if c.Stats().Compressions == 0 {
		t.Errorf("expected compression counter to be incremented")
	}
}

func TestGetTypedPutTypedRoundTrip(t *testing.T) {
	type payload struct {
		Name  string
		Count int
	}

	c := New(Options{Distributed: NewMemoryStore()})
	ctx := context.Background()
	key := Key{Kind: KindIssues, Repo: "foo/bar", Branch: "main"}

	want := payload{Name: "n", Count: 3}
	if err := PutTyped(ctx, c, key, want, time.Minute); err != nil {
		t.Fatalf("PutTyped: %v", err)
	}

	var got payload
	if !GetTyped(ctx, c, key, &got) {
		t.Fatalf("expected GetTyped to find the stored value")
	}

	if got != want {
		t.Errorf("GetTyped() = %+v, want %+v", got, want)
	}
}

func TestCacheNilDistributedUsesLocalOnly(t *testing.T) {
	c := New(Options{})
	ctx := context.Background()
	key := Key{Kind: KindRepo, Repo: "foo/bar"}

	c.Put(ctx, key, []byte("v"), time.Minute)

	got, ok := c.Get(ctx, key)
	if !ok || string(got) != "v" {
		t.Fatalf("expected local-only cache to serve the value")
	}
}
