package anyvcs

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestOpCacheComputesOncePerKey(t *testing.T) {
	c := newOpCache(16)
	var computations atomic.Int32

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cached(c, "key", func() (int, error) {
				computations.Add(1)
				time.Sleep(10 * time.Millisecond)
				return 42, nil
			})
			if err != nil {
				t.Errorf("cached returned error: %v", err)
			}
			if v != 42 {
				t.Errorf("cached returned %d, want 42", v)
			}
		}()
	}
	wg.Wait()
	if n := computations.Load(); n != 1 {
		t.Fatalf("computation ran %d times, want exactly once", n)
	}
}

func TestOpCacheFailureIsNotStored(t *testing.T) {
	c := newOpCache(16)
	boom := errors.New("boom")
	calls := 0

	_, err := cached(c, "key", func() (string, error) {
		calls++
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("first call should fail, got %v", err)
	}

	v, err := cached(c, "key", func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("retry after failure should recompute: %v, %v", v, err)
	}
	if calls != 2 {
		t.Fatalf("compute calls = %d, want 2", calls)
	}

	// Third call hits the stored success.
	v, err = cached(c, "key", func() (string, error) {
		calls++
		return "again", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("stored value should be returned: %v, %v", v, err)
	}
	if calls != 2 {
		t.Fatalf("stored success should not recompute, calls = %d", calls)
	}
}

func TestOpCacheKeysAreIndependent(t *testing.T) {
	c := newOpCache(16)
	a, err := cached(c, cacheKey("op", "a"), func() (string, error) { return "a", nil })
	if err != nil {
		t.Fatal(err)
	}
	b, err := cached(c, cacheKey("op", "b"), func() (string, error) { return "b", nil })
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("distinct keys collided: %q", a)
	}
}

func TestCacheKeySeparatesParts(t *testing.T) {
	if cacheKey("op", "ab", "c") == cacheKey("op", "a", "bc") {
		t.Fatal("cache key parts must not be ambiguous under concatenation")
	}
}
