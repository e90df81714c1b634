package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLookupOrBuildSync_FirstBuildWins(t *testing.T) {
	c := New[string, int]()

	var builds int32
	build := func() int {
		atomic.AddInt32(&builds, 1)
		return 42
	}

	e1 := c.LookupOrBuildSync("k", build)
	e2 := c.LookupOrBuildSync("k", build)

	if e1 != e2 {
		t.Fatalf("expected the same entry for repeated lookups of the same key")
	}
	if got := e1.Read().Value(); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if builds != 1 {
		t.Fatalf("expected build to run exactly once, ran %d times", builds)
	}
}

func TestLookupOrBuildAsync_SingleFlight(t *testing.T) {
	c := New[string, int]()

	var builds int32
	start := make(chan struct{})

	build := func(ctx context.Context) (int, error) {
		<-start
		atomic.AddInt32(&builds, 1)
		time.Sleep(5 * time.Millisecond)
		return 7, nil
	}

	const n = 20
	results := make([]*Entry[int], n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			e, err := c.LookupOrBuildAsync(context.Background(), "shared", build)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = e
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("expected every caller to observe the same entry")
		}
	}
	if builds != 1 {
		t.Fatalf("expected build to run exactly once across racing callers, ran %d times", builds)
	}
}

func TestLookupOrBuildAsync_FailureDoesNotPoison(t *testing.T) {
	c := New[string, int]()

	var attempt int32
	build := func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&attempt, 1)
		if n == 1 {
			return 0, errBoom
		}
		return 99, nil
	}

	_, err := c.LookupOrBuildAsync(context.Background(), "k", build)
	if err == nil {
		t.Fatalf("expected the first build's failure to propagate")
	}

	e, err := c.LookupOrBuildAsync(context.Background(), "k", build)
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if got := e.Read().Value(); got != 99 {
		t.Fatalf("expected retry to succeed with 99, got %d", got)
	}
}

func TestDestroyGracefully_HolderSurvives(t *testing.T) {
	c := New[string, int]()

	e := c.LookupOrBuildSync("k", func() int { return 1 })
	g := e.Read()

	c.DestroyGracefully("k")
	if c.Len() != 0 {
		t.Fatalf("expected key to be removed from the map")
	}

	// The handle acquired before destruction is still valid.
	if got := g.Value(); got != 1 {
		t.Fatalf("expected held entry to remain readable, got %d", got)
	}
	g.Release()

	rebuilt := c.LookupOrBuildSync("k", func() int { return 2 })
	if rebuilt == e {
		t.Fatalf("expected a rebuild to produce a fresh entry")
	}
	if got := rebuilt.Read().Value(); got != 2 {
		t.Fatalf("expected rebuilt entry to hold 2, got %d", got)
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
