package singleflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_CoalescesConcurrentCalls(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	var calls atomic.Int32
	release := make(chan struct{})

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make([]int, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, _, err := g.Do(context.Background(), "k", func() (int, error) {
				calls.Add(1)
				<-release
				return 7, nil
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() > n {
		t.Fatalf("fn ran %d times", calls.Load())
	}
	for i, v := range results {
		if v != 7 {
			t.Fatalf("result[%d] = %d, want 7", i, v)
		}
	}
}

func TestDo_PanicBecomesError(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	_, _, err := g.Do(context.Background(), "k", func() (int, error) { panic("boom") })
	if err == nil {
		t.Fatal("expected error from panicking fn")
	}

	// The key must be released for the next caller.
	v, _, err := g.Do(context.Background(), "k", func() (int, error) { return 1, nil })
	if err != nil || v != 1 {
		t.Fatalf("second Do: v=%d err=%v", v, err)
	}
}

func TestDo_FollowerCancellation(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _, _ = g.Do(context.Background(), "k", func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, shared, err := g.Do(ctx, "k", func() (int, error) { return 2, nil })
	close(release)
	if !errors.Is(err, context.Canceled) || !shared {
		t.Fatalf("follower must observe cancellation, shared=%v err=%v", shared, err)
	}
}
