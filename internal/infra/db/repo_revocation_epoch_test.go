package db

import (
	"context"
	"sync"
	"testing"
)

func TestRevocationEpochRepository_StartsAtZeroPerIssuer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 2; want++ {
		got, err := store.Epochs.BumpEpoch(ctx, "employer")
		if err != nil {
			t.Fatalf("bump: %v", err)
		}
		if got != want {
			t.Fatalf("bump returned %d, want %d", got, want)
		}
	}

	cases := map[string]int64{"employer": 2, "bank": 0}
	for issuer, want := range cases {
		got, err := store.Epochs.GetEpoch(ctx, issuer)
		if err != nil {
			t.Fatalf("get %s: %v", issuer, err)
		}
		if got != want {
			t.Fatalf("epoch(%s) = %d, want %d", issuer, got, want)
		}
	}

	if _, err := store.Epochs.GetEpoch(ctx, ""); err == nil {
		t.Fatalf("expected issuer to be required")
	}
}

func TestRevocationEpochRepository_ConcurrentBumpsAreDistinct(t *testing.T) {
	store := newTestStore(t)
	const n = 8
	results := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Epochs.BumpEpoch(context.Background(), "bank")
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("bump %d: %v", i, errs[i])
		}
		if seen[results[i]] {
			t.Fatalf("epoch %d returned twice", results[i])
		}
		seen[results[i]] = true
	}
	if final, _ := store.Epochs.GetEpoch(context.Background(), "bank"); final != n {
		t.Fatalf("final epoch %d, want %d", final, n)
	}
}
