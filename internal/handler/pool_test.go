package handler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/swarmstep/swarmstep/internal/catalog"
)

func TestPool_Assign_RoundRobin(t *testing.T) {
	p := NewPool(3)
	ids := []catalog.GlobalID{0, 1, 2, 3, 4, 5, 6}
	buckets := p.Assign(ids)

	if len(buckets) != 3 {
		t.Fatalf("len(buckets) = %d, want 3", len(buckets))
	}
	want := [][]catalog.GlobalID{{0, 3, 6}, {1, 4}, {2, 5}}
	for i, b := range buckets {
		if len(b) != len(want[i]) {
			t.Fatalf("bucket %d = %v, want %v", i, b, want[i])
		}
		for j := range b {
			if b[j] != want[i][j] {
				t.Errorf("bucket %d[%d] = %d, want %d", i, j, b[j], want[i][j])
			}
		}
	}
}

func TestPool_Assign_MinimumOneGroup(t *testing.T) {
	p := NewPool(0)
	if p.Groups() != 1 {
		t.Errorf("Groups() = %d, want 1 for non-positive input", p.Groups())
	}
}

func TestPool_Run_VisitsEveryAgent(t *testing.T) {
	p := NewPool(4)
	ids := make([]catalog.GlobalID, 50)
	for i := range ids {
		ids[i] = catalog.GlobalID(i)
	}

	var mu sync.Mutex
	seen := make(map[catalog.GlobalID]bool)

	err := p.Run(context.Background(), ids, func(ctx context.Context, id catalog.GlobalID) error {
		mu.Lock()
		seen[id] = true
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var got []int
	for id := range seen {
		got = append(got, int(id))
	}
	sort.Ints(got)
	if len(got) != len(ids) {
		t.Fatalf("visited %d agents, want %d", len(got), len(ids))
	}
}

func TestPool_Run_PanicRecoveredAsError(t *testing.T) {
	p := NewPool(2)
	ids := []catalog.GlobalID{1}

	err := p.Run(context.Background(), ids, func(ctx context.Context, id catalog.GlobalID) error {
		panic("boom")
	})
	if err == nil {
		t.Fatal("Run() = nil, want panic-derived error")
	}
}

func TestPool_Run_PropagatesError(t *testing.T) {
	p := NewPool(1)
	wantErr := errors.New("behavior failed")

	err := p.Run(context.Background(), []catalog.GlobalID{1, 2}, func(ctx context.Context, id catalog.GlobalID) error {
		if id == 1 {
			return wantErr
		}
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Run() err = %v, want %v", err, wantErr)
	}
}

func TestPool_SetGroups_ChangesBucketCount(t *testing.T) {
	p := NewPool(2)
	p.SetGroups(5)
	if p.Groups() != 5 {
		t.Fatalf("Groups() = %d, want 5 after SetGroups", p.Groups())
	}
	buckets := p.Assign([]catalog.GlobalID{0, 1, 2, 3, 4, 5})
	if len(buckets) != 5 {
		t.Fatalf("len(buckets) = %d, want 5", len(buckets))
	}
}

func TestPool_SetGroups_MinimumOneGroup(t *testing.T) {
	p := NewPool(3)
	p.SetGroups(0)
	if p.Groups() != 1 {
		t.Errorf("Groups() = %d, want 1 for non-positive SetGroups input", p.Groups())
	}
}

func TestPool_Run_EmptyIDs(t *testing.T) {
	p := NewPool(3)
	if err := p.Run(context.Background(), nil, func(ctx context.Context, id catalog.GlobalID) error {
		t.Error("fn should not be called for empty id set")
		return nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
