// Package handler implements the K worker-goroutine groups a master fans
// its locally owned agents out across during RunBehaviors, one phase at a
// time, joined by an errgroup barrier.
package handler

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/swarmstep/swarmstep/internal/catalog"
)

// Func executes one agent's behavior for the current step.
type Func func(ctx context.Context, id catalog.GlobalID) error

// Pool assigns a master's locally owned agents to a fixed number of
// worker groups, round-robin, and runs a phase across all of them
// concurrently.
type Pool struct {
	groups int64 // atomic
}

// NewPool creates a Pool with the given number of worker groups. groups
// must be at least 1.
func NewPool(groups int) *Pool {
	if groups < 1 {
		groups = 1
	}
	return &Pool{groups: int64(groups)}
}

// Groups returns the number of worker groups in the pool.
func (p *Pool) Groups() int { return int(atomic.LoadInt64(&p.groups)) }

// SetGroups changes the number of worker groups for every subsequent Run
// call (the CLI's set_nb_threads, §6's inbound command surface). It takes
// effect on the next RunTimeStep; a step already in flight keeps the
// group count it started with, since Assign buckets once per Run call.
func (p *Pool) SetGroups(n int) {
	if n < 1 {
		n = 1
	}
	atomic.StoreInt64(&p.groups, int64(n))
}

// Assign partitions ids into p.Groups() buckets round-robin, in the order
// given, so repeated assignment of the same id set across steps is
// deterministic (P5).
func (p *Pool) Assign(ids []catalog.GlobalID) [][]catalog.GlobalID {
	n := p.Groups()
	buckets := make([][]catalog.GlobalID, n)
	for i, id := range ids {
		g := i % n
		buckets[g] = append(buckets[g], id)
	}
	return buckets
}

// Run partitions ids across the pool's worker groups and executes fn for
// each id, sequentially within a group and concurrently across groups,
// joined by an errgroup barrier. A panicking fn is recovered and reported
// as an error for that single agent rather than aborting the whole phase;
// all other agents in the step still run.
func (p *Pool) Run(ctx context.Context, ids []catalog.GlobalID, fn Func) error {
	buckets := p.Assign(ids)

	var g errgroup.Group
	for _, bucket := range buckets {
		bucket := bucket
		g.Go(func() error {
			var firstErr error
			for _, id := range bucket {
				if err := ctx.Err(); err != nil {
					if firstErr == nil {
						firstErr = err
					}
					break
				}
				if err := runOne(ctx, id, fn); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		})
	}
	return g.Wait()
}

func runOne(ctx context.Context, id catalog.GlobalID, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler: agent %d panicked: %v", id, r)
		}
	}()
	return fn(ctx, id)
}
