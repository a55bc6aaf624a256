// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package agent_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/agent"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

func TestLane_RunsOneTurnAtATime(t *testing.T) {
	lane := agent.NewLane("sess-1")
	defer lane.Close()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lane.Submit(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
}

func TestLanePool_SessionsRunIndependently(t *testing.T) {
	pool := agent.NewLanePool()
	defer pool.Close()

	assert.Same(t, pool.Get("a"), pool.Get("a"))

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for _, sid := range []string{"a", "b", "c"} {
		lane := pool.Get(sid)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lane.Submit(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, peak.Load(), int32(2))
}

func TestLane_CancelledContextSkipsWork(t *testing.T) {
	lane := agent.NewLane("sess-cancel")
	defer lane.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := lane.Submit(ctx, func(context.Context) error {
		t.Error("should not execute")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLane_RecoversPanics(t *testing.T) {
	lane := agent.NewLane("sess-panic")
	defer lane.Close()

	err := lane.Submit(context.Background(), func(context.Context) error { panic("boom") })
	require.Error(t, err)
	assert.True(t, aoserr.HasCode(err, aoserr.CodeAgentLoopFailure))

	assert.NoError(t, lane.Submit(context.Background(), func(context.Context) error { return nil }))
}

func TestLane_ClosedRejectsWork(t *testing.T) {
	lane := agent.NewLane("sess-closed")
	lane.Close()
	lane.Close()

	err := lane.Submit(context.Background(), func(context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, aoserr.HasCode(err, aoserr.CodeAgentLaneClosed))
}

func TestLanePool_SweepEvictsIdleLanes(t *testing.T) {
	pool := agent.NewLanePool()
	defer pool.Close()

	require.NoError(t, pool.Submit(context.Background(), "idle", func(context.Context) error { return nil }))
	require.Equal(t, 1, pool.Len())

	assert.Equal(t, 0, pool.Sweep(time.Hour), "recently used lane must stay")
	assert.Equal(t, 1, pool.Sweep(0))
	assert.Equal(t, 0, pool.Len())

	// The session gets a fresh lane on its next turn.
	require.NoError(t, pool.Submit(context.Background(), "idle", func(context.Context) error { return nil }))
	assert.Equal(t, 1, pool.Len())
}

func TestLanePool_SweepKeepsBusyLanes(t *testing.T) {
	pool := agent.NewLanePool()
	defer pool.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- pool.Submit(context.Background(), "busy", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.Equal(t, 0, pool.Sweep(0))
	assert.Equal(t, 1, pool.Len())

	close(release)
	require.NoError(t, <-errc)
	assert.Equal(t, 1, pool.Sweep(0))
}
