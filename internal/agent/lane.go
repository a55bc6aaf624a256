// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package agent

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

type workItem struct {
	fn     func(context.Context) error
	ctx    context.Context
	result chan<- error
}

// Lane serialises the turns of one session. Runs are not re-entrant, so
// callers that may receive concurrent turns for the same session submit
// them here and they execute one at a time in FIFO order.
type Lane struct {
	sessionID string
	queue     chan workItem
	done      chan struct{}
	closing   chan struct{}

	// pending counts pool submissions in flight; lastUsed is unix nanos.
	pending  atomic.Int32
	lastUsed atomic.Int64

	once sync.Once
}

// NewLane creates a Lane and starts its worker. Call Close when done.
func NewLane(sessionID string) *Lane {
	l := &Lane{
		sessionID: sessionID,
		queue:     make(chan workItem, 64),
		done:      make(chan struct{}),
		closing:   make(chan struct{}),
	}
	l.lastUsed.Store(time.Now().UnixNano())
	go l.run()
	return l
}

func (l *Lane) run() {
	defer close(l.done)
	for {
		select {
		case w := <-l.queue:
			l.execute(w)
		case <-l.closing:
			for {
				select {
				case w := <-l.queue:
					l.execute(w)
				default:
					return
				}
			}
		}
	}
}

func (l *Lane) execute(w workItem) {
	if err := w.ctx.Err(); err != nil {
		w.result <- err
		return
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("lane worker panic recovered",
					"session_id", l.sessionID,
					"panic", r,
					"stack", string(debug.Stack()))
				err = aoserr.Errorf(aoserr.CodeAgentLoopFailure, "worker panic: %v", r)
			}
		}()
		err = w.fn(w.ctx)
	}()

	w.result <- err
}

// Submit enqueues fn and blocks until it completes, ctx is done, or the
// lane closes.
func (l *Lane) Submit(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-l.closing:
		return aoserr.New(aoserr.CodeAgentLaneClosed, "lane is closed")
	default:
	}

	result := make(chan error, 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closing:
		return aoserr.New(aoserr.CodeAgentLaneClosed, "lane is closed")
	case l.queue <- workItem{fn: fn, ctx: ctx, result: result}:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// Close stops accepting work and waits for queued items to finish. It is
// idempotent.
func (l *Lane) Close() {
	l.once.Do(func() {
		close(l.closing)
		<-l.done
	})
}

// LanePool hands out one Lane per session id.
type LanePool struct {
	mu    sync.Mutex
	lanes map[string]*Lane
}

func NewLanePool() *LanePool {
	return &LanePool{lanes: make(map[string]*Lane)}
}

// Get returns the Lane for sessionID, creating it on first use.
func (p *LanePool) Get(sessionID string) *Lane {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.lanes[sessionID]; ok {
		return l
	}
	l := NewLane(sessionID)
	p.lanes[sessionID] = l
	return l
}

// Submit runs fn on the lane for sessionID. Unlike Get followed by
// Lane.Submit, the lane is pinned for the duration so Sweep cannot evict it
// mid-turn.
func (p *LanePool) Submit(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	p.mu.Lock()
	l, ok := p.lanes[sessionID]
	if !ok {
		l = NewLane(sessionID)
		p.lanes[sessionID] = l
	}
	l.pending.Add(1)
	p.mu.Unlock()

	defer func() {
		l.lastUsed.Store(time.Now().UnixNano())
		l.pending.Add(-1)
	}()
	return l.Submit(ctx, fn)
}

// Sweep closes and removes lanes with no pending work that have been idle
// longer than idle. It returns the number evicted.
func (p *LanePool) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle).UnixNano()

	p.mu.Lock()
	var evicted []*Lane
	for id, l := range p.lanes {
		if l.pending.Load() > 0 || l.lastUsed.Load() > cutoff {
			continue
		}
		delete(p.lanes, id)
		evicted = append(evicted, l)
	}
	p.mu.Unlock()

	for _, l := range evicted {
		l.Close()
	}
	return len(evicted)
}

// Len reports the number of live lanes.
func (p *LanePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// Close shuts down every lane.
func (p *LanePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, l := range p.lanes {
		l.Close()
	}
	p.lanes = make(map[string]*Lane)
}
