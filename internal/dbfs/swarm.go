// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
)

// TaskKey doubles as a priority when a Swarm uses a priority queue. Keys are
// either integers (auto-incremented) or strings (paths), both totally
// ordered: None < Int < String, and same-typed values compare naturally.
type TaskKey struct {
	none  bool
	isStr bool
	num   int64
	str   string
}

// NoneKey sorts before every other key.
var NoneKey = TaskKey{none: true}

// IntKey builds an integer task key.
func IntKey(n int64) TaskKey { return TaskKey{num: n} }

// StrKey builds a string (path) task key.
func StrKey(s string) TaskKey { return TaskKey{isStr: true, str: s} }

// Less orders shorter/ancestor path keys ahead of deeper ones, so shallow
// directory listings drain before the subtrees they discover.
func (k TaskKey) Less(o TaskKey) bool {
	if k.none != o.none {
		return k.none
	}
	if k.none {
		return false
	}
	if k.isStr != o.isStr {
		return !k.isStr // ints sort below strings
	}
	if k.isStr {
		return k.str < o.str
	}
	return k.num < o.num
}

// SwarmTask is a queue element: a key (priority, for priority queues), a
// callable, and an optional response channel.
type SwarmTask struct {
	Key      TaskKey
	Run      func(ctx context.Context) (any, error)
	Response chan<- TaskOutcome
}

// TaskOutcome is pushed to a task's response channel, when set, after Run
// completes.
type TaskOutcome struct {
	Key   TaskKey
	Value any
	Err   error
}

type taskHeap []*SwarmTask

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].Key.Less(h[j].Key) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)         { *h = append(*h, x.(*SwarmTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}

// Swarm is a bounded worker pool owning N goroutines and one task queue,
// either FIFO or priority, with an explicit priority mode for Walker.
type Swarm struct {
	n        int
	priority bool
	ctx      context.Context

	ch   chan *SwarmTask // FIFO mode
	mu   sync.Mutex      // priority mode
	cond *sync.Cond
	heap taskHeap
	done bool

	nextAuto int64
	wg       sync.WaitGroup
}

// NewFIFOSwarm creates an N-worker Swarm with a FIFO queue bounded to
// capacity, giving back-pressure to producers. Pass ctx to be used as the
// ambient context for tasks run without their own.
func NewFIFOSwarm(ctx context.Context, n, capacity int) *Swarm {
	if capacity <= 0 {
		capacity = n
	}
	s := &Swarm{n: n, ctx: ctx, ch: make(chan *SwarmTask, capacity)}
	return s
}

// NewPrioritySwarm creates an N-worker Swarm with an unbounded priority
// queue, so listings can never deadlock on enqueue.
func NewPrioritySwarm(ctx context.Context, n int) *Swarm {
	s := &Swarm{n: n, ctx: ctx, priority: true}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start spins up the N worker goroutines.
func (s *Swarm) Start() {
	s.wg.Add(s.n)
	for i := 0; i < s.n; i++ {
		go s.worker()
	}
}

// NextKey returns a monotonically increasing integer key local to this
// Swarm, for tasks put without an explicit key.
func (s *Swarm) NextKey() TaskKey {
	return IntKey(atomic.AddInt64(&s.nextAuto, 1))
}

// Put enqueues a task.
func (s *Swarm) Put(t *SwarmTask) {
	if s.priority {
		s.mu.Lock()
		heap.Push(&s.heap, t)
		s.cond.Signal()
		s.mu.Unlock()
		return
	}
	s.ch <- t
}

func (s *Swarm) pop() (*SwarmTask, bool) {
	if s.priority {
		s.mu.Lock()
		defer s.mu.Unlock()
		for s.heap.Len() == 0 && !s.done {
			s.cond.Wait()
		}
		if s.heap.Len() == 0 {
			return nil, false
		}
		return heap.Pop(&s.heap).(*SwarmTask), true
	}
	t, ok := <-s.ch
	if !ok || t == nil {
		return nil, false
	}
	return t, true
}

func (s *Swarm) worker() {
	defer s.wg.Done()
	for {
		t, ok := s.pop()
		if !ok {
			return
		}
		v, err := t.Run(s.ctx)
		if t.Response != nil {
			t.Response <- TaskOutcome{Key: t.Key, Value: v, Err: err}
		}
	}
}

// Terminate enqueues N sentinels (or, for priority queues, flags the queue
// closed once drained) so workers exit once currently-queued work is done.
func (s *Swarm) Terminate() {
	if s.priority {
		s.mu.Lock()
		s.done = true
		s.cond.Broadcast()
		s.mu.Unlock()
		return
	}
	for i := 0; i < s.n; i++ {
		s.ch <- nil
	}
}

// Wait blocks until all workers have exited.
func (s *Swarm) Wait() { s.wg.Wait() }

// RunWhile runs the N workers concurrently with a single driver; when the
// driver finishes (success or failure) the Swarm is terminated and its
// workers drained, then the driver's error (if any) is returned.
func (s *Swarm) RunWhile(ctx context.Context, driver func(ctx context.Context) error) error {
	s.Start()
	err := driver(ctx)
	s.Terminate()
	s.Wait()
	return err
}
