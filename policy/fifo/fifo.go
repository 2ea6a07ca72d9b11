// Package fifo orders entries by when they were last written.
package fifo

import "github.com/IvanBrykalov/regioncache/policy"

type fifo[K comparable] struct {
	h policy.Hooks[K]
}

type fifoPolicy[K comparable] struct{}

// New returns the insertion-order discipline. Reads never promote; an
// applied overwrite counts as a fresh insertion.
func New[K comparable]() policy.Policy[K] { return fifoPolicy[K]{} }

func (fifoPolicy[K]) New(h policy.Hooks[K]) policy.ShardPolicy[K] { return &fifo[K]{h: h} }

func (fifoPolicy[K]) Name() string { return "fifo" }

func (p *fifo[K]) OnAdd(n policy.Node[K])    { p.h.PushFront(n) }
func (p *fifo[K]) OnGet(policy.Node[K])      {}
func (p *fifo[K]) OnUpdate(n policy.Node[K]) { p.h.MoveToFront(n) }
func (p *fifo[K]) OnRemove(policy.Node[K])   {}
