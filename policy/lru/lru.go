// Package lru orders entries by recency of access or write.
package lru

import "github.com/IvanBrykalov/regioncache/policy"

type lru[K comparable] struct {
	h policy.Hooks[K]
}

type lruPolicy[K comparable] struct{}

// New returns the least-recently-used discipline: reads and applied writes
// both promote, so the back of the list is the entry untouched for longest.
func New[K comparable]() policy.Policy[K] { return lruPolicy[K]{} }

func (lruPolicy[K]) New(h policy.Hooks[K]) policy.ShardPolicy[K] { return &lru[K]{h: h} }

func (lruPolicy[K]) Name() string { return "lru" }

func (p *lru[K]) OnAdd(n policy.Node[K])    { p.h.PushFront(n) }
func (p *lru[K]) OnGet(n policy.Node[K])    { p.h.MoveToFront(n) }
func (p *lru[K]) OnUpdate(n policy.Node[K]) { p.h.MoveToFront(n) }
func (p *lru[K]) OnRemove(policy.Node[K])   {}
