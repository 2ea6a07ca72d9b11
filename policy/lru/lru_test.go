package lru

import (
	"testing"

	"github.com/IvanBrykalov/regioncache/policy"
)

// --- test doubles ---

type testNode[K comparable] struct{ k K }

func (n *testNode[K]) Key() K { return n.k }

type mockHooks[K comparable] struct {
	pushFrontCnt   int
	moveToFrontCnt int
	removeCnt      int

	lastPush policy.Node[K]
	lastMove policy.Node[K]
}

func (h *mockHooks[K]) MoveToFront(n policy.Node[K]) { h.moveToFrontCnt++; h.lastMove = n }
func (h *mockHooks[K]) PushFront(n policy.Node[K])   { h.pushFrontCnt++; h.lastPush = n }
func (h *mockHooks[K]) Remove(policy.Node[K])        { h.removeCnt++ }
func (h *mockHooks[K]) Back() policy.Node[K]         { return nil }
func (h *mockHooks[K]) Len() int                     { return 0 }

// --- tests ---

func TestLRU_OnAdd_PushFront(t *testing.T) {
	t.Parallel()

	h := &mockHooks[string]{}
	p := New[string]().New(h)

	n := &testNode[string]{k: "Order#1"}
	p.OnAdd(n)

	if h.pushFrontCnt != 1 || h.lastPush != n {
		t.Fatalf("OnAdd must call PushFront exactly once with the node")
	}
	if h.moveToFrontCnt != 0 || h.removeCnt != 0 {
		t.Fatalf("OnAdd must not call MoveToFront/Remove")
	}
}

// Reads count as use for LRU.
func TestLRU_OnGet_Promotes(t *testing.T) {
	t.Parallel()

	h := &mockHooks[string]{}
	p := New[string]().New(h)

	n := &testNode[string]{k: "Order#2"}
	p.OnGet(n)

	if h.moveToFrontCnt != 1 || h.lastMove != n {
		t.Fatalf("OnGet must call MoveToFront exactly once with the node")
	}
}

func TestLRU_OnUpdate_Promotes(t *testing.T) {
	t.Parallel()

	h := &mockHooks[string]{}
	p := New[string]().New(h)

	n := &testNode[string]{k: "Order#3"}
	p.OnUpdate(n)

	if h.moveToFrontCnt != 1 || h.lastMove != n {
		t.Fatalf("OnUpdate must call MoveToFront exactly once with the node")
	}
}

func TestLRU_OnRemove_NoOp(t *testing.T) {
	t.Parallel()

	h := &mockHooks[string]{}
	p := New[string]().New(h)
	p.OnRemove(&testNode[string]{k: "Order#4"})

	if h.pushFrontCnt != 0 || h.moveToFrontCnt != 0 || h.removeCnt != 0 {
		t.Fatalf("OnRemove for LRU must be no-op")
	}
	if New[string]().Name() != "lru" {
		t.Fatal("unexpected policy name")
	}
}
