package slab

import (
	"math/rand"
	"testing"
)

func key(price, seq uint64) Key128 { return Key128{Hi: price, Lo: seq} }

func mustLeaf(key Key128, qty uint64) Node {
	return Node{Tag: TagLeaf, Key: key, Quantity: qty}
}

func TestInsertFindMinMax(t *testing.T) {
	s := New(16)
	prices := []uint64{50, 10, 90, 30, 70}
	indices := make(map[uint64]uint32)
	for i, p := range prices {
		idx, err := s.Insert(mustLeaf(key(p, uint64(i)), 1))
		if err != nil {
			t.Fatalf("insert %d: %v", p, err)
		}
		indices[p] = idx
	}

	minIdx, ok, err := s.FindMin()
	if err != nil || !ok {
		t.Fatalf("find min: ok=%v err=%v", ok, err)
	}
	if got := s.Nodes[minIdx].Key.Price(); got != 10 {
		t.Fatalf("find min price = %d, want 10", got)
	}

	maxIdx, ok, err := s.FindMax()
	if err != nil || !ok {
		t.Fatalf("find max: ok=%v err=%v", ok, err)
	}
	if got := s.Nodes[maxIdx].Key.Price(); got != 90 {
		t.Fatalf("find max price = %d, want 90", got)
	}

	if s.Header.LeafCount != uint64(len(prices)) {
		t.Fatalf("leaf_count = %d, want %d", s.Header.LeafCount, len(prices))
	}
}

func TestFindByKeyRoundTrip(t *testing.T) {
	s := New(32)
	keys := []Key128{key(5, 1), key(5, 2), key(1000, 3), key(7, 4), key(2, 5)}
	idxByKey := make(map[Key128]uint32)
	for _, k := range keys {
		idx, err := s.Insert(mustLeaf(k, 1))
		if err != nil {
			t.Fatalf("insert %+v: %v", k, err)
		}
		idxByKey[k] = idx
	}
	for _, k := range keys {
		got, ok, err := s.FindByKey(k)
		if err != nil {
			t.Fatalf("find_by_key %+v: %v", k, err)
		}
		if !ok {
			t.Fatalf("find_by_key %+v: not found", k)
		}
		if got != idxByKey[k] {
			t.Fatalf("find_by_key %+v = %d, want %d", k, got, idxByKey[k])
		}
	}
	if _, ok, err := s.FindByKey(key(999, 999)); err != nil || ok {
		t.Fatalf("find_by_key absent key: ok=%v err=%v", ok, err)
	}
}

func TestInsertRemoveRestoresLeafCount(t *testing.T) {
	s := New(8)
	idx, err := s.Insert(mustLeaf(key(100, 1), 5))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	before := s.Header.LeafCount
	if err := s.Remove(idx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.Header.LeafCount != before-1 {
		t.Fatalf("leaf_count after remove = %d, want %d", s.Header.LeafCount, before-1)
	}
	if s.Header.Root != uint64(InvalidIndex) {
		t.Fatalf("root should be sentinel after removing sole leaf")
	}
}

func TestDuplicateKeyIsInvalidTree(t *testing.T) {
	s := New(4)
	k := key(42, 1)
	if _, err := s.Insert(mustLeaf(k, 1)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := s.Insert(mustLeaf(k, 1)); err == nil {
		t.Fatalf("expected InvalidTree on duplicate key")
	}
}

func TestSlabFullOnCapacity(t *testing.T) {
	s := New(2)
	if _, err := s.Insert(mustLeaf(key(1, 1), 1)); err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	// Second insert needs an inner node too, exhausting the 2-slot pool.
	if _, err := s.Insert(mustLeaf(key(2, 2), 1)); err == nil {
		t.Fatalf("expected SlabFull when pool is exhausted by inner+leaf allocation")
	}
}

// TestRandomMixPartitionsPool drives a random sequence of inserts and
// removes and checks that leaf_count always equals the number of leaves
// reachable from root, and that free-list slots and reachable tree nodes
// never overlap.
func TestRandomMixPartitionsPool(t *testing.T) {
	const capacity = 64
	rng := rand.New(rand.NewSource(7))
	s := New(capacity)
	live := make(map[Key128]uint32)
	seq := uint64(0)

	for i := 0; i < 2000; i++ {
		if len(live) == 0 || rng.Intn(2) == 0 {
			price := uint64(rng.Intn(500))
			seq++
			k := key(price, seq)
			if _, exists := live[k]; exists {
				continue
			}
			idx, err := s.Insert(mustLeaf(k, 1))
			if err != nil {
				continue // SlabFull is expected once capacity is reached
			}
			live[k] = idx
		} else {
			for k, idx := range live {
				if err := s.Remove(idx); err != nil {
					t.Fatalf("remove %+v: %v", k, err)
				}
				delete(live, k)
				break
			}
		}

		reachable := countReachable(t, s)
		if reachable != len(live) {
			t.Fatalf("iteration %d: reachable leaves = %d, want %d", i, reachable, len(live))
		}
		if int(s.Header.LeafCount) != len(live) {
			t.Fatalf("iteration %d: leaf_count = %d, want %d", i, s.Header.LeafCount, len(live))
		}
	}

	assertPartition(t, s)
}

func countReachable(t *testing.T, s *Slab) int {
	t.Helper()
	if s.Header.Root == uint64(InvalidIndex) {
		return 0
	}
	count := 0
	var walk func(idx uint32)
	walk = func(idx uint32) {
		n := s.Nodes[idx]
		if n.IsLeaf() {
			count++
			return
		}
		if !n.IsInner() {
			t.Fatalf("reachable node %d has non-tree tag %v", idx, n.Tag)
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(uint32(s.Header.Root))
	return count
}

// assertPartition checks that free-list slots, reachable tree slots, and
// never-touched (post-bump) slots are pairwise disjoint and cover the pool.
func assertPartition(t *testing.T, s *Slab) {
	t.Helper()
	seen := make([]int, s.Capacity()) // 0=unseen(never used), 1=free, 2=tree

	for cur := s.Header.FreeListHead; cur != uint64(InvalidIndex); {
		idx := uint32(cur)
		if seen[idx] != 0 {
			t.Fatalf("slot %d appears twice in free list", idx)
		}
		seen[idx] = 1
		cur = uint64(s.Nodes[idx].Next)
	}

	if s.Header.Root != uint64(InvalidIndex) {
		var walk func(idx uint32)
		walk = func(idx uint32) {
			if seen[idx] == 1 {
				t.Fatalf("slot %d is in both free list and tree", idx)
			}
			seen[idx] = 2
			n := s.Nodes[idx]
			if n.IsInner() {
				walk(n.Left)
				walk(n.Right)
			}
		}
		walk(uint32(s.Header.Root))
	}

	for i := int(s.Header.BumpIndex); i < s.Capacity(); i++ {
		if seen[i] == 2 {
			t.Fatalf("slot %d beyond bump_index is reachable from the tree", i)
		}
	}
}
