package slab

import (
	"fmt"

	"github.com/perplab/perpengine/internal/perrors"
)

// Slab is a fixed-capacity node pool with an embedded crit-bit tree. It is
// the in-memory analogue of the source's byte-cast arena: construction
// fixes the capacity, and every mutation goes through a method that keeps
// the header/pool invariants intact.
type Slab struct {
	Header Header
	Nodes  []Node
}

// New allocates an empty slab of the given capacity with every slot linked
// onto the free list (mirrors Slab::initializ).
func New(capacity int) *Slab {
	s := &Slab{
		Header: newHeader(),
		Nodes:  make([]Node, capacity),
	}
	for i := 0; i < capacity; i++ {
		last := i+1 >= capacity
		next := uint32(i + 1)
		if last {
			next = InvalidIndex
		}
		s.Nodes[i] = newFree(next, last)
	}
	if capacity > 0 {
		s.Header.FreeListHead = 0
	}
	// Every slot already sits on the free list, so the bump pool starts
	// exhausted; allocate returns SlabFull once the free list runs dry.
	s.Header.BumpIndex = uint64(capacity)
	return s
}

// Capacity returns the fixed node-pool size.
func (s *Slab) Capacity() int { return len(s.Nodes) }

// ComputeAllocationSize returns the byte size of the serialized slab for a
// given capacity: the 32-byte header plus capacity * 88-byte node slots.
func ComputeAllocationSize(capacity int) int {
	return HeaderLen + capacity*NodeSize
}

// Bytes serializes the slab to its persistent byte-exact layout.
func (s *Slab) Bytes() []byte {
	out := make([]byte, ComputeAllocationSize(s.Capacity()))
	putU64 := func(off int, v uint64) {
		for i := 0; i < 8; i++ {
			out[off+i] = byte(v >> (8 * i))
		}
	}
	putU64(0, s.Header.LeafCount)
	putU64(8, s.Header.BumpIndex)
	putU64(16, s.Header.FreeListHead)
	putU64(24, s.Header.Root)
	for i, n := range s.Nodes {
		n.marshal(out[HeaderLen+i*NodeSize : HeaderLen+(i+1)*NodeSize])
	}
	return out
}

// FromBytes reconstructs a slab from its persistent layout. InsufficientSpace
// is returned if the buffer is too short for the requested capacity.
func FromBytes(buf []byte, capacity int) (*Slab, error) {
	if len(buf) < ComputeAllocationSize(capacity) {
		return nil, perrors.ErrInsufficientSpace
	}
	getU64 := func(off int) uint64 {
		var v uint64
		for i := 0; i < 8; i++ {
			v |= uint64(buf[off+i]) << (8 * i)
		}
		return v
	}
	s := &Slab{
		Header: Header{
			LeafCount:    getU64(0),
			BumpIndex:    getU64(8),
			FreeListHead: getU64(16),
			Root:         getU64(24),
		},
		Nodes: make([]Node, capacity),
	}
	for i := range s.Nodes {
		s.Nodes[i] = unmarshalNode(buf[HeaderLen+i*NodeSize : HeaderLen+(i+1)*NodeSize])
	}
	return s, nil
}

func (s *Slab) allocate() (uint32, error) {
	if s.Header.FreeListHead != uint64(InvalidIndex) {
		idx := uint32(s.Header.FreeListHead)
		next := s.Nodes[idx].Next
		s.Header.FreeListHead = uint64(next)
		return idx, nil
	}
	if int(s.Header.BumpIndex) < s.Capacity() {
		idx := uint32(s.Header.BumpIndex)
		s.Header.BumpIndex++
		return idx, nil
	}
	return 0, perrors.ErrSlabFull
}

func (s *Slab) free(idx uint32) {
	s.Nodes[idx] = newFree(uint32(s.Header.FreeListHead), false)
	s.Header.FreeListHead = uint64(idx)
}

// Insert places a fully populated leaf into the tree, returning its slot
// index. Keys must be unique by construction (price-key<<64 | sequence);
// a colliding key surfaces as InvalidTree rather than silently overwriting.
func (s *Slab) Insert(leaf Node) (uint32, error) {
	if !leaf.IsLeaf() {
		return 0, perrors.ErrInvalidNodeType
	}
	idx, err := s.allocate()
	if err != nil {
		return 0, err
	}
	s.Nodes[idx] = leaf

	if s.Header.Root == uint64(InvalidIndex) {
		s.Header.Root = uint64(idx)
		s.Header.LeafCount++
		return idx, nil
	}

	closest, err := s.walkToLeaf(leaf.Key)
	if err != nil {
		s.free(idx)
		return 0, err
	}
	existing := s.Nodes[closest]
	if existing.Key.Equal(leaf.Key) {
		s.free(idx)
		return 0, fmt.Errorf("%w: duplicate leaf key", perrors.ErrInvalidTree)
	}

	diff := xor128(existing.Key, leaf.Key)
	newPrefixLen := leadingZeroBits(diff)
	newBit := bitAt(leaf.Key, newPrefixLen)

	parentIdx, parentValid, side, target, err := s.findSplicePoint(leaf.Key, newPrefixLen)
	if err != nil {
		s.free(idx)
		return 0, err
	}

	innerIdx, err := s.allocate()
	if err != nil {
		s.free(idx)
		return 0, err
	}
	inner := newInner(newPrefixLen, leaf.Key)
	if newBit == 0 {
		inner.Left = idx
		inner.Right = target
	} else {
		inner.Left = target
		inner.Right = idx
	}
	s.Nodes[innerIdx] = inner

	if !parentValid {
		s.Header.Root = uint64(innerIdx)
	} else if side == 0 {
		parent := s.Nodes[parentIdx]
		parent.Left = innerIdx
		s.Nodes[parentIdx] = parent
	} else {
		parent := s.Nodes[parentIdx]
		parent.Right = innerIdx
		s.Nodes[parentIdx] = parent
	}

	s.Header.LeafCount++
	return idx, nil
}

// walkToLeaf descends from the root following each inner node's own
// prefix_len bit of key, with no early-exit check, until it reaches a leaf.
// In a crit-bit tree this always lands on the leaf whose key shares the
// longest common prefix with key — the "closest" leaf used to compute the
// true diverging bit for insertion or to confirm equality for lookup.
func (s *Slab) walkToLeaf(key Key128) (uint32, error) {
	cur := uint32(s.Header.Root)
	for {
		node := s.Nodes[cur]
		switch {
		case node.IsLeaf():
			return cur, nil
		case node.IsInner():
			if bitAt(key, node.PrefixLen) == 0 {
				cur = node.Left
			} else {
				cur = node.Right
			}
			if cur == InvalidIndex {
				return 0, perrors.ErrInvalidTree
			}
		default:
			return 0, perrors.ErrInvalidTree
		}
	}
}

// findSplicePoint re-walks from the root to find where a new inner node
// with newPrefixLen should be spliced in: it stops at a leaf, or at the
// first inner node whose own prefix_len is not strictly less than
// newPrefixLen (since prefix_len strictly increases going down any path).
// Returns the parent slot to rewrite (or parentValid=false for the root),
// which side of the parent pointed at the splice target, and the target
// subtree index that becomes the new inner node's other child.
func (s *Slab) findSplicePoint(key Key128, newPrefixLen uint64) (parentIdx uint32, parentValid bool, side uint8, target uint32, err error) {
	cur := uint32(s.Header.Root)
	parentValid = false
	for {
		node := s.Nodes[cur]
		if node.IsLeaf() {
			return parentIdx, parentValid, side, cur, nil
		}
		if !node.IsInner() {
			return 0, false, 0, 0, perrors.ErrInvalidTree
		}
		if node.PrefixLen >= newPrefixLen {
			return parentIdx, parentValid, side, cur, nil
		}
		bit := bitAt(key, node.PrefixLen)
		parentIdx = cur
		parentValid = true
		side = bit
		if bit == 0 {
			cur = node.Left
		} else {
			cur = node.Right
		}
		if cur == InvalidIndex {
			return 0, false, 0, 0, perrors.ErrInvalidTree
		}
	}
}

// Remove deletes the leaf at idx, splicing its sibling into its
// grandparent (or promoting the sibling to root).
func (s *Slab) Remove(idx uint32) error {
	if int(idx) >= s.Capacity() {
		return perrors.ErrNodeNotFound
	}
	leaf := s.Nodes[idx]
	if !leaf.IsLeaf() {
		return perrors.ErrInvalidNodeType
	}

	if uint64(idx) == s.Header.Root {
		s.Header.Root = uint64(InvalidIndex)
		s.free(idx)
		s.Header.LeafCount--
		return nil
	}

	parentIdx, side, grandparentIdx, grandValid, grandSide, err := s.findParent(leaf.Key, idx)
	if err != nil {
		return err
	}

	parent := s.Nodes[parentIdx]
	siblingSide := uint8(1) - side
	var sibling uint32
	if siblingSide == 0 {
		sibling = parent.Left
	} else {
		sibling = parent.Right
	}

	if !grandValid {
		s.Header.Root = uint64(sibling)
	} else {
		gp := s.Nodes[grandparentIdx]
		if grandSide == 0 {
			gp.Left = sibling
		} else {
			gp.Right = sibling
		}
		s.Nodes[grandparentIdx] = gp
	}

	s.free(parentIdx)
	s.free(idx)
	s.Header.LeafCount--
	return nil
}

// findParent walks from the root using key to locate the inner node whose
// child slot is exactly target, along with that inner node's own parent
// (the grandparent relative to target), if any.
func (s *Slab) findParent(key Key128, target uint32) (parentIdx uint32, side uint8, grandparentIdx uint32, grandValid bool, grandSide uint8, err error) {
	cur := uint32(s.Header.Root)
	parentIdx = InvalidIndex
	grandparentIdx = InvalidIndex
	for {
		if cur == target {
			if parentIdx == InvalidIndex {
				return 0, 0, 0, false, 0, perrors.ErrNodeIsRoot
			}
			return parentIdx, side, grandparentIdx, grandValid, grandSide, nil
		}
		node := s.Nodes[cur]
		if !node.IsInner() {
			return 0, 0, 0, false, 0, perrors.ErrInvalidTree
		}
		bit := bitAt(key, node.PrefixLen)
		grandparentIdx = parentIdx
		grandValid = parentIdx != InvalidIndex
		grandSide = side
		parentIdx = cur
		side = bit
		if bit == 0 {
			cur = node.Left
		} else {
			cur = node.Right
		}
		if cur == InvalidIndex {
			return 0, 0, 0, false, 0, perrors.ErrInvalidTree
		}
	}
}

// FindMin walks left from the root at every inner node, returning the
// lowest-keyed leaf's slot index. ok is false for an empty tree.
func (s *Slab) FindMin() (idx uint32, ok bool, err error) {
	return s.findExtreme(false)
}

// FindMax walks right from the root at every inner node.
func (s *Slab) FindMax() (idx uint32, ok bool, err error) {
	return s.findExtreme(true)
}

func (s *Slab) findExtreme(max bool) (uint32, bool, error) {
	if s.Header.Root == uint64(InvalidIndex) {
		return 0, false, nil
	}
	cur := uint32(s.Header.Root)
	for {
		node := s.Nodes[cur]
		if node.IsLeaf() {
			return cur, true, nil
		}
		if !node.IsInner() {
			return 0, false, perrors.ErrInvalidTree
		}
		if max {
			cur = node.Right
		} else {
			cur = node.Left
		}
		if cur == InvalidIndex {
			return 0, false, perrors.ErrInvalidTree
		}
	}
}

// FindByKey walks down using each inner node's stored bit position and
// checks the reached leaf for equality; reaching a leaf does not by itself
// prove the key is present.
func (s *Slab) FindByKey(key Key128) (idx uint32, ok bool, err error) {
	if s.Header.Root == uint64(InvalidIndex) {
		return 0, false, nil
	}
	closest, err := s.walkToLeaf(key)
	if err != nil {
		return 0, false, err
	}
	if s.Nodes[closest].Key.Equal(key) {
		return closest, true, nil
	}
	return 0, false, nil
}

// Leaf returns the leaf node at idx, validating the tag.
func (s *Slab) Leaf(idx uint32) (Node, error) {
	if int(idx) >= s.Capacity() {
		return Node{}, perrors.ErrNodeNotFound
	}
	n := s.Nodes[idx]
	if !n.IsLeaf() {
		return Node{}, perrors.ErrInvalidNodeType
	}
	return n, nil
}

// Leaves returns every resting leaf in ascending key order, used to build
// an order book depth snapshot for the query surface.
func (s *Slab) Leaves() []Node {
	if s.Header.Root == uint64(InvalidIndex) {
		return nil
	}
	out := make([]Node, 0, s.Header.LeafCount)
	var walk func(idx uint32)
	walk = func(idx uint32) {
		node := s.Nodes[idx]
		if node.IsLeaf() {
			out = append(out, node)
			return
		}
		walk(node.Left)
		walk(node.Right)
	}
	walk(uint32(s.Header.Root))
	return out
}

// SetLeafQuantity overwrites the resting quantity of the leaf at idx, used
// by match_against_book to decrement a partially filled maker.
func (s *Slab) SetLeafQuantity(idx uint32, qty uint64) error {
	if int(idx) >= s.Capacity() {
		return perrors.ErrNodeNotFound
	}
	n := s.Nodes[idx]
	if !n.IsLeaf() {
		return perrors.ErrInvalidNodeType
	}
	n.Quantity = qty
	s.Nodes[idx] = n
	return nil
}
