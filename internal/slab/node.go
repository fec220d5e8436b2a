package slab

import (
	"encoding/binary"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
)

// Key128 is the 128-bit composite leaf key: high 64 bits are a price-key
// (direct for asks, inverted for bids, see internal/orderid), low 64 bits
// are a monotonically increasing sequence number that breaks ties.
type Key128 struct {
	Hi uint64
	Lo uint64
}

// Price returns the high 64 bits (the price-key component).
func (k Key128) Price() uint64 { return k.Hi }

// Sequence returns the low 64 bits (the time-priority component).
func (k Key128) Sequence() uint64 { return k.Lo }

// Equal reports whether two keys are bit-for-bit identical.
func (k Key128) Equal(o Key128) bool { return k.Hi == o.Hi && k.Lo == o.Lo }

func xor128(a, b Key128) Key128 {
	return Key128{Hi: a.Hi ^ b.Hi, Lo: a.Lo ^ b.Lo}
}

// leadingZeroBits returns the number of leading zero bits of a 128-bit
// value, treating Hi as the most significant word. For two equal keys this
// returns 128, which insert() treats as a duplicate-key InvalidTree.
func leadingZeroBits(k Key128) uint64 {
	if k.Hi != 0 {
		return uint64(bits.LeadingZeros64(k.Hi))
	}
	return 64 + uint64(bits.LeadingZeros64(k.Lo))
}

// bitAt returns the bit of k at position pos, counting from the most
// significant bit (pos 0) down to the least significant bit (pos 127).
// This is the one direction convention used consistently by both the
// walk-down descent and the split placement, resolving the shift-direction
// ambiguity flagged against the source implementation.
func bitAt(k Key128, pos uint64) uint8 {
	if pos < 64 {
		return uint8((k.Hi >> (63 - pos)) & 1)
	}
	return uint8((k.Lo >> (63 - (pos - 64))) & 1)
}

// Node is a tagged union over the three slot kinds. Go has no zero-cost
// union type, so this keeps one flat struct per slot and dispatches on Tag;
// callers that need the union-safety the source relied on should check
// IsInner/IsLeaf/IsFree before reading the corresponding fields.
type Node struct {
	Tag NodeTag

	// Inner fields.
	PrefixLen uint64
	Key       Key128
	Left      uint32
	Right     uint32

	// Leaf fields.
	OwnerSlot     uint8
	FeeTier       uint8
	Owner         common.Address
	Quantity      uint64
	ClientOrderID uint64
	Timestamp     int64

	// Free fields.
	Next uint32
}

func (n Node) IsInner() bool { return n.Tag == TagInner }
func (n Node) IsLeaf() bool  { return n.Tag == TagLeaf }
func (n Node) IsFree() bool  { return n.Tag == TagFree || n.Tag == TagLastFree }

// NewLeaf builds a resting-order leaf ready for Insert.
func NewLeaf(key Key128, owner common.Address, quantity uint64, clientOrderID uint64, timestamp int64, feeTier uint8) Node {
	return Node{Tag: TagLeaf, Key: key, Owner: owner, Quantity: quantity, ClientOrderID: clientOrderID, Timestamp: timestamp, FeeTier: feeTier}
}

func newInner(prefixLen uint64, key Key128) Node {
	return Node{Tag: TagInner, PrefixLen: prefixLen, Key: key, Left: InvalidIndex, Right: InvalidIndex}
}

func newFree(next uint32, last bool) Node {
	tag := TagFree
	if last {
		tag = TagLastFree
	}
	return Node{Tag: tag, Next: next}
}

// marshal writes the node's NodeSize-byte on-the-wire representation. The
// first 8 bytes are always (tag uint32, padding uint32); the remaining 80
// bytes hold whichever variant's body is active, matching the source's
// 8+80 byte node stride.
func (n Node) marshal(out []byte) {
	binary.LittleEndian.PutUint32(out[0:4], uint32(n.Tag))
	binary.LittleEndian.PutUint32(out[4:8], 0)
	body := out[8:NodeSize]
	for i := range body {
		body[i] = 0
	}
	switch n.Tag {
	case TagInner:
		binary.LittleEndian.PutUint64(body[0:8], n.PrefixLen)
		binary.LittleEndian.PutUint64(body[8:16], n.Key.Hi)
		binary.LittleEndian.PutUint64(body[16:24], n.Key.Lo)
		binary.LittleEndian.PutUint32(body[24:28], n.Left)
		binary.LittleEndian.PutUint32(body[28:32], n.Right)
	case TagLeaf:
		body[0] = n.OwnerSlot
		body[1] = n.FeeTier
		binary.LittleEndian.PutUint64(body[4:12], n.Key.Hi)
		binary.LittleEndian.PutUint64(body[12:20], n.Key.Lo)
		copy(body[20:40], n.Owner[:])
		binary.LittleEndian.PutUint64(body[40:48], n.Quantity)
		binary.LittleEndian.PutUint64(body[48:56], n.ClientOrderID)
		binary.LittleEndian.PutUint64(body[56:64], uint64(n.Timestamp))
	case TagFree, TagLastFree:
		binary.LittleEndian.PutUint64(body[0:8], uint64(n.Next))
	}
}

func unmarshalNode(in []byte) Node {
	tag := NodeTag(binary.LittleEndian.Uint32(in[0:4]))
	body := in[8:NodeSize]
	n := Node{Tag: tag}
	switch tag {
	case TagInner:
		n.PrefixLen = binary.LittleEndian.Uint64(body[0:8])
		n.Key.Hi = binary.LittleEndian.Uint64(body[8:16])
		n.Key.Lo = binary.LittleEndian.Uint64(body[16:24])
		n.Left = binary.LittleEndian.Uint32(body[24:28])
		n.Right = binary.LittleEndian.Uint32(body[28:32])
	case TagLeaf:
		n.OwnerSlot = body[0]
		n.FeeTier = body[1]
		n.Key.Hi = binary.LittleEndian.Uint64(body[4:12])
		n.Key.Lo = binary.LittleEndian.Uint64(body[12:20])
		copy(n.Owner[:], body[20:40])
		n.Quantity = binary.LittleEndian.Uint64(body[40:48])
		n.ClientOrderID = binary.LittleEndian.Uint64(body[48:56])
		n.Timestamp = int64(binary.LittleEndian.Uint64(body[56:64]))
	case TagFree, TagLastFree:
		n.Next = uint32(binary.LittleEndian.Uint64(body[0:8]))
	}
	return n
}
