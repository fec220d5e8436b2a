package queue

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/perplab/perpengine/internal/perrors"
)

func sampleRequest(n uint64) Request {
	return Request{
		Kind: KindPlace,
		Place: Order{
			User:    common.HexToAddress("0x1"),
			OrderID: [2]uint64{0, n},
			Side:    Buy,
			Qty:     n,
			Type:    Limit,
			Market:  "BTC-USDC",
		},
	}
}

func TestRequestQueuePushPopOrder(t *testing.T) {
	q := NewRequestQueue(4)
	for i := uint64(1); i <= 3; i++ {
		if err := q.Push(sampleRequest(i)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if q.Count() != 3 {
		t.Fatalf("count = %d, want 3", q.Count())
	}
	if q.Sequence() != 3 {
		t.Fatalf("sequence = %d, want 3", q.Sequence())
	}
	for i := uint64(1); i <= 3; i++ {
		req, err := q.Pop()
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if req.Place.Qty != i {
			t.Fatalf("pop order = %d, want %d (FIFO order violated)", req.Place.Qty, i)
		}
	}
	if q.Count() != 0 {
		t.Fatalf("count after draining = %d, want 0", q.Count())
	}
}

func TestRequestQueueFullWithoutMutation(t *testing.T) {
	q := NewRequestQueue(2)
	if err := q.Push(sampleRequest(1)); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := q.Push(sampleRequest(2)); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	before := q.count
	if err := q.Push(sampleRequest(3)); !errors.Is(err, perrors.ErrQueueFull) {
		t.Fatalf("push into full queue: err = %v, want QueueFull", err)
	}
	if q.count != before {
		t.Fatalf("count mutated on failed push: %d != %d", q.count, before)
	}
}

func TestRequestQueueEmptyPopWithoutMutation(t *testing.T) {
	q := NewRequestQueue(2)
	before := q.head
	if _, err := q.Pop(); !errors.Is(err, perrors.ErrQueueEmpty) {
		t.Fatalf("pop from empty queue: err = %v, want QueueEmpty", err)
	}
	if q.head != before {
		t.Fatalf("head mutated on failed pop")
	}
}

func TestRequestQueueWrapsAroundCapacity(t *testing.T) {
	const capacity = 3
	q := NewRequestQueue(capacity)
	// Fill, drain two, push two more so tail wraps past the slot array end.
	for i := uint64(1); i <= 3; i++ {
		if err := q.Push(sampleRequest(i)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := q.Pop(); err != nil {
			t.Fatalf("pop: %v", err)
		}
	}
	for i := uint64(4); i <= 5; i++ {
		if err := q.Push(sampleRequest(i)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	want := []uint64{3, 4, 5}
	for _, w := range want {
		req, err := q.Pop()
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if req.Place.Qty != w {
			t.Fatalf("pop = %d, want %d", req.Place.Qty, w)
		}
	}
}

func TestEventQueuePushPopPreservesOrder(t *testing.T) {
	q := NewEventQueue(8)
	for i := uint64(1); i <= 5; i++ {
		ev := MatchedOrder{OrderID: [2]uint64{0, i}, FillQty: i, Market: "BTC-USDC"}
		if err := q.Push(ev); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if q.Sequence() != 5 {
		t.Fatalf("sequence = %d, want 5", q.Sequence())
	}
	for i := uint64(1); i <= 5; i++ {
		ev, err := q.Pop()
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if ev.FillQty != i {
			t.Fatalf("pop fill_qty = %d, want %d", ev.FillQty, i)
		}
	}
}

func TestQueueResetZeroesState(t *testing.T) {
	q := NewRequestQueue(4)
	_ = q.Push(sampleRequest(1))
	_ = q.Push(sampleRequest(2))
	q.Reset()
	if q.Count() != 0 || q.Sequence() != 0 || q.head != 0 || q.tail != 0 {
		t.Fatalf("reset did not zero state: count=%d seq=%d head=%d tail=%d", q.Count(), q.Sequence(), q.head, q.tail)
	}
	if err := q.Push(sampleRequest(9)); err != nil {
		t.Fatalf("push after reset: %v", err)
	}
}
