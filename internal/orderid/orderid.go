// Package orderid derives the 128-bit composite order/leaf keys and the
// price-key component that orders the crit-bit slab.
package orderid

import (
	"encoding/binary"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"github.com/perplab/perpengine/internal/queue"
	"github.com/perplab/perpengine/internal/slab"
)

// PriceKey derives the high-64-bits ordering key for a side: asks sort
// directly by price (find-min yields the lowest ask); bids sort by the
// price's complement against u64::MAX (find-min yields the highest bid).
func PriceKey(side queue.Side, price uint64) uint64 {
	if side == queue.Buy {
		return math.MaxUint64 - price
	}
	return price
}

// Make builds the 128-bit order id: Limit orders embed the price-key in
// the high bits so the id also serves as the slab leaf key; Market orders
// carry no price component and are never inserted into a book.
func Make(orderType queue.OrderType, side queue.Side, price uint64, seq uint64) slab.Key128 {
	if orderType == queue.Market {
		return slab.Key128{Hi: 0, Lo: seq}
	}
	return slab.Key128{Hi: PriceKey(side, price), Lo: seq}
}

// IdempotencyKey hashes an admin operation's (owner, amount, timestamp)
// triple with SHA3-256, used by the reference host to tag deposit/withdraw
// calls for log correlation without reusing Keccak's collision domain.
func IdempotencyKey(owner common.Address, amount uint64, now int64) [32]byte {
	var buf [36]byte
	copy(buf[:20], owner.Bytes())
	binary.BigEndian.PutUint64(buf[20:28], amount)
	binary.BigEndian.PutUint64(buf[28:36], uint64(now))
	return sha3.Sum256(buf[:])
}

// MarketKey hashes a market symbol into a fixed-width registry key using
// Keccak256, mirroring the account manager's use of a fixed-width identity
// as a map key instead of a variable-length string comparison.
func MarketKey(symbol string) common.Hash {
	return common.BytesToHash(crypto.Keccak256([]byte(symbol)))
}
