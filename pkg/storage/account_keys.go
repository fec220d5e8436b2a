package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema for the reference host's Pebble store:
//
//	m:<symbol>              → gob-encoded market.Market
//	p:<symbol>:<address>    → gob-encoded position.Position
//	u:<address>             → gob-encoded collateral.Account
//	sb:<symbol>:bids        → byte-exact slab.Slab (bid side)
//	sb:<symbol>:asks        → byte-exact slab.Slab (ask side)

const (
	prefixMarket     = "m:"
	prefixPosition   = "p:"
	prefixCollateral = "u:"
	prefixSlabBids   = "sb:"
	suffixBids       = ":bids"
	suffixAsks       = ":asks"
)

func marketKey(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixMarket, symbol))
}

func positionKey(symbol string, addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixPosition, symbol, addr.Hex()))
}

// positionPrefix returns the prefix for every position of a market.
func positionPrefix(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixPosition, symbol))
}

func collateralKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixCollateral, addr.Hex()))
}

func slabBidsKey(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s%s", prefixSlabBids, symbol, suffixBids))
}

func slabAsksKey(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s%s", prefixSlabBids, symbol, suffixAsks))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
