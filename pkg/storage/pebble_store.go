// Package storage persists the reference host's durable state — markets,
// positions, collateral accounts, and the byte-exact slab arenas — in a
// Pebble key-value store, grounded on the block/cert store's key-schema and
// gob-encoding pattern.
package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/perplab/perpengine/internal/collateral"
	"github.com/perplab/perpengine/internal/market"
	"github.com/perplab/perpengine/internal/position"
	"github.com/perplab/perpengine/internal/slab"
)

// PebbleStore is the durable backing store for one reference host instance.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (creating if absent) the Pebble database at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *PebbleStore) Close() error { return s.db.Close() }

// SaveMarket persists a market's configuration and funding state.
func (s *PebbleStore) SaveMarket(m *market.Market) error {
	val, err := encodeGob(m)
	if err != nil {
		return fmt.Errorf("encode market: %w", err)
	}
	return s.db.Set(marketKey(m.Symbol), val, pebble.Sync)
}

// LoadMarket loads a market by symbol. Returns ok=false if absent.
func (s *PebbleStore) LoadMarket(symbol string) (*market.Market, bool, error) {
	val, closer, err := s.db.Get(marketKey(symbol))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get market: %w", err)
	}
	defer closer.Close()
	var m market.Market
	if err := decodeGob(val, &m); err != nil {
		return nil, false, fmt.Errorf("decode market: %w", err)
	}
	return &m, true, nil
}

// SavePosition persists one owner's position in one market.
func (s *PebbleStore) SavePosition(p *position.Position) error {
	val, err := encodeGob(p)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}
	return s.db.Set(positionKey(p.Market, p.Owner), val, pebble.Sync)
}

// LoadPosition loads a position by market and owner. Returns ok=false if absent.
func (s *PebbleStore) LoadPosition(symbol string, owner common.Address) (*position.Position, bool, error) {
	val, closer, err := s.db.Get(positionKey(symbol, owner))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get position: %w", err)
	}
	defer closer.Close()
	var p position.Position
	if err := decodeGob(val, &p); err != nil {
		return nil, false, fmt.Errorf("decode position: %w", err)
	}
	return &p, true, nil
}

// LoadAllPositions loads every position open in a market.
func (s *PebbleStore) LoadAllPositions(symbol string) ([]*position.Position, error) {
	prefix := positionPrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var positions []*position.Position
	for iter.First(); iter.Valid(); iter.Next() {
		var p position.Position
		if err := decodeGob(iter.Value(), &p); err != nil {
			continue
		}
		positions = append(positions, &p)
	}
	return positions, nil
}

// SaveCollateral persists a user's collateral account.
func (s *PebbleStore) SaveCollateral(a collateral.Account) error {
	val, err := encodeGob(a)
	if err != nil {
		return fmt.Errorf("encode collateral: %w", err)
	}
	return s.db.Set(collateralKey(a.Owner), val, pebble.Sync)
}

// LoadCollateral loads a user's collateral account. Returns ok=false if absent.
func (s *PebbleStore) LoadCollateral(owner common.Address) (collateral.Account, bool, error) {
	val, closer, err := s.db.Get(collateralKey(owner))
	if err == pebble.ErrNotFound {
		return collateral.Account{}, false, nil
	}
	if err != nil {
		return collateral.Account{}, false, fmt.Errorf("get collateral: %w", err)
	}
	defer closer.Close()
	var a collateral.Account
	if err := decodeGob(val, &a); err != nil {
		return collateral.Account{}, false, fmt.Errorf("decode collateral: %w", err)
	}
	return a, true, nil
}

// SaveSlab persists one side of a market's order book in its byte-exact
// on-wire layout (matching spec §6's durable-storage requirement).
func (s *PebbleStore) SaveSlab(symbol string, side slab.Key128Side, sl *slab.Slab) error {
	key := slabKeyForSide(symbol, side)
	return s.db.Set(key, sl.Bytes(), pebble.Sync)
}

// LoadSlab loads one side of a market's order book. Returns ok=false if absent.
func (s *PebbleStore) LoadSlab(symbol string, side slab.Key128Side, capacity int) (*slab.Slab, bool, error) {
	key := slabKeyForSide(symbol, side)
	val, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get slab: %w", err)
	}
	defer closer.Close()
	buf := make([]byte, len(val))
	copy(buf, val)
	sl, err := slab.FromBytes(buf, capacity)
	if err != nil {
		return nil, false, fmt.Errorf("decode slab: %w", err)
	}
	return sl, true, nil
}

func slabKeyForSide(symbol string, side slab.Key128Side) []byte {
	if side == slab.BidSide {
		return slabBidsKey(symbol)
	}
	return slabAsksKey(symbol)
}
