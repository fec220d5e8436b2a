// Package host wires the matching/position/risk/funding/liquidation
// packages into one reference implementation of spec §6's command surface,
// backed by a Pebble store. It serializes every command behind a single
// mutex — "the crank that drains queues is itself serialized by the host" —
// rather than modeling a concurrent engine.
package host

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/perplab/perpengine/internal/collateral"
	"github.com/perplab/perpengine/internal/hostconfig"
	"github.com/perplab/perpengine/internal/liquidation"
	"github.com/perplab/perpengine/internal/market"
	"github.com/perplab/perpengine/internal/matching"
	"github.com/perplab/perpengine/internal/perrors"
	"github.com/perplab/perpengine/internal/position"
	"github.com/perplab/perpengine/internal/queue"
	"github.com/perplab/perpengine/pkg/storage"
	"github.com/perplab/perpengine/pkg/util"
)

// marketState bundles the per-market live state the host keeps in memory
// between commands.
type marketState struct {
	market    *market.Market
	book      *matching.Book
	requests  *queue.RequestQueue
	events    *queue.EventQueue
	positions map[common.Address]*position.Position
}

// Host is the reference engine: one mutex, one store, N markets.
type Host struct {
	mu        sync.Mutex
	cfg       hostconfig.Config
	clock     util.Clock
	log       *zap.Logger
	store     *storage.PebbleStore
	engine    *matching.Engine
	ledger    *collateral.Ledger
	insurance *liquidation.InsuranceFund
	markets   map[string]*marketState
	configured bool
	onFill    func(symbol string, ev queue.MatchedOrder)
}

// SetFillHandler registers a callback invoked once per fill event applied
// by PositionManager, used by the reference host's server to broadcast
// fills over its WebSocket stream without PositionManager's signature
// having to carry a transport concern.
func (h *Host) SetFillHandler(fn func(symbol string, ev queue.MatchedOrder)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onFill = fn
}

// New constructs a Host. Call InitGlobalConfig before any other command.
func New(cfg hostconfig.Config, store *storage.PebbleStore, clock util.Clock, log *zap.Logger) *Host {
	return &Host{
		cfg:     cfg,
		clock:   clock,
		log:     log,
		store:   store,
		engine:  matching.NewEngine(),
		ledger:  collateral.NewLedger(),
		markets: make(map[string]*marketState),
	}
}

func (h *Host) now() int64 { return h.clock.Now() }

func (h *Host) marketState(symbol string) (*marketState, error) {
	ms, ok := h.markets[symbol]
	if !ok {
		return nil, perrors.ErrMarketNotFound
	}
	return ms, nil
}

func (h *Host) logErr(op string, err error, fields ...zap.Field) error {
	if err != nil && h.log != nil {
		h.log.Error(op, append(fields, zap.Error(err))...)
	}
	return err
}
