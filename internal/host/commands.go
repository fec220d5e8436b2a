package host

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perplab/perpengine/internal/funding"
	"github.com/perplab/perpengine/internal/liquidation"
	"github.com/perplab/perpengine/internal/market"
	"github.com/perplab/perpengine/internal/metrics"
	"github.com/perplab/perpengine/internal/orderid"
	"github.com/perplab/perpengine/internal/perrors"
	"github.com/perplab/perpengine/internal/position"
	"github.com/perplab/perpengine/internal/queue"
	"github.com/perplab/perpengine/internal/risk"
)

// InitGlobalConfig seeds the insurance fund. Must be called once before any
// other command that can trigger a liquidation.
func (h *Host) InitGlobalConfig(insuranceSeed int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.configured {
		return fmt.Errorf("%w: global config already initialized", perrors.ErrInvalidMarketConfig)
	}
	h.insurance = liquidation.NewInsuranceFund(insuranceSeed)
	h.configured = true
	return nil
}

// InitMarket registers a new market with its own book, request/event
// queues, and live position table.
func (h *Host) InitMarket(symbol string, params market.Params) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.configured {
		return fmt.Errorf("%w: call InitGlobalConfig first", perrors.ErrInvalidMarketConfig)
	}
	if _, exists := h.markets[symbol]; exists {
		return perrors.ErrMarketExists
	}
	m, err := market.New(symbol, params)
	if err != nil {
		return h.logErr("init_market", err, zap.String("market", symbol))
	}
	h.engine.RegisterMarket(symbol, h.cfg.BidSlabCapacity, h.cfg.AskSlabCapacity)
	book, err := h.engine.BookFor(symbol)
	if err != nil {
		return err
	}
	h.markets[symbol] = &marketState{
		market:    m,
		book:      book,
		requests:  queue.NewRequestQueue(h.cfg.RequestQueueCapacity),
		events:    queue.NewEventQueue(h.cfg.EventQueueCapacity),
		positions: make(map[common.Address]*position.Position),
	}
	if h.store != nil {
		if err := h.store.SaveMarket(m); err != nil {
			return h.logErr("init_market.persist", err, zap.String("market", symbol))
		}
	}
	return nil
}

// SetMarketStatus transitions a market's trading lifecycle (active, paused,
// settling, settled). Settled is terminal. A paused market still drains
// already-queued cancels on the next ProcessOrders crank, so resting orders
// remain cancellable during a halt.
func (h *Host) SetMarketStatus(symbol string, status market.Status) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms, err := h.marketState(symbol)
	if err != nil {
		return err
	}
	if err := ms.market.SetStatus(status); err != nil {
		return h.logErr("set_market_status", err, zap.String("market", symbol), zap.String("status", status.String()))
	}
	if h.log != nil {
		h.log.Info("set_market_status", zap.String("market", symbol), zap.String("status", status.String()))
	}
	if h.store != nil {
		if err := h.store.SaveMarket(ms.market); err != nil {
			return h.logErr("set_market_status.persist", err, zap.String("market", symbol))
		}
	}
	return nil
}

// Deposit credits the user's collateral balance. Each invocation is tagged
// with a fresh correlation id for log correlation across admin operations.
func (h *Host) Deposit(owner common.Address, amount uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	corr := uuid.NewString()
	now := h.now()
	idem := orderid.IdempotencyKey(owner, amount, now)
	if err := h.ledger.Deposit(owner, amount, now); err != nil {
		return h.logErr("deposit", err, zap.String("owner", owner.Hex()), zap.String("correlation_id", corr))
	}
	if h.log != nil {
		h.log.Info("deposit", zap.String("owner", owner.Hex()), zap.Uint64("amount", amount),
			zap.String("correlation_id", corr), zap.String("idempotency_key", hex.EncodeToString(idem[:8])))
	}
	return h.persistCollateral(owner)
}

// Withdraw debits the user's collateral balance, rejecting the withdrawal
// if it would leave any of the user's open positions liquidatable.
func (h *Host) Withdraw(owner common.Address, amount uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	corr := uuid.NewString()

	acct := h.ledger.Get(owner)
	projected := acct.Amount - int64(amount)
	for symbol, ms := range h.markets {
		p, ok := ms.positions[owner]
		if !ok || p.IsFlat() {
			continue
		}
		mark, err := ms.market.MarkPrice()
		if err != nil {
			return h.logErr("withdraw.mark_price", err, zap.String("market", symbol))
		}
		mmr := risk.FromBps(ms.market.MmBps)
		if risk.IsLiquidatable(projected, p.RealizedPnL, p.BasePosition, p.EntryPrice, mark, mmr) {
			return h.logErr("withdraw", perrors.ErrWithdrawWouldLiquidate, zap.String("owner", owner.Hex()), zap.String("market", symbol), zap.String("correlation_id", corr))
		}
	}

	now := h.now()
	if err := h.ledger.Withdraw(owner, amount, now); err != nil {
		return h.logErr("withdraw", err, zap.String("owner", owner.Hex()), zap.String("correlation_id", corr))
	}
	if h.log != nil {
		idem := orderid.IdempotencyKey(owner, amount, now)
		h.log.Info("withdraw", zap.String("owner", owner.Hex()), zap.Uint64("amount", amount),
			zap.String("correlation_id", corr), zap.String("idempotency_key", hex.EncodeToString(idem[:8])))
	}
	return h.persistCollateral(owner)
}

// PlaceOrder validates margin and enqueues a Place request for the next
// ProcessOrders crank; it does not match synchronously.
func (h *Host) PlaceOrder(symbol string, owner common.Address, side queue.Side, qty uint64, orderType queue.OrderType, limitPrice uint64, leverage uint8) ([2]uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ms, err := h.marketState(symbol)
	if err != nil {
		return [2]uint64{}, err
	}
	if ms.market.Status != market.Active {
		return [2]uint64{}, h.logErr("place_order", perrors.ErrMarketPaused, zap.String("market", symbol), zap.String("status", ms.market.Status.String()))
	}
	im, err := ms.market.ComputeInitialMargin(qty)
	if err != nil {
		return [2]uint64{}, h.logErr("place_order.margin", err, zap.String("market", symbol))
	}
	acct := h.ledger.Get(owner)
	if acct.Amount < int64(im) {
		return [2]uint64{}, h.logErr("place_order", perrors.ErrInsufficientCollateral, zap.String("owner", owner.Hex()))
	}

	key := orderid.Make(orderType, side, limitPrice, h.engine.NextSequence())
	orderID := [2]uint64{key.Hi, key.Lo}
	order := queue.Order{
		User: owner, OrderID: orderID, Side: side, Qty: qty, Type: orderType,
		LimitPrice: limitPrice, InitialMargin: im, Leverage: leverage, Market: symbol,
	}
	if err := ms.requests.Push(queue.Request{Kind: queue.KindPlace, Place: order}); err != nil {
		return [2]uint64{}, h.logErr("place_order.enqueue", err, zap.String("market", symbol))
	}
	return orderID, nil
}

// CancelOrder enqueues a Cancel request for the next ProcessOrders crank.
// Supplemented beyond spec.md's bare handler list: book maintenance is in
// scope even though the distilled command table omits it.
func (h *Host) CancelOrder(symbol string, owner common.Address, side queue.Side, orderID [2]uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms, err := h.marketState(symbol)
	if err != nil {
		return err
	}
	c := queue.CancelOrder{OrderID: orderID, User: owner, Side: side, Market: symbol}
	if err := ms.requests.Push(queue.Request{Kind: queue.KindCancel, Cancel: c}); err != nil {
		return h.logErr("cancel_order.enqueue", err, zap.String("market", symbol))
	}
	return nil
}

// ProcessOrders drains up to MaxToProcess requests from symbol's request
// queue, running each through the matching engine and pushing fill events
// onto the market's event queue.
func (h *Host) ProcessOrders(symbol string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms, err := h.marketState(symbol)
	if err != nil {
		return 0, err
	}

	processed := 0
	for processed < queue.MaxToProcess && !ms.requests.IsEmpty() {
		req, err := ms.requests.Pop()
		if err != nil {
			return processed, h.logErr("process_orders.pop", err, zap.String("market", symbol))
		}
		switch req.Kind {
		case queue.KindPlace:
			if _, err := h.engine.Place(req.Place, ms.events, h.now()); err != nil {
				return processed, h.logErr("process_orders.place", err, zap.String("market", symbol))
			}
		case queue.KindCancel:
			if err := h.engine.Cancel(req.Cancel); err != nil && err != perrors.ErrOrderNotFound {
				return processed, h.logErr("process_orders.cancel", err, zap.String("market", symbol))
			}
		}
		processed++
	}
	metrics.QueueDepth.WithLabelValues(symbol, "requests").Set(float64(ms.requests.Count()))
	metrics.SlabLeafCount.WithLabelValues(symbol, "bids").Set(float64(ms.book.Bids.Header.LeafCount))
	metrics.SlabLeafCount.WithLabelValues(symbol, "asks").Set(float64(ms.book.Asks.Header.LeafCount))
	return processed, nil
}

// PositionManager pops and applies consecutive events belonging to user from
// the front of symbol's event queue, stopping at a per-call cap or at the
// first event belonging to someone else (ErrEventNotForUser). It never
// blindly drains the whole queue: two users' fills can interleave at the
// head, and applying a foreign event under the wrong key would silently
// reopen or misattribute a position.
func (h *Host) PositionManager(symbol string, user common.Address) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms, err := h.marketState(symbol)
	if err != nil {
		return 0, err
	}
	applied, err := h.drainEventsForUserLocked(ms, symbol, user)
	metrics.QueueDepth.WithLabelValues(symbol, "events").Set(float64(ms.events.Count()))
	return applied, err
}

func (h *Host) drainEventsForUserLocked(ms *marketState, symbol string, user common.Address) (int, error) {
	applied := 0
	for applied < queue.MaxToProcess {
		if ms.events.IsEmpty() {
			break
		}
		head, err := ms.events.Peek()
		if err != nil {
			return applied, h.logErr("position_manager.peek", err, zap.String("market", symbol))
		}
		if head.User != user {
			return applied, perrors.ErrEventNotForUser
		}
		ev, err := ms.events.Pop()
		if err != nil {
			return applied, h.logErr("position_manager.pop", err, zap.String("market", symbol))
		}
		p, ok := ms.positions[ev.User]
		if !ok {
			p = &position.Position{Owner: ev.User, Market: symbol}
			ms.positions[ev.User] = p
		}
		if err := position.ApplyFill(p, h.ledger, ms.market.CumFunding, ev, h.now()); err != nil {
			return applied, h.logErr("position_manager.apply_fill", err, zap.String("market", symbol), zap.String("owner", ev.User.Hex()))
		}
		if h.store != nil {
			if err := h.store.SavePosition(p); err != nil {
				return applied, h.logErr("position_manager.persist", err, zap.String("market", symbol))
			}
			if err := h.persistCollateralLocked(ev.User); err != nil {
				return applied, err
			}
		}
		metrics.FillsTotal.WithLabelValues(symbol, ev.Side.String()).Inc()
		if h.onFill != nil {
			h.onFill(symbol, ev)
		}
		applied++
	}
	return applied, nil
}

// DrainEvents applies every pending fill event for symbol, one user's
// consecutive run at a time, by repeatedly peeking the new head and calling
// PositionManager's per-user primitive for whoever owns it. Used by the
// crank, which drains a whole market rather than acting on behalf of one
// caller; anything that already knows which user it cares about should call
// PositionManager directly instead.
func (h *Host) DrainEvents(symbol string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms, err := h.marketState(symbol)
	if err != nil {
		return 0, err
	}
	total := 0
	for !ms.events.IsEmpty() {
		head, err := ms.events.Peek()
		if err != nil {
			return total, h.logErr("drain_events.peek", err, zap.String("market", symbol))
		}
		applied, err := h.drainEventsForUserLocked(ms, symbol, head.User)
		total += applied
		if err != nil && err != perrors.ErrEventNotForUser {
			return total, err
		}
		if applied == 0 {
			break
		}
	}
	metrics.QueueDepth.WithLabelValues(symbol, "events").Set(float64(ms.events.Count()))
	return total, nil
}

// SetMarkPrice records a new oracle read and, if the funding interval has
// elapsed, settles this period's funding into the market's cumulative index.
func (h *Host) SetMarkPrice(symbol string, price int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms, err := h.marketState(symbol)
	if err != nil {
		return err
	}
	if err := risk.ValidateMarkPrice(price); err != nil {
		return h.logErr("set_mark_price", err, zap.String("market", symbol))
	}
	now := h.now()
	ms.market.LastOraclePrice = price
	ms.market.LastOracleTS = now

	if funding.FundingDue(ms.market.LastFundingTS, now, ms.market.FundingIntervalSecs) {
		newCum, _, err := funding.UpdateFunding(ms.market.CumFunding, price, price, ms.market.FundingIntervalSecs, ms.market.MaxFundingRate)
		if err != nil {
			return h.logErr("set_mark_price.funding", err, zap.String("market", symbol))
		}
		ms.market.CumFunding = newCum
		ms.market.LastFundingTS = now
	}
	if h.store != nil {
		if err := h.store.SaveMarket(ms.market); err != nil {
			return h.logErr("set_mark_price.persist", err, zap.String("market", symbol))
		}
	}
	return nil
}

// Liquidate forces owner's position in symbol flat if the account is
// under-margined, splitting the penalty with liquidator.
func (h *Host) Liquidate(symbol string, owner, liquidator common.Address) (liquidation.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	corr := uuid.NewString()
	ms, err := h.marketState(symbol)
	if err != nil {
		return liquidation.Result{}, err
	}
	p, ok := ms.positions[owner]
	if !ok {
		return liquidation.Result{}, perrors.ErrNothingToLiquidate
	}
	mmr := risk.FromBps(ms.market.MmBps)
	res, err := liquidation.Liquidate(p, h.ledger, h.insurance, ms.market, ms.book, h.engine, ms.events, liquidator, mmr, h.now())
	if err != nil {
		return liquidation.Result{}, h.logErr("liquidate", err, zap.String("market", symbol), zap.String("owner", owner.Hex()), zap.String("correlation_id", corr))
	}
	metrics.LiquidationsTotal.WithLabelValues(symbol).Inc()
	if h.log != nil {
		h.log.Info("liquidate", zap.String("market", symbol), zap.String("owner", owner.Hex()),
			zap.String("liquidator", liquidator.Hex()), zap.String("correlation_id", corr))
	}
	if h.store != nil {
		if err := h.store.SavePosition(p); err != nil {
			return res, err
		}
		if err := h.persistCollateralLocked(owner); err != nil {
			return res, err
		}
		if err := h.persistCollateralLocked(liquidator); err != nil {
			return res, err
		}
	}
	return res, nil
}

// ResetQueues drains and zeroes a market's request and event queues.
func (h *Host) ResetQueues(symbol string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms, err := h.marketState(symbol)
	if err != nil {
		return err
	}
	ms.requests.Reset()
	ms.events.Reset()
	return nil
}

// ResetSlab replaces one side of a market's book with a fresh, empty slab,
// discarding every resting order on that side.
func (h *Host) ResetSlab(symbol string, side queue.Side) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.marketState(symbol)
	if err != nil {
		return err
	}
	return h.engine.ResetSide(symbol, side, h.cfg.BidSlabCapacity, h.cfg.AskSlabCapacity)
}

func (h *Host) persistCollateral(owner common.Address) error {
	return h.persistCollateralLocked(owner)
}

func (h *Host) persistCollateralLocked(owner common.Address) error {
	if h.store == nil {
		return nil
	}
	acct := h.ledger.Get(owner)
	if err := h.store.SaveCollateral(acct); err != nil {
		return h.logErr("persist_collateral", err, zap.String("owner", owner.Hex()))
	}
	return nil
}
