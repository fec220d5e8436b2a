// Package api exposes a read-mostly HTTP surface over a *host.Host plus a
// live fill-event WebSocket stream, grounded on the reference node's REST
// handler / Hub pattern.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/perplab/perpengine/internal/host"
	"github.com/perplab/perpengine/internal/market"
	"github.com/perplab/perpengine/internal/perrors"
	"github.com/perplab/perpengine/internal/queue"
)

// Server wires the REST routes and the WebSocket hub over one Host.
type Server struct {
	h      *host.Host
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

// NewServer builds a Server ready to register routes against h.
func NewServer(h *host.Host, log *zap.Logger) *Server {
	s := &Server{h: h, hub: NewHub(), log: log}
	s.router = mux.NewRouter()
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/markets", s.handleListMarkets).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{symbol}", s.handleGetMarket).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{symbol}/orderbook", s.handleGetOrderbook).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{symbol}/status", s.handleSetMarketStatus).Methods(http.MethodPost)

	v1.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{address}/positions", s.handleGetPositions).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{address}/deposit", s.handleDeposit).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{address}/withdraw", s.handleWithdraw).Methods(http.MethodPost)

	v1.HandleFunc("/orders", s.handlePlaceOrder).Methods(http.MethodPost)
	v1.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods(http.MethodPost)
	v1.HandleFunc("/liquidate", s.handleLiquidate).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Start runs the HTTP server on addr, wrapping the router in a permissive
// local-dev CORS policy. Blocks until the server exits.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	handler := c.Handler(s.router)

	if s.log != nil {
		s.log.Info("api server listening", zap.String("addr", addr))
	}
	return http.ListenAndServe(addr, handler)
}

// BroadcastFill publishes a fill update to every client subscribed to
// "fills:<symbol>". Called through the host's fill handler once for each
// event PositionManager applies (wired in cmd/perpengine/server.go).
func (s *Server) BroadcastFill(update FillUpdate) {
	s.hub.BroadcastToChannel("fills:"+update.Symbol, WSMessage{Type: "fill", Data: update})
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.h.ListMarkets()
	out := make([]MarketInfo, 0, len(markets))
	for _, m := range markets {
		out = append(out, marketInfo(m))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	m, err := s.h.GetMarket(symbol)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, marketInfo(m))
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	bids, asks, err := s.h.OrderbookDepth(symbol)
	if err != nil {
		respondErr(w, err)
		return
	}
	snap := OrderbookSnapshot{Symbol: symbol, Timestamp: time.Now().Unix()}
	for _, lvl := range bids {
		snap.Bids = append(snap.Bids, PriceLevel{Price: lvl.Price, Size: lvl.Size})
	}
	for _, lvl := range asks {
		snap.Asks = append(snap.Asks, PriceLevel{Price: lvl.Price, Size: lvl.Size})
	}
	respondJSON(w, http.StatusOK, snap)
}

// handleSetMarketStatus is an operator-triggered pause/resume/settle,
// reachable with no auth layer in this reference host (authorization is
// out of scope, matching handleLiquidate).
func (s *Server) handleSetMarketStatus(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	var req MarketStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	status, err := parseMarketStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_status", err.Error())
		return
	}
	if err := s.h.SetMarketStatus(symbol, status); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(mux.Vars(r)["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	acct := s.h.GetAccount(addr)
	respondJSON(w, http.StatusOK, AccountInfo{Address: acct.Owner.Hex(), Balance: acct.Amount})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(mux.Vars(r)["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	positions := s.h.GetPositions(addr)
	out := make([]PositionInfo, 0, len(positions))
	for _, p := range positions {
		out = append(out, PositionInfo{
			Symbol: p.Market, BasePosition: p.BasePosition, EntryPrice: p.EntryPrice,
			RealizedPnL: p.RealizedPnL, UpdatedAt: p.UpdatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(mux.Vars(r)["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := s.h.Deposit(addr, req.Amount); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(mux.Vars(r)["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := s.h.Withdraw(addr, req.Amount); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_side", err.Error())
		return
	}
	orderType, err := parseOrderType(req.Type)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_type", err.Error())
		return
	}

	orderID, err := s.h.PlaceOrder(req.Market, addr, side, req.Qty, orderType, req.LimitPrice, req.Leverage)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PlaceOrderResponse{Status: "accepted", OrderIDHi: orderID[0], OrderIDLo: orderID[1]})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_side", err.Error())
		return
	}
	if err := s.h.CancelOrder(req.Market, addr, side, [2]uint64{req.OrderIDHi, req.OrderIDLo}); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// handleLiquidate is an operator-triggered liquidation, reachable with no
// auth layer in this reference host (authorization/signing is out of scope).
func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req LiquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_owner", err.Error())
		return
	}
	liquidator, err := parseAddress(req.Liquidator)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_liquidator", err.Error())
		return
	}
	res, err := s.h.Liquidate(req.Market, owner, liquidator)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func marketInfo(m *market.Market) MarketInfo {
	return MarketInfo{
		Symbol: m.Symbol, Status: m.Status.String(), ImBps: m.ImBps, MmBps: m.MmBps,
		TakerFeeBps: m.TakerFeeBps, MakerFeeBps: m.MakerFeeBps,
		TickSize: m.TickSize, StepSize: m.StepSize, MinOrderNotional: m.MinOrderNotional,
		LastOraclePrice: m.LastOraclePrice, CumFunding: m.CumFunding,
		FundingIntervalSecs: m.FundingIntervalSecs,
	}
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("not a valid hex address: %s", raw)
	}
	return common.HexToAddress(raw), nil
}

func parseSide(raw string) (queue.Side, error) {
	switch raw {
	case "buy":
		return queue.Buy, nil
	case "sell":
		return queue.Sell, nil
	default:
		return 0, fmt.Errorf("side must be \"buy\" or \"sell\", got %q", raw)
	}
}

func parseMarketStatus(raw string) (market.Status, error) {
	switch raw {
	case "active":
		return market.Active, nil
	case "paused":
		return market.Paused, nil
	case "settling":
		return market.Settling, nil
	case "settled":
		return market.Settled, nil
	default:
		return 0, fmt.Errorf("status must be one of active/paused/settling/settled, got %q", raw)
	}
}

func parseOrderType(raw string) (queue.OrderType, error) {
	switch raw {
	case "limit":
		return queue.Limit, nil
	case "market":
		return queue.Market, nil
	default:
		return 0, fmt.Errorf("type must be \"limit\" or \"market\", got %q", raw)
	}
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// respondErr maps a sentinel engine error to an HTTP status: not-found and
// validation errors are 4xx, anything else is a 500.
func respondErr(w http.ResponseWriter, err error) {
	is := func(targets ...error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
	switch {
	case is(perrors.ErrMarketNotFound, perrors.ErrOrderNotFound, perrors.ErrNothingToLiquidate):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case is(perrors.ErrInsufficientCollateral, perrors.ErrWithdrawWouldLiquidate,
		perrors.ErrOrderNotionalTooSmall, perrors.ErrInvalidAmount, perrors.ErrInvalidQuantity,
		perrors.ErrMarketExists, perrors.ErrInvalidMarketConfig):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case is(perrors.ErrMarketPaused):
		respondError(w, http.StatusConflict, "market_paused", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
