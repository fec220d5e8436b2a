// Command perpengine runs the reference host: an in-process engine that
// exercises every command in the matching/position/risk/funding/
// liquidation packages end-to-end, backed by Pebble and fronted by the
// HTTP/WebSocket surface in server.go. Grounded on cmd/node/main.go's
// config-load / logger-setup / signal-context / goroutine-server shape,
// with the HotStuff consensus engine and libp2p networking dropped (no
// chain layer in this repo; see DESIGN.md).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/perplab/perpengine/internal/host"
	"github.com/perplab/perpengine/internal/hostconfig"
	"github.com/perplab/perpengine/internal/market"
	"github.com/perplab/perpengine/pkg/storage"
	"github.com/perplab/perpengine/pkg/util"
)

func main() {
	cfg := hostconfig.LoadFromEnv("")

	logPath := os.Getenv("LOG_FILE")
	if logPath == "" {
		logPath = "data/perpengine.log"
	}
	logger, err := util.NewLoggerWithFile(logPath)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "data/perpengine.db"
	}
	store, err := storage.NewPebbleStore(dbPath)
	if err != nil {
		logger.Sugar().Fatalw("pebble_open_failed", "err", err)
	}
	defer store.Close()

	h := host.New(cfg, store, util.RealClock{}, logger)
	if err := h.InitGlobalConfig(cfg.InsuranceFundSeed); err != nil {
		logger.Sugar().Fatalw("init_global_config_failed", "err", err)
	}

	for _, m := range defaultMarkets() {
		if err := h.InitMarket(m.symbol, m.params); err != nil {
			logger.Sugar().Fatalw("init_market_failed", "market", m.symbol, "err", err)
		}
	}

	srv := newServer(h, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Sugar().Infow("api_server_starting", "addr", cfg.ListenAddr)
		if err := srv.Start(cfg.ListenAddr); err != nil {
			logger.Sugar().Fatalw("api_server_failed", "err", err)
		}
	}()

	runCrank(ctx, h, logger, defaultSymbols())
}

// crankOne runs one tick of the crank for symbol: process pending requests
// then apply resulting fills to positions. Fill broadcasting happens via
// the host's fill handler (see server.go), not here.
func crankOne(h *host.Host, symbol string, logger *zap.Logger) {
	if _, err := h.ProcessOrders(symbol); err != nil {
		logger.Error("process_orders", zap.String("market", symbol), zap.Error(err))
		return
	}
	if _, err := h.DrainEvents(symbol); err != nil {
		logger.Error("position_manager", zap.String("market", symbol), zap.Error(err))
	}
}

type marketSeed struct {
	symbol string
	params market.Params
}

// defaultMarkets seeds one sample market for local bring-up.
func defaultMarkets() []marketSeed {
	return []marketSeed{
		{
			symbol: "BTC-USDC",
			params: market.Params{
				OracleKey:           common.Address{},
				LastOraclePrice:     60_000_00,
				ImBps:               1000,
				MmBps:               500,
				OracleBandBps:       500,
				TakerFeeBps:         10,
				MakerFeeBps:         2,
				LiqPenaltyBps:       250,
				LiquidatorShareBps:  5000,
				MaxFundingRate:      1_000_000,
				FundingIntervalSecs: 28_800,
				TickSize:            1,
				StepSize:            1,
				MinOrderNotional:    10_00,
			},
		},
	}
}

func defaultSymbols() []string {
	out := make([]string, 0, len(defaultMarkets()))
	for _, m := range defaultMarkets() {
		out = append(out, m.symbol)
	}
	return out
}

// runCrank periodically drains every market's request/event queues —
// "the crank that drains queues is itself serialized by the host" — until
// ctx is cancelled. There is no consensus engine driving block commits in
// this repo, so the crank free-runs on a ticker instead.
func runCrank(ctx context.Context, h *host.Host, logger *zap.Logger, symbols []string) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range symbols {
				crankOne(h, symbol, logger)
			}
		}
	}
}
