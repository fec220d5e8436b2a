package main

import (
	"go.uber.org/zap"

	"github.com/perplab/perpengine/internal/host"
	"github.com/perplab/perpengine/internal/queue"
	"github.com/perplab/perpengine/pkg/api"
)

// server is the reference host's HTTP/WebSocket surface: a thin wrapper
// over pkg/api.Server that wires the host's fill events into the
// WebSocket broadcast channel.
type server struct {
	*api.Server
}

// newServer builds the API server and subscribes it to h's fill events so
// every PositionManager-applied fill is pushed to "fills:<symbol>"
// WebSocket subscribers as it happens.
func newServer(h *host.Host, logger *zap.Logger) *server {
	apiServer := api.NewServer(h, logger)
	s := &server{Server: apiServer}
	h.SetFillHandler(func(symbol string, ev queue.MatchedOrder) {
		s.BroadcastFill(api.FillUpdate{
			Type: "fill", Symbol: symbol, User: ev.User.Hex(), Side: ev.Side.String(),
			Price: ev.FillPrice, Qty: ev.FillQty, IsMaker: ev.IsMaker, Timestamp: ev.Timestamp,
		})
	})
	return s
}
