// Package perrors collects the sentinel errors returned across the engine.
// Handlers wrap these with fmt.Errorf("%w: ...") for context; callers that
// need to branch on error class should use errors.Is against these values.
package perrors

import "errors"

var (
	ErrQueueFull              = errors.New("queue full")
	ErrQueueEmpty              = errors.New("queue empty")
	ErrInvalidQuantity         = errors.New("invalid quantity")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInsufficientSpace       = errors.New("insufficient space")
	ErrSlabFull                = errors.New("slab full")
	ErrInvalidTree             = errors.New("invalid tree")
	ErrInvalidNodeType         = errors.New("invalid node type")
	ErrNodeIsRoot              = errors.New("node is root")
	ErrNodeNotFound            = errors.New("node not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrMathOverflow            = errors.New("math overflow")
	ErrNothingToLiquidate      = errors.New("nothing to liquidate")
	ErrInvalidOraclePrice      = errors.New("invalid oracle price")
	ErrInvalidTimestamp        = errors.New("invalid timestamp")
	ErrInvalidMarketConfig     = errors.New("invalid market config")
	ErrFundingNotDue           = errors.New("funding not due")
	ErrOrderNotionalTooSmall   = errors.New("order notional too small")
	ErrInsufficientCollateral  = errors.New("insufficient collateral")
	ErrWithdrawWouldLiquidate  = errors.New("withdraw would liquidate")
	ErrInvalidSymbol           = errors.New("invalid symbol")
	ErrSerializationFailed     = errors.New("serialization failed")
	ErrDeserializationFailed   = errors.New("deserialization failed")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrEventNotForUser         = errors.New("event at head of queue is for another user")

	// ErrMarketExists/ErrMarketNotFound are reference-host additions: the
	// original spec's command surface assumes init_market/get_market are
	// always well-formed; the host has to report these explicitly.
	ErrMarketExists   = errors.New("market already registered")
	ErrMarketNotFound = errors.New("market not found")
	ErrMarketPaused   = errors.New("market paused")
)
