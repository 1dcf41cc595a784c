package withdraw

import "errors"

var (
	// ErrAmountTooSmall means the fee consumes the whole requested amount.
	ErrAmountTooSmall = errors.New("amount too small to cover fee")

	// ErrInsufficientPoolLiquidity means the pool's on-chain balance cannot
	// cover the transfer. The request stays pending; the operator can retry
	// once the pool is topped up.
	ErrInsufficientPoolLiquidity = errors.New("insufficient pool liquidity")

	// ErrBroadcastFailure wraps a failed or timed-out broadcast attempt.
	// Recoverable: the reserved amount is refunded.
	ErrBroadcastFailure = errors.New("broadcast failed")
)
