// Package withdraw turns a user's withdrawal request into either a completed
// on-chain transfer or a fully reversed no-op. Funds are reserved the moment
// a request is filed and either consumed by a broadcast or refunded in full;
// the ledger never shows an in-between state.
package withdraw

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/internal/ledger"
	"github.com/custodia-tech/poolvault/internal/log"
	"github.com/custodia-tech/poolvault/internal/notify"
	"github.com/custodia-tech/poolvault/pkg/asset"
	"github.com/custodia-tech/poolvault/pkg/chainaddr"
)

// Signer is the vault surface the engine uses.
type Signer interface {
	WithSigningKey(a asset.Asset, fn func(priv *secp256k1.PrivateKey) error) error
}

// LiquiditySource reads the pool's confirmed on-chain balance. The
// reconciliation reporter satisfies it.
type LiquiditySource interface {
	PoolBalance(ctx context.Context, a asset.Asset) (decimal.Decimal, error)
}

// Notifier receives fire-and-forget settlement events.
type Notifier interface {
	Publish(e notify.Event)
}

// Config holds the engine's operating parameters.
type Config struct {
	// FeeRates maps each asset to its withdrawal fee rate (0.005 = 0.5%).
	FeeRates map[asset.Asset]decimal.Decimal
	// BroadcastTimeout bounds one broadcast attempt. A timeout is treated
	// as failed for ledger purposes; if a transaction identifier is known
	// it is flagged for manual reconciliation in case it confirms late.
	BroadcastTimeout time.Duration
	Params           *chaincfg.Params
}

type Engine struct {
	ledger      *ledger.Ledger
	signer      Signer
	liquidity   LiquiditySource
	broadcaster Broadcaster
	notifier    Notifier
	cfg         Config
	logger      zerolog.Logger
}

func NewEngine(l *ledger.Ledger, signer Signer, liquidity LiquiditySource, b Broadcaster, n Notifier, cfg Config) *Engine {
	if cfg.BroadcastTimeout <= 0 {
		cfg.BroadcastTimeout = 2 * time.Minute
	}
	return &Engine{
		ledger:      l,
		signer:      signer,
		liquidity:   liquidity,
		broadcaster: b,
		notifier:    n,
		cfg:         cfg,
		logger:      log.Withdraw,
	}
}

// Request validates a withdrawal, reserves the full amount from the user's
// balance, and files the request as pending. The destination address is
// checksum-normalized; fee and net amount are fixed at request time.
func (e *Engine) Request(userID string, a asset.Asset, amount decimal.Decimal, destination string) (*ledger.WithdrawalRequest, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ledger.ErrInvalidAmount, amount)
	}

	dest, err := chainaddr.Normalize(a, destination, e.cfg.Params)
	if err != nil {
		return nil, err
	}

	fee := amount.Mul(e.feeRate(a)).Round(a.Decimals())
	net := amount.Sub(fee)
	if !net.IsPositive() {
		return nil, fmt.Errorf("%w: %s at fee %s", ErrAmountTooSmall, amount, fee)
	}

	req := &ledger.WithdrawalRequest{
		UserID:      userID,
		Asset:       a,
		Amount:      amount,
		Fee:         fee,
		NetAmount:   net,
		Destination: dest,
	}
	if err := e.ledger.ReserveWithdrawal(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Approve executes a pending withdrawal on behalf of an operator. The
// liquidity and key checks run before any state transition, so a refused
// approval leaves the request pending and retryable. Once approved, the
// request always reaches a terminal state: completed on broadcast success,
// failed (with refund) otherwise.
func (e *Engine) Approve(ctx context.Context, withdrawalID, operator string) (*ledger.WithdrawalRequest, error) {
	req, err := e.ledger.Withdrawal(withdrawalID)
	if err != nil {
		return nil, err
	}
	if req.Status != ledger.WithdrawalPending {
		return nil, fmt.Errorf("%w: withdrawal %s is %s", ledger.ErrAlreadyProcessed, withdrawalID, req.Status)
	}

	// A degraded liquidity read means unknown, not zero: refuse rather
	// than risk an uncovered broadcast.
	poolBal, err := e.liquidity.PoolBalance(ctx, req.Asset)
	if err != nil {
		return nil, fmt.Errorf("pool liquidity unknown: %w", err)
	}
	if poolBal.LessThan(req.NetAmount) {
		return nil, fmt.Errorf("%w: pool holds %s, need %s", ErrInsufficientPoolLiquidity, poolBal, req.NetAmount)
	}

	// Key integrity preflight. A mismatched key is a blocking fault that
	// must not transition the request or trigger a refund.
	if err := e.signer.WithSigningKey(req.Asset, func(*secp256k1.PrivateKey) error { return nil }); err != nil {
		return nil, err
	}

	approved, err := e.ledger.MarkApproved(withdrawalID, operator)
	if err != nil {
		return nil, err
	}
	e.publish(notify.WithdrawalApproved, approved, "")

	return e.execute(ctx, approved)
}

// Reject declines a pending withdrawal and refunds the reservation.
func (e *Engine) Reject(withdrawalID, operator, reason string) (*ledger.WithdrawalRequest, error) {
	if err := e.ledger.RejectWithdrawal(withdrawalID, operator, reason); err != nil {
		return nil, err
	}
	req, err := e.ledger.Withdrawal(withdrawalID)
	if err != nil {
		return nil, err
	}
	e.publish(notify.WithdrawalRejected, req, reason)
	return req, nil
}

func (e *Engine) execute(ctx context.Context, req *ledger.WithdrawalRequest) (*ledger.WithdrawalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.BroadcastTimeout)
	defer cancel()

	var txID string
	err := e.signer.WithSigningKey(req.Asset, func(priv *secp256k1.PrivateKey) error {
		id, berr := e.broadcaster.Broadcast(ctx, priv, req.Asset, req.Destination, req.NetAmount)
		txID = id
		return berr
	})
	if err == nil {
		if cerr := e.ledger.CompleteWithdrawal(req.ID, txID); cerr != nil {
			return nil, cerr
		}
		done, gerr := e.ledger.Withdrawal(req.ID)
		if gerr != nil {
			return nil, gerr
		}
		e.publish(notify.WithdrawalCompleted, done, "")
		return done, nil
	}

	reason := err.Error()
	if ferr := e.ledger.FailWithdrawal(req.ID, txID, reason); ferr != nil {
		// Refund could not be recorded; surface both problems.
		return nil, fmt.Errorf("broadcast failed (%v) and refund failed: %w", err, ferr)
	}
	if txID != "" {
		// The transaction left the process and may still confirm after
		// the refund. Flag it for manual reconciliation.
		if frr := e.ledger.AddReconFlag(&ledger.ReconFlag{
			Asset:        req.Asset,
			WithdrawalID: req.ID,
			TxID:         txID,
			Note:         "broadcast attempted before refund; verify on chain",
		}); frr != nil {
			e.logger.Error().Err(frr).Str("withdrawal_id", req.ID).Msg("Recon flag write failed")
		}
	}

	failed, gerr := e.ledger.Withdrawal(req.ID)
	if gerr != nil {
		return nil, gerr
	}
	e.publish(notify.WithdrawalFailed, failed, reason)
	return failed, err
}

func (e *Engine) feeRate(a asset.Asset) decimal.Decimal {
	if rate, ok := e.cfg.FeeRates[a]; ok {
		return rate
	}
	return decimal.Zero
}

func (e *Engine) publish(kind notify.Kind, req *ledger.WithdrawalRequest, reason string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Publish(notify.Event{
		Kind:   kind,
		UserID: req.UserID,
		Asset:  req.Asset,
		Amount: req.Amount,
		Ref:    req.ID,
		Reason: reason,
	})
}
