package rpc

import (
	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/internal/ledger"
	"github.com/custodia-tech/poolvault/internal/recon"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeDenied         = -32001 // balance, liquidity, or state machine refusal
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// UserAssetParam is used by wallet_getDepositAddress and wallet_getBalance.
type UserAssetParam struct {
	UserID string `json:"user_id"`
	Asset  string `json:"asset"`
}

// AssetParam is used by wallet_getPoolAddress.
type AssetParam struct {
	Asset string `json:"asset"`
}

// WithdrawRequestParam is used by withdraw_request.
type WithdrawRequestParam struct {
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
}

// WithdrawActionParam is used by withdraw_approve and withdraw_reject.
type WithdrawActionParam struct {
	WithdrawalID string `json:"withdrawal_id"`
	Operator     string `json:"operator"`
	Reason       string `json:"reason,omitempty"`
}

// WithdrawGetParam is used by withdraw_get.
type WithdrawGetParam struct {
	WithdrawalID string `json:"withdrawal_id"`
}

// DepositClaimParam is used by deposit_claim.
type DepositClaimParam struct {
	DepositID string `json:"deposit_id"`
	UserID    string `json:"user_id"`
}

// DepositCancelParam is used by deposit_cancel.
type DepositCancelParam struct {
	DepositID string `json:"deposit_id"`
	Reason    string `json:"reason"`
}

// StatusParam is used by list endpoints; an empty status lists everything.
type StatusParam struct {
	Status string `json:"status,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// AddressResult is returned by the address endpoints.
type AddressResult struct {
	UserID  string `json:"user_id,omitempty"`
	Asset   string `json:"asset"`
	Address string `json:"address"`
}

// BalanceResult is returned by wallet_getBalance.
type BalanceResult struct {
	UserID  string          `json:"user_id"`
	Asset   string          `json:"asset"`
	Balance decimal.Decimal `json:"balance"`
}

// PoolBalancesResult is returned by recon_poolBalances.
type PoolBalancesResult struct {
	Balances []recon.PoolBalance `json:"balances"`
}

// WithdrawalListResult is returned by withdraw_list.
type WithdrawalListResult struct {
	Withdrawals []ledger.WithdrawalRequest `json:"withdrawals"`
}

// DepositListResult is returned by deposit_list.
type DepositListResult struct {
	Deposits []ledger.DepositRecord `json:"deposits"`
}

// ReconFlagsResult is returned by recon_flags.
type ReconFlagsResult struct {
	Flags []ledger.ReconFlag `json:"flags"`
}
