package rpc

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/internal/ledger"
	"github.com/custodia-tech/poolvault/internal/notify"
	"github.com/custodia-tech/poolvault/internal/storage"
	"github.com/custodia-tech/poolvault/internal/vault"
	"github.com/custodia-tech/poolvault/internal/withdraw"
	"github.com/custodia-tech/poolvault/pkg/asset"
	"github.com/custodia-tech/poolvault/pkg/chainaddr"
)

// domainError maps engine and ledger errors onto JSON-RPC error codes:
// lookups that miss are CodeNotFound, caller mistakes are CodeInvalidParams,
// refusals the caller can act on are CodeDenied, the rest is internal.
func domainError(err error) *Error {
	switch {
	case errors.Is(err, ledger.ErrNotFound) || errors.Is(err, storage.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, asset.ErrUnsupported) ||
		errors.Is(err, chainaddr.ErrMalformed) ||
		errors.Is(err, ledger.ErrInvalidAmount):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, ledger.ErrInsufficientBalance) ||
		errors.Is(err, ledger.ErrAlreadyClaimed) ||
		errors.Is(err, ledger.ErrAlreadyProcessed) ||
		errors.Is(err, ledger.ErrInvalidStateTransition) ||
		errors.Is(err, withdraw.ErrAmountTooSmall) ||
		errors.Is(err, withdraw.ErrInsufficientPoolLiquidity) ||
		errors.Is(err, withdraw.ErrBroadcastFailure) ||
		errors.Is(err, vault.ErrKeyIntegrityMismatch) ||
		errors.Is(err, vault.ErrNotInitialized):
		return &Error{Code: CodeDenied, Message: err.Error()}
	default:
		return &Error{Code: CodeInternalError, Message: err.Error()}
	}
}

// ── Wallet endpoints ────────────────────────────────────────────────────

func (s *Server) handleGetDepositAddress(req *Request) (interface{}, *Error) {
	var params UserAssetParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.UserID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "user_id is required"}
	}
	a, err := asset.Parse(params.Asset)
	if err != nil {
		return nil, domainError(err)
	}

	addr, err := s.allocator.UserDisplayAddress(params.UserID, a)
	if err != nil {
		return nil, domainError(err)
	}
	return &AddressResult{UserID: params.UserID, Asset: a.String(), Address: addr}, nil
}

func (s *Server) handleGetPoolAddress(req *Request) (interface{}, *Error) {
	var params AssetParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	a, err := asset.Parse(params.Asset)
	if err != nil {
		return nil, domainError(err)
	}

	addr, err := s.allocator.PoolAddress(a)
	if err != nil {
		return nil, domainError(err)
	}
	return &AddressResult{Asset: a.String(), Address: addr}, nil
}

func (s *Server) handleGetBalance(req *Request) (interface{}, *Error) {
	var params UserAssetParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.UserID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "user_id is required"}
	}
	a, err := asset.Parse(params.Asset)
	if err != nil {
		return nil, domainError(err)
	}

	bal, err := s.ledger.Balance(params.UserID, a)
	if err != nil {
		return nil, domainError(err)
	}
	return &BalanceResult{UserID: params.UserID, Asset: a.String(), Balance: bal}, nil
}

// ── Withdrawal endpoints ────────────────────────────────────────────────

func (s *Server) handleWithdrawRequest(req *Request) (interface{}, *Error) {
	var params WithdrawRequestParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.UserID == "" || params.Destination == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "user_id and destination are required"}
	}
	a, err := asset.Parse(params.Asset)
	if err != nil {
		return nil, domainError(err)
	}
	amount, err := decimal.NewFromString(params.Amount)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid amount: " + err.Error()}
	}

	wr, err := s.engine.Request(params.UserID, a, amount, params.Destination)
	if err != nil {
		return nil, domainError(err)
	}
	return wr, nil
}

func (s *Server) handleWithdrawApprove(ctx context.Context, req *Request) (interface{}, *Error) {
	var params WithdrawActionParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.WithdrawalID == "" || params.Operator == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "withdrawal_id and operator are required"}
	}

	wr, err := s.engine.Approve(ctx, params.WithdrawalID, params.Operator)
	if err != nil && wr == nil {
		return nil, domainError(err)
	}
	// A failed broadcast still yields the terminal request so the caller
	// sees the refund.
	return wr, nil
}

func (s *Server) handleWithdrawReject(req *Request) (interface{}, *Error) {
	var params WithdrawActionParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.WithdrawalID == "" || params.Operator == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "withdrawal_id and operator are required"}
	}

	wr, err := s.engine.Reject(params.WithdrawalID, params.Operator, params.Reason)
	if err != nil {
		return nil, domainError(err)
	}
	return wr, nil
}

func (s *Server) handleWithdrawGet(req *Request) (interface{}, *Error) {
	var params WithdrawGetParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.WithdrawalID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "withdrawal_id is required"}
	}

	wr, err := s.ledger.Withdrawal(params.WithdrawalID)
	if err != nil {
		return nil, domainError(err)
	}
	return wr, nil
}

func (s *Server) handleWithdrawList(req *Request) (interface{}, *Error) {
	var params StatusParam
	if req.Params != nil {
		if rpcErr := parseParams(req, &params); rpcErr != nil {
			return nil, rpcErr
		}
	}

	list, err := s.ledger.Withdrawals(ledger.WithdrawalStatus(params.Status))
	if err != nil {
		return nil, domainError(err)
	}
	return &WithdrawalListResult{Withdrawals: list}, nil
}

// ── Deposit endpoints ───────────────────────────────────────────────────

func (s *Server) handleDepositClaim(req *Request) (interface{}, *Error) {
	var params DepositClaimParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.DepositID == "" || params.UserID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "deposit_id and user_id are required"}
	}

	if err := s.ledger.ClaimDeposit(params.DepositID, params.UserID); err != nil {
		return nil, domainError(err)
	}
	dep, err := s.ledger.Deposit(params.DepositID)
	if err != nil {
		return nil, domainError(err)
	}
	if s.notifier != nil {
		s.notifier.Publish(notify.Event{
			Kind:   notify.DepositClaimed,
			UserID: dep.UserID,
			Asset:  dep.Asset,
			Amount: dep.Amount,
			Ref:    dep.ID,
		})
	}
	return dep, nil
}

func (s *Server) handleDepositCancel(req *Request) (interface{}, *Error) {
	var params DepositCancelParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.DepositID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "deposit_id is required"}
	}

	if err := s.ledger.CancelDeposit(params.DepositID, params.Reason); err != nil {
		return nil, domainError(err)
	}
	dep, err := s.ledger.Deposit(params.DepositID)
	if err != nil {
		return nil, domainError(err)
	}
	return dep, nil
}

func (s *Server) handleDepositList(req *Request) (interface{}, *Error) {
	var params StatusParam
	if req.Params != nil {
		if rpcErr := parseParams(req, &params); rpcErr != nil {
			return nil, rpcErr
		}
	}

	list, err := s.ledger.Deposits(ledger.DepositStatus(params.Status))
	if err != nil {
		return nil, domainError(err)
	}
	return &DepositListResult{Deposits: list}, nil
}

// ── Reconciliation endpoints ────────────────────────────────────────────

func (s *Server) handleReconPoolBalances(ctx context.Context, req *Request) (interface{}, *Error) {
	return &PoolBalancesResult{Balances: s.reporter.PoolBalances(ctx)}, nil
}

func (s *Server) handleReconFlags(req *Request) (interface{}, *Error) {
	flags, err := s.ledger.ReconFlags()
	if err != nil {
		return nil, domainError(err)
	}
	return &ReconFlagsResult{Flags: flags}, nil
}
