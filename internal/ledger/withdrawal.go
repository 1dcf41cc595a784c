package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-tech/poolvault/internal/storage"
)

func withdrawalKey(id string) []byte {
	return []byte("wd/" + id)
}

func reconFlagKey(id string) []byte {
	return []byte("flag/" + id)
}

// ReserveWithdrawal debits the full requested amount from the user's
// balance and stores the request as pending, in one transaction. The
// reservation locks the funds the instant the request is filed so the same
// balance cannot back two requests.
func (l *Ledger) ReserveWithdrawal(req *WithdrawalRequest) error {
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, req.Amount)
	}
	if !req.Amount.Equal(req.Fee.Add(req.NetAmount)) {
		return fmt.Errorf("withdrawal amount %s != fee %s + net %s", req.Amount, req.Fee, req.NetAmount)
	}

	err := l.db.Update(func(txn storage.Txn) error {
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		if req.CreatedAt.IsZero() {
			req.CreatedAt = time.Now().UTC()
		}
		req.Status = WithdrawalPending

		if err := adjustBalance(txn, req.UserID, req.Asset, req.Amount.Neg()); err != nil {
			return err
		}
		if err := writeJournal(txn, &JournalEntry{
			UserID: req.UserID,
			Asset:  req.Asset,
			Amount: req.Amount.Neg(),
			Kind:   JournalWithdrawReserve,
			Ref:    req.ID,
		}); err != nil {
			return err
		}
		return putWithdrawal(txn, req)
	})
	if err != nil {
		return err
	}

	l.logger.Info().
		Str("withdrawal_id", req.ID).
		Str("user_id", req.UserID).
		Str("asset", req.Asset.String()).
		Str("amount", req.Amount.String()).
		Str("net", req.NetAmount.String()).
		Msg("withdrawal reserved")
	return nil
}

// MarkApproved conditionally transitions a withdrawal from pending to
// approved. The status guard runs inside the transaction, so of any number
// of concurrent approval attempts exactly one succeeds; the rest fail with
// ErrAlreadyProcessed.
func (l *Ledger) MarkApproved(withdrawalID, operator string) (*WithdrawalRequest, error) {
	var out *WithdrawalRequest
	err := l.db.Update(func(txn storage.Txn) error {
		req, err := getWithdrawal(txn, withdrawalID)
		if err != nil {
			return err
		}
		if req.Status != WithdrawalPending {
			return fmt.Errorf("%w: withdrawal %s is %s", ErrAlreadyProcessed, withdrawalID, req.Status)
		}

		now := time.Now().UTC()
		req.Status = WithdrawalApproved
		req.ApprovedBy = operator
		req.DecidedAt = &now

		if err := putWithdrawal(txn, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	return out, err
}

// CompleteWithdrawal transitions an approved withdrawal to completed,
// recording the broadcast chain txid. The reservation is consumed: no
// balance movement happens here.
func (l *Ledger) CompleteWithdrawal(withdrawalID, txID string) error {
	return l.db.Update(func(txn storage.Txn) error {
		req, err := getWithdrawal(txn, withdrawalID)
		if err != nil {
			return err
		}
		if req.Status != WithdrawalApproved {
			return fmt.Errorf("%w: withdrawal %s is %s, want approved", ErrInvalidStateTransition, withdrawalID, req.Status)
		}

		now := time.Now().UTC()
		req.Status = WithdrawalCompleted
		req.TxID = txID
		req.CompletedAt = &now
		return putWithdrawal(txn, req)
	})
}

// FailWithdrawal transitions an approved withdrawal to failed and refunds
// the full reserved amount, in one transaction. A known chain txid (e.g. a
// broadcast that timed out in flight) is retained for reconciliation.
func (l *Ledger) FailWithdrawal(withdrawalID, txID, reason string) error {
	err := l.db.Update(func(txn storage.Txn) error {
		req, err := getWithdrawal(txn, withdrawalID)
		if err != nil {
			return err
		}
		if req.Status != WithdrawalApproved {
			return fmt.Errorf("%w: withdrawal %s is %s, want approved", ErrInvalidStateTransition, withdrawalID, req.Status)
		}

		now := time.Now().UTC()
		req.Status = WithdrawalFailed
		req.TxID = txID
		req.Reason = reason
		req.CompletedAt = &now

		if err := adjustBalance(txn, req.UserID, req.Asset, req.Amount); err != nil {
			return err
		}
		if err := writeJournal(txn, &JournalEntry{
			UserID: req.UserID,
			Asset:  req.Asset,
			Amount: req.Amount,
			Kind:   JournalWithdrawRefund,
			Ref:    req.ID,
		}); err != nil {
			return err
		}
		return putWithdrawal(txn, req)
	})
	if err != nil {
		return err
	}

	l.logger.Warn().
		Str("withdrawal_id", withdrawalID).
		Str("reason", reason).
		Msg("withdrawal failed, reservation refunded")
	return nil
}

// RejectWithdrawal declines a pending withdrawal and refunds the full
// reserved amount, in one transaction.
func (l *Ledger) RejectWithdrawal(withdrawalID, operator, reason string) error {
	err := l.db.Update(func(txn storage.Txn) error {
		req, err := getWithdrawal(txn, withdrawalID)
		if err != nil {
			return err
		}
		if req.Status != WithdrawalPending {
			return fmt.Errorf("%w: withdrawal %s is %s", ErrAlreadyProcessed, withdrawalID, req.Status)
		}

		now := time.Now().UTC()
		req.Status = WithdrawalRejected
		req.ApprovedBy = operator
		req.Reason = reason
		req.DecidedAt = &now

		if err := adjustBalance(txn, req.UserID, req.Asset, req.Amount); err != nil {
			return err
		}
		if err := writeJournal(txn, &JournalEntry{
			UserID: req.UserID,
			Asset:  req.Asset,
			Amount: req.Amount,
			Kind:   JournalWithdrawRefund,
			Ref:    req.ID,
		}); err != nil {
			return err
		}
		return putWithdrawal(txn, req)
	})
	if err != nil {
		return err
	}

	l.logger.Info().
		Str("withdrawal_id", withdrawalID).
		Str("operator", operator).
		Str("reason", reason).
		Msg("withdrawal rejected, reservation refunded")
	return nil
}

// Withdrawal returns a withdrawal request by ID.
func (l *Ledger) Withdrawal(withdrawalID string) (*WithdrawalRequest, error) {
	var req *WithdrawalRequest
	err := l.db.View(func(txn storage.Txn) error {
		var err error
		req, err = getWithdrawal(txn, withdrawalID)
		return err
	})
	return req, err
}

// Withdrawals returns every withdrawal with the given status, or all when
// status is empty.
func (l *Ledger) Withdrawals(status WithdrawalStatus) ([]WithdrawalRequest, error) {
	var out []WithdrawalRequest
	err := l.db.ForEach(withdrawalKey(""), func(_, value []byte) error {
		var req WithdrawalRequest
		if err := json.Unmarshal(value, &req); err != nil {
			return fmt.Errorf("parse withdrawal request: %w", err)
		}
		if status == "" || req.Status == status {
			out = append(out, req)
		}
		return nil
	})
	return out, err
}

// AddReconFlag records a condition for manual reconciliation.
func (l *Ledger) AddReconFlag(flag *ReconFlag) error {
	if flag.ID == "" {
		flag.ID = uuid.NewString()
	}
	if flag.At.IsZero() {
		flag.At = time.Now().UTC()
	}
	raw, err := json.Marshal(flag)
	if err != nil {
		return fmt.Errorf("marshal recon flag: %w", err)
	}
	if err := l.db.Put(reconFlagKey(flag.ID), raw); err != nil {
		return err
	}
	l.logger.Warn().
		Str("flag_id", flag.ID).
		Str("withdrawal_id", flag.WithdrawalID).
		Str("tx_id", flag.TxID).
		Str("note", flag.Note).
		Msg("reconciliation flag raised")
	return nil
}

// ReconFlags returns all open reconciliation flags.
func (l *Ledger) ReconFlags() ([]ReconFlag, error) {
	var out []ReconFlag
	err := l.db.ForEach(reconFlagKey(""), func(_, value []byte) error {
		var f ReconFlag
		if err := json.Unmarshal(value, &f); err != nil {
			return fmt.Errorf("parse recon flag: %w", err)
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

func getWithdrawal(txn storage.Txn, withdrawalID string) (*WithdrawalRequest, error) {
	raw, err := txn.Get(withdrawalKey(withdrawalID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: withdrawal %s", ErrNotFound, withdrawalID)
	}
	if err != nil {
		return nil, err
	}
	var req WithdrawalRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("parse withdrawal request: %w", err)
	}
	return &req, nil
}

func putWithdrawal(txn storage.Txn, req *WithdrawalRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal withdrawal request: %w", err)
	}
	return txn.Put(withdrawalKey(req.ID), raw)
}
