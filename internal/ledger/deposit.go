package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-tech/poolvault/internal/storage"
	"github.com/custodia-tech/poolvault/pkg/asset"
)

func depositKey(id string) []byte {
	return []byte("dep/" + id)
}

// depositTxKey is the durable uniqueness index on (asset, chain txid). Its
// existence is the "already seen" check, so a restart can never recreate or
// double-record a transfer.
func depositTxKey(a asset.Asset, txID string) []byte {
	return []byte("deptx/" + a.String() + "/" + txID)
}

// DepositSeen reports whether a chain transaction has already been recorded
// for an asset.
func (l *Ledger) DepositSeen(a asset.Asset, txID string) (bool, error) {
	return l.db.Has(depositTxKey(a, txID))
}

// RecordDeposit stores a newly observed inbound transfer as a pending
// DepositRecord. It returns false without error when the (asset, txid)
// pair is already known; recording is idempotent across polling cycles and
// restarts.
func (l *Ledger) RecordDeposit(rec *DepositRecord) (bool, error) {
	if !rec.Amount.IsPositive() {
		return false, fmt.Errorf("%w: %s", ErrInvalidAmount, rec.Amount)
	}
	if rec.TxID == "" {
		return false, fmt.Errorf("deposit record requires a chain txid")
	}

	created := false
	err := l.db.Update(func(txn storage.Txn) error {
		seen, err := txn.Has(depositTxKey(rec.Asset, rec.TxID))
		if err != nil {
			return err
		}
		if seen {
			return nil
		}

		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.ObservedAt.IsZero() {
			rec.ObservedAt = time.Now().UTC()
		}
		rec.Status = DepositPending

		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal deposit record: %w", err)
		}
		if err := txn.Put(depositKey(rec.ID), raw); err != nil {
			return err
		}
		if err := txn.Put(depositTxKey(rec.Asset, rec.TxID), []byte(rec.ID)); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if created {
		l.logger.Info().
			Str("deposit_id", rec.ID).
			Str("asset", rec.Asset.String()).
			Str("amount", rec.Amount.String()).
			Str("tx_id", rec.TxID).
			Msg("deposit recorded")
	}
	return created, nil
}

// ClaimDeposit attributes a pending deposit to a user: the record moves to
// claimed and the user's balance is credited, atomically with a journal
// row. Claiming a record that is not pending fails with ErrAlreadyClaimed.
func (l *Ledger) ClaimDeposit(depositID, userID string) error {
	if userID == "" {
		return fmt.Errorf("claim requires a user id")
	}

	var claimed DepositRecord
	err := l.db.Update(func(txn storage.Txn) error {
		rec, err := getDeposit(txn, depositID)
		if err != nil {
			return err
		}
		if rec.Status != DepositPending {
			return fmt.Errorf("%w: deposit %s is %s", ErrAlreadyClaimed, depositID, rec.Status)
		}

		now := time.Now().UTC()
		rec.Status = DepositClaimed
		rec.UserID = userID
		rec.ClaimedAt = &now

		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal deposit record: %w", err)
		}
		if err := txn.Put(depositKey(rec.ID), raw); err != nil {
			return err
		}
		if err := adjustBalance(txn, userID, rec.Asset, rec.Amount); err != nil {
			return err
		}
		if err := writeJournal(txn, &JournalEntry{
			UserID: userID,
			Asset:  rec.Asset,
			Amount: rec.Amount,
			Kind:   JournalDepositClaim,
			Ref:    rec.ID,
		}); err != nil {
			return err
		}
		claimed = *rec
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Info().
		Str("deposit_id", claimed.ID).
		Str("user_id", userID).
		Str("asset", claimed.Asset.String()).
		Str("amount", claimed.Amount.String()).
		Msg("deposit claimed")
	return nil
}

// CancelDeposit voids a pending deposit record. Used by operators for
// manual corrections; claimed records cannot be cancelled.
func (l *Ledger) CancelDeposit(depositID, reason string) error {
	return l.db.Update(func(txn storage.Txn) error {
		rec, err := getDeposit(txn, depositID)
		if err != nil {
			return err
		}
		if rec.Status != DepositPending {
			return fmt.Errorf("%w: deposit %s is %s", ErrAlreadyClaimed, depositID, rec.Status)
		}

		rec.Status = DepositCancelled
		rec.Reason = reason

		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal deposit record: %w", err)
		}
		return txn.Put(depositKey(rec.ID), raw)
	})
}

// Deposit returns a deposit record by ID.
func (l *Ledger) Deposit(depositID string) (*DepositRecord, error) {
	var rec *DepositRecord
	err := l.db.View(func(txn storage.Txn) error {
		var err error
		rec, err = getDeposit(txn, depositID)
		return err
	})
	return rec, err
}

// Deposits returns every deposit record with the given status, or all
// records when status is empty.
func (l *Ledger) Deposits(status DepositStatus) ([]DepositRecord, error) {
	var out []DepositRecord
	err := l.db.ForEach(depositKey(""), func(_, value []byte) error {
		var rec DepositRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("parse deposit record: %w", err)
		}
		if status == "" || rec.Status == status {
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func getDeposit(txn storage.Txn, depositID string) (*DepositRecord, error) {
	raw, err := txn.Get(depositKey(depositID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: deposit %s", ErrNotFound, depositID)
	}
	if err != nil {
		return nil, err
	}
	var rec DepositRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parse deposit record: %w", err)
	}
	return &rec, nil
}
