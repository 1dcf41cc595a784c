// Package ledger is the authoritative store of user balances, deposit
// records and withdrawal requests. Every balance mutation happens inside a
// single storage transaction together with the record change that caused
// it, so no failure can leave money neither moved nor accounted for.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	llog "github.com/custodia-tech/poolvault/internal/log"
	"github.com/custodia-tech/poolvault/internal/storage"
	"github.com/custodia-tech/poolvault/pkg/asset"
)

// Ledger mediates all balance and settlement-record access.
type Ledger struct {
	db     storage.DB
	logger zerolog.Logger
}

// New creates a Ledger on the given store.
func New(db storage.DB) *Ledger {
	return &Ledger{db: db, logger: llog.Ledger}
}

func balanceKey(userID string, a asset.Asset) []byte {
	return []byte("bal/" + a.String() + "/" + userID)
}

func journalKey(id string) []byte {
	return []byte("jrn/" + id)
}

// Balance returns the available balance for (user, asset). A user with no
// prior activity has a zero balance.
func (l *Ledger) Balance(userID string, a asset.Asset) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := l.db.View(func(txn storage.Txn) error {
		var err error
		bal, err = readBalance(txn, userID, a)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return bal, nil
}

// Credit atomically adds amount to the (user, asset) balance and journals
// the mutation.
func (l *Ledger) Credit(userID string, a asset.Asset, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return l.db.Update(func(txn storage.Txn) error {
		if err := adjustBalance(txn, userID, a, amount); err != nil {
			return err
		}
		return writeJournal(txn, &JournalEntry{
			UserID: userID,
			Asset:  a,
			Amount: amount,
			Kind:   JournalManualCredit,
		})
	})
}

// Debit atomically subtracts amount from the (user, asset) balance. It
// fails with ErrInsufficientBalance if the result would be negative.
func (l *Ledger) Debit(userID string, a asset.Asset, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return l.db.Update(func(txn storage.Txn) error {
		if err := adjustBalance(txn, userID, a, amount.Neg()); err != nil {
			return err
		}
		return writeJournal(txn, &JournalEntry{
			UserID: userID,
			Asset:  a,
			Amount: amount.Neg(),
			Kind:   JournalManualDebit,
		})
	})
}

// Journal returns all journal entries for a user, newest last by insertion
// order of iteration (unordered across keys; callers sort by At if needed).
func (l *Ledger) Journal(userID string) ([]JournalEntry, error) {
	var out []JournalEntry
	err := l.db.ForEach(journalKey(""), func(_, value []byte) error {
		var e JournalEntry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("parse journal entry: %w", err)
		}
		if userID == "" || e.UserID == userID {
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// readBalance reads the stored balance inside a transaction, defaulting to
// zero when no row exists.
func readBalance(txn storage.Txn, userID string, a asset.Asset) (decimal.Decimal, error) {
	raw, err := txn.Get(balanceKey(userID, a))
	if errors.Is(err, storage.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	bal, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance for %s/%v: %w", userID, a, err)
	}
	return bal, nil
}

// adjustBalance applies a signed delta to a balance inside a transaction,
// enforcing the non-negative invariant.
func adjustBalance(txn storage.Txn, userID string, a asset.Asset, delta decimal.Decimal) error {
	bal, err := readBalance(txn, userID, a)
	if err != nil {
		return err
	}
	next := bal.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("%w: %s/%v has %s, delta %s", ErrInsufficientBalance, userID, a, bal, delta)
	}
	return txn.Put(balanceKey(userID, a), []byte(next.String()))
}

// writeJournal persists a journal entry inside a transaction, assigning ID
// and timestamp when unset.
func writeJournal(txn storage.Txn, e *JournalEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	return txn.Put(journalKey(e.ID), raw)
}
