package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/pkg/asset"
)

// DepositStatus is the lifecycle state of an observed inbound transfer.
type DepositStatus string

const (
	// DepositPending means the transfer was observed on chain but is not
	// yet attributed to any user.
	DepositPending DepositStatus = "pending"
	// DepositClaimed means the deposit has been attributed to a user and
	// credited. Terminal.
	DepositClaimed DepositStatus = "claimed"
	// DepositCancelled means an operator voided the record. Terminal.
	DepositCancelled DepositStatus = "cancelled"
)

// DepositRecord is one observed inbound transfer to a pool address. The
// (Asset, TxID) pair is unique: the monitor may observe the same transfer
// in any number of polling cycles without creating duplicates.
type DepositRecord struct {
	ID          string          `json:"id"`
	Asset       asset.Asset     `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	PoolAddress string          `json:"pool_address"`
	TxID        string          `json:"tx_id"`
	Status      DepositStatus   `json:"status"`
	UserID      string          `json:"user_id,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	ObservedAt  time.Time       `json:"observed_at"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
}

// WithdrawalStatus is the lifecycle state of a withdrawal request.
type WithdrawalStatus string

const (
	// WithdrawalPending means funds are reserved and the request awaits
	// operator review.
	WithdrawalPending WithdrawalStatus = "pending"
	// WithdrawalApproved means an operator approved the request and
	// execution is in flight.
	WithdrawalApproved WithdrawalStatus = "approved"
	// WithdrawalCompleted means the transfer was broadcast. Terminal.
	WithdrawalCompleted WithdrawalStatus = "completed"
	// WithdrawalRejected means an operator declined the request and the
	// reservation was refunded. Terminal.
	WithdrawalRejected WithdrawalStatus = "rejected"
	// WithdrawalFailed means execution failed after approval and the
	// reservation was refunded. Terminal.
	WithdrawalFailed WithdrawalStatus = "failed"
)

// WithdrawalRequest is a user's request to move funds out of the pool.
// Amount = Fee + NetAmount always holds; Amount is debited (reserved) at
// creation and refunded in full on rejection or failure.
type WithdrawalRequest struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Asset       asset.Asset      `json:"asset"`
	Amount      decimal.Decimal  `json:"amount"`
	Fee         decimal.Decimal  `json:"fee"`
	NetAmount   decimal.Decimal  `json:"net_amount"`
	Destination string           `json:"destination"`
	Status      WithdrawalStatus `json:"status"`
	TxID        string           `json:"tx_id,omitempty"`
	ApprovedBy  string           `json:"approved_by,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	DecidedAt   *time.Time       `json:"decided_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// JournalKind tags a balance mutation in the audit journal.
type JournalKind string

const (
	JournalDepositClaim    JournalKind = "deposit_claim"
	JournalWithdrawReserve JournalKind = "withdraw_reserve"
	JournalWithdrawRefund  JournalKind = "withdraw_refund"
	JournalManualCredit    JournalKind = "manual_credit"
	JournalManualDebit     JournalKind = "manual_debit"
)

// JournalEntry records a single balance mutation. Every mutation writes an
// entry in the same transaction that moves the balance.
type JournalEntry struct {
	ID     string          `json:"id"`
	UserID string          `json:"user_id"`
	Asset  asset.Asset     `json:"asset"`
	Amount decimal.Decimal `json:"amount"` // signed: credits positive, debits negative
	Kind   JournalKind     `json:"kind"`
	Ref    string          `json:"ref,omitempty"` // deposit or withdrawal ID
	At     time.Time       `json:"at"`
}

// ReconFlag marks a condition requiring manual reconciliation, such as a
// broadcast that confirmed on chain after its withdrawal was refunded.
type ReconFlag struct {
	ID           string      `json:"id"`
	Asset        asset.Asset `json:"asset"`
	WithdrawalID string      `json:"withdrawal_id,omitempty"`
	TxID         string      `json:"tx_id,omitempty"`
	Note         string      `json:"note"`
	At           time.Time   `json:"at"`
}
