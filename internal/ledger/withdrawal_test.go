package ledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/custodia-tech/poolvault/pkg/asset"
)

// reservedWithdrawal funds u1 with 1 ETH and reserves a 0.5 withdrawal with
// a 0.5% fee, matching the documented fee arithmetic.
func reservedWithdrawal(t *testing.T, l *Ledger) *WithdrawalRequest {
	t.Helper()
	if err := l.Credit("u1", asset.ETH, dec(t, "1")); err != nil {
		t.Fatalf("Credit() error: %v", err)
	}

	req := &WithdrawalRequest{
		UserID:      "u1",
		Asset:       asset.ETH,
		Amount:      dec(t, "0.5"),
		Fee:         dec(t, "0.0025"),
		NetAmount:   dec(t, "0.4975"),
		Destination: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	}
	if err := l.ReserveWithdrawal(req); err != nil {
		t.Fatalf("ReserveWithdrawal() error: %v", err)
	}
	return req
}

func TestReserveWithdrawal(t *testing.T) {
	l := testLedger(t)
	req := reservedWithdrawal(t, l)

	if req.Status != WithdrawalPending {
		t.Errorf("status = %s, want pending", req.Status)
	}

	bal, err := l.Balance("u1", asset.ETH)
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if !bal.Equal(dec(t, "0.5")) {
		t.Errorf("balance after reservation = %s, want 0.5", bal)
	}
}

func TestReserveWithdrawal_Insufficient(t *testing.T) {
	l := testLedger(t)
	if err := l.Credit("u1", asset.ETH, dec(t, "0.1")); err != nil {
		t.Fatalf("Credit() error: %v", err)
	}

	req := &WithdrawalRequest{
		UserID:    "u1",
		Asset:     asset.ETH,
		Amount:    dec(t, "0.5"),
		Fee:       dec(t, "0.0025"),
		NetAmount: dec(t, "0.4975"),
	}
	err := l.ReserveWithdrawal(req)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("ReserveWithdrawal() error = %v, want ErrInsufficientBalance", err)
	}

	// Nothing persisted: balance intact, no request row.
	bal, err := l.Balance("u1", asset.ETH)
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if !bal.Equal(dec(t, "0.1")) {
		t.Errorf("balance = %s, want 0.1", bal)
	}
	if req.ID != "" {
		if _, err := l.Withdrawal(req.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("request persisted despite failed reservation")
		}
	}
}

func TestReserveWithdrawal_ConservationCheck(t *testing.T) {
	l := testLedger(t)
	if err := l.Credit("u1", asset.ETH, dec(t, "1")); err != nil {
		t.Fatalf("Credit() error: %v", err)
	}

	req := &WithdrawalRequest{
		UserID:    "u1",
		Asset:     asset.ETH,
		Amount:    dec(t, "0.5"),
		Fee:       dec(t, "0.01"),
		NetAmount: dec(t, "0.4975"), // fee + net != amount
	}
	if err := l.ReserveWithdrawal(req); err == nil {
		t.Error("ReserveWithdrawal() accepted amount != fee + net")
	}
}

func TestApproveComplete(t *testing.T) {
	l := testLedger(t)
	req := reservedWithdrawal(t, l)

	approved, err := l.MarkApproved(req.ID, "op-1")
	if err != nil {
		t.Fatalf("MarkApproved() error: %v", err)
	}
	if approved.Status != WithdrawalApproved || approved.ApprovedBy != "op-1" {
		t.Errorf("approved = %+v", approved)
	}

	if err := l.CompleteWithdrawal(req.ID, "0xbroadcast"); err != nil {
		t.Fatalf("CompleteWithdrawal() error: %v", err)
	}

	got, err := l.Withdrawal(req.ID)
	if err != nil {
		t.Fatalf("Withdrawal() error: %v", err)
	}
	if got.Status != WithdrawalCompleted || got.TxID != "0xbroadcast" {
		t.Errorf("completed = %+v", got)
	}

	// Reservation consumed: balance stays at 0.5.
	bal, err := l.Balance("u1", asset.ETH)
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if !bal.Equal(dec(t, "0.5")) {
		t.Errorf("balance = %s, want 0.5", bal)
	}
}

func TestFailWithdrawal_Refunds(t *testing.T) {
	l := testLedger(t)
	req := reservedWithdrawal(t, l)

	if _, err := l.MarkApproved(req.ID, "op-1"); err != nil {
		t.Fatalf("MarkApproved() error: %v", err)
	}
	if err := l.FailWithdrawal(req.ID, "", "rpc error"); err != nil {
		t.Fatalf("FailWithdrawal() error: %v", err)
	}

	// Balance returns to where it started.
	bal, err := l.Balance("u1", asset.ETH)
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if !bal.Equal(dec(t, "1")) {
		t.Errorf("balance after refund = %s, want 1", bal)
	}

	got, err := l.Withdrawal(req.ID)
	if err != nil {
		t.Fatalf("Withdrawal() error: %v", err)
	}
	if got.Status != WithdrawalFailed || got.Reason != "rpc error" {
		t.Errorf("failed request = %+v", got)
	}
}

func TestRejectWithdrawal_Refunds(t *testing.T) {
	l := testLedger(t)
	req := reservedWithdrawal(t, l)

	if err := l.RejectWithdrawal(req.ID, "op-1", "suspicious destination"); err != nil {
		t.Fatalf("RejectWithdrawal() error: %v", err)
	}

	bal, err := l.Balance("u1", asset.ETH)
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if !bal.Equal(dec(t, "1")) {
		t.Errorf("balance after rejection = %s, want 1", bal)
	}
}

func TestIllegalTransitions(t *testing.T) {
	l := testLedger(t)
	req := reservedWithdrawal(t, l)

	// pending → completed is not legal.
	if err := l.CompleteWithdrawal(req.ID, "0x"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("CompleteWithdrawal on pending: error = %v, want ErrInvalidStateTransition", err)
	}
	// pending → failed is not legal either (failure implies an execution attempt).
	if err := l.FailWithdrawal(req.ID, "", "x"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("FailWithdrawal on pending: error = %v, want ErrInvalidStateTransition", err)
	}

	if _, err := l.MarkApproved(req.ID, "op-1"); err != nil {
		t.Fatalf("MarkApproved() error: %v", err)
	}

	// approved → rejected is not legal.
	if err := l.RejectWithdrawal(req.ID, "op-2", "late"); !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("RejectWithdrawal on approved: error = %v, want ErrAlreadyProcessed", err)
	}

	if err := l.CompleteWithdrawal(req.ID, "0x"); err != nil {
		t.Fatalf("CompleteWithdrawal() error: %v", err)
	}

	// Terminal states accept nothing further.
	if err := l.FailWithdrawal(req.ID, "", "x"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("FailWithdrawal on completed: error = %v, want ErrInvalidStateTransition", err)
	}
}

func TestMarkApproved_ConcurrentSingleWinner(t *testing.T) {
	l := testLedger(t)
	req := reservedWithdrawal(t, l)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.MarkApproved(req.ID, "op")
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyProcessed):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("%d approvals succeeded, want exactly 1", wins)
	}
}

func TestAddReconFlag(t *testing.T) {
	l := testLedger(t)

	err := l.AddReconFlag(&ReconFlag{
		Asset:        asset.ETH,
		WithdrawalID: "w1",
		TxID:         "0xlate",
		Note:         "late confirmation after refund",
	})
	if err != nil {
		t.Fatalf("AddReconFlag() error: %v", err)
	}

	flags, err := l.ReconFlags()
	if err != nil {
		t.Fatalf("ReconFlags() error: %v", err)
	}
	if len(flags) != 1 || flags[0].TxID != "0xlate" {
		t.Errorf("flags = %+v", flags)
	}
}
