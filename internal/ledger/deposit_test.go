package ledger

import (
	"errors"
	"testing"

	"github.com/custodia-tech/poolvault/pkg/asset"
)

func pendingDeposit(t *testing.T, l *Ledger, txID string) *DepositRecord {
	t.Helper()
	rec := &DepositRecord{
		Asset:       asset.BTC,
		Amount:      dec(t, "0.1"),
		PoolAddress: "bc1qpool",
		TxID:        txID,
	}
	created, err := l.RecordDeposit(rec)
	if err != nil {
		t.Fatalf("RecordDeposit() error: %v", err)
	}
	if !created {
		t.Fatalf("RecordDeposit() did not create a record for %s", txID)
	}
	return rec
}

func TestRecordDeposit_DedupAcrossCycles(t *testing.T) {
	l := testLedger(t)
	rec := pendingDeposit(t, l, "txA")

	// Same transfer observed again in a later polling cycle.
	again := &DepositRecord{
		Asset:       asset.BTC,
		Amount:      dec(t, "0.1"),
		PoolAddress: "bc1qpool",
		TxID:        "txA",
	}
	created, err := l.RecordDeposit(again)
	if err != nil {
		t.Fatalf("RecordDeposit() error: %v", err)
	}
	if created {
		t.Error("duplicate txid created a second record")
	}

	deposits, err := l.Deposits("")
	if err != nil {
		t.Fatalf("Deposits() error: %v", err)
	}
	if len(deposits) != 1 {
		t.Fatalf("got %d deposit records for txA, want exactly 1", len(deposits))
	}
	if deposits[0].ID != rec.ID {
		t.Errorf("surviving record ID = %s, want %s", deposits[0].ID, rec.ID)
	}
}

func TestRecordDeposit_SameTxDifferentAssets(t *testing.T) {
	l := testLedger(t)

	// An EVM tx can carry both a native transfer and a token transfer;
	// uniqueness is per (asset, txid).
	eth := &DepositRecord{Asset: asset.ETH, Amount: dec(t, "1"), TxID: "0xabc"}
	usdt := &DepositRecord{Asset: asset.USDT, Amount: dec(t, "100"), TxID: "0xabc"}

	for _, rec := range []*DepositRecord{eth, usdt} {
		created, err := l.RecordDeposit(rec)
		if err != nil {
			t.Fatalf("RecordDeposit(%v) error: %v", rec.Asset, err)
		}
		if !created {
			t.Errorf("RecordDeposit(%v) deduplicated across assets", rec.Asset)
		}
	}
}

func TestClaimDeposit(t *testing.T) {
	l := testLedger(t)
	rec := pendingDeposit(t, l, "txA")

	if err := l.ClaimDeposit(rec.ID, "u1"); err != nil {
		t.Fatalf("ClaimDeposit() error: %v", err)
	}

	bal, err := l.Balance("u1", asset.BTC)
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if !bal.Equal(dec(t, "0.1")) {
		t.Errorf("balance after claim = %s, want 0.1", bal)
	}

	got, err := l.Deposit(rec.ID)
	if err != nil {
		t.Fatalf("Deposit() error: %v", err)
	}
	if got.Status != DepositClaimed || got.UserID != "u1" || got.ClaimedAt == nil {
		t.Errorf("claimed record = %+v", got)
	}
}

func TestClaimDeposit_Idempotence(t *testing.T) {
	l := testLedger(t)
	rec := pendingDeposit(t, l, "txA")

	if err := l.ClaimDeposit(rec.ID, "u1"); err != nil {
		t.Fatalf("first ClaimDeposit() error: %v", err)
	}

	err := l.ClaimDeposit(rec.ID, "u1")
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("second ClaimDeposit() error = %v, want ErrAlreadyClaimed", err)
	}

	// Credited exactly once.
	bal, err := l.Balance("u1", asset.BTC)
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if !bal.Equal(dec(t, "0.1")) {
		t.Errorf("balance = %s, want 0.1 (single credit)", bal)
	}
}

func TestClaimDeposit_NotFound(t *testing.T) {
	l := testLedger(t)
	err := l.ClaimDeposit("does-not-exist", "u1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ClaimDeposit() error = %v, want ErrNotFound", err)
	}
}

func TestCancelDeposit(t *testing.T) {
	l := testLedger(t)
	rec := pendingDeposit(t, l, "txA")

	if err := l.CancelDeposit(rec.ID, "operator correction"); err != nil {
		t.Fatalf("CancelDeposit() error: %v", err)
	}

	err := l.ClaimDeposit(rec.ID, "u1")
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("claim after cancel error = %v, want ErrAlreadyClaimed", err)
	}

	err = l.CancelDeposit(rec.ID, "again")
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("double cancel error = %v, want ErrAlreadyClaimed", err)
	}
}

func TestDepositSeen(t *testing.T) {
	l := testLedger(t)

	seen, err := l.DepositSeen(asset.BTC, "txA")
	if err != nil {
		t.Fatalf("DepositSeen() error: %v", err)
	}
	if seen {
		t.Error("unknown txid reported as seen")
	}

	pendingDeposit(t, l, "txA")

	seen, err = l.DepositSeen(asset.BTC, "txA")
	if err != nil {
		t.Fatalf("DepositSeen() error: %v", err)
	}
	if !seen {
		t.Error("recorded txid not reported as seen")
	}
}

func TestDeposits_FilterByStatus(t *testing.T) {
	l := testLedger(t)
	a := pendingDeposit(t, l, "txA")
	pendingDeposit(t, l, "txB")

	if err := l.ClaimDeposit(a.ID, "u1"); err != nil {
		t.Fatalf("ClaimDeposit() error: %v", err)
	}

	pending, err := l.Deposits(DepositPending)
	if err != nil {
		t.Fatalf("Deposits() error: %v", err)
	}
	if len(pending) != 1 || pending[0].TxID != "txB" {
		t.Errorf("pending deposits = %+v", pending)
	}
}
