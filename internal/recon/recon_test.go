package recon

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/pkg/asset"
)

var tokenAddr = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")

type fakeEVM struct {
	balance *big.Int
	pending *big.Int
	token   *big.Int
	err     error
}

func (f *fakeEVM) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.balance, nil
}

func (f *fakeEVM) PendingBalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pending, nil
}

func (f *fakeEVM) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return common.LeftPadBytes(f.token.Bytes(), 32), nil
}

type fakeBTC struct {
	confirmed btcutil.Amount
	mempool   btcutil.Amount
	err       error
}

func (f *fakeBTC) AddressStats(ctx context.Context, address string) (btcutil.Amount, btcutil.Amount, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.confirmed, f.mempool, nil
}

type fakeAddrs struct{ err error }

func (f *fakeAddrs) PoolAddress(a asset.Asset) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if a == asset.BTC {
		return "bc1qpool", nil
	}
	return "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", nil
}

func TestPoolBalances(t *testing.T) {
	oneEth := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	evm := &fakeEVM{
		balance: new(big.Int).Mul(oneEth, big.NewInt(3)),
		pending: new(big.Int).Mul(oneEth, big.NewInt(4)),
		token:   big.NewInt(250_000_000), // 250 USDT
	}
	btc := &fakeBTC{confirmed: 150_000_000, mempool: 10_000_000}
	r := NewReporter(evm, btc, &fakeAddrs{}, tokenAddr)

	got := r.PoolBalances(context.Background())
	if len(got) != 3 {
		t.Fatalf("got %d balances, want 3", len(got))
	}

	want := map[asset.Asset]struct{ balance, pending string }{
		asset.BTC:  {"1.5", "0.1"},
		asset.ETH:  {"3", "1"},
		asset.USDT: {"250", "0"},
	}
	for _, pb := range got {
		if pb.Degraded {
			t.Errorf("%s degraded with healthy readers", pb.Asset)
		}
		w := want[pb.Asset]
		if !pb.Balance.Equal(decimal.RequireFromString(w.balance)) {
			t.Errorf("%s balance = %s, want %s", pb.Asset, pb.Balance, w.balance)
		}
		if !pb.Pending.Equal(decimal.RequireFromString(w.pending)) {
			t.Errorf("%s pending = %s, want %s", pb.Asset, pb.Pending, w.pending)
		}
	}
}

func TestPoolBalances_DegradesOnChainError(t *testing.T) {
	evm := &fakeEVM{err: errors.New("rpc down")}
	btc := &fakeBTC{confirmed: 100_000_000}
	r := NewReporter(evm, btc, &fakeAddrs{}, tokenAddr)

	got := r.PoolBalances(context.Background())
	for _, pb := range got {
		switch pb.Asset {
		case asset.BTC:
			if pb.Degraded || !pb.Balance.Equal(decimal.RequireFromString("1")) {
				t.Errorf("BTC = %+v, want healthy 1", pb)
			}
		default:
			if !pb.Degraded {
				t.Errorf("%s not degraded with unreachable EVM node", pb.Asset)
			}
			if !pb.Balance.IsZero() {
				t.Errorf("%s degraded balance = %s, want zero", pb.Asset, pb.Balance)
			}
		}
	}
}

func TestPoolBalance_HardError(t *testing.T) {
	r := NewReporter(&fakeEVM{err: errors.New("rpc down")}, &fakeBTC{}, &fakeAddrs{}, tokenAddr)

	_, err := r.PoolBalance(context.Background(), asset.ETH)
	if !errors.Is(err, ErrChainUnavailable) {
		t.Fatalf("PoolBalance() error = %v, want ErrChainUnavailable", err)
	}
}

func TestPoolBalance_USDTUsesTokenContract(t *testing.T) {
	evm := &fakeEVM{balance: big.NewInt(0), pending: big.NewInt(0), token: big.NewInt(7_000_000)}
	r := NewReporter(evm, &fakeBTC{}, &fakeAddrs{}, tokenAddr)

	bal, err := r.PoolBalance(context.Background(), asset.USDT)
	if err != nil {
		t.Fatalf("PoolBalance() error: %v", err)
	}
	if !bal.Equal(decimal.RequireFromString("7")) {
		t.Errorf("balance = %s, want 7", bal)
	}
}
