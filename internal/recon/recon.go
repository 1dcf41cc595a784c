// Package recon reports the actual on-chain holdings of the pool addresses.
// It is read-only: it never touches the settlement ledger, so operators can
// compare its numbers against ledger totals to detect drift.
package recon

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/internal/log"
	"github.com/custodia-tech/poolvault/pkg/asset"
)

// ErrChainUnavailable means the chain API could not be reached. Callers that
// need a hard liquidity guarantee must treat this as unknown, not as zero.
var ErrChainUnavailable = errors.New("chain API unavailable")

// balanceOfSelector is the first four bytes of keccak256("balanceOf(address)").
var balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]

// EVMReader is the subset of ethclient.Client the reporter needs.
type EVMReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingBalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// BTCReader reads an address's confirmed and mempool balances from a UTXO
// chain API.
type BTCReader interface {
	AddressStats(ctx context.Context, address string) (confirmed, mempool btcutil.Amount, err error)
}

// AddressSource resolves the pool address per asset. The vault satisfies it.
type AddressSource interface {
	PoolAddress(a asset.Asset) (string, error)
}

// PoolBalance is one asset's on-chain holdings at the pool address.
type PoolBalance struct {
	Asset    asset.Asset     `json:"asset"`
	Address  string          `json:"address"`
	Balance  decimal.Decimal `json:"balance"`
	Pending  decimal.Decimal `json:"pending"`
	Degraded bool            `json:"degraded,omitempty"`
}

type Reporter struct {
	evm    EVMReader
	btc    BTCReader
	addrs  AddressSource
	token  common.Address
	logger zerolog.Logger
}

func NewReporter(evm EVMReader, btc BTCReader, addrs AddressSource, tokenContract common.Address) *Reporter {
	return &Reporter{
		evm:    evm,
		btc:    btc,
		addrs:  addrs,
		token:  tokenContract,
		logger: log.Recon,
	}
}

// PoolBalance reads the confirmed on-chain balance of the pool address for
// one asset. Chain errors are returned as ErrChainUnavailable.
func (r *Reporter) PoolBalance(ctx context.Context, a asset.Asset) (decimal.Decimal, error) {
	addr, err := r.addrs.PoolAddress(a)
	if err != nil {
		return decimal.Zero, err
	}
	bal, _, err := r.read(ctx, a, addr)
	return bal, err
}

// PoolBalances reads all pool balances, degrading gracefully: an unreachable
// chain yields a zero balance with Degraded set rather than an error, so a
// transient outage never breaks dashboards.
func (r *Reporter) PoolBalances(ctx context.Context) []PoolBalance {
	assets := asset.All()

	out := make([]PoolBalance, 0, len(assets))
	for _, a := range assets {
		pb := PoolBalance{Asset: a}

		addr, err := r.addrs.PoolAddress(a)
		if err != nil {
			r.logger.Warn().Err(err).Str("asset", a.String()).Msg("Pool address unavailable")
			pb.Degraded = true
			out = append(out, pb)
			continue
		}
		pb.Address = addr

		bal, pending, err := r.read(ctx, a, addr)
		if err != nil {
			r.logger.Warn().Err(err).Str("asset", a.String()).Msg("Balance read failed")
			pb.Degraded = true
			out = append(out, pb)
			continue
		}
		pb.Balance = bal
		pb.Pending = pending
		out = append(out, pb)
	}
	return out
}

func (r *Reporter) read(ctx context.Context, a asset.Asset, addr string) (balance, pending decimal.Decimal, err error) {
	switch {
	case a == asset.BTC:
		return r.readBTC(ctx, addr)
	case a.IsToken():
		balance, err = r.readToken(ctx, a, addr)
		return balance, decimal.Zero, err
	default:
		return r.readNative(ctx, a, addr)
	}
}

func (r *Reporter) readBTC(ctx context.Context, addr string) (balance, pending decimal.Decimal, err error) {
	confirmed, mempool, err := r.btc.AddressStats(ctx, addr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	exp := -asset.BTC.Decimals()
	return decimal.New(int64(confirmed), exp), decimal.New(int64(mempool), exp), nil
}

func (r *Reporter) readNative(ctx context.Context, a asset.Asset, addr string) (balance, pending decimal.Decimal, err error) {
	account := common.HexToAddress(addr)

	confirmed, err := r.evm.BalanceAt(ctx, account, nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	balance = decimal.NewFromBigInt(confirmed, -a.Decimals())

	// Pending is the mempool delta on top of the latest block; a node that
	// cannot answer it still yields a usable confirmed balance.
	pendingBal, err := r.evm.PendingBalanceAt(ctx, account)
	if err != nil {
		return balance, decimal.Zero, nil
	}
	if delta := new(big.Int).Sub(pendingBal, confirmed); delta.Sign() > 0 {
		pending = decimal.NewFromBigInt(delta, -a.Decimals())
	}
	return balance, pending, nil
}

func (r *Reporter) readToken(ctx context.Context, a asset.Asset, addr string) (decimal.Decimal, error) {
	account := common.HexToAddress(addr)
	data := append(append([]byte{}, balanceOfSelector...), common.LeftPadBytes(account.Bytes(), 32)...)

	res, err := r.evm.CallContract(ctx, ethereum.CallMsg{To: &r.token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	if len(res) == 0 {
		return decimal.Zero, fmt.Errorf("%w: empty balanceOf result", ErrChainUnavailable)
	}
	value := new(big.Int).SetBytes(res)
	return decimal.NewFromBigInt(value, -a.Decimals()), nil
}
