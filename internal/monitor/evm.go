package monitor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/internal/ledger"
	"github.com/custodia-tech/poolvault/internal/log"
	"github.com/custodia-tech/poolvault/pkg/asset"
)

// transferTopic is keccak256("Transfer(address,address,uint256)"), the first
// topic of every ERC-20 Transfer event.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// EVMClient is the subset of ethclient.Client the scanner needs.
type EVMClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// EVMScanner scans a trailing window of confirmed blocks for native transfers
// to the pool address and, when a token contract is configured, for ERC-20
// Transfer events whose recipient is the pool address.
type EVMScanner struct {
	client EVMClient
	rec    Recorder
	logger zerolog.Logger

	pool          common.Address
	token         common.Address
	tokenAsset    asset.Asset
	window        uint64
	confirmations uint64

	// lastScanned is advanced only after a fully successful cycle, so a
	// failed cycle is re-covered by the next one.
	lastScanned uint64
}

// EVMConfig configures an EVMScanner. TokenContract may be the zero address
// to disable token scanning.
type EVMConfig struct {
	PoolAddress   common.Address
	TokenContract common.Address
	TokenAsset    asset.Asset
	ScanWindow    uint64
	Confirmations uint64
}

func NewEVMScanner(client EVMClient, rec Recorder, cfg EVMConfig) *EVMScanner {
	return &EVMScanner{
		client:        client,
		rec:           rec,
		logger:        log.Monitor.With().Str("asset", asset.ETH.String()).Logger(),
		pool:          cfg.PoolAddress,
		token:         cfg.TokenContract,
		tokenAsset:    cfg.TokenAsset,
		window:        cfg.ScanWindow,
		confirmations: cfg.Confirmations,
	}
}

func (s *EVMScanner) Asset() asset.Asset { return asset.ETH }

func (s *EVMScanner) Scan(ctx context.Context) error {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("fetch head block: %w", err)
	}
	if head < s.confirmations {
		return nil
	}
	to := head - s.confirmations

	from := uint64(0)
	if to >= s.window {
		from = to - s.window + 1
	}
	if s.lastScanned >= from {
		from = s.lastScanned + 1
	}
	if from > to {
		return nil
	}

	if err := s.scanNative(ctx, from, to); err != nil {
		return err
	}
	if s.token != (common.Address{}) {
		if err := s.scanToken(ctx, from, to); err != nil {
			return err
		}
	}

	s.lastScanned = to
	return nil
}

// scanNative walks each block's transactions looking for plain value
// transfers to the pool address.
func (s *EVMScanner) scanNative(ctx context.Context, from, to uint64) error {
	for n := from; n <= to; n++ {
		block, err := s.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return fmt.Errorf("fetch block %d: %w", n, err)
		}
		for _, tx := range block.Transactions() {
			if tx.To() == nil || *tx.To() != s.pool || tx.Value().Sign() <= 0 {
				continue
			}
			amount := decimal.NewFromBigInt(tx.Value(), -asset.ETH.Decimals())
			if err := s.record(asset.ETH, tx.Hash().Hex(), amount); err != nil {
				return err
			}
		}
	}
	return nil
}

// scanToken queries Transfer logs on the token contract filtered by the pool
// address as recipient (topic 2 is the indexed `to` parameter).
func (s *EVMScanner) scanToken(ctx context.Context, from, to uint64) error {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.token},
		Topics: [][]common.Hash{
			{transferTopic},
			nil,
			{common.BytesToHash(common.LeftPadBytes(s.pool.Bytes(), 32))},
		},
	}
	logs, err := s.client.FilterLogs(ctx, query)
	if err != nil {
		return fmt.Errorf("filter token logs: %w", err)
	}

	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		value := new(big.Int).SetBytes(lg.Data)
		if value.Sign() <= 0 {
			continue
		}
		amount := decimal.NewFromBigInt(value, -s.tokenAsset.Decimals())
		if err := s.record(s.tokenAsset, lg.TxHash.Hex(), amount); err != nil {
			return err
		}
	}
	return nil
}

func (s *EVMScanner) record(a asset.Asset, txID string, amount decimal.Decimal) error {
	created, err := s.rec.RecordDeposit(&ledger.DepositRecord{
		Asset:       a,
		Amount:      amount,
		PoolAddress: s.pool.Hex(),
		TxID:        txID,
	})
	if err != nil {
		return err
	}
	if created {
		s.logger.Info().
			Str("deposit_asset", a.String()).
			Str("tx_id", txID).
			Str("amount", amount.String()).
			Msg("Inbound transfer observed")
	}
	return nil
}
