package withdraw

import (
	"context"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/internal/log"
	"github.com/custodia-tech/poolvault/pkg/asset"
)

// transferSelector is the first four bytes of keccak256("transfer(address,uint256)").
var transferSelector = ethcrypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

// EVMClient is the subset of ethclient.Client the broadcaster needs.
type EVMClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EVMBroadcaster sends native and ERC-20 transfers from the pool address.
// Gas limit and gas price are both inflated by gasMarginPct over the node's
// estimates so a transfer does not stall on a tight estimate.
type EVMBroadcaster struct {
	client       EVMClient
	chainID      *big.Int
	token        common.Address
	gasMarginPct int64
	logger       zerolog.Logger
}

func NewEVMBroadcaster(client EVMClient, chainID *big.Int, tokenContract common.Address, gasMarginPct int64) *EVMBroadcaster {
	if gasMarginPct <= 0 {
		gasMarginPct = 20
	}
	return &EVMBroadcaster{
		client:       client,
		chainID:      chainID,
		token:        tokenContract,
		gasMarginPct: gasMarginPct,
		logger:       log.Withdraw,
	}
}

func (b *EVMBroadcaster) Broadcast(ctx context.Context, priv *secp256k1.PrivateKey, a asset.Asset, destination string, amount decimal.Decimal) (string, error) {
	ecdsaKey := priv.ToECDSA()
	// go-ethereum's signer rejects keys whose Curve is not its own S256
	// instance, even though decred's curve is the same secp256k1.
	ecdsaKey.Curve = ethcrypto.S256()
	from := ethcrypto.PubkeyToAddress(ecdsaKey.PublicKey)
	dest := common.HexToAddress(destination)

	value := amount.Shift(a.Decimals()).BigInt()
	if value.Sign() <= 0 {
		return "", fmt.Errorf("%w: non-positive value %s", ErrBroadcastFailure, amount)
	}

	var (
		to      common.Address
		txValue *big.Int
		data    []byte
	)
	if a.IsToken() {
		to = b.token
		txValue = new(big.Int)
		data = append(append(append([]byte{}, transferSelector...),
			common.LeftPadBytes(dest.Bytes(), 32)...),
			common.LeftPadBytes(value.Bytes(), 32)...)
	} else {
		to = dest
		txValue = value
	}

	nonce, err := b.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("%w: fetch nonce: %v", ErrBroadcastFailure, err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: fetch gas price: %v", ErrBroadcastFailure, err)
	}
	gasLimit, err := b.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: txValue,
		Data:  data,
	})
	if err != nil {
		return "", fmt.Errorf("%w: estimate gas: %v", ErrBroadcastFailure, err)
	}

	gasLimit = gasLimit * uint64(100+b.gasMarginPct) / 100
	gasPrice = gasPrice.Mul(gasPrice, big.NewInt(100+b.gasMarginPct))
	gasPrice = gasPrice.Div(gasPrice, big.NewInt(100))

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    txValue,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(b.chainID), ecdsaKey)
	if err != nil {
		return "", fmt.Errorf("%w: sign: %v", ErrBroadcastFailure, err)
	}

	if err := b.client.SendTransaction(ctx, signed); err != nil {
		// The node may have accepted the transaction before the error
		// surfaced, so the signed hash is reported for reconciliation.
		return signed.Hash().Hex(), fmt.Errorf("%w: send: %v", ErrBroadcastFailure, err)
	}

	b.logger.Info().
		Str("asset", a.String()).
		Str("tx_id", signed.Hash().Hex()).
		Str("amount", amount.String()).
		Uint64("gas_limit", gasLimit).
		Msg("Transfer broadcast")
	return signed.Hash().Hex(), nil
}
