package withdraw

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/pkg/asset"
	"github.com/custodia-tech/poolvault/pkg/chainaddr"
)

// BTCBroadcaster validates UTXO-chain send requests but does not yet build
// transactions: coin selection, fee bidding, and change handling require a
// full wallet backend. A request that reaches Broadcast fails cleanly into
// the refund path.
//
// TODO: back this with a wallet RPC (bitcoind or btcwallet) for coin
// selection and signing.
type BTCBroadcaster struct {
	params *chaincfg.Params
}

func NewBTCBroadcaster(params *chaincfg.Params) *BTCBroadcaster {
	return &BTCBroadcaster{params: params}
}

func (b *BTCBroadcaster) Broadcast(ctx context.Context, priv *secp256k1.PrivateKey, a asset.Asset, destination string, amount decimal.Decimal) (string, error) {
	if _, err := btcutil.DecodeAddress(destination, b.params); err != nil {
		return "", fmt.Errorf("%w: %v", chainaddr.ErrMalformed, err)
	}
	return "", fmt.Errorf("%w: utxo transaction building requires a wallet backend", ErrBroadcastFailure)
}
