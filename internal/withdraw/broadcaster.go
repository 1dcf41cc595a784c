package withdraw

import (
	"context"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/pkg/asset"
)

// Broadcaster constructs, signs, and submits one outbound transfer from the
// pool address. It returns the chain transaction identifier on success. The
// private key is borrowed from the vault for the duration of the call and
// must not be retained.
type Broadcaster interface {
	Broadcast(ctx context.Context, priv *secp256k1.PrivateKey, a asset.Asset, destination string, amount decimal.Decimal) (txID string, err error)
}

// Mux routes broadcasts to the appropriate chain implementation by asset
// class.
type Mux struct {
	byClass map[asset.Class]Broadcaster
}

func NewMux() *Mux {
	return &Mux{byClass: make(map[asset.Class]Broadcaster)}
}

func (m *Mux) Register(c asset.Class, b Broadcaster) {
	m.byClass[c] = b
}

func (m *Mux) Broadcast(ctx context.Context, priv *secp256k1.PrivateKey, a asset.Asset, destination string, amount decimal.Decimal) (string, error) {
	b, ok := m.byClass[a.Class()]
	if !ok {
		return "", fmt.Errorf("%w: no broadcaster for %v", asset.ErrUnsupported, a)
	}
	return b.Broadcast(ctx, priv, a, destination, amount)
}
