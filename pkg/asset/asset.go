// Package asset defines the assets the pool wallet settles and their
// chain-level characteristics.
package asset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported is returned when an asset symbol is not handled by the
// engine.
var ErrUnsupported = errors.New("unsupported asset")

// Asset identifies a supported settlement asset.
type Asset uint8

const (
	// BTC is native bitcoin on the UTXO chain.
	BTC Asset = iota
	// ETH is native ether on the EVM chain.
	ETH
	// USDT is the ERC-20 stable token on the EVM chain. It settles through
	// the same pool key and address as ETH.
	USDT
)

// Class groups assets by the kind of chain they live on, which decides how
// deposits are detected and how withdrawals are broadcast.
type Class uint8

const (
	// ClassUTXO covers bitcoin-style chains scanned by unspent outputs.
	ClassUTXO Class = iota
	// ClassEVM covers account-based chains scanned by blocks and logs.
	ClassEVM
)

// All returns every supported asset in stable order.
func All() []Asset {
	return []Asset{BTC, ETH, USDT}
}

// Parse converts a symbol like "BTC" or "usdt" into an Asset.
func Parse(s string) (Asset, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BTC":
		return BTC, nil
	case "ETH":
		return ETH, nil
	case "USDT":
		return USDT, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
}

// String returns the canonical uppercase symbol.
func (a Asset) String() string {
	switch a {
	case BTC:
		return "BTC"
	case ETH:
		return "ETH"
	case USDT:
		return "USDT"
	default:
		return fmt.Sprintf("Asset(%d)", uint8(a))
	}
}

// Class returns the chain class this asset settles on.
func (a Asset) Class() Class {
	if a == BTC {
		return ClassUTXO
	}
	return ClassEVM
}

// Decimals returns the number of fractional digits used on chain.
func (a Asset) Decimals() int32 {
	switch a {
	case BTC:
		return 8
	case ETH:
		return 18
	case USDT:
		return 6
	default:
		return 0
	}
}

// CoinType returns the BIP-44 coin type (unhardened value).
func (a Asset) CoinType() uint32 {
	if a == BTC {
		return 0
	}
	return 60
}

// IsToken reports whether the asset is a contract token rather than the
// chain's native coin.
func (a Asset) IsToken() bool {
	return a == USDT
}

// KeyAsset returns the asset whose pool key custodies this asset. Tokens
// map to the native asset of their chain; everything else maps to itself.
func (a Asset) KeyAsset() Asset {
	if a == USDT {
		return ETH
	}
	return a
}

// KeyAssets returns the assets that own a distinct pool signing key.
func KeyAssets() []Asset {
	return []Asset{BTC, ETH}
}

// MarshalText implements encoding.TextMarshaler.
func (a Asset) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Asset) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
