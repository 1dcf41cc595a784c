// Package chainaddr derives and validates on-chain addresses for the
// supported settlement assets. Bitcoin addresses are bech32 P2WPKH, EVM
// addresses are EIP-55 checksummed hex.
package chainaddr

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/custodia-tech/poolvault/pkg/asset"
)

// ErrMalformed is returned when a destination address fails validation for
// its asset's chain.
var ErrMalformed = errors.New("malformed address")

// FromPubKey derives the display form of an address from a compressed
// 33-byte secp256k1 public key.
func FromPubKey(a asset.Asset, compressed []byte, params *chaincfg.Params) (string, error) {
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}

	switch a.Class() {
	case asset.ClassUTXO:
		witness, err := btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(pub.SerializeCompressed()), params)
		if err != nil {
			return "", fmt.Errorf("p2wpkh address: %w", err)
		}
		return witness.EncodeAddress(), nil
	case asset.ClassEVM:
		return ethcrypto.PubkeyToAddress(*pub.ToECDSA()).Hex(), nil
	default:
		return "", fmt.Errorf("%w: %v", asset.ErrUnsupported, a)
	}
}

// FromPrivKey derives the address controlled by a private key. Used to
// verify that decrypted key material still matches its stored address.
func FromPrivKey(a asset.Asset, priv *secp256k1.PrivateKey, params *chaincfg.Params) (string, error) {
	return FromPubKey(a, priv.PubKey().SerializeCompressed(), params)
}
