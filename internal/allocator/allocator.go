// Package allocator produces the two address kinds the platform hands out:
// the per-asset pool (settlement) address owned by the vault, and the
// per-user display address shown for deposits.
package allocator

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip32"
	"github.com/zeebo/blake3"

	"github.com/custodia-tech/poolvault/internal/vault"
	"github.com/custodia-tech/poolvault/pkg/asset"
	"github.com/custodia-tech/poolvault/pkg/chainaddr"
)

// Allocator derives user display addresses from the master key and looks up
// pool addresses from the vault. Display address derivation is a pure
// function of (seed, userID, asset): no persistence is involved, so any
// process can recompute a user's address at any time.
type Allocator struct {
	master *vault.HDKey
	vault  *vault.Vault
	params *chaincfg.Params
}

// New creates an Allocator from the master seed.
func New(seed []byte, v *vault.Vault, params *chaincfg.Params) (*Allocator, error) {
	master, err := vault.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("allocator master key: %w", err)
	}
	return &Allocator{master: master, vault: v, params: params}, nil
}

// PoolAddress returns the settlement address for an asset. It fails with
// vault.ErrNotInitialized until pool keys have been derived or loaded.
func (al *Allocator) PoolAddress(a asset.Asset) (string, error) {
	return al.vault.PoolAddress(a)
}

// UserDisplayAddress derives the deposit address shown to a user for an
// asset. The user identifier is hashed into a bounded hardened account
// index distinct from the pool account, and the child key at that account
// is turned into an address. Only the address leaves this function; the
// derived private key is never retained or returned.
func (al *Allocator) UserDisplayAddress(userID string, a asset.Asset) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id must not be empty")
	}

	child, err := al.master.DeriveAccountKey(a, AccountIndex(userID))
	if err != nil {
		return "", fmt.Errorf("derive display key for %q/%v: %w", userID, a, err)
	}
	return chainaddr.FromPubKey(a, child.PublicKeyBytes(), al.params)
}

// AccountIndex hashes a stable user identifier into a hardened-derivable
// account index in [1, 2^31), never colliding with the pool account (0).
func AccountIndex(userID string) uint32 {
	sum := blake3.Sum256([]byte(userID))
	idx := binary.BigEndian.Uint32(sum[:4]) % (bip32.FirstHardenedChild - 1)
	return idx + 1
}
