package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/rs/zerolog"

	vlog "github.com/custodia-tech/poolvault/internal/log"
	"github.com/custodia-tech/poolvault/internal/storage"
	"github.com/custodia-tech/poolvault/pkg/asset"
	"github.com/custodia-tech/poolvault/pkg/chainaddr"
)

var (
	// ErrNotInitialized is returned when pool keys have not been derived or
	// loaded yet.
	ErrNotInitialized = errors.New("pool keys not initialized")

	// ErrKeyNotFound is returned when no encrypted key material exists for
	// an asset.
	ErrKeyNotFound = errors.New("pool key not found")

	// ErrKeyIntegrityMismatch is returned when decrypted key material does
	// not derive the stored pool address. This is a hard fault: withdrawals
	// for the asset must halt until an operator intervenes.
	ErrKeyIntegrityMismatch = errors.New("pool key does not match stored address")
)

// PoolKeyRecord is the persisted form of a pool signing key: the public
// address plus the encrypted private key and its nonce.
type PoolKeyRecord struct {
	Asset      asset.Asset `json:"asset"`
	Address    string      `json:"address"`
	Ciphertext []byte      `json:"ciphertext"`
	Nonce      []byte      `json:"nonce"`
	CreatedAt  time.Time   `json:"created_at"`
	Verified   bool        `json:"verified"`
}

// Vault custodies the pool signing keys. Keys are stored encrypted and
// decrypted only inside signing callbacks; signing access is serialized per
// key so two broadcasts never race on the same account nonce.
type Vault struct {
	db     storage.DB
	cipher *Cipher
	params *chaincfg.Params
	logger zerolog.Logger

	signMu map[asset.Asset]*sync.Mutex
}

// New creates a Vault on the given store. encryptionKey must be exactly
// KeySize bytes.
func New(db storage.DB, encryptionKey []byte, params *chaincfg.Params) (*Vault, error) {
	cipher, err := NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	mus := make(map[asset.Asset]*sync.Mutex, len(asset.KeyAssets()))
	for _, a := range asset.KeyAssets() {
		mus[a] = &sync.Mutex{}
	}

	return &Vault{
		db:     db,
		cipher: cipher,
		params: params,
		logger: vlog.Vault,
		signMu: mus,
	}, nil
}

func poolKeyDBKey(a asset.Asset) []byte {
	return []byte("poolkey/" + a.String())
}

// DeriveAndStorePoolKeys deterministically derives one settlement key per
// key asset from the master seed and stores it encrypted. The operation is
// idempotent: assets whose key material already exists are loaded, not
// regenerated. It returns the pool address for every supported asset
// (tokens report the address of their chain's native key).
func (v *Vault) DeriveAndStorePoolKeys(seed []byte) (map[asset.Asset]string, error) {
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}

	byKeyAsset := make(map[asset.Asset]string, len(asset.KeyAssets()))
	for _, a := range asset.KeyAssets() {
		rec, err := v.loadRecord(a)
		if err == nil {
			byKeyAsset[a] = rec.Address
			v.logger.Debug().Str("asset", a.String()).Str("address", rec.Address).
				Msg("pool key already present, skipping derivation")
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load pool key for %v: %w", a, err)
		}

		child, err := master.DeriveAccountKey(a, PoolAccount)
		if err != nil {
			return nil, fmt.Errorf("derive pool key for %v: %w", a, err)
		}
		priv, err := child.PrivateKey()
		if err != nil {
			return nil, fmt.Errorf("pool key for %v: %w", a, err)
		}

		addr, err := chainaddr.FromPrivKey(a, priv, v.params)
		if err != nil {
			priv.Zero()
			return nil, fmt.Errorf("pool address for %v: %w", a, err)
		}

		ciphertext, nonce, err := v.cipher.Encrypt(priv.Serialize())
		priv.Zero()
		if err != nil {
			return nil, fmt.Errorf("encrypt pool key for %v: %w", a, err)
		}

		rec = &PoolKeyRecord{
			Asset:      a,
			Address:    addr,
			Ciphertext: ciphertext,
			Nonce:      nonce,
			CreatedAt:  time.Now().UTC(),
			Verified:   true,
		}
		if err := v.storeRecord(rec); err != nil {
			return nil, fmt.Errorf("store pool key for %v: %w", a, err)
		}

		byKeyAsset[a] = addr
		v.logger.Info().Str("asset", a.String()).Str("address", addr).
			Msg("pool key derived and stored")
	}

	out := make(map[asset.Asset]string, len(asset.All()))
	for _, a := range asset.All() {
		out[a] = byKeyAsset[a.KeyAsset()]
	}
	return out, nil
}

// PoolAddress returns the settlement address for an asset. It fails with
// ErrNotInitialized if the pool keys have not been derived or loaded.
func (v *Vault) PoolAddress(a asset.Asset) (string, error) {
	rec, err := v.loadRecord(a.KeyAsset())
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("%w: no key for %v", ErrNotInitialized, a)
	}
	if err != nil {
		return "", fmt.Errorf("load pool key for %v: %w", a, err)
	}
	return rec.Address, nil
}

// PrivateKeyForSigning decrypts and returns the pool signing key for an
// asset. The decrypted key's derived address is checked against the stored
// pool address on every retrieval; a mismatch is ErrKeyIntegrityMismatch.
// The caller owns the key and must Zero it when done. Prefer WithSigningKey.
func (v *Vault) PrivateKeyForSigning(a asset.Asset) (*secp256k1.PrivateKey, error) {
	keyAsset := a.KeyAsset()
	rec, err := v.loadRecord(keyAsset)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, a)
	}
	if err != nil {
		return nil, fmt.Errorf("load pool key for %v: %w", a, err)
	}

	raw, err := v.cipher.Decrypt(rec.Ciphertext, rec.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decrypt pool key for %v: %w", a, err)
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	for i := range raw {
		raw[i] = 0
	}

	derived, err := chainaddr.FromPrivKey(keyAsset, priv, v.params)
	if err != nil {
		priv.Zero()
		return nil, fmt.Errorf("derive address for %v: %w", a, err)
	}
	if derived != rec.Address {
		priv.Zero()
		v.logger.Error().Str("asset", keyAsset.String()).
			Str("stored", rec.Address).Str("derived", derived).
			Msg("pool key integrity mismatch, withdrawals halted for asset")
		return nil, fmt.Errorf("%w: %v", ErrKeyIntegrityMismatch, a)
	}

	return priv, nil
}

// WithSigningKey retrieves the pool signing key for an asset, runs fn with
// it, and zeroes the key afterwards. Signing access is serialized per key
// asset so concurrent broadcasts from the same pool address cannot race on
// nonce or sequence numbers.
func (v *Vault) WithSigningKey(a asset.Asset, fn func(priv *secp256k1.PrivateKey) error) error {
	mu, ok := v.signMu[a.KeyAsset()]
	if !ok {
		return fmt.Errorf("%w: %v", asset.ErrUnsupported, a)
	}
	mu.Lock()
	defer mu.Unlock()

	priv, err := v.PrivateKeyForSigning(a)
	if err != nil {
		return err
	}
	defer priv.Zero()

	return fn(priv)
}

func (v *Vault) loadRecord(keyAsset asset.Asset) (*PoolKeyRecord, error) {
	raw, err := v.db.Get(poolKeyDBKey(keyAsset))
	if err != nil {
		return nil, err
	}
	var rec PoolKeyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parse pool key record: %w", err)
	}
	return &rec, nil
}

func (v *Vault) storeRecord(rec *PoolKeyRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal pool key record: %w", err)
	}
	return v.db.Put(poolKeyDBKey(rec.Asset), raw)
}
