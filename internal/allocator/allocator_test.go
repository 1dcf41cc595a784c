package allocator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip32"

	"github.com/custodia-tech/poolvault/internal/storage"
	"github.com/custodia-tech/poolvault/internal/vault"
	"github.com/custodia-tech/poolvault/pkg/asset"
)

func testSeed(t *testing.T) []byte {
	t.Helper()
	mnemonic := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	seed, err := vault.SeedFromMnemonic(mnemonic, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	return seed
}

func testEncryptionKey() []byte {
	key := make([]byte, vault.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func testAllocator(t *testing.T, initKeys bool) *Allocator {
	t.Helper()
	seed := testSeed(t)
	v, err := vault.New(storage.NewMemory(), testEncryptionKey(), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("vault.New() error: %v", err)
	}
	if initKeys {
		if _, err := v.DeriveAndStorePoolKeys(seed); err != nil {
			t.Fatalf("DeriveAndStorePoolKeys() error: %v", err)
		}
	}
	al, err := New(seed, v, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return al
}

func TestUserDisplayAddress_Deterministic(t *testing.T) {
	al := testAllocator(t, true)

	for _, a := range asset.All() {
		t.Run(a.String(), func(t *testing.T) {
			first, err := al.UserDisplayAddress("user-123", a)
			if err != nil {
				t.Fatalf("UserDisplayAddress() error: %v", err)
			}
			second, err := al.UserDisplayAddress("user-123", a)
			if err != nil {
				t.Fatalf("UserDisplayAddress() error: %v", err)
			}
			if first != second {
				t.Errorf("address not deterministic: %q vs %q", first, second)
			}
		})
	}
}

func TestUserDisplayAddress_DiffersFromPool(t *testing.T) {
	al := testAllocator(t, true)

	for _, a := range asset.All() {
		t.Run(a.String(), func(t *testing.T) {
			pool, err := al.PoolAddress(a)
			if err != nil {
				t.Fatalf("PoolAddress() error: %v", err)
			}
			user, err := al.UserDisplayAddress("user-123", a)
			if err != nil {
				t.Fatalf("UserDisplayAddress() error: %v", err)
			}
			if user == pool {
				t.Errorf("display address %q equals pool address", user)
			}
		})
	}
}

func TestUserDisplayAddress_DistinctUsers(t *testing.T) {
	al := testAllocator(t, true)

	// A large sample, not an exhaustive proof.
	const users = 500
	seen := make(map[string]string, users)
	for i := 0; i < users; i++ {
		id := fmt.Sprintf("user-%d", i)
		addr, err := al.UserDisplayAddress(id, asset.ETH)
		if err != nil {
			t.Fatalf("UserDisplayAddress(%q) error: %v", id, err)
		}
		if prior, dup := seen[addr]; dup {
			t.Fatalf("address collision between %q and %q: %s", prior, id, addr)
		}
		seen[addr] = id
	}
}

func TestUserDisplayAddress_EmptyUser(t *testing.T) {
	al := testAllocator(t, true)
	if _, err := al.UserDisplayAddress("", asset.BTC); err == nil {
		t.Error("empty user id should be rejected")
	}
}

func TestPoolAddress_NotInitialized(t *testing.T) {
	al := testAllocator(t, false)
	_, err := al.PoolAddress(asset.BTC)
	if !errors.Is(err, vault.ErrNotInitialized) {
		t.Errorf("PoolAddress() error = %v, want vault.ErrNotInitialized", err)
	}
}

func TestAccountIndex_Bounds(t *testing.T) {
	for _, id := range []string{"a", "user-123", "f3c9d2e1-aaaa-bbbb-cccc-1234567890ab", ""} {
		idx := AccountIndex(id)
		if idx == 0 {
			t.Errorf("AccountIndex(%q) = 0, pool account is reserved", id)
		}
		if idx >= bip32.FirstHardenedChild {
			t.Errorf("AccountIndex(%q) = %d, exceeds hardened range", id, idx)
		}
	}
}

func TestAccountIndex_Stable(t *testing.T) {
	if AccountIndex("user-9") != AccountIndex("user-9") {
		t.Error("AccountIndex should be stable for the same input")
	}
}
