package chainaddr

import (
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/custodia-tech/poolvault/pkg/asset"
)

// testKey returns a deterministic private key.
func testKey(t *testing.T) *secp256k1.PrivateKey {
	t.Helper()
	var b [32]byte
	for i := range b {
		b[i] = byte(i + 1)
	}
	return secp256k1.PrivKeyFromBytes(b[:])
}

func TestFromPubKey_BTC(t *testing.T) {
	priv := testKey(t)
	addr, err := FromPubKey(asset.BTC, priv.PubKey().SerializeCompressed(), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("FromPubKey() error: %v", err)
	}
	if !strings.HasPrefix(addr, "bc1") {
		t.Errorf("mainnet P2WPKH address = %q, want bc1 prefix", addr)
	}
}

func TestFromPubKey_EVM(t *testing.T) {
	priv := testKey(t)
	addr, err := FromPubKey(asset.ETH, priv.PubKey().SerializeCompressed(), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("FromPubKey() error: %v", err)
	}
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		t.Errorf("EVM address = %q, want 0x-prefixed 20-byte hex", addr)
	}

	// USDT shares the EVM address form.
	tokenAddr, err := FromPubKey(asset.USDT, priv.PubKey().SerializeCompressed(), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("FromPubKey(USDT) error: %v", err)
	}
	if tokenAddr != addr {
		t.Errorf("USDT address = %q, want same as ETH %q", tokenAddr, addr)
	}
}

func TestFromPubKey_Deterministic(t *testing.T) {
	priv := testKey(t)
	for _, a := range asset.All() {
		first, err := FromPubKey(a, priv.PubKey().SerializeCompressed(), &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("FromPubKey(%v) error: %v", a, err)
		}
		second, err := FromPubKey(a, priv.PubKey().SerializeCompressed(), &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("FromPubKey(%v) error: %v", a, err)
		}
		if first != second {
			t.Errorf("%v address not deterministic: %q vs %q", a, first, second)
		}
	}
}

func TestFromPrivKey_MatchesPubKey(t *testing.T) {
	priv := testKey(t)
	fromPriv, err := FromPrivKey(asset.ETH, priv, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("FromPrivKey() error: %v", err)
	}
	fromPub, err := FromPubKey(asset.ETH, priv.PubKey().SerializeCompressed(), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("FromPubKey() error: %v", err)
	}
	if fromPriv != fromPub {
		t.Errorf("FromPrivKey = %q, FromPubKey = %q", fromPriv, fromPub)
	}
}

func TestFromPubKey_InvalidKey(t *testing.T) {
	_, err := FromPubKey(asset.BTC, []byte{0x01, 0x02}, &chaincfg.MainNetParams)
	if err == nil {
		t.Error("expected error for truncated public key")
	}
}

func TestNormalize_EVM(t *testing.T) {
	// EIP-55 test vector.
	checksummed := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already checksummed", checksummed, checksummed},
		{"all lowercase", strings.ToLower(checksummed), checksummed},
		{"all uppercase hex", "0x" + strings.ToUpper(checksummed[2:]), checksummed},
		{"bad checksum falls back to lowercase", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", checksummed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(asset.ETH, tt.in, &chaincfg.MainNetParams)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_EVMMalformed(t *testing.T) {
	for _, in := range []string{"", "0x1234", "not-an-address", "0xZZeb6053F3E94C9b9A09f33669435E7Ef1BeAed"} {
		_, err := Normalize(asset.USDT, in, &chaincfg.MainNetParams)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Normalize(%q) error = %v, want ErrMalformed", in, err)
		}
	}
}

func TestNormalize_BTC(t *testing.T) {
	priv := testKey(t)
	addr, err := FromPubKey(asset.BTC, priv.PubKey().SerializeCompressed(), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("FromPubKey() error: %v", err)
	}

	got, err := Normalize(asset.BTC, "  "+addr+" ", &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if got != addr {
		t.Errorf("Normalize = %q, want %q", got, addr)
	}
}

func TestNormalize_BTCMalformed(t *testing.T) {
	for _, in := range []string{"", "bc1qqqqq", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"} {
		_, err := Normalize(asset.BTC, in, &chaincfg.MainNetParams)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Normalize(%q) error = %v, want ErrMalformed", in, err)
		}
	}
}

func TestNormalize_BTCWrongNetwork(t *testing.T) {
	priv := testKey(t)
	testnetAddr, err := FromPubKey(asset.BTC, priv.PubKey().SerializeCompressed(), &chaincfg.TestNet3Params)
	if err != nil {
		t.Fatalf("FromPubKey() error: %v", err)
	}
	_, err = Normalize(asset.BTC, testnetAddr, &chaincfg.MainNetParams)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("testnet address on mainnet: error = %v, want ErrMalformed", err)
	}
}
