package asset

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Asset
	}{
		{"BTC", BTC},
		{"btc", BTC},
		{" ETH ", ETH},
		{"usdt", USDT},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParse_Unsupported(t *testing.T) {
	for _, in := range []string{"", "DOGE", "BTC "} {
		if in == "BTC " {
			continue // trimmed, valid
		}
		_, err := Parse(in)
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("Parse(%q) error = %v, want ErrUnsupported", in, err)
		}
	}
}

func TestClass(t *testing.T) {
	if BTC.Class() != ClassUTXO {
		t.Error("BTC should be ClassUTXO")
	}
	if ETH.Class() != ClassEVM {
		t.Error("ETH should be ClassEVM")
	}
	if USDT.Class() != ClassEVM {
		t.Error("USDT should be ClassEVM")
	}
}

func TestKeyAsset(t *testing.T) {
	if USDT.KeyAsset() != ETH {
		t.Error("USDT settles through the ETH pool key")
	}
	if BTC.KeyAsset() != BTC {
		t.Error("BTC key asset should be BTC")
	}
	if ETH.KeyAsset() != ETH {
		t.Error("ETH key asset should be ETH")
	}
}

func TestDecimals(t *testing.T) {
	tests := []struct {
		a    Asset
		want int32
	}{
		{BTC, 8},
		{ETH, 18},
		{USDT, 6},
	}
	for _, tt := range tests {
		if got := tt.a.Decimals(); got != tt.want {
			t.Errorf("%v.Decimals() = %d, want %d", tt.a, got, tt.want)
		}
	}
}

func TestJSONRoundtrip(t *testing.T) {
	type wrapper struct {
		Asset Asset `json:"asset"`
	}

	b, err := json.Marshal(wrapper{Asset: USDT})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(b) != `{"asset":"USDT"}` {
		t.Errorf("marshaled = %s", b)
	}

	var w wrapper
	if err := json.Unmarshal(b, &w); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if w.Asset != USDT {
		t.Errorf("roundtrip asset = %v, want USDT", w.Asset)
	}
}
