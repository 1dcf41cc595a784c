package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// EncryptionKeySize is the required vault encryption key length in bytes.
const EncryptionKeySize = 32

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.Vault.EncryptionKey != "" {
		if err := validateEncryptionKey(cfg.Vault.EncryptionKey); err != nil {
			return err
		}
	}
	if cfg.Ethereum.ChainID <= 0 {
		return fmt.Errorf("eth.chainid must be positive")
	}
	if cfg.Ethereum.ScanWindow == 0 {
		return fmt.Errorf("eth.scanwindow must be positive")
	}
	if cfg.Ethereum.PollIntervalSec <= 0 {
		return fmt.Errorf("eth.pollinterval must be positive")
	}
	if cfg.Bitcoin.PollIntervalSec <= 0 {
		return fmt.Errorf("btc.pollinterval must be positive")
	}
	if cfg.Withdraw.BroadcastTimeoutSec <= 0 {
		return fmt.Errorf("withdraw.broadcasttimeout must be positive")
	}
	if cfg.Withdraw.GasMarginPct < 0 || cfg.Withdraw.GasMarginPct > 100 {
		return fmt.Errorf("withdraw.gasmargin must be in range [0, 100]")
	}

	for field, rate := range map[string]string{
		"fees.btc":  cfg.Fees.BTC,
		"fees.eth":  cfg.Fees.ETH,
		"fees.usdt": cfg.Fees.USDT,
	} {
		if err := validateFeeRate(field, rate); err != nil {
			return err
		}
	}

	return nil
}

// validateEncryptionKey rejects anything but a hex-encoded 32-byte key.
// A truncated key would silently weaken custody, so fail fast.
func validateEncryptionKey(key string) error {
	b, err := hex.DecodeString(strings.TrimSpace(key))
	if err != nil {
		return fmt.Errorf("vault.encryptionkey must be hex")
	}
	if len(b) != EncryptionKeySize {
		return fmt.Errorf("vault.encryptionkey must be %d bytes, got %d", EncryptionKeySize, len(b))
	}
	return nil
}

func validateFeeRate(field, rate string) error {
	if rate == "" {
		return fmt.Errorf("%s is empty", field)
	}
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return fmt.Errorf("%s must be a decimal fraction", field)
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in range [0, 1)", field)
	}
	return nil
}
