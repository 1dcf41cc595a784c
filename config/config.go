package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies which chain networks the custody node talks to.
type NetworkType string

const (
	// Mainnet targets Bitcoin mainnet and Ethereum mainnet.
	Mainnet NetworkType = "mainnet"
	// Testnet targets Bitcoin testnet3 and the Sepolia Ethereum testnet.
	Testnet NetworkType = "testnet"
)

// Config holds all operational settings for a poolvault node.
// Protocol rules (derivation paths, address formats) are fixed in code;
// only node-operational settings live here.
type Config struct {
	// Network selection
	Network NetworkType `conf:"network"`

	// Data directory for ledger database, logs, etc.
	DataDir string `conf:"datadir"`

	// Vault configuration
	Vault VaultConfig `conf:"vault"`

	// Chain backends
	Ethereum EthereumConfig `conf:"eth"`
	Bitcoin  BitcoinConfig  `conf:"btc"`

	// Withdrawal execution
	Withdraw WithdrawConfig `conf:"withdraw"`

	// Fee rates per asset, as decimal fractions of the gross amount.
	Fees FeeConfig `conf:"fees"`

	// RPC server configuration
	RPC RPCConfig `conf:"rpc"`

	// Logging configuration
	Log LogConfig `conf:"log"`
}

// VaultConfig controls key custody.
type VaultConfig struct {
	// EncryptionKey is the hex-encoded 32-byte key that encrypts pool
	// private keys at rest. Never logged.
	EncryptionKey string `conf:"vault.encryptionkey"`

	// EncryptionKeyFile points at a file holding the hex key. Preferred
	// over putting the key in the conf file directly.
	EncryptionKeyFile string `conf:"vault.encryptionkeyfile"`

	// MnemonicFile points at a file holding the BIP-39 mnemonic for the
	// master seed. If empty, the mnemonic is read from the
	// POOLVAULT_MNEMONIC environment variable, or prompted interactively.
	MnemonicFile string `conf:"vault.mnemonicfile"`
}

// EthereumConfig controls the Ethereum chain backend.
type EthereumConfig struct {
	// RPCURL is the JSON-RPC endpoint of an Ethereum node.
	RPCURL string `conf:"eth.rpcurl"`

	// ChainID for transaction replay protection.
	ChainID int64 `conf:"eth.chainid"`

	// TokenContract is the ERC-20 contract address for USDT.
	TokenContract string `conf:"eth.tokencontract"`

	// PollIntervalSec is how often the deposit monitor scans, in seconds.
	PollIntervalSec int `conf:"eth.pollinterval"`

	// ScanWindow is the number of recent blocks scanned per cycle.
	ScanWindow uint64 `conf:"eth.scanwindow"`

	// Confirmations before a block is considered final for deposits.
	Confirmations uint64 `conf:"eth.confirmations"`
}

// BitcoinConfig controls the Bitcoin chain backend.
type BitcoinConfig struct {
	// APIURL is the base URL of an Esplora-compatible HTTP API.
	APIURL string `conf:"btc.apiurl"`

	// PollIntervalSec is how often the deposit monitor scans, in seconds.
	PollIntervalSec int `conf:"btc.pollinterval"`
}

// WithdrawConfig controls withdrawal execution.
type WithdrawConfig struct {
	// BroadcastTimeoutSec bounds the sign-and-broadcast phase of an
	// approved withdrawal.
	BroadcastTimeoutSec int `conf:"withdraw.broadcasttimeout"`

	// GasMarginPct is the percentage margin added to gas estimates.
	GasMarginPct int64 `conf:"withdraw.gasmargin"`
}

// FeeConfig holds per-asset withdrawal fee rates as decimal strings,
// e.g. "0.005" for 0.5%.
type FeeConfig struct {
	BTC  string `conf:"fees.btc"`
	ETH  string `conf:"fees.eth"`
	USDT string `conf:"fees.usdt"`
}

// RPCConfig holds JSON-RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the default data directory for the current OS.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".poolvault"
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Poolvault")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Poolvault")
		}
		return filepath.Join(home, "AppData", "Roaming", "Poolvault")
	default:
		return filepath.Join(home, ".poolvault")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// LedgerDir returns the ledger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.NetworkDataDir(), "ledger")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "poolvault.conf")
}
