package config

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Ethereum: EthereumConfig{
			RPCURL:          "http://127.0.0.1:8545",
			ChainID:         1,
			TokenContract:   "0xdAC17F958D2ee523a2206206994597C13D831ec7",
			PollIntervalSec: 15,
			ScanWindow:      64,
			Confirmations:   12,
		},
		Bitcoin: BitcoinConfig{
			APIURL:          "https://blockstream.info/api",
			PollIntervalSec: 60,
		},
		Withdraw: WithdrawConfig{
			BroadcastTimeoutSec: 120,
			GasMarginPct:        20,
		},
		Fees: FeeConfig{
			BTC:  "0.005",
			ETH:  "0.005",
			USDT: "0.005",
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8750,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Ethereum.ChainID = 11155111
	cfg.Ethereum.TokenContract = ""
	cfg.Bitcoin.APIURL = "https://blockstream.info/testnet/api"
	cfg.RPC.Port = 18750
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
