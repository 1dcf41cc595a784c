package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a node config value by key.
// Only node-operational settings, NOT custody rules.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Vault
	case "vault.encryptionkey":
		cfg.Vault.EncryptionKey = value
	case "vault.encryptionkeyfile":
		cfg.Vault.EncryptionKeyFile = value
	case "vault.mnemonicfile":
		cfg.Vault.MnemonicFile = value

	// Ethereum
	case "eth.rpcurl":
		cfg.Ethereum.RPCURL = value
	case "eth.chainid":
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Ethereum.ChainID = id
	case "eth.tokencontract":
		cfg.Ethereum.TokenContract = value
	case "eth.pollinterval":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Ethereum.PollIntervalSec = n
	case "eth.scanwindow":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Ethereum.ScanWindow = n
	case "eth.confirmations":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Ethereum.Confirmations = n

	// Bitcoin
	case "btc.apiurl":
		cfg.Bitcoin.APIURL = value
	case "btc.pollinterval":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Bitcoin.PollIntervalSec = n

	// Withdraw
	case "withdraw.broadcasttimeout":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Withdraw.BroadcastTimeoutSec = n
	case "withdraw.gasmargin":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Withdraw.GasMarginPct = n

	// Fees
	case "fees.btc":
		cfg.Fees.BTC = value
	case "fees.eth":
		cfg.Fees.ETH = value
	case "fees.usdt":
		cfg.Fees.USDT = value

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		return fmt.Errorf("unknown config key")
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
