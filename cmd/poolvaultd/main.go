// Poolvault custody daemon.
//
// Usage:
//
//	poolvaultd [--testnet --eth-rpc=...]  Run node
//	poolvaultd gen-mnemonic               Print a fresh 24-word mnemonic
//	poolvaultd --help                     Show help
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/custodia-tech/poolvault/config"
	"github.com/custodia-tech/poolvault/internal/node"
	"github.com/custodia-tech/poolvault/internal/vault"
)

func main() {
	cfg, flags, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(flags.Args) > 0 && flags.Args[0] == "gen-mnemonic" {
		mnemonic, err := vault.GenerateMnemonic()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(mnemonic)
		return
	}

	encryptionKey, err := resolveEncryptionKey(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	seed, err := resolveSeed(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	n, err := node.New(cfg, seed, encryptionKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// The seed is only needed during initialization.
	zero(seed)
	zero(encryptionKey)

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	n.Stop()
}

// resolveEncryptionKey reads the vault encryption key from config, key file,
// or the POOLVAULT_ENCRYPTION_KEY environment variable, in that order.
func resolveEncryptionKey(cfg *config.Config) ([]byte, error) {
	keyHex := cfg.Vault.EncryptionKey
	if keyHex == "" && cfg.Vault.EncryptionKeyFile != "" {
		raw, err := os.ReadFile(cfg.Vault.EncryptionKeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading encryption key file: %w", err)
		}
		keyHex = strings.TrimSpace(string(raw))
	}
	if keyHex == "" {
		keyHex = strings.TrimSpace(os.Getenv("POOLVAULT_ENCRYPTION_KEY"))
	}
	if keyHex == "" {
		return nil, fmt.Errorf("no vault encryption key: set vault.encryptionkeyfile or POOLVAULT_ENCRYPTION_KEY")
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("encryption key must be hex")
	}
	if len(key) != config.EncryptionKeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", config.EncryptionKeySize, len(key))
	}
	return key, nil
}

// resolveSeed obtains the BIP-39 mnemonic from the configured file, the
// POOLVAULT_MNEMONIC environment variable, or an interactive prompt, and
// derives the master seed from it.
func resolveSeed(cfg *config.Config) ([]byte, error) {
	mnemonic := ""
	if cfg.Vault.MnemonicFile != "" {
		raw, err := os.ReadFile(cfg.Vault.MnemonicFile)
		if err != nil {
			return nil, fmt.Errorf("reading mnemonic file: %w", err)
		}
		mnemonic = strings.TrimSpace(string(raw))
	}
	if mnemonic == "" {
		mnemonic = strings.TrimSpace(os.Getenv("POOLVAULT_MNEMONIC"))
	}
	if mnemonic == "" {
		m, err := promptMnemonic()
		if err != nil {
			return nil, err
		}
		mnemonic = m
	}

	return vault.SeedFromMnemonic(mnemonic, "")
}

// promptMnemonic reads the mnemonic from the terminal without echo.
func promptMnemonic() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no mnemonic provided and stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Enter BIP-39 mnemonic: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading mnemonic: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
