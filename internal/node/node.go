// Package node assembles a complete custody node from configuration: key
// vault, ledger, deposit monitors, withdrawal engine, reconciliation and the
// RPC surface. It can be embedded in any binary.
package node

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/config"
	"github.com/custodia-tech/poolvault/internal/allocator"
	"github.com/custodia-tech/poolvault/internal/esplora"
	"github.com/custodia-tech/poolvault/internal/ledger"
	vlog "github.com/custodia-tech/poolvault/internal/log"
	"github.com/custodia-tech/poolvault/internal/monitor"
	"github.com/custodia-tech/poolvault/internal/notify"
	"github.com/custodia-tech/poolvault/internal/recon"
	"github.com/custodia-tech/poolvault/internal/rpc"
	"github.com/custodia-tech/poolvault/internal/storage"
	"github.com/custodia-tech/poolvault/internal/vault"
	"github.com/custodia-tech/poolvault/internal/withdraw"
	"github.com/custodia-tech/poolvault/pkg/asset"
)

// Node is a fully-initialized custody node.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Core
	db        storage.DB
	vault     *vault.Vault
	allocator *allocator.Allocator
	ledger    *ledger.Ledger

	// Chain access
	ethClient *ethclient.Client
	btcClient *esplora.Client

	// Settlement
	reporter *recon.Reporter
	engine   *withdraw.Engine
	runner   *monitor.Runner
	bus      *notify.Bus

	// RPC
	rpcServer *rpc.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates and initializes a Node. The caller resolves the secrets: seed
// is the 64-byte BIP-39 master seed, encryptionKey the 32-byte vault key.
// Background work (deposit polling, event dispatch) starts with Start().
func New(cfg *config.Config, seed, encryptionKey []byte) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "poolvault.log")
	}
	if err := vlog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := vlog.WithComponent("node")

	params := chainParams(cfg.Network)

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("datadir", cfg.DataDir).
		Msg("Starting poolvault node")

	// ── 2. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.LedgerDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.LedgerDir(), err)
	}
	logger.Info().Str("path", cfg.LedgerDir()).Msg("Ledger database opened")

	// ── 3. Vault and pool keys ──────────────────────────────────────
	// Vault and ledger records live in disjoint keyspaces of the same
	// database.
	v, err := vault.New(storage.NewPrefixDB(db, []byte("v/")), encryptionKey, params)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open vault: %w", err)
	}
	poolAddrs, err := v.DeriveAndStorePoolKeys(seed)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("derive pool keys: %w", err)
	}
	for a, addr := range poolAddrs {
		logger.Info().Str("asset", a.String()).Str("address", addr).Msg("Pool address ready")
	}

	al, err := allocator.New(seed, v, params)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create allocator: %w", err)
	}

	// ── 4. Ledger ───────────────────────────────────────────────────
	l := ledger.New(storage.NewPrefixDB(db, []byte("l/")))

	// ── 5. Chain clients ────────────────────────────────────────────
	ethClient, err := ethclient.Dial(cfg.Ethereum.RPCURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("dial ethereum rpc %s: %w", cfg.Ethereum.RPCURL, err)
	}
	btcClient := esplora.NewClient(cfg.Bitcoin.APIURL)

	tokenContract := common.HexToAddress(cfg.Ethereum.TokenContract)

	// ── 6. Reconciliation ───────────────────────────────────────────
	reporter := recon.NewReporter(ethClient, btcClient, v, tokenContract)

	// ── 7. Notifications ────────────────────────────────────────────
	bus := notify.NewBus(0, notify.NewAuditSink())

	// ── 8. Withdrawal engine ────────────────────────────────────────
	feeRates, err := parseFeeRates(cfg.Fees)
	if err != nil {
		db.Close()
		return nil, err
	}

	mux := withdraw.NewMux()
	mux.Register(asset.ClassEVM, withdraw.NewEVMBroadcaster(
		ethClient, big.NewInt(cfg.Ethereum.ChainID), tokenContract, cfg.Withdraw.GasMarginPct))
	mux.Register(asset.ClassUTXO, withdraw.NewBTCBroadcaster(params))

	engine := withdraw.NewEngine(l, v, reporter, mux, bus, withdraw.Config{
		FeeRates:         feeRates,
		BroadcastTimeout: time.Duration(cfg.Withdraw.BroadcastTimeoutSec) * time.Second,
		Params:           params,
	})

	// ── 9. Deposit monitors ─────────────────────────────────────────
	ethPool, err := v.PoolAddress(asset.ETH)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pool address for ETH: %w", err)
	}
	btcPool, err := v.PoolAddress(asset.BTC)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pool address for BTC: %w", err)
	}

	runner := monitor.NewRunner()
	runner.Add(monitor.NewEVMScanner(ethClient, l, monitor.EVMConfig{
		PoolAddress:   common.HexToAddress(ethPool),
		TokenContract: tokenContract,
		TokenAsset:    asset.USDT,
		ScanWindow:    cfg.Ethereum.ScanWindow,
		Confirmations: cfg.Ethereum.Confirmations,
	}), time.Duration(cfg.Ethereum.PollIntervalSec)*time.Second)
	runner.Add(monitor.NewBTCScanner(btcClient, l, btcPool),
		time.Duration(cfg.Bitcoin.PollIntervalSec)*time.Second)

	// ── 10. RPC server ──────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcAddr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		rpcServer = rpc.New(rpcAddr, al, l, engine, reporter, bus, cfg.RPC)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		vault:     v,
		allocator: al,
		ledger:    l,
		ethClient: ethClient,
		btcClient: btcClient,
		reporter:  reporter,
		engine:    engine,
		runner:    runner,
		bus:       bus,
		rpcServer: rpcServer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start launches background work: event dispatch, deposit polling, and the
// RPC server if enabled.
func (n *Node) Start() error {
	n.bus.Start()
	n.runner.Start(n.ctx)

	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start rpc: %w", err)
		}
		n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server listening")
	}

	return nil
}

// Stop shuts everything down in reverse dependency order.
func (n *Node) Stop() {
	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}

	n.cancel()
	n.runner.Stop()
	n.bus.Close()

	if n.ethClient != nil {
		n.ethClient.Close()
	}
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Ledger exposes the settlement ledger for embedding binaries.
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

func chainParams(network config.NetworkType) *chaincfg.Params {
	if network == config.Testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

func parseFeeRates(fees config.FeeConfig) (map[asset.Asset]decimal.Decimal, error) {
	raw := map[asset.Asset]string{
		asset.BTC:  fees.BTC,
		asset.ETH:  fees.ETH,
		asset.USDT: fees.USDT,
	}
	out := make(map[asset.Asset]decimal.Decimal, len(raw))
	for a, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("fee rate for %v: %w", a, err)
		}
		out[a] = d
	}
	return out, nil
}
