package monitor

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/internal/esplora"
	"github.com/custodia-tech/poolvault/internal/ledger"
	"github.com/custodia-tech/poolvault/internal/log"
	"github.com/custodia-tech/poolvault/pkg/asset"
)

// BTCClient fetches pool address activity from a UTXO chain API.
type BTCClient interface {
	AddressUTXOs(ctx context.Context, address string) ([]esplora.UTXO, error)
}

// BTCScanner turns confirmed unspent outputs at the pool address into
// deposit records. Outputs of the same transaction are summed into a single
// record, since the ledger keys deposits by (asset, txid).
type BTCScanner struct {
	client BTCClient
	rec    Recorder
	logger zerolog.Logger
	pool   string
}

func NewBTCScanner(client BTCClient, rec Recorder, poolAddress string) *BTCScanner {
	return &BTCScanner{
		client: client,
		rec:    rec,
		logger: log.Monitor.With().Str("asset", asset.BTC.String()).Logger(),
		pool:   poolAddress,
	}
}

func (s *BTCScanner) Asset() asset.Asset { return asset.BTC }

func (s *BTCScanner) Scan(ctx context.Context) error {
	utxos, err := s.client.AddressUTXOs(ctx, s.pool)
	if err != nil {
		return fmt.Errorf("fetch utxos for pool address: %w", err)
	}

	totals := make(map[string]btcutil.Amount)
	for _, u := range utxos {
		if !u.Confirmed {
			continue
		}
		totals[u.TxID] += btcutil.Amount(u.Value)
	}

	for txID, total := range totals {
		seen, err := s.rec.DepositSeen(asset.BTC, txID)
		if err != nil {
			return err
		}
		if seen {
			continue
		}

		amount := decimal.New(int64(total), -asset.BTC.Decimals())
		created, err := s.rec.RecordDeposit(&ledger.DepositRecord{
			Asset:       asset.BTC,
			Amount:      amount,
			PoolAddress: s.pool,
			TxID:        txID,
		})
		if err != nil {
			return err
		}
		if created {
			s.logger.Info().
				Str("tx_id", txID).
				Float64("btc", total.ToBTC()).
				Msg("Inbound transfer observed")
		}
	}
	return nil
}
