// Package monitor watches each supported chain for inbound transfers to the
// pool address and records them as pending deposits. A transfer is recorded
// at most once: the ledger's (asset, txid) index is the source of truth for
// what has already been seen, so restarts neither miss nor duplicate records.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/custodia-tech/poolvault/internal/ledger"
	"github.com/custodia-tech/poolvault/internal/log"
	"github.com/custodia-tech/poolvault/pkg/asset"
)

// Recorder is the ledger surface scanners write through.
type Recorder interface {
	DepositSeen(a asset.Asset, txID string) (bool, error)
	RecordDeposit(rec *ledger.DepositRecord) (bool, error)
}

// Scanner inspects one chain for new inbound transfers to the pool address.
// A Scan that returns an error must not have marked anything as processed
// beyond the records it actually wrote.
type Scanner interface {
	Asset() asset.Asset
	Scan(ctx context.Context) error
}

type entry struct {
	scanner  Scanner
	interval time.Duration
}

// Runner drives a set of scanners, each on its own polling interval, so a
// slow chain API never delays the others. Scan errors are logged and the
// scanner retried on its next tick.
type Runner struct {
	logger  zerolog.Logger
	entries []entry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner() *Runner {
	return &Runner{logger: log.Monitor}
}

// Add registers a scanner to run every interval. Must be called before Start.
func (r *Runner) Add(s Scanner, interval time.Duration) {
	r.entries = append(r.entries, entry{scanner: s, interval: interval})
}

// Start launches one polling goroutine per registered scanner. Each scanner
// runs once immediately, then on its ticker.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	for _, e := range r.entries {
		r.wg.Add(1)
		go r.run(ctx, e)
	}
}

// Stop cancels all polling goroutines and waits for them to exit.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, e entry) {
	defer r.wg.Done()

	logger := r.logger.With().Str("asset", e.scanner.Asset().String()).Logger()
	logger.Info().Dur("interval", e.interval).Msg("Deposit scan started")

	r.scanOnce(ctx, e.scanner, logger)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Deposit scan stopped")
			return
		case <-ticker.C:
			r.scanOnce(ctx, e.scanner, logger)
		}
	}
}

func (r *Runner) scanOnce(ctx context.Context, s Scanner, logger zerolog.Logger) {
	if err := s.Scan(ctx); err != nil {
		// Retried next tick. Nothing was marked processed, so the next
		// cycle re-observes anything this one missed.
		logger.Warn().Err(err).Msg("Deposit scan failed, will retry")
	}
}
