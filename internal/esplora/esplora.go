// Package esplora is a minimal client for Esplora-compatible HTTP APIs
// (Blockstream's public API and self-hosted electrs both speak it). Only the
// two reads the engine needs are implemented: unspent outputs and the
// confirmed balance of an address.
package esplora

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// UTXO is one unspent output at an address. Value is in satoshis.
type UTXO struct {
	TxID      string
	Vout      uint32
	Value     int64
	Confirmed bool
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type utxoResponse struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Status struct {
		Confirmed bool `json:"confirmed"`
	} `json:"status"`
}

// AddressUTXOs lists unspent outputs at the address, confirmed or not.
func (c *Client) AddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	var raw []utxoResponse
	if err := c.get(ctx, fmt.Sprintf("/address/%s/utxo", url.PathEscape(address)), &raw); err != nil {
		return nil, err
	}

	utxos := make([]UTXO, 0, len(raw))
	for _, u := range raw {
		utxos = append(utxos, UTXO{
			TxID:      u.TxID,
			Vout:      u.Vout,
			Value:     u.Value,
			Confirmed: u.Status.Confirmed,
		})
	}
	return utxos, nil
}

type txoStats struct {
	FundedSum int64 `json:"funded_txo_sum"`
	SpentSum  int64 `json:"spent_txo_sum"`
}

type addressResponse struct {
	ChainStats   txoStats `json:"chain_stats"`
	MempoolStats txoStats `json:"mempool_stats"`
}

// AddressStats returns the confirmed and mempool balances of the address.
func (c *Client) AddressStats(ctx context.Context, address string) (confirmed, mempool btcutil.Amount, err error) {
	var raw addressResponse
	if err := c.get(ctx, fmt.Sprintf("/address/%s", url.PathEscape(address)), &raw); err != nil {
		return 0, 0, err
	}
	confirmed = btcutil.Amount(raw.ChainStats.FundedSum - raw.ChainStats.SpentSum)
	mempool = btcutil.Amount(raw.MempoolStats.FundedSum - raw.MempoolStats.SpentSum)
	return confirmed, mempool, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("esplora request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("esplora returned status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode esplora response: %w", err)
	}
	return nil
}
