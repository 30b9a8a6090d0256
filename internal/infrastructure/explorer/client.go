// Package explorer implements chain.Client against an Ergo-explorer style indexer.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/creaturederby/derby/internal/domain/chain"
	"github.com/creaturederby/derby/internal/metrics"
)

const maxBodyBytes = 4 << 20

// Client is an HTTP indexer client. Every call is bounded by the configured timeout.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("service", "explorer").Logger(),
	}
}

type apiAsset struct {
	TokenID string `json:"tokenId"`
	Amount  int64  `json:"amount"`
}

type apiOutput struct {
	Address string     `json:"address"`
	Value   int64      `json:"value"`
	Assets  []apiAsset `json:"assets"`
}

type apiInput struct {
	Address string `json:"address"`
}

type apiTransaction struct {
	ID                string      `json:"id"`
	InclusionHeight   int64       `json:"inclusionHeight"`
	NumConfirmations  int64       `json:"numConfirmations"`
	Timestamp         int64       `json:"timestamp"`
	CreationTimestamp int64       `json:"creationTimestamp"`
	Inputs            []apiInput  `json:"inputs"`
	Outputs           []apiOutput `json:"outputs"`
}

type apiBlock struct {
	ID     string `json:"id"`
	Height int64  `json:"height"`
}

type itemsResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func (t apiTransaction) toDomain(confirmed bool) *chain.Transaction {
	tx := &chain.Transaction{
		ID:        strings.ToLower(t.ID),
		Confirmed: confirmed,
		Height:    t.InclusionHeight,
	}
	ts := t.Timestamp
	if ts == 0 {
		ts = t.CreationTimestamp
	}
	if ts > 0 {
		tx.CreatedAt = time.UnixMilli(ts).UTC()
	}
	for _, in := range t.Inputs {
		tx.Inputs = append(tx.Inputs, chain.Input{Address: in.Address})
	}
	for _, out := range t.Outputs {
		o := chain.Output{Address: out.Address, Value: out.Value}
		for _, a := range out.Assets {
			o.Assets = append(o.Assets, chain.Asset{TokenID: a.TokenID, Amount: a.Amount})
		}
		tx.Outputs = append(tx.Outputs, o)
	}
	return tx
}

// GetTransaction fetches a transaction by id. Malformed ids fail before any request.
func (c *Client) GetTransaction(ctx context.Context, txID string) (*chain.Transaction, error) {
	id, err := chain.NormalizeTxID(txID)
	if err != nil {
		return nil, err
	}
	var out apiTransaction
	if err := c.get(ctx, "transaction", "/api/v1/transactions/"+id, nil, &out); err != nil {
		return nil, err
	}
	confirmed := out.InclusionHeight > 0 || out.NumConfirmations > 0
	return out.toDomain(confirmed), nil
}

// GetMempoolTransactionsByAddress lists unconfirmed transactions touching address.
func (c *Client) GetMempoolTransactionsByAddress(ctx context.Context, address string) ([]*chain.Transaction, error) {
	if address == "" {
		return nil, errors.New("address is required")
	}
	var out itemsResponse[apiTransaction]
	if err := c.get(ctx, "mempool", "/api/v1/mempool/transactions/byAddress/"+url.PathEscape(address), nil, &out); err != nil {
		return nil, err
	}
	txs := make([]*chain.Transaction, 0, len(out.Items))
	for _, t := range out.Items {
		txs = append(txs, t.toDomain(false))
	}
	return txs, nil
}

// GetConfirmedTransactionsByAddress lists recent confirmed transactions touching address.
func (c *Client) GetConfirmedTransactionsByAddress(ctx context.Context, address string, limit int, sort chain.SortDirection) ([]*chain.Transaction, error) {
	if address == "" {
		return nil, errors.New("address is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if sort == "" {
		sort = chain.SortDesc
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sortDirection", string(sort))
	var out itemsResponse[apiTransaction]
	if err := c.get(ctx, "address", "/api/v1/addresses/"+url.PathEscape(address)+"/transactions", q, &out); err != nil {
		return nil, err
	}
	txs := make([]*chain.Transaction, 0, len(out.Items))
	for _, t := range out.Items {
		txs = append(txs, t.toDomain(true))
	}
	return txs, nil
}

// GetLatestBlock returns the tip header.
func (c *Client) GetLatestBlock(ctx context.Context) (*chain.Block, error) {
	q := url.Values{}
	q.Set("limit", "1")
	q.Set("sortBy", "height")
	q.Set("sortDirection", "desc")
	var out itemsResponse[apiBlock]
	if err := c.get(ctx, "block", "/api/v1/blocks", q, &out); err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, chain.ErrNotFound
	}
	return &chain.Block{Hash: out.Items[0].ID, Height: out.Items[0].Height}, nil
}

func (c *Client) get(ctx context.Context, call, path string, query url.Values, out interface{}) error {
	timer := prometheus.NewTimer(metrics.ChainQueryDuration.WithLabelValues(call))
	defer timer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ChainQueryFailures.WithLabelValues(call, "transport").Inc()
		c.logger.Warn().Err(err).Str("call", call).Msg("indexer request failed")
		return fmt.Errorf("%w: %v", chain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		metrics.ChainQueryFailures.WithLabelValues(call, "not_found").Inc()
		return chain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ChainQueryFailures.WithLabelValues(call, "status").Inc()
		c.logger.Warn().Int("status", resp.StatusCode).Str("call", call).Msg("indexer returned non-2xx")
		return fmt.Errorf("%w: status %d", chain.ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.ChainQueryFailures.WithLabelValues(call, "read").Inc()
		return fmt.Errorf("%w: %v", chain.ErrUnavailable, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		metrics.ChainQueryFailures.WithLabelValues(call, "decode").Inc()
		return fmt.Errorf("%w: decode: %v", chain.ErrUnavailable, err)
	}
	return nil
}
