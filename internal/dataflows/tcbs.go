package dataflows

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// TCBSClient handles TCBS public analysis API operations
type TCBSClient struct {
	client *resty.Client
	cache  *CacheManager
}

// NewTCBSClient creates a new TCBS client
func NewTCBSClient(baseURL string, timeout time.Duration, cache *CacheManager) *TCBSClient {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; CortexVN/1.0)")

	return &TCBSClient{
		client: client,
		cache:  cache,
	}
}

// NewTCBSCache returns the cache used for TCBS responses
func NewTCBSCache(dataCacheDir string, enabled bool) *CacheManager {
	return NewCacheManager(filepath.Join(dataCacheDir, "tcbs"), 24*time.Hour, enabled)
}

var dividendColumns = []struct {
	field string
	label string
}{
	{"exerciseDate", "exercise_date"},
	{"cashYear", "cash_year"},
	{"cashDividendPercentage", "cash_dividend_percentage"},
	{"issueMethod", "issue_method"},
}

// Dividends fetches the dividend payment history of a symbol.
func (tc *TCBSClient) Dividends(ctx context.Context, symbol string) (*Table, error) {
	path := fmt.Sprintf("/tcanalysis/v1/company/%s/dividend-payment-histories", symbol)
	query := map[string]string{"page": "0", "size": "15"}

	cacheKey := map[string]any{"path": path, "query": query}
	body, ok := tc.cache.Get("tcbs", "dividends", cacheKey)
	if !ok {
		resp, err := tc.client.R().
			SetContext(ctx).
			SetQueryParams(query).
			Get(path)
		if err != nil {
			return nil, fmt.Errorf("tcbs dividends request failed: %w", err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("tcbs dividends returned status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
		}
		body = resp.Body()
		tc.cache.Set("tcbs", "dividends", cacheKey, body)
	}

	var envelope struct {
		ListDividendPaymentHis []map[string]any `json:"listDividendPaymentHis"`
	}
	if err := decodeNumbers(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode dividends: %w", err)
	}
	if len(envelope.ListDividendPaymentHis) == 0 {
		return nil, fmt.Errorf("dividends for %s: %w", symbol, ErrNoData)
	}

	table := &Table{Name: TableDividendSchedule}
	for _, c := range dividendColumns {
		table.Columns = append(table.Columns, Column{Metric: c.label})
	}
	for _, r := range envelope.ListDividendPaymentHis {
		row := make([]any, len(dividendColumns))
		for i, c := range dividendColumns {
			row[i] = cellFromJSON(r[c.field])
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
