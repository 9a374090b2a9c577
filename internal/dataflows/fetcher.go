package dataflows

import (
	"context"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"github.com/dyike/CortexVN/config"
)

// Fetcher gathers the statements, ratios and dividends of a symbol.
type Fetcher struct {
	vci  *VCIClient
	tcbs *TCBSClient
	opts SourceOptions
}

func NewFetcher(vci *VCIClient, tcbs *TCBSClient, opts SourceOptions) *Fetcher {
	return &Fetcher{vci: vci, tcbs: tcbs, opts: opts}
}

// NewFetcherFromConfig wires the Vietcap and TCBS clients from cfg.
func NewFetcherFromConfig(cfg *config.Config) *Fetcher {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	vci := NewVCIClient(cfg.VCIBaseURL, cfg.VCIGraphQLURL, timeout, NewVCICache(cfg.DataCacheDir, cfg.CacheEnabled))
	tcbs := NewTCBSClient(cfg.TCBSBaseURL, timeout, NewTCBSCache(cfg.DataCacheDir, cfg.CacheEnabled))
	return NewFetcher(vci, tcbs, SourceOptions{Period: cfg.Period, Lang: cfg.Lang, DropNA: cfg.DropNA})
}

// FetchFinancialData fetches all five tables with one attempt each.
// Any failure yields an empty dataset and an error wrapping ErrNoData.
func (f *Fetcher) FetchFinancialData(ctx context.Context, symbol string) (*Dataset, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return &Dataset{}, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	symbol = NormalizeSymbol(symbol)

	ds, err := f.fetchAll(ctx, symbol)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("error fetching financial data")
		return &Dataset{Symbol: symbol}, fmt.Errorf("fetch financial data for %s: %w: %v", symbol, ErrNoData, err)
	}

	log.Info().Str("symbol", symbol).Int("tables", len(ds.Tables)).Msg("financial data fetched")
	return ds, nil
}

func (f *Fetcher) fetchAll(ctx context.Context, symbol string) (*Dataset, error) {
	statements := []struct {
		section string
		name    string
	}{
		{SectionIncomeStatement, TableIncomeStatement},
		{SectionBalanceSheet, TableBalanceSheet},
		{SectionCashFlow, TableCashFlow},
	}

	ds := &Dataset{Symbol: symbol, Tables: make(map[string]*Table, len(TableNames))}
	for _, s := range statements {
		t, err := f.vci.FinancialStatement(ctx, symbol, s.section, s.name, f.opts)
		if err != nil {
			return nil, err
		}
		ds.Tables[s.name] = t
	}

	ratios, err := f.vci.FinancialRatios(ctx, symbol, f.opts)
	if err != nil {
		return nil, err
	}
	ds.Tables[TableFinancialRatios] = NormalizeRatioColumns(ratios)

	dividends, err := f.tcbs.Dividends(ctx, symbol)
	if err != nil {
		return nil, err
	}
	ds.Tables[TableDividendSchedule] = dividends

	return ds, nil
}

// CompanyInfo resolves name and industry from the listing.
// It never fails: unknown symbols fall back to (symbol, "").
func (f *Fetcher) CompanyInfo(ctx context.Context, symbol string) CompanyInfo {
	symbol = NormalizeSymbol(symbol)
	fallback := CompanyInfo{Symbol: symbol, Name: symbol}

	listing, err := f.vci.CompanyListing(ctx)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("could not fetch company info")
		return fallback
	}

	c, ok := listing[symbol]
	if !ok {
		log.Warn().Str("symbol", symbol).Msg("symbol not found in listing")
		return fallback
	}

	info := CompanyInfo{Symbol: symbol, Name: c.OrganName, Industry: c.IcbName3}
	if info.Name == "" {
		info.Name = c.EnOrganName
	}
	if info.Industry == "" {
		info.Industry = c.EnIcbName3
	}
	if info.Name == "" {
		info.Name = symbol
	}
	return info
}
