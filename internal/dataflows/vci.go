package dataflows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Statement sections of the Vietcap IQ financial-statement endpoint.
const (
	SectionBalanceSheet    = "BALANCE_SHEET"
	SectionIncomeStatement = "INCOME_STATEMENT"
	SectionCashFlow        = "CASH_FLOW"
)

// ErrNoData reports that an upstream returned no usable rows.
var ErrNoData = errors.New("no data returned")

const companiesListingQuery = `query Query { CompaniesListingInfo { ticker organName enOrganName icbName3 enIcbName3 } }`

// annualLengthReport marks a yearly row in the lengthReport field.
const annualLengthReport = 5

// SourceOptions selects period, language and column filtering of fetched tables.
type SourceOptions struct {
	Period string
	Lang   string
	DropNA bool
}

func (o SourceOptions) keepRow(lengthReport any) bool {
	n, ok := lengthReport.(json.Number)
	if !ok {
		return true
	}
	v, err := n.Int64()
	if err != nil {
		return true
	}
	if o.Period == "quarter" {
		return v != annualLengthReport
	}
	return v == annualLengthReport
}

// VCIClient handles Vietcap IQ insight and listing API operations
type VCIClient struct {
	client     *resty.Client
	cache      *CacheManager
	graphQLURL string
}

// NewVCIClient creates a new Vietcap client
func NewVCIClient(baseURL, graphQLURL string, timeout time.Duration, cache *CacheManager) *VCIClient {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeaders(map[string]string{
		"Accept":     "application/json",
		"User-Agent": "Mozilla/5.0 (compatible; CortexVN/1.0)",
		"Referer":    "https://trading.vietcap.com.vn/",
		"Origin":     "https://trading.vietcap.com.vn",
	})

	return &VCIClient{
		client:     client,
		cache:      cache,
		graphQLURL: graphQLURL,
	}
}

// NewVCICache returns the cache used for Vietcap responses
func NewVCICache(dataCacheDir string, enabled bool) *CacheManager {
	return NewCacheManager(filepath.Join(dataCacheDir, "vci"), 12*time.Hour, enabled)
}

type statementMetric struct {
	Field   string `json:"field"`
	TitleEn string `json:"titleEn"`
	TitleVi string `json:"titleVi"`
	Level   int    `json:"level"`
}

// get issues a GET request and returns the body, consulting the cache first.
func (vc *VCIClient) get(ctx context.Context, method, path string, query map[string]string) ([]byte, error) {
	cacheKey := map[string]any{"path": path, "query": query}
	if body, ok := vc.cache.Get("vci", method, cacheKey); ok {
		return body, nil
	}

	resp, err := vc.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("vci %s request failed: %w", method, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("vci %s returned status %d: %s", method, resp.StatusCode(), truncate(resp.String(), 200))
	}

	body := resp.Body()
	vc.cache.Set("vci", method, cacheKey, body)
	return body, nil
}

func (vc *VCIClient) statementMetrics(ctx context.Context, symbol string) (map[string][]statementMetric, error) {
	body, err := vc.get(ctx, "statement_metrics", fmt.Sprintf("/company/%s/financial-statement/metrics", symbol), nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data map[string][]statementMetric `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode statement metrics: %w", err)
	}
	return envelope.Data, nil
}

// FinancialStatement fetches one statement section as a single-level table.
func (vc *VCIClient) FinancialStatement(ctx context.Context, symbol, section, name string, opts SourceOptions) (*Table, error) {
	metrics, err := vc.statementMetrics(ctx, symbol)
	if err != nil {
		return nil, err
	}

	body, err := vc.get(ctx, "financial_statement", fmt.Sprintf("/company/%s/financial-statement", symbol),
		map[string]string{"section": section})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data struct {
			Years    []map[string]any `json:"years"`
			Quarters []map[string]any `json:"quarters"`
		} `json:"data"`
	}
	if err := decodeNumbers(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s: %w", strings.ToLower(section), err)
	}

	rows := envelope.Data.Years
	if opts.Period == "quarter" {
		rows = envelope.Data.Quarters
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s for %s: %w", strings.ToLower(section), symbol, ErrNoData)
	}

	fields := []string{"ticker", "yearReport", "lengthReport"}
	labels := []string{"ticker", "yearReport", "lengthReport"}
	for _, m := range metrics[section] {
		if !anyRowHas(rows, m.Field) {
			continue
		}
		title := m.TitleEn
		if opts.Lang == "vi" && m.TitleVi != "" {
			title = m.TitleVi
		}
		if title == "" {
			title = m.Field
		}
		fields = append(fields, m.Field)
		labels = append(labels, title)
	}

	table := &Table{Name: name}
	for _, l := range labels {
		table.Columns = append(table.Columns, Column{Metric: l})
	}
	for _, r := range rows {
		row := make([]any, len(fields))
		for i, f := range fields {
			row[i] = cellFromJSON(r[f])
		}
		table.Rows = append(table.Rows, row)
	}
	if opts.DropNA {
		table.DropEmptyColumns()
	}
	return table, nil
}

// ratioField maps a statistics-financial field onto its (category, metric) label pair.
type ratioField struct {
	Field      string
	CategoryEn string
	MetricEn   string
	CategoryVi string
	MetricVi   string
}

var ratioFields = []ratioField{
	{"ticker", MetaCategory, "ticker", MetaCategory, "CP"},
	{"yearReport", MetaCategory, "yearReport", MetaCategory, "Năm"},
	{"lengthReport", MetaCategory, "lengthReport", MetaCategory, "Kỳ"},

	{"stLtBorrowingsToEquity", "Capital Structure", "(ST+LT borrowings)/Equity", "Chỉ tiêu cơ cấu nguồn vốn", "(Vay NH+DH)/VCSH"},
	{"de", "Capital Structure", "Debt/Equity", "Chỉ tiêu cơ cấu nguồn vốn", "Nợ/VCSH"},
	{"fixedAssetToEquity", "Capital Structure", "Fixed Asset-To-Equity", "Chỉ tiêu cơ cấu nguồn vốn", "TSCĐ / Vốn CSH"},
	{"equityToCharterCapital", "Capital Structure", "Owners' Equity/Charter Capital", "Chỉ tiêu cơ cấu nguồn vốn", "Vốn CSH/Vốn điều lệ"},

	{"assetTurnover", "Efficiency", "Asset Turnover", "Chỉ tiêu hiệu quả hoạt động", "Vòng quay tài sản"},
	{"fixedAssetTurnover", "Efficiency", "Fixed Asset Turnover", "Chỉ tiêu hiệu quả hoạt động", "Vòng quay TSCĐ"},
	{"daysSalesOutstanding", "Efficiency", "Days Sales Outstanding", "Chỉ tiêu hiệu quả hoạt động", "Số ngày thu tiền bình quân"},
	{"daysInventoryOutstanding", "Efficiency", "Days Inventory Outstanding", "Chỉ tiêu hiệu quả hoạt động", "Số ngày tồn kho bình quân"},
	{"daysPayableOutstanding", "Efficiency", "Days Payable Outstanding", "Chỉ tiêu hiệu quả hoạt động", "Số ngày thanh toán bình quân"},
	{"cashCycle", "Efficiency", "Cash Cycle", "Chỉ tiêu hiệu quả hoạt động", "Chu kỳ tiền"},
	{"inventoryTurnover", "Efficiency", "Inventory Turnover", "Chỉ tiêu hiệu quả hoạt động", "Vòng quay hàng tồn kho"},

	{"ebitMargin", "Profitability", "EBIT Margin (%)", "Chỉ tiêu khả năng sinh lợi", "Biên EBIT (%)"},
	{"grossMargin", "Profitability", "Gross Profit Margin (%)", "Chỉ tiêu khả năng sinh lợi", "Biên lợi nhuận gộp (%)"},
	{"netMargin", "Profitability", "Net Profit Margin (%)", "Chỉ tiêu khả năng sinh lợi", "Biên lợi nhuận ròng (%)"},
	{"roe", "Profitability", "ROE (%)", "Chỉ tiêu khả năng sinh lợi", "ROE (%)"},
	{"roic", "Profitability", "ROIC (%)", "Chỉ tiêu khả năng sinh lợi", "ROIC (%)"},
	{"roa", "Profitability", "ROA (%)", "Chỉ tiêu khả năng sinh lợi", "ROA (%)"},
	{"ebitda", "Profitability", "EBITDA (Bn. VND)", "Chỉ tiêu khả năng sinh lợi", "EBITDA (Tỷ đồng)"},
	{"ebit", "Profitability", "EBIT (Bn. VND)", "Chỉ tiêu khả năng sinh lợi", "EBIT (Tỷ đồng)"},
	{"dividendYield", "Profitability", "Dividend yield (%)", "Chỉ tiêu khả năng sinh lợi", "Tỷ suất cổ tức (%)"},

	{"currentRatio", "Liquidity", "Current Ratio", "Chỉ tiêu thanh khoản", "Chỉ số thanh toán hiện thời"},
	{"cashRatio", "Liquidity", "Cash Ratio", "Chỉ tiêu thanh khoản", "Chỉ số thanh toán tiền mặt"},
	{"quickRatio", "Liquidity", "Quick Ratio", "Chỉ tiêu thanh khoản", "Chỉ số thanh toán nhanh"},
	{"interestCoverage", "Liquidity", "Interest Coverage", "Chỉ tiêu thanh khoản", "Khả năng chi trả lãi vay"},
	{"financialLeverage", "Liquidity", "Financial Leverage", "Chỉ tiêu thanh khoản", "Đòn bẩy tài chính"},

	{"marketCap", "Valuation", "Market Capital (Bn. VND)", "Chỉ tiêu định giá", "Vốn hóa (Tỷ đồng)"},
	{"outstandingShare", "Valuation", "Outstanding Share (Mil. Shares)", "Chỉ tiêu định giá", "Số CP lưu hành (Triệu CP)"},
	{"pe", "Valuation", "P/E", "Chỉ tiêu định giá", "P/E"},
	{"pb", "Valuation", "P/B", "Chỉ tiêu định giá", "P/B"},
	{"ps", "Valuation", "P/S", "Chỉ tiêu định giá", "P/S"},
	{"pcf", "Valuation", "P/Cash Flow", "Chỉ tiêu định giá", "P/Cash Flow"},
	{"eps", "Valuation", "EPS (VND)", "Chỉ tiêu định giá", "EPS (VND)"},
	{"bvps", "Valuation", "BVPS (VND)", "Chỉ tiêu định giá", "BVPS (VND)"},
	{"evPerEbitda", "Valuation", "EV/EBITDA", "Chỉ tiêu định giá", "EV/EBITDA"},
}

// FinancialRatios fetches the ratio table with multi-level columns.
func (vc *VCIClient) FinancialRatios(ctx context.Context, symbol string, opts SourceOptions) (*Table, error) {
	body, err := vc.get(ctx, "financial_ratios", fmt.Sprintf("/company/%s/statistics-financial", symbol), nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := decodeNumbers(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode financial ratios: %w", err)
	}

	var rows []map[string]any
	for _, r := range envelope.Data {
		if opts.keepRow(r["lengthReport"]) {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("financial ratios for %s: %w", symbol, ErrNoData)
	}

	table := &Table{Name: TableFinancialRatios, MultiLevel: true}
	var fields []string
	for _, rf := range ratioFields {
		if !anyRowHas(rows, rf.Field) {
			continue
		}
		col := Column{Category: rf.CategoryEn, Metric: rf.MetricEn}
		if opts.Lang == "vi" {
			col = Column{Category: rf.CategoryVi, Metric: rf.MetricVi}
		}
		fields = append(fields, rf.Field)
		table.Columns = append(table.Columns, col)
	}
	for _, r := range rows {
		row := make([]any, len(fields))
		for i, f := range fields {
			row[i] = cellFromJSON(r[f])
		}
		table.Rows = append(table.Rows, row)
	}
	if opts.DropNA {
		table.DropEmptyColumns()
	}
	return table, nil
}

type ListedCompany struct {
	Ticker      string `json:"ticker"`
	OrganName   string `json:"organName"`
	EnOrganName string `json:"enOrganName"`
	IcbName3    string `json:"icbName3"`
	EnIcbName3  string `json:"enIcbName3"`
}

// CompanyListing fetches every listed company keyed by ticker.
func (vc *VCIClient) CompanyListing(ctx context.Context) (map[string]ListedCompany, error) {
	cacheKey := map[string]string{"query": companiesListingQuery}
	body, ok := vc.cache.Get("vci", "companies_listing", cacheKey)
	if !ok {
		resp, err := vc.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]any{"query": companiesListingQuery, "variables": map[string]any{}}).
			Post(vc.graphQLURL)
		if err != nil {
			return nil, fmt.Errorf("vci listing request failed: %w", err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("vci listing returned status %d", resp.StatusCode())
		}
		body = resp.Body()
		vc.cache.Set("vci", "companies_listing", cacheKey, body)
	}

	var envelope struct {
		Data struct {
			CompaniesListingInfo []ListedCompany `json:"CompaniesListingInfo"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	if len(envelope.Data.CompaniesListingInfo) == 0 {
		return nil, fmt.Errorf("company listing: %w", ErrNoData)
	}

	out := make(map[string]ListedCompany, len(envelope.Data.CompaniesListingInfo))
	for _, c := range envelope.Data.CompaniesListingInfo {
		out[NormalizeSymbol(c.Ticker)] = c
	}
	return out, nil
}

func decodeNumbers(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

func anyRowHas(rows []map[string]any, field string) bool {
	for _, r := range rows {
		if _, ok := r[field]; ok {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
