package dataflows

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordsKeepColumnOrder(t *testing.T) {
	tbl := &Table{
		Columns: []Column{{Metric: "zeta"}, {Metric: "alpha"}, {Metric: "mid"}},
		Rows: [][]any{
			{decimal.RequireFromString("1.50"), "x", nil},
			{decimal.NewFromInt(-2), true, "y"},
		},
	}

	data, err := json.Marshal(tbl.Records())
	require.NoError(t, err)
	assert.Equal(t, `[{"zeta":1.5,"alpha":"x","mid":null},{"zeta":-2,"alpha":true,"mid":"y"}]`, string(data))
}

func TestDropEmptyColumns(t *testing.T) {
	tbl := &Table{
		Columns: []Column{{Metric: "a"}, {Metric: "b"}, {Metric: "c"}},
		Rows: [][]any{
			{"1", nil, nil},
			{"2", nil, "3"},
		},
	}
	tbl.DropEmptyColumns()

	assert.Equal(t, []string{"a", "c"}, tbl.ColumnNames())
	assert.Equal(t, [][]any{{"1", nil}, {"2", "3"}}, tbl.Rows)
}

func TestCellFromJSON(t *testing.T) {
	d, ok := cellFromJSON(json.Number("12.345")).(decimal.Decimal)
	require.True(t, ok)
	assert.Equal(t, "12.345", d.String())

	assert.Nil(t, cellFromJSON(nil))
	assert.Equal(t, "cash", cellFromJSON("cash"))
	assert.Equal(t, true, cellFromJSON(true))
	assert.Equal(t, `[1,2]`, cellFromJSON([]any{1, 2}))
}

func TestDatasetEmpty(t *testing.T) {
	var nilDS *Dataset
	assert.True(t, nilDS.Empty())
	assert.True(t, (&Dataset{Symbol: "REE"}).Empty())

	ds := &Dataset{Symbol: "REE", Tables: map[string]*Table{TableCashFlow: {Name: TableCashFlow}}}
	assert.False(t, ds.Empty())
	assert.Equal(t, TableBalanceSheet, ds.Table(TableBalanceSheet).Name)
	assert.Equal(t, 0, ds.Table(TableBalanceSheet).Len())
}

func TestSymbolHelpers(t *testing.T) {
	assert.Equal(t, "REE", NormalizeSymbol("  ree "))
	assert.NoError(t, ValidateSymbol("vnm"))
	assert.Error(t, ValidateSymbol("   "))
	assert.Error(t, ValidateSymbol("ABCDEFGHIJK"))
}

func TestCacheManagerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cm := NewCacheManager(dir, time.Hour, true)

	_, ok := cm.Get("vci", "ratios", map[string]string{"symbol": "REE"})
	assert.False(t, ok)

	cm.Set("vci", "ratios", map[string]string{"symbol": "REE"}, []byte(`{"data":[]}`))
	body, ok := cm.Get("vci", "ratios", map[string]string{"symbol": "REE"})
	require.True(t, ok)
	assert.JSONEq(t, `{"data":[]}`, string(body))

	_, ok = cm.Get("vci", "ratios", map[string]string{"symbol": "VNM"})
	assert.False(t, ok)
}

func TestCacheManagerExpiresEntries(t *testing.T) {
	dir := t.TempDir()
	cm := NewCacheManager(dir, time.Minute, true)
	params := map[string]string{"symbol": "REE"}
	cm.Set("tcbs", "dividends", params, []byte(`{}`))

	path := filepath.Join(dir, cm.getCacheKey("tcbs", "dividends", params))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	_, ok := cm.Get("tcbs", "dividends", params)
	assert.False(t, ok)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCacheManagerDisabled(t *testing.T) {
	dir := t.TempDir()
	cm := NewCacheManager(dir, time.Hour, false)
	cm.Set("vci", "x", nil, []byte(`{}`))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	var nilCache *CacheManager
	_, ok := nilCache.Get("vci", "x", nil)
	assert.False(t, ok)
}
