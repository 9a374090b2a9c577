package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/phuslu/log"
)

// NewsQuery builds the preset query of a search type. Unknown types use "general".
func NewsQuery(companyName, symbol, searchType string) string {
	switch searchType {
	case "financial":
		return fmt.Sprintf("%s financial results earnings Vietnam", companyName)
	case "strategy":
		return fmt.Sprintf("%s future plans strategy Vietnam", companyName)
	case "management":
		return fmt.Sprintf("%s CEO management outlook Vietnam", companyName)
	default:
		return fmt.Sprintf("%s %s news Vietnam", companyName, symbol)
	}
}

type CompanyNewsInput struct {
	CompanyName string `json:"company_name"`
	StockSymbol string `json:"stock_symbol"`
	SearchType  string `json:"search_type"`
}

func NewCompanyNewsTool(bc *BraveClient) tool.BaseTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "company_news",
			Desc: "Search company-specific news about a Vietnamese listed company",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"company_name": {
					Type:     "string",
					Desc:     "Full company name",
					Required: true,
				},
				"stock_symbol": {
					Type:     "string",
					Desc:     "Stock ticker symbol",
					Required: true,
				},
				"search_type": {
					Type:     "string",
					Desc:     "Type of search (default: general)",
					Enum:     []string{"general", "financial", "strategy", "management"},
					Required: false,
				},
			}),
		},
		func(ctx context.Context, input CompanyNewsInput) (*SearchOutput, error) {
			query := NewsQuery(input.CompanyName, input.StockSymbol, input.SearchType)
			out := &SearchOutput{Query: query}
			results, err := bc.Search(ctx, query)
			if err != nil {
				log.Warn().Err(err).Str("query", query).Msg("search failed")
				out.Error = fmt.Sprintf("Search failed for %s", query)
				return out, nil
			}
			out.Results = results
			return out, nil
		},
	)
}
