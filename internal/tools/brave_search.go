package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/go-resty/resty/v2"
	"github.com/phuslu/log"
)

// BraveClient handles Brave web search API operations
type BraveClient struct {
	client  *resty.Client
	apiKey  string
	results int
}

// NewBraveClient creates a new Brave search client
func NewBraveClient(baseURL, apiKey string, results int, timeout time.Duration) *BraveClient {
	if results <= 0 {
		results = 3
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	return &BraveClient{
		client:  client,
		apiKey:  apiKey,
		results: results,
	}
}

type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Age     string `json:"age,omitempty"`
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			Age         string `json:"age"`
			PageAge     string `json:"page_age"`
		} `json:"results"`
	} `json:"web"`
}

// Search runs one web search and returns at most the configured number of results.
func (bc *BraveClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if bc.apiKey == "" {
		return nil, fmt.Errorf("BRAVE_API_KEY not configured")
	}

	resp, err := bc.client.R().
		SetContext(ctx).
		SetHeader("X-Subscription-Token", bc.apiKey).
		SetQueryParams(map[string]string{
			"q":     query,
			"count": strconv.Itoa(bc.results),
		}).
		Get("/web/search")
	if err != nil {
		return nil, fmt.Errorf("brave search request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("brave search returned status %d", resp.StatusCode())
	}

	var payload braveResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}

	results := make([]SearchResult, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		if len(results) == bc.results {
			break
		}
		age := r.Age
		if age == "" {
			age = r.PageAge
		}
		results = append(results, SearchResult{
			Title:   stripHTML(r.Title),
			Link:    r.URL,
			Snippet: stripHTML(r.Description),
			Age:     age,
		})
	}
	return results, nil
}

// stripHTML drops the highlight markup Brave puts into titles and snippets.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

type SearchInput struct {
	SearchQuery string `json:"search_query"`
}

type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Error   string         `json:"error,omitempty"`
}

// NewBraveSearchTool wraps the client as an agent tool.
// Upstream failures are reported in the output so the agent can continue.
func NewBraveSearchTool(bc *BraveClient) tool.BaseTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "brave_search",
			Desc: "A tool that can be used to search the internet with a search_query.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"search_query": {
					Type:     "string",
					Desc:     "Mandatory search query you want to use to search the internet",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, input SearchInput) (*SearchOutput, error) {
			out := &SearchOutput{Query: input.SearchQuery}
			results, err := bc.Search(ctx, input.SearchQuery)
			if err != nil {
				log.Warn().Err(err).Str("query", input.SearchQuery).Msg("search failed")
				out.Error = fmt.Sprintf("Search failed for %s", input.SearchQuery)
				return out, nil
			}
			out.Results = results
			return out, nil
		},
	)
}
