package consts

// Agents of the default crew definition.
const (
	FinancialDataAnalyst = "financial_data_analyst"
	NewsResearchAnalyst  = "news_research_analyst"
)
