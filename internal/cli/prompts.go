package cli

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/dyike/CortexVN/internal/analysis"
)

var tickerPattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// PromptForTicker prompts the user to enter a stock ticker symbol
func PromptForTicker(defaultSymbol string) (string, error) {
	var ticker string
	prompt := &survey.Input{
		Message: "Enter the stock ticker symbol (e.g., REE, VNM, FPT):",
		Help:    "A ticker listed on HOSE, HNX or UPCOM",
		Default: defaultSymbol,
	}

	err := survey.AskOne(prompt, &ticker, survey.WithValidator(validateTicker))
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(strings.ToUpper(ticker)), nil
}

func validateTicker(val interface{}) error {
	str, ok := val.(string)
	if !ok {
		return fmt.Errorf("invalid ticker type")
	}
	str = strings.TrimSpace(strings.ToUpper(str))
	if len(str) == 0 {
		return fmt.Errorf("ticker symbol cannot be empty")
	}
	if len(str) > 10 {
		return fmt.Errorf("ticker symbol too long (max 10 characters)")
	}
	if !tickerPattern.MatchString(str) {
		return fmt.Errorf("invalid ticker format (use letters and numbers only)")
	}
	return nil
}

// PromptForAnalysisType lets the user pick one of the analysis types.
func PromptForAnalysisType(defaultType string) (string, error) {
	var selected string
	prompt := &survey.Select{
		Message: "Select the analysis type:",
		Options: analysis.Types,
		Default: defaultType,
		Description: func(value string, index int) string {
			switch value {
			case analysis.TypeComprehensive:
				return "profitability, liquidity, financial health and trends"
			case analysis.TypeProfitability:
				return "margins, ROE and ROA"
			case analysis.TypeLiquidity:
				return "current ratio, quick ratio and working capital"
			}
			return ""
		},
	}

	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	return selected, nil
}

// PromptForAnother asks whether to run another analysis.
func PromptForAnother() (bool, error) {
	again := false
	prompt := &survey.Confirm{
		Message: "Analyze another symbol?",
		Default: false,
	}
	if err := survey.AskOne(prompt, &again); err != nil {
		return false, err
	}
	return again, nil
}
