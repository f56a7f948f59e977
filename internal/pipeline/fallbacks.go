package pipeline

import (
	"fmt"

	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
)

const (
	// GenerationTimeoutHint is returned when the SQL writer does not answer in time.
	GenerationTimeoutHint = "AI query generation timed out. Please try a simpler question."

	noDataSummary       = "No data found matching the query criteria."
	simpleTimeoutAnswer = "I'm here to help with your payment and transaction questions. Could you please rephrase your question?"

	summaryRowLimit    = 50
	digestPreviewRunes = 100
)

func ptr(s string) *string { return &s }

func noDataResult() *llm.DataSummary {
	return &llm.DataSummary{
		Summary:        noDataSummary,
		KeyInsights:    []string{"No transactions found for the specified criteria"},
		Recommendation: ptr("Try adjusting search parameters or check transaction IDs"),
	}
}

func summaryFallback(records int) *llm.DataSummary {
	return &llm.DataSummary{
		Summary:        fmt.Sprintf("Query executed successfully. Retrieved %d records.", records),
		KeyInsights:    []string{fmt.Sprintf("Found %d matching records", records)},
		Recommendation: ptr("Data retrieved successfully. Summary generation timed out."),
	}
}

func simpleFallback() *llm.DataSummary {
	return &llm.DataSummary{
		Summary:        simpleTimeoutAnswer,
		KeyInsights:    []string{"Response generation timed out"},
		Recommendation: ptr("Please try asking your question again or be more specific."),
	}
}

func responseSummaryTimeout(summary string) string {
	r := []rune(summary)
	if len(r) > digestPreviewRunes {
		r = r[:digestPreviewRunes]
	}
	return fmt.Sprintf("Summary: %s... (Summary generation timed out)", string(r))
}

func responseSummaryFailed(err error) string {
	return "Summary generation failed: " + err.Error()
}
