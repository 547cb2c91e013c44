package advisor

import (
	"fmt"
	"strings"

	"github.com/sabio/superset-autodash/pkg/schema"
)

const suggestionInstructions = `Your goal is to suggest 4-6 diverse, meaningful, and accurate visualizations to summarize this data.
- Analyze the column names and data types to understand the semantic meaning (e.g., time, category, money).
- Suggest charts that reveal key insights, trends, or distributions.

CRITICAL INSTRUCTIONS:
1. Return ONLY a valid JSON array of objects.
2. "viz_type" MUST be strictly one of: ["dist_bar", "pie", "line", "big_number_total"].
   - Use "dist_bar" for categorical comparisons or time-series bars.
   - Use "line" ONLY if there is a clear time series or ordered numerical x-axis.
   - Use "pie" for part-to-whole comparisons (few categories).
   - Use "big_number_total" for single aggregate metrics (e.g. Total Revenue).
3. "agg_func" MUST be one of: ["SUM", "AVG", "COUNT", "MAX", "MIN"].
4. Ensure "metric" is a numeric column (or "count").
5. Valid JSON only. No markdown formatting, no conversational text.

Example JSON output structure:
[
  {
    "title": "Revenue by Region",
    "viz_type": "dist_bar",
    "metric": "sales_amount",
    "group_by": "region",
    "agg_func": "SUM"
  }
]`

// buildSuggestionPrompt renders the fixed instruction template for a table
// summary and optional free-text user prompt.
func buildSuggestionPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("You are an expert Data Analyst and Visualization Architect.\n")

	if req.Summary != nil {
		fmt.Fprintf(&b, "I have a dataset '%s' with the following columns:\n", req.Summary.TableName)
		for _, col := range req.Summary.Columns {
			writeColumnLine(&b, col)
		}
	} else {
		fmt.Fprintf(&b, "I have a dataset '%s'.\n", req.TableName)
	}

	if req.Prompt != "" {
		fmt.Fprintf(&b, "\nThe user asked: %q\nPrioritize charts that answer the user's request.\n", req.Prompt)
	}

	b.WriteString("\n")
	b.WriteString(suggestionInstructions)
	return b.String()
}

func writeColumnLine(b *strings.Builder, col schema.Column) {
	fmt.Fprintf(b, "- %s (%s)", col.Name, col.Type)
	if len(col.Samples) > 0 {
		fmt.Fprintf(b, ": e.g., %s", strings.Join(col.Samples, ", "))
	}
	b.WriteString("\n")
}
