package advisor

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/sabio/superset-autodash/pkg/schema"
)

// Chart types and aggregation functions the provisioner understands. Model
// output outside these sets is coerced, never passed through.
var (
	validVizTypes = map[string]bool{
		VizBar:       true,
		VizPie:       true,
		VizLine:      true,
		VizBigNumber: true,
	}
	validAggFuncs = map[string]bool{
		"SUM": true, "AVG": true, "COUNT": true, "MAX": true, "MIN": true,
	}
)

// Advisory chart types, matching the instruction template.
const (
	VizBar       = "dist_bar"
	VizPie       = "pie"
	VizLine      = "line"
	VizBigNumber = "big_number_total"
)

// MetricCount is the pseudo-metric for plain row counts.
const MetricCount = "count"

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")
	jsonArrayRe  = regexp.MustCompile(`(?s)\[.*\]`)
)

const matchCutoff = 0.7

// extractJSONArray pulls a JSON array out of model output, tolerating fenced
// code blocks and conversational wrapping.
func extractJSONArray(text string) (string, bool) {
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := jsonArrayRe.FindString(text); m != "" {
		return m, true
	}
	return "", false
}

// parseSuggestions parses model output into suggestions. Unparseable output
// is a parse failure, not a guess.
func parseSuggestions(text string) ([]ChartSuggestion, error) {
	raw, ok := extractJSONArray(text)
	if !ok {
		return nil, &Error{Kind: KindParseFailed, Detail: "no JSON array found in model output"}
	}

	var suggestions []ChartSuggestion
	if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
		return nil, &Error{Kind: KindParseFailed, Detail: "model output is not a valid suggestion list", Err: err}
	}

	return suggestions, nil
}

// validateSuggestions sanitizes parsed suggestions against the table summary:
// unknown fields are fuzzy-matched to real columns, invalid enums coerced to
// safe defaults, and chart types are downgraded when the data cannot support
// them. Suggestions are advisory; semantic correctness stays the model's
// responsibility.
func validateSuggestions(suggestions []ChartSuggestion, summary *schema.TableSummary) []ChartSuggestion {
	var cols, numeric, temporal []string
	if summary != nil {
		cols = summary.ColumnNames()
		numeric = summary.NumericColumns()
		temporal = summary.TemporalColumns()
	}

	validated := make([]ChartSuggestion, 0, len(suggestions))
	for _, s := range suggestions {
		s.Title = strings.TrimSpace(s.Title)
		s.VizType = strings.ToLower(strings.TrimSpace(s.VizType))
		if !validVizTypes[s.VizType] {
			s.VizType = VizBar
		}

		s.AggFunc = strings.ToUpper(strings.TrimSpace(s.AggFunc))
		if !validAggFuncs[s.AggFunc] {
			s.AggFunc = "COUNT"
		}

		s.Metric = resolveMetric(s.Metric, cols)
		if summary != nil && s.Metric != MetricCount && !contains(numeric, s.Metric) && (s.AggFunc == "SUM" || s.AggFunc == "AVG") {
			s.AggFunc = "COUNT"
		}

		s.GroupBy = resolveGroupBy(s.GroupBy, cols)

		// A line chart needs a time axis; downgrade to bars otherwise.
		if s.VizType == VizLine && !isTemporal(s.GroupBy, temporal) {
			s.VizType = VizBar
		}
		if s.VizType == VizBigNumber {
			s.GroupBy = ""
		}
		if s.VizType == VizPie && s.GroupBy == "" {
			s.VizType = VizBigNumber
		}

		if s.Title == "" {
			s.Title = s.AggFunc + " of " + s.Metric
		}

		validated = append(validated, s)
	}
	return validated
}

func resolveMetric(metric string, cols []string) string {
	metric = strings.TrimSpace(metric)
	if metric == "" || strings.EqualFold(metric, MetricCount) {
		return MetricCount
	}
	if len(cols) == 0 {
		return metric
	}
	if match, ok := closestMatch(metric, cols, matchCutoff); ok {
		return match
	}
	return MetricCount
}

func resolveGroupBy(groupBy string, cols []string) string {
	groupBy = strings.TrimSpace(groupBy)
	switch strings.ToLower(groupBy) {
	case "", "null", "none":
		return ""
	}
	if len(cols) == 0 {
		return groupBy
	}
	if match, ok := closestMatch(groupBy, cols, matchCutoff); ok {
		return match
	}
	return ""
}

// isTemporal accepts inferred datetime columns plus the usual date-ish names
// for summaries that arrive without type information.
func isTemporal(col string, temporal []string) bool {
	if col == "" {
		return false
	}
	if contains(temporal, col) {
		return true
	}
	lower := strings.ToLower(col)
	return strings.Contains(lower, "date") || strings.Contains(lower, "year") || strings.Contains(lower, "month")
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
