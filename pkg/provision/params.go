package provision

import (
	"encoding/json"
	"fmt"

	"github.com/sabio/superset-autodash/pkg/advisor"
)

// vizTypeMap translates advisory chart types into the viz plugins current
// Superset releases ship.
var vizTypeMap = map[string]string{
	advisor.VizBar:       "echarts_timeseries_bar",
	"bar":                "echarts_timeseries_bar",
	advisor.VizLine:      "echarts_timeseries_line",
	advisor.VizPie:       "pie",
	advisor.VizBigNumber: "big_number_total",
}

// resolveVizType maps an advisory viz type to the server-side plugin name.
// Unknown types pass through untouched so a caller can target a viz plugin
// the advisor does not know about.
func resolveVizType(vizType string) string {
	if mapped, ok := vizTypeMap[vizType]; ok {
		return mapped
	}
	return vizType
}

// buildChartParams renders the params document for a chart. Each viz plugin
// keys its metric and grouping fields differently.
func buildChartParams(datasetID int, s advisor.ChartSuggestion) (string, error) {
	vizType := resolveVizType(s.VizType)

	params := map[string]interface{}{
		"adhoc_filters":     []interface{}{},
		"row_limit":         100,
		"datasource":        fmt.Sprintf("%d__table", datasetID),
		"show_legend":       true,
		"legendOrientation": "top",
		"legendType":        "scroll",
	}

	metric := metricSpec(s)

	switch vizType {
	case "big_number_total":
		params["metric"] = metric
		params["subheader"] = ""
	case "pie":
		params["metric"] = metric
		if s.GroupBy != "" {
			params["groupby"] = []string{s.GroupBy}
		}
	case "echarts_timeseries_bar", "echarts_timeseries_line":
		params["metrics"] = []interface{}{metric}
		if s.GroupBy != "" {
			params["groupby"] = []string{}
			params["x_axis"] = s.GroupBy
		}
	default:
		params["metrics"] = []interface{}{metric}
		if s.GroupBy != "" {
			params["groupby"] = []string{s.GroupBy}
		}
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode chart params: %w", err)
	}
	return string(encoded), nil
}

// metricSpec renders either the plain "count" pseudo-metric or a SIMPLE
// adhoc metric over the named column.
func metricSpec(s advisor.ChartSuggestion) interface{} {
	if s.Metric == "" || s.Metric == advisor.MetricCount {
		return advisor.MetricCount
	}
	return map[string]interface{}{
		"expressionType": "SIMPLE",
		"column":         map[string]interface{}{"column_name": s.Metric},
		"aggregate":      s.AggFunc,
		"label":          fmt.Sprintf("%s of %s", s.AggFunc, s.Metric),
	}
}
