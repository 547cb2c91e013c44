package server

import (
	"github.com/sabio/superset-autodash/pkg/advisor"
	"github.com/sabio/superset-autodash/pkg/provision"
	"github.com/sabio/superset-autodash/pkg/schema"
)

// ProvisionRequest is the body of the two dashboard-creation operations.
// Columns may carry the schema summary produced by the upload preview; the
// from-table operation additionally carries explicit suggestions.
type ProvisionRequest struct {
	DatabaseID  int                       `json:"database_id"`
	Schema      string                    `json:"schema"`
	TableName   string                    `json:"table_name"`
	Prompt      string                    `json:"prompt,omitempty"`
	RowCount    int                       `json:"row_count,omitempty"`
	Columns     []schema.Column           `json:"columns,omitempty"`
	Suggestions []advisor.ChartSuggestion `json:"suggestions,omitempty"`
}

// summary assembles a schema.TableSummary when columns were supplied.
func (r *ProvisionRequest) summary() *schema.TableSummary {
	if len(r.Columns) == 0 {
		return nil
	}
	return &schema.TableSummary{
		TableName: r.TableName,
		RowCount:  r.RowCount,
		Columns:   r.Columns,
	}
}

// SuggestionsResponse is the body returned by the suggestions-only endpoint.
type SuggestionsResponse struct {
	TableName   string                    `json:"table_name"`
	Suggestions []advisor.ChartSuggestion `json:"suggestions"`
}

// DashboardResponse is the user-facing result of a provisioning run.
type DashboardResponse struct {
	DashboardID  int                      `json:"dashboard_id"`
	DashboardURL string                   `json:"dashboard_url"`
	DatasetID    int                      `json:"dataset_id"`
	ChartIDs     []int                    `json:"chart_ids"`
	Summary      string                   `json:"summary"`
	Failed       []provision.ChartFailure `json:"failed,omitempty"`
}

func newDashboardResponse(result *provision.Result) DashboardResponse {
	chartIDs := make([]int, 0, len(result.Charts))
	for _, chart := range result.Charts {
		chartIDs = append(chartIDs, chart.ID)
	}

	return DashboardResponse{
		DashboardID:  result.Dashboard.ID,
		DashboardURL: result.Dashboard.URL,
		DatasetID:    result.Dataset.ID,
		ChartIDs:     chartIDs,
		Summary:      result.Summary(),
		Failed:       result.Failed,
	}
}
