package provision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/sabio/superset-autodash/pkg/advisor"
	"github.com/sabio/superset-autodash/pkg/superset"
)

// Provisioner realizes chart suggestions against a Superset server:
// dataset, then charts, then a dashboard, each step gated on the one before.
// All side effects are remote and irreversible; there is no compensating
// transaction, and a failure mid-chain leaves the earlier objects behind.
type Provisioner struct {
	client *superset.Client
}

// NewProvisioner creates a Provisioner over the given client.
func NewProvisioner(client *superset.Client) *Provisioner {
	return &Provisioner{client: client}
}

// ChartFailure records one chart-creation call that failed. Failures do not
// abort the remaining suggestions.
type ChartFailure struct {
	Title  string    `json:"title"`
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
}

// Result is the outcome of a provisioning run. Charts holds the successful
// creations; Failed the per-suggestion failures. Requested-vs-created
// accounting backs the "N of M charts created" summary.
type Result struct {
	Dataset   *superset.DatasetRecord   `json:"dataset"`
	Charts    []superset.ChartRecord    `json:"charts"`
	Failed    []ChartFailure            `json:"failed,omitempty"`
	Dashboard *superset.DashboardRecord `json:"dashboard"`
	Requested int                       `json:"requested"`
}

// Partial reports whether some, but not all, chart creations succeeded.
func (r *Result) Partial() bool {
	return len(r.Failed) > 0 && len(r.Charts) > 0
}

// Summary renders the chart accounting for user-facing messages.
func (r *Result) Summary() string {
	return fmt.Sprintf("%d of %d charts created", len(r.Charts), r.Requested)
}

// Provision runs the sequential chain. Chart creations for independent
// suggestions run concurrently; all are awaited before the dashboard step.
func (p *Provisioner) Provision(ctx context.Context, cred *superset.Credential, ref superset.TableReference, suggestions []advisor.ChartSuggestion) (*Result, error) {
	if err := ref.Validate(); err != nil {
		return nil, &Error{Kind: KindServerRejected, Step: "validate", Detail: err.Error()}
	}
	if len(suggestions) == 0 {
		return nil, &Error{Kind: KindNoChartsCreated, Step: "validate", Detail: "no chart suggestions to provision"}
	}

	dataset, err := p.ensureDataset(ctx, cred, ref)
	if err != nil {
		return nil, err
	}

	result := &Result{Dataset: dataset, Requested: len(suggestions)}
	p.createCharts(ctx, cred, dataset.ID, suggestions, result)

	for _, failure := range result.Failed {
		if failure.Kind == KindAuthExpired {
			return nil, &Error{Kind: KindAuthExpired, Step: "create charts", Detail: "session expired during chart creation"}
		}
	}

	if len(result.Charts) == 0 {
		return nil, &Error{
			Kind:   KindNoChartsCreated,
			Step:   "create charts",
			Detail: fmt.Sprintf("all %d chart creations failed", result.Requested),
		}
	}

	if err := p.assembleDashboard(ctx, cred, ref, result); err != nil {
		return nil, err
	}

	return result, nil
}

// ensureDataset creates the dataset record, reusing an existing one when the
// server reports a conflict and the lookup can find its id.
func (p *Provisioner) ensureDataset(ctx context.Context, cred *superset.Credential, ref superset.TableReference) (*superset.DatasetRecord, error) {
	dataset, err := p.client.CreateDataset(ctx, cred, ref)
	if err == nil {
		return dataset, nil
	}

	if errors.Is(err, superset.ErrAlreadyExists) {
		log.Printf("dataset %q already exists, looking up existing id", ref.TableName)
		existing, lookupErr := p.client.FindDataset(ctx, cred, ref)
		if lookupErr == nil && existing != nil {
			return existing, nil
		}
		detail := fmt.Sprintf("dataset %q already exists but could not be found via the API", ref.TableName)
		return nil, &Error{Kind: KindDatasetConflict, Step: "create dataset", Detail: detail, Err: lookupErr}
	}

	return nil, &Error{Kind: classify(err), Step: "create dataset", Detail: "dataset creation failed", Err: err}
}

// createCharts issues the chart-creation calls concurrently and waits for
// all of them. One suggestion failing does not stop the others.
func (p *Provisioner) createCharts(ctx context.Context, cred *superset.Credential, datasetID int, suggestions []advisor.ChartSuggestion, result *Result) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, s := range suggestions {
		wg.Add(1)
		go func(s advisor.ChartSuggestion) {
			defer wg.Done()

			record, err := p.createChart(ctx, cred, datasetID, s)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, ChartFailure{
					Title:  s.Title,
					Kind:   chartFailureKind(err),
					Reason: err.Error(),
				})
				return
			}
			result.Charts = append(result.Charts, *record)
		}(s)
	}

	wg.Wait()
}

func (p *Provisioner) createChart(ctx context.Context, cred *superset.Credential, datasetID int, s advisor.ChartSuggestion) (*superset.ChartRecord, error) {
	params, err := buildChartParams(datasetID, s)
	if err != nil {
		return nil, err
	}
	return p.client.CreateChart(ctx, cred, datasetID, s.Title, resolveVizType(s.VizType), params)
}

func chartFailureKind(err error) ErrorKind {
	if errors.Is(err, superset.ErrAuthExpired) {
		return KindAuthExpired
	}
	return KindChartCreationFailed
}

// assembleDashboard creates the dashboard, pushes the layout and links the
// charts. Linking failures are tolerated: the layout already references the
// charts, so a failed link degrades the dashboard rather than losing it.
func (p *Provisioner) assembleDashboard(ctx context.Context, cred *superset.Credential, ref superset.TableReference, result *Result) error {
	title := fmt.Sprintf("Dashboard - %s (%d charts)", ref.TableName, len(result.Charts))

	dashboard, err := p.client.CreateDashboard(ctx, cred, title)
	if err != nil {
		return &Error{Kind: classify(err), Step: "create dashboard", Detail: "dashboard creation failed", Err: err}
	}

	position, err := buildPositionJSON(result.Charts)
	if err != nil {
		return &Error{Kind: KindServerRejected, Step: "layout dashboard", Detail: "could not build layout", Err: err}
	}

	if err := p.client.UpdateDashboardPosition(ctx, cred, dashboard.ID, title, position); err != nil {
		return &Error{Kind: classify(err), Step: "layout dashboard", Detail: "could not apply layout", Err: err}
	}

	for _, chart := range result.Charts {
		if err := p.client.AddChartToDashboard(ctx, cred, chart.ID, dashboard.ID); err != nil {
			log.Printf("warning: failed to link chart %d to dashboard %d: %v", chart.ID, dashboard.ID, err)
		}
	}

	result.Dashboard = dashboard
	return nil
}
