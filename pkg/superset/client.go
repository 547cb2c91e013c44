package superset

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is a Superset REST API client. Every call takes the workflow's
// Credential explicitly: credentials are per-workflow state, not client
// state, and the client never re-authenticates on its own.
type Client struct {
	baseURL string
	payload PayloadBuilder
	client  *resty.Client
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL           string
	CapabilityVersion string
	Timeout           time.Duration
}

// NewClient creates a new Superset API client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		payload: NewPayloadBuilder(cfg.CapabilityVersion),
		client:  client,
	}
}

// DatasetRecord is the server-assigned identity of a created dataset.
type DatasetRecord struct {
	ID        int    `json:"id"`
	TableName string `json:"table_name"`
}

// ChartRecord is the server-assigned identity of a created chart.
type ChartRecord struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// DashboardRecord is the server-assigned identity of a created dashboard.
type DashboardRecord struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Database is a database connection registered in Superset.
type Database struct {
	ID      int    `json:"id"`
	Name    string `json:"database_name"`
	Backend string `json:"backend,omitempty"`
}

func (c *Client) request(ctx context.Context, cred *Credential) *resty.Request {
	req := c.client.R().SetContext(ctx).SetHeader("Authorization", "Bearer "+cred.Token)
	if cred.CSRFToken != "" {
		req.SetHeader("X-CSRFToken", cred.CSRFToken)
	}
	return req
}

func (c *Client) check(resp *resty.Response, endpoint string) error {
	if resp.IsSuccess() {
		return nil
	}
	return &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
}

// Ping checks the server is reachable and returns its reported version.
func (c *Client) Ping(ctx context.Context, cred *Credential) (string, error) {
	resp, err := c.request(ctx, cred).Get(c.baseURL + "/api/v1/version")
	if err != nil {
		return "", fmt.Errorf("failed to ping superset: %w", err)
	}
	if err := c.check(resp, "/api/v1/version"); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.String()), nil
}

// createResponse is the common shape of successful creation responses.
type createResponse struct {
	ID     int `json:"id"`
	Result struct {
		ID        int    `json:"id"`
		TableName string `json:"table_name"`
	} `json:"result"`
}

func (r *createResponse) id() int {
	if r.ID != 0 {
		return r.ID
	}
	return r.Result.ID
}

// CreateDataset registers dataset metadata for an existing table. A conflict
// (the dataset is already registered) surfaces as ErrAlreadyExists; callers
// that want to reuse the existing record follow up with FindDataset.
func (c *Client) CreateDataset(ctx context.Context, cred *Credential, ref TableReference) (*DatasetRecord, error) {
	var body createResponse
	resp, err := c.request(ctx, cred).
		SetBody(c.payload.DatasetPayload(ref)).
		SetResult(&body).
		Post(c.baseURL + "/api/v1/dataset/")

	if err != nil {
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}
	if err := c.check(resp, "/api/v1/dataset/"); err != nil {
		return nil, err
	}

	return &DatasetRecord{ID: body.id(), TableName: ref.TableName}, nil
}

// datasetListResponse is the shape of dataset list/filter responses.
type datasetListResponse struct {
	Result []struct {
		ID        int             `json:"id"`
		TableName string          `json:"table_name"`
		Database  json.RawMessage `json:"database"`
	} `json:"result"`
}

// FindDataset looks up an existing dataset by table name, preferring a
// server-side filter and falling back to a full page scan. Returns nil with
// no error when nothing matches.
func (c *Client) FindDataset(ctx context.Context, cred *Credential, ref TableReference) (*DatasetRecord, error) {
	filter := map[string]interface{}{
		"filters": []map[string]interface{}{
			{"col": "table_name", "opr": "eq", "value": ref.TableName},
		},
	}
	if rec, err := c.queryDatasets(ctx, cred, filter, ref); err != nil {
		return nil, err
	} else if rec != nil {
		return rec, nil
	}

	// Filtered search can miss on servers with non-default list permissions;
	// a wide page scan is the reliable fallback.
	return c.queryDatasets(ctx, cred, map[string]interface{}{"page_size": 2000}, ref)
}

func (c *Client) queryDatasets(ctx context.Context, cred *Credential, query map[string]interface{}, ref TableReference) (*DatasetRecord, error) {
	q, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dataset query: %w", err)
	}

	var body datasetListResponse
	resp, err := c.request(ctx, cred).
		SetQueryParam("q", string(q)).
		SetResult(&body).
		Get(c.baseURL + "/api/v1/dataset/")

	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	if err := c.check(resp, "/api/v1/dataset/"); err != nil {
		return nil, err
	}

	for _, ds := range body.Result {
		if !strings.EqualFold(ds.TableName, ref.TableName) {
			continue
		}
		if databaseIDMatches(ds.Database, ref.DatabaseID) {
			return &DatasetRecord{ID: ds.ID, TableName: ds.TableName}, nil
		}
	}
	return nil, nil
}

// databaseIDMatches tolerates both database representations the API has
// shipped: a plain id and an embedded object.
func databaseIDMatches(raw json.RawMessage, want int) bool {
	if len(raw) == 0 {
		return true
	}
	var id int
	if err := json.Unmarshal(raw, &id); err == nil {
		return id == want
	}
	var obj struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID == want
	}
	return false
}

// CreateChart creates a chart (slice) referencing a dataset. params is the
// viz-type-specific chart params object, already JSON-encoded.
func (c *Client) CreateChart(ctx context.Context, cred *Credential, datasetID int, title, vizType, params string) (*ChartRecord, error) {
	var body createResponse
	resp, err := c.request(ctx, cred).
		SetBody(c.payload.ChartPayload(datasetID, title, vizType, params)).
		SetResult(&body).
		Post(c.baseURL + "/api/v1/chart/")

	if err != nil {
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}
	if err := c.check(resp, "/api/v1/chart/"); err != nil {
		return nil, err
	}

	return &ChartRecord{ID: body.id(), Title: title}, nil
}

// CreateDashboard creates an empty published dashboard.
func (c *Client) CreateDashboard(ctx context.Context, cred *Credential, title string) (*DashboardRecord, error) {
	var body createResponse
	resp, err := c.request(ctx, cred).
		SetBody(c.payload.DashboardPayload(title)).
		SetResult(&body).
		Post(c.baseURL + "/api/v1/dashboard/")

	if err != nil {
		return nil, fmt.Errorf("failed to create dashboard: %w", err)
	}
	if err := c.check(resp, "/api/v1/dashboard/"); err != nil {
		return nil, err
	}

	id := body.id()
	return &DashboardRecord{ID: id, Title: title, URL: c.DashboardURL(id)}, nil
}

// UpdateDashboardPosition replaces a dashboard's layout. positionJSON is the
// position_json document, already encoded.
func (c *Client) UpdateDashboardPosition(ctx context.Context, cred *Credential, dashboardID int, title, positionJSON string) error {
	endpoint := fmt.Sprintf("/api/v1/dashboard/%d", dashboardID)
	resp, err := c.request(ctx, cred).
		SetBody(map[string]interface{}{
			"dashboard_title": title,
			"position_json":   positionJSON,
			"published":       true,
		}).
		Put(c.baseURL + endpoint)

	if err != nil {
		return fmt.Errorf("failed to update dashboard layout: %w", err)
	}
	return c.check(resp, endpoint)
}

// AddChartToDashboard links an existing chart to a dashboard. Linking is done
// from the chart side; the dashboard's slices field is read-only in PUT.
func (c *Client) AddChartToDashboard(ctx context.Context, cred *Credential, chartID, dashboardID int) error {
	endpoint := fmt.Sprintf("/api/v1/chart/%d", chartID)
	resp, err := c.request(ctx, cred).
		SetBody(map[string]interface{}{"dashboards": []int{dashboardID}}).
		Put(c.baseURL + endpoint)

	if err != nil {
		return fmt.Errorf("failed to link chart %d to dashboard: %w", chartID, err)
	}
	return c.check(resp, endpoint)
}

// DeleteDashboard removes a dashboard. Cleanup after a partial failure is
// the caller's responsibility; nothing in the provisioning chain calls this
// automatically.
func (c *Client) DeleteDashboard(ctx context.Context, cred *Credential, dashboardID int) error {
	endpoint := fmt.Sprintf("/api/v1/dashboard/%d", dashboardID)
	resp, err := c.request(ctx, cred).Delete(c.baseURL + endpoint)
	if err != nil {
		return fmt.Errorf("failed to delete dashboard: %w", err)
	}
	return c.check(resp, endpoint)
}

type databaseListResponse struct {
	Result []Database `json:"result"`
}

// ListDatabases returns the database connections registered in Superset.
func (c *Client) ListDatabases(ctx context.Context, cred *Credential) ([]Database, error) {
	q, _ := json.Marshal(map[string]interface{}{"page_size": 2000})

	var body databaseListResponse
	resp, err := c.request(ctx, cred).
		SetQueryParam("q", string(q)).
		SetResult(&body).
		Get(c.baseURL + "/api/v1/database/")

	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	if err := c.check(resp, "/api/v1/database/"); err != nil {
		return nil, err
	}
	return body.Result, nil
}

// FindDatabaseID resolves a database connection name to its id. Returns 0
// with no error when the name is unknown.
func (c *Client) FindDatabaseID(ctx context.Context, cred *Credential, name string) (int, error) {
	dbs, err := c.ListDatabases(ctx, cred)
	if err != nil {
		return 0, err
	}
	for _, db := range dbs {
		if strings.EqualFold(db.Name, name) {
			return db.ID, nil
		}
	}
	return 0, nil
}

// DashboardURL returns the user-facing URL for a dashboard id.
func (c *Client) DashboardURL(dashboardID int) string {
	return fmt.Sprintf("%s/superset/dashboard/%d/", c.baseURL, dashboardID)
}
