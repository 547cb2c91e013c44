package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/sabio/superset-autodash/pkg/advisor"
	"github.com/sabio/superset-autodash/pkg/config"
	"github.com/sabio/superset-autodash/pkg/provision"
	"github.com/sabio/superset-autodash/pkg/superset"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuth struct {
	calls int
	cred  *superset.Credential
	err   error
}

func (f *fakeAuth) Authenticate(ctx context.Context) (*superset.Credential, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.cred, nil
}

type fakeSuggester struct {
	calls       int
	gotRequest  advisor.Request
	suggestions []advisor.ChartSuggestion
	err         error
}

func (f *fakeSuggester) SuggestCharts(ctx context.Context, req advisor.Request) ([]advisor.ChartSuggestion, error) {
	f.calls++
	f.gotRequest = req
	return f.suggestions, f.err
}

type fakeProvisioner struct {
	calls          int
	gotRef         superset.TableReference
	gotSuggestions []advisor.ChartSuggestion
	result         *provision.Result
	err            error
}

func (f *fakeProvisioner) Provision(ctx context.Context, cred *superset.Credential, ref superset.TableReference, suggestions []advisor.ChartSuggestion) (*provision.Result, error) {
	f.calls++
	f.gotRef = ref
	f.gotSuggestions = suggestions
	return f.result, f.err
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context, cred *superset.Credential) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "4.0.0", nil
}

func testConfig() config.SupersetConfig {
	return config.SupersetConfig{
		BaseURL:    "http://superset.local",
		DatabaseID: 1,
		Schema:     "public",
	}
}

func successResult() *provision.Result {
	return &provision.Result{
		Dataset: &superset.DatasetRecord{ID: 7, TableName: "sales"},
		Charts: []superset.ChartRecord{
			{ID: 101, Title: "Revenue by Region"},
			{ID: 102, Title: "Total Revenue"},
		},
		Dashboard: &superset.DashboardRecord{ID: 55, Title: "Dashboard - sales (2 charts)", URL: "http://superset.local/superset/dashboard/55/"},
		Requested: 2,
	}
}

func testSuggestions() []advisor.ChartSuggestion {
	return []advisor.ChartSuggestion{
		{Title: "Revenue by Region", VizType: advisor.VizBar, Metric: "revenue", GroupBy: "region", AggFunc: "SUM"},
		{Title: "Total Revenue", VizType: advisor.VizBigNumber, Metric: "revenue", AggFunc: "SUM"},
	}
}

func newTestServer(auth *fakeAuth, suggester *fakeSuggester, provisioner *fakeProvisioner, pinger *fakePinger) *gin.Engine {
	if auth == nil {
		auth = &fakeAuth{cred: &superset.Credential{Method: superset.MethodPassword, Token: "t"}}
	}
	if suggester == nil {
		suggester = &fakeSuggester{suggestions: testSuggestions()}
	}
	if provisioner == nil {
		provisioner = &fakeProvisioner{result: successResult()}
	}
	if pinger == nil {
		pinger = &fakePinger{}
	}
	return New(testConfig(), auth, suggester, provisioner, pinger).Routes()
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to encode request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestFromPrompt(t *testing.T) {
	auth := &fakeAuth{cred: &superset.Credential{Token: "t"}}
	suggester := &fakeSuggester{suggestions: testSuggestions()}
	provisioner := &fakeProvisioner{result: successResult()}
	router := newTestServer(auth, suggester, provisioner, nil)

	w := postJSON(t, router, "/api/v1/dashboards/from-prompt", map[string]interface{}{
		"table_name": "sales",
		"prompt":     "show me revenue trends",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp DashboardResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.DashboardID != 55 {
		t.Errorf("DashboardID = %d, want 55", resp.DashboardID)
	}
	if resp.DashboardURL != "http://superset.local/superset/dashboard/55/" {
		t.Errorf("DashboardURL = %v", resp.DashboardURL)
	}
	if len(resp.ChartIDs) != 2 {
		t.Errorf("ChartIDs = %v, want 2 ids", resp.ChartIDs)
	}
	if resp.Summary != "2 of 2 charts created" {
		t.Errorf("Summary = %q", resp.Summary)
	}

	if suggester.gotRequest.Prompt != "show me revenue trends" {
		t.Errorf("Suggester prompt = %q", suggester.gotRequest.Prompt)
	}

	// Config defaults fill in the table reference.
	if provisioner.gotRef.DatabaseID != 1 || provisioner.gotRef.Schema != "public" {
		t.Errorf("Provisioner ref = %+v, want config defaults applied", provisioner.gotRef)
	}
}

func TestFromPromptValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{name: "missing table name", body: map[string]interface{}{"prompt": "revenue"}},
		{name: "missing prompt and columns", body: map[string]interface{}{"table_name": "sales"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuth{cred: &superset.Credential{Token: "t"}}
			suggester := &fakeSuggester{}
			provisioner := &fakeProvisioner{}
			router := newTestServer(auth, suggester, provisioner, nil)

			w := postJSON(t, router, "/api/v1/dashboards/from-prompt", tt.body)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want 400", w.Code)
			}
			// Validation failures must not reach any adapter.
			if auth.calls != 0 || suggester.calls != 0 || provisioner.calls != 0 {
				t.Errorf("Adapter calls = auth %d, suggester %d, provisioner %d; want none",
					auth.calls, suggester.calls, provisioner.calls)
			}
		})
	}
}

func TestFromPromptAuthFailureHaltsWorkflow(t *testing.T) {
	auth := &fakeAuth{err: &superset.AuthError{StatusCode: 401, Reason: "bad credentials"}}
	suggester := &fakeSuggester{}
	provisioner := &fakeProvisioner{}
	router := newTestServer(auth, suggester, provisioner, nil)

	w := postJSON(t, router, "/api/v1/dashboards/from-prompt", map[string]interface{}{
		"table_name": "sales",
		"prompt":     "revenue",
	})

	if w.Code != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", w.Code)
	}
	if suggester.calls != 0 {
		t.Errorf("Suggester calls = %d, want 0 after auth failure", suggester.calls)
	}
	if provisioner.calls != 0 {
		t.Errorf("Provisioner calls = %d, want 0 after auth failure", provisioner.calls)
	}
	if !strings.Contains(w.Body.String(), "credentials") {
		t.Errorf("Body = %s, want credential guidance", w.Body.String())
	}
}

func TestFromPromptSuggesterParseFailure(t *testing.T) {
	suggester := &fakeSuggester{err: &advisor.Error{Kind: advisor.KindParseFailed, Detail: "no JSON array"}}
	provisioner := &fakeProvisioner{}
	router := newTestServer(nil, suggester, provisioner, nil)

	w := postJSON(t, router, "/api/v1/dashboards/from-prompt", map[string]interface{}{
		"table_name": "sales",
		"prompt":     "revenue",
	})

	if w.Code != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", w.Code)
	}
	if provisioner.calls != 0 {
		t.Errorf("Provisioner calls = %d, want 0 after parse failure", provisioner.calls)
	}
	if !strings.Contains(w.Body.String(), "rephrase") {
		t.Errorf("Body = %s, want resubmission guidance", w.Body.String())
	}
}

func TestFromPromptProvisionErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "dataset conflict",
			err:        &provision.Error{Kind: provision.KindDatasetConflict, Step: "create dataset", Detail: "not found"},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "no charts created",
			err:        &provision.Error{Kind: provision.KindNoChartsCreated, Step: "create charts", Detail: "all failed"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "auth expired mid-workflow",
			err:        &provision.Error{Kind: provision.KindAuthExpired, Step: "create charts", Detail: "session expired"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "server rejected",
			err:        &provision.Error{Kind: provision.KindServerRejected, Step: "create dashboard", Detail: "rejected"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "unexpected error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provisioner := &fakeProvisioner{err: tt.err}
			router := newTestServer(nil, nil, provisioner, nil)

			w := postJSON(t, router, "/api/v1/dashboards/from-prompt", map[string]interface{}{
				"table_name": "sales",
				"prompt":     "revenue",
			})

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestFromTable(t *testing.T) {
	suggester := &fakeSuggester{}
	provisioner := &fakeProvisioner{result: successResult()}
	router := newTestServer(nil, suggester, provisioner, nil)

	w := postJSON(t, router, "/api/v1/dashboards/from-table", map[string]interface{}{
		"database_id": 3,
		"schema":      "analytics",
		"table_name":  "sales",
		"suggestions": []map[string]interface{}{
			{"title": "Revenue", "viz_type": "BAR", "metric": "revenue", "group_by": "region", "agg_func": "sum"},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body = %s", w.Code, w.Body.String())
	}

	// No model call on the explicit-plan path.
	if suggester.calls != 0 {
		t.Errorf("Suggester calls = %d, want 0", suggester.calls)
	}

	if provisioner.gotRef.DatabaseID != 3 || provisioner.gotRef.Schema != "analytics" {
		t.Errorf("Provisioner ref = %+v, want explicit values kept", provisioner.gotRef)
	}

	// Supplied suggestions get the same coercion as model output.
	if len(provisioner.gotSuggestions) != 1 {
		t.Fatalf("Provisioner got %d suggestions, want 1", len(provisioner.gotSuggestions))
	}
	got := provisioner.gotSuggestions[0]
	if got.VizType != advisor.VizBar {
		t.Errorf("VizType = %v, want coerced to %v", got.VizType, advisor.VizBar)
	}
	if got.AggFunc != "SUM" {
		t.Errorf("AggFunc = %v, want SUM", got.AggFunc)
	}
}

func TestFromTableRequiresSuggestions(t *testing.T) {
	auth := &fakeAuth{cred: &superset.Credential{Token: "t"}}
	router := newTestServer(auth, nil, nil, nil)

	w := postJSON(t, router, "/api/v1/dashboards/from-table", map[string]interface{}{
		"table_name": "sales",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}
	if auth.calls != 0 {
		t.Errorf("Auth calls = %d, want 0 on validation failure", auth.calls)
	}
}

func TestSuggestionsEndpoint(t *testing.T) {
	auth := &fakeAuth{cred: &superset.Credential{Token: "t"}}
	provisioner := &fakeProvisioner{}
	router := newTestServer(auth, nil, provisioner, nil)

	w := postJSON(t, router, "/api/v1/suggestions", map[string]interface{}{
		"table_name": "sales",
		"prompt":     "revenue",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp SuggestionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Suggestions) != 2 {
		t.Errorf("Got %d suggestions, want 2", len(resp.Suggestions))
	}

	// Suggestions-only never touches the BI server.
	if auth.calls != 0 || provisioner.calls != 0 {
		t.Errorf("BI calls = auth %d, provisioner %d; want none", auth.calls, provisioner.calls)
	}
}

func TestUploadPreview(t *testing.T) {
	router := newTestServer(nil, nil, nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "sales.csv")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	fw.Write([]byte("region,revenue,order_date\nEMEA,1200.50,2024-01-15\nAPAC,900.00,2024-01-16\n"))
	mw.WriteField("table_name", "sales")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload/preview", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body = %s", w.Code, w.Body.String())
	}

	var summary struct {
		TableName string `json:"table_name"`
		RowCount  int    `json:"row_count"`
		Columns   []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"columns"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if summary.TableName != "sales" || summary.RowCount != 2 {
		t.Errorf("Summary = %+v", summary)
	}
	if len(summary.Columns) != 3 {
		t.Fatalf("Got %d columns, want 3", len(summary.Columns))
	}
	if summary.Columns[1].Type != "float" {
		t.Errorf("revenue type = %v, want float", summary.Columns[1].Type)
	}
	if summary.Columns[2].Type != "datetime" {
		t.Errorf("order_date type = %v, want datetime", summary.Columns[2].Type)
	}
}

func TestUploadPreviewValidation(t *testing.T) {
	router := newTestServer(nil, nil, nil, nil)

	// Missing file entirely.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload/preview", strings.NewReader(""))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400 without a file", w.Code)
	}

	// Missing table_name.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "sales.csv")
	fw.Write([]byte("a,b\n1,2\n"))
	mw.Close()

	req = httptest.NewRequest(http.MethodPost, "/api/v1/upload/preview", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400 without table_name", w.Code)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		auth       *fakeAuth
		pinger     *fakePinger
		wantStatus int
	}{
		{
			name:       "healthy",
			auth:       &fakeAuth{cred: &superset.Credential{Token: "t"}},
			pinger:     &fakePinger{},
			wantStatus: http.StatusOK,
		},
		{
			name:       "auth failure",
			auth:       &fakeAuth{err: &superset.AuthError{StatusCode: 401, Reason: "bad credentials"}},
			pinger:     &fakePinger{},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "unreachable server",
			auth:       &fakeAuth{cred: &superset.Credential{Token: "t"}},
			pinger:     &fakePinger{err: errors.New("connection refused")},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestServer(tt.auth, nil, nil, tt.pinger)

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
