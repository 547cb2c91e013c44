package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/sabio/superset-autodash/pkg/advisor"
	"github.com/sabio/superset-autodash/pkg/config"
	"github.com/sabio/superset-autodash/pkg/provision"
	"github.com/sabio/superset-autodash/pkg/schema"
	"github.com/sabio/superset-autodash/pkg/superset"
)

// Authenticator yields a credential for one workflow.
type Authenticator interface {
	Authenticate(ctx context.Context) (*superset.Credential, error)
}

// Suggester produces chart suggestions from a prompt and/or schema summary.
type Suggester interface {
	SuggestCharts(ctx context.Context, req advisor.Request) ([]advisor.ChartSuggestion, error)
}

// Provisioner realizes suggestions as remote dataset/chart/dashboard objects.
type Provisioner interface {
	Provision(ctx context.Context, cred *superset.Credential, ref superset.TableReference, suggestions []advisor.ChartSuggestion) (*provision.Result, error)
}

// Pinger checks the BI server is reachable with a given credential.
type Pinger interface {
	Ping(ctx context.Context, cred *superset.Credential) (string, error)
}

// Server is the HTTP orchestration surface. Each request runs one
// synchronous authenticate -> suggest -> provision chain with its own
// credential; nothing is shared across requests.
type Server struct {
	cfg         config.SupersetConfig
	auth        Authenticator
	suggester   Suggester
	provisioner Provisioner
	pinger      Pinger
}

// New creates a Server.
func New(cfg config.SupersetConfig, auth Authenticator, suggester Suggester, provisioner Provisioner, pinger Pinger) *Server {
	return &Server{
		cfg:         cfg,
		auth:        auth,
		suggester:   suggester,
		provisioner: provisioner,
		pinger:      pinger,
	}
}

// Routes builds the gin engine. The Recovery middleware guarantees no
// internal panic propagates to the caller as anything but a 500.
func (s *Server) Routes() *gin.Engine {
	r := gin.Default()
	r.Use(cors.Default())

	r.GET("/health", s.handleHealth)

	api := r.Group("/api/v1")
	api.POST("/upload/preview", s.handleUploadPreview)
	api.POST("/suggestions", s.handleSuggestions)
	api.POST("/dashboards/from-prompt", s.handleFromPrompt)
	api.POST("/dashboards/from-table", s.handleFromTable)

	return r
}

// handleFromPrompt is the "suggest and provision from prompt" operation:
// the model plans the charts, then the plan is provisioned in one go.
func (s *Server) handleFromPrompt(c *gin.Context) {
	var req ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	s.applyDefaults(&req)

	if req.TableName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "table_name is required"})
		return
	}
	if req.Prompt == "" && len(req.Columns) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either prompt or columns must be provided"})
		return
	}

	ctx := c.Request.Context()

	// The workflow halts here on auth failure: neither adapter runs without
	// a credential.
	cred, err := s.auth.Authenticate(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	suggestions, err := s.suggester.SuggestCharts(ctx, advisor.Request{
		TableName: req.TableName,
		Prompt:    req.Prompt,
		Summary:   req.summary(),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(suggestions) == 0 {
		c.JSON(http.StatusBadGateway, gin.H{"error": "the model returned no usable chart suggestions: rephrase the prompt"})
		return
	}

	s.provisionAndRespond(c, cred, req, suggestions)
}

// handleFromTable is the "provision from explicit table reference"
// operation: the caller supplies the chart plan and no model call is made.
func (s *Server) handleFromTable(c *gin.Context) {
	var req ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	s.applyDefaults(&req)

	if req.TableName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "table_name is required"})
		return
	}
	if len(req.Suggestions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one chart suggestion is required"})
		return
	}

	cred, err := s.auth.Authenticate(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	// Caller-supplied plans get the same coercion rules as model output.
	suggestions := advisor.ValidateSuggestions(req.Suggestions, req.summary())

	s.provisionAndRespond(c, cred, req, suggestions)
}

// handleSuggestions returns the chart plan without provisioning anything, so
// a UI can let the user review and edit it first.
func (s *Server) handleSuggestions(c *gin.Context) {
	var req ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if req.TableName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "table_name is required"})
		return
	}
	if req.Prompt == "" && len(req.Columns) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either prompt or columns must be provided"})
		return
	}

	suggestions, err := s.suggester.SuggestCharts(c.Request.Context(), advisor.Request{
		TableName: req.TableName,
		Prompt:    req.Prompt,
		Summary:   req.summary(),
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, SuggestionsResponse{TableName: req.TableName, Suggestions: suggestions})
}

// handleUploadPreview turns an uploaded CSV sample into a schema summary.
// The file itself goes nowhere; only the summary is returned for use in the
// provisioning operations.
func (s *Server) handleUploadPreview(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a CSV file upload is required"})
		return
	}

	tableName := c.PostForm("table_name")
	if tableName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "table_name is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not open uploaded file"})
		return
	}
	defer file.Close()

	summary, err := schema.InferFromCSV(file, tableName)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "could not parse CSV: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// handleHealth reports component status: the BI server is probed with a
// fresh credential; the suggestion service is config-checked only, since a
// probe would burn a model call.
func (s *Server) handleHealth(c *gin.Context) {
	const healthTimeout = 3 * time.Second

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	supersetStatus := gin.H{"ok": true}

	cred, err := s.auth.Authenticate(ctx)
	if err == nil {
		_, err = s.pinger.Ping(ctx, cred)
	}
	if err != nil {
		status = http.StatusServiceUnavailable
		supersetStatus = gin.H{"ok": false, "error": err.Error()}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":   overall,
		"superset": supersetStatus,
	})
}

func (s *Server) provisionAndRespond(c *gin.Context, cred *superset.Credential, req ProvisionRequest, suggestions []advisor.ChartSuggestion) {
	ref := superset.TableReference{
		DatabaseID: req.DatabaseID,
		Schema:     req.Schema,
		TableName:  req.TableName,
	}

	result, err := s.provisioner.Provision(c.Request.Context(), cred, ref, suggestions)
	if err != nil {
		s.fail(c, err)
		return
	}

	log.Printf("provisioned dashboard %d for table %s (%s)", result.Dashboard.ID, ref.TableName, result.Summary())
	c.JSON(http.StatusOK, newDashboardResponse(result))
}

func (s *Server) applyDefaults(req *ProvisionRequest) {
	if req.DatabaseID == 0 {
		req.DatabaseID = s.cfg.DatabaseID
	}
	if req.Schema == "" {
		req.Schema = s.cfg.Schema
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, message := mapError(err)
	log.Printf("request failed: %v", err)
	c.JSON(status, gin.H{"error": message})
}
