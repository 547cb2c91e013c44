package superset

import "fmt"

// TableReference identifies a table that already exists in a database
// connection registered in Superset. The service only registers metadata for
// it; no rows are ever written.
type TableReference struct {
	DatabaseID int    `json:"database_id"`
	Schema     string `json:"schema"`
	TableName  string `json:"table_name"`
}

// Validate checks the reference is complete enough to send.
func (r TableReference) Validate() error {
	if r.DatabaseID <= 0 {
		return fmt.Errorf("database_id must be positive")
	}
	if r.TableName == "" {
		return fmt.Errorf("table_name is required")
	}
	return nil
}

// PayloadBuilder constructs request bodies for the creation endpoints. The
// dataset payload shape changed between Superset releases, so builders are
// keyed by a capability version and swappable without touching the
// provisioning logic.
type PayloadBuilder interface {
	DatasetPayload(ref TableReference) map[string]interface{}
	ChartPayload(datasetID int, title, vizType, params string) map[string]interface{}
	DashboardPayload(title string) map[string]interface{}
}

// NewPayloadBuilder returns the builder for the given capability version.
// Unknown versions fall back to "v1", the shape current releases accept.
func NewPayloadBuilder(version string) PayloadBuilder {
	if version == "legacy" {
		return legacyPayloadBuilder{}
	}
	return v1PayloadBuilder{}
}

// v1PayloadBuilder sends the database as a plain id.
type v1PayloadBuilder struct{}

func (v1PayloadBuilder) DatasetPayload(ref TableReference) map[string]interface{} {
	return map[string]interface{}{
		"database":   ref.DatabaseID,
		"schema":     ref.Schema,
		"table_name": ref.TableName,
	}
}

func (v1PayloadBuilder) ChartPayload(datasetID int, title, vizType, params string) map[string]interface{} {
	return map[string]interface{}{
		"slice_name":      title,
		"viz_type":        vizType,
		"datasource_id":   datasetID,
		"datasource_type": "table",
		"params":          params,
	}
}

func (v1PayloadBuilder) DashboardPayload(title string) map[string]interface{} {
	return map[string]interface{}{
		"dashboard_title": title,
		"published":       true,
	}
}

// legacyPayloadBuilder sends the database as an embedded object, the shape
// older Superset releases expect.
type legacyPayloadBuilder struct{}

func (legacyPayloadBuilder) DatasetPayload(ref TableReference) map[string]interface{} {
	return map[string]interface{}{
		"database":   map[string]interface{}{"id": ref.DatabaseID},
		"schema":     ref.Schema,
		"table_name": ref.TableName,
	}
}

func (legacyPayloadBuilder) ChartPayload(datasetID int, title, vizType, params string) map[string]interface{} {
	return v1PayloadBuilder{}.ChartPayload(datasetID, title, vizType, params)
}

func (legacyPayloadBuilder) DashboardPayload(title string) map[string]interface{} {
	return v1PayloadBuilder{}.DashboardPayload(title)
}
