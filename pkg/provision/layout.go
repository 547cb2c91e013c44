package provision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sabio/superset-autodash/pkg/superset"
)

// buildPositionJSON renders a simple vertical dashboard layout: one full
// width row per chart. Superset links charts to dashboards through this
// position document, not through a writable slices field.
func buildPositionJSON(charts []superset.ChartRecord) (string, error) {
	position := map[string]interface{}{
		"DASHBOARD_VERSION_KEY": "v2",
		"ROOT_ID": map[string]interface{}{
			"type":     "ROOT",
			"id":       "ROOT_ID",
			"children": []string{"GRID_ID"},
		},
	}

	gridChildren := make([]string, 0, len(charts))
	for _, chart := range charts {
		rowID := "ROW-" + nodeID()
		chartNodeID := "CHART-" + nodeID()
		gridChildren = append(gridChildren, rowID)

		position[rowID] = map[string]interface{}{
			"type":     "ROW",
			"id":       rowID,
			"children": []string{chartNodeID},
			"meta":     map[string]interface{}{"background": "BACKGROUND_TRANSPARENT"},
			"parents":  []string{"ROOT_ID", "GRID_ID"},
		}
		position[chartNodeID] = map[string]interface{}{
			"type":     "CHART",
			"id":       chartNodeID,
			"children": []string{},
			"meta": map[string]interface{}{
				"chartId":   chart.ID,
				"width":     12,
				"height":    50,
				"sliceName": chart.Title,
			},
			"parents": []string{"ROOT_ID", "GRID_ID", rowID},
		}
	}

	position["GRID_ID"] = map[string]interface{}{
		"type":     "GRID",
		"id":       "GRID_ID",
		"children": gridChildren,
		"parents":  []string{"ROOT_ID"},
	}

	encoded, err := json.Marshal(position)
	if err != nil {
		return "", fmt.Errorf("failed to encode position_json: %w", err)
	}
	return string(encoded), nil
}

func nodeID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
