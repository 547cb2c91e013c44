package provision

import (
	"errors"
	"fmt"

	"github.com/sabio/superset-autodash/pkg/superset"
)

// ErrorKind classifies provisioning failures for the orchestration surface.
type ErrorKind string

const (
	// KindDatasetConflict: the dataset already exists and the lookup for its
	// id also failed, so the chain cannot proceed.
	KindDatasetConflict ErrorKind = "dataset_conflict"
	// KindChartCreationFailed: an individual chart-creation call failed.
	// Partial failures are recorded per chart, not surfaced as the terminal
	// error, as long as at least one chart succeeded.
	KindChartCreationFailed ErrorKind = "chart_creation_failed"
	// KindNoChartsCreated: every chart-creation call failed; dashboard
	// creation is skipped entirely.
	KindNoChartsCreated ErrorKind = "no_charts_created"
	// KindAuthExpired: the server rejected the credential (401/403) at some
	// step. The provisioner never re-authenticates.
	KindAuthExpired ErrorKind = "auth_expired"
	// KindServerRejected: any other non-2xx rejection.
	KindServerRejected ErrorKind = "server_rejected"
)

// Error is a typed provisioning failure. Step names the point in the chain
// where the workflow stopped; earlier remote objects may already exist and
// are not cleaned up.
type Error struct {
	Kind   ErrorKind
	Step   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("provisioning failed at %s (%s): %s", e.Step, e.Kind, e.Detail)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify maps a Superset client error onto the error taxonomy.
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, superset.ErrAuthExpired):
		return KindAuthExpired
	case errors.Is(err, superset.ErrAlreadyExists):
		return KindDatasetConflict
	default:
		return KindServerRejected
	}
}
