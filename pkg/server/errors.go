package server

import (
	"errors"
	"net/http"

	"github.com/sabio/superset-autodash/pkg/advisor"
	"github.com/sabio/superset-autodash/pkg/provision"
	"github.com/sabio/superset-autodash/pkg/superset"
)

// mapError translates adapter errors into a user-facing status and message.
// Raw client errors never leave the orchestration surface; every message
// carries enough detail for the user to retry manually.
func mapError(err error) (int, string) {
	var authErr *superset.AuthError
	if errors.As(err, &authErr) {
		return http.StatusBadGateway, "could not authenticate with the BI server: check the configured credentials"
	}

	var llmErr *advisor.Error
	if errors.As(err, &llmErr) {
		if llmErr.Kind == advisor.KindParseFailed {
			return http.StatusBadGateway, "the model's response could not be parsed into chart suggestions: resubmit or rephrase the prompt"
		}
		return http.StatusBadGateway, "the suggestion service is unavailable: try again shortly"
	}

	var provErr *provision.Error
	if errors.As(err, &provErr) {
		switch provErr.Kind {
		case provision.KindDatasetConflict:
			return http.StatusConflict, "dataset already exists: reuse it or rename the table"
		case provision.KindNoChartsCreated:
			return http.StatusBadGateway, "no charts could be created, so no dashboard was made: " + provErr.Detail
		case provision.KindAuthExpired:
			return http.StatusUnauthorized, "the BI server session expired mid-workflow: resubmit the request"
		default:
			return http.StatusBadGateway, "the BI server rejected the request: " + provErr.Detail
		}
	}

	return http.StatusInternalServerError, "an unexpected error occurred: resubmit the request"
}
