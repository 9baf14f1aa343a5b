package api

import (
	"errors"
	"net/http"

	"github.com/cuemby/dbaasd/pkg/engine"
	"github.com/cuemby/dbaasd/pkg/lifecycle"
	"github.com/cuemby/dbaasd/pkg/snapshot"
	"github.com/cuemby/dbaasd/pkg/storage"
)

// errorStatus maps a package sentinel error to an HTTP status:
// validation and unknown-engine errors are 400, name and port
// collisions are 409, not-found is 404, and anything else is treated
// as a runtime-class failure already captured on the instance row,
// surfaced here only when there was no row to capture it on, so it
// becomes a 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrNameInUse), errors.Is(err, lifecycle.ErrPortExhausted):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrValidation),
		errors.Is(err, lifecycle.ErrRotationUnsupported),
		errors.Is(err, lifecycle.ErrNotRunning),
		errors.Is(err, snapshot.ErrNotRunning),
		errors.Is(err, engine.ErrEngineUnknown),
		errors.Is(err, engine.ErrConfigInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
