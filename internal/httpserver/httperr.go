package httpserver

import (
	"net/http"

	"github.com/promantle/triangularlist/triangularlist"
)

const (
	errInvalidRequest = "invalid_request"
	errNotFound       = "not_found"
	errInternal       = "internal_error"
	errEngineDeleted  = "engine_deleted"
)

// ErrorResponse is the JSON body written for every non-2xx response.
type ErrorResponse struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// statusAndType maps an engine error's Kind to the HTTP status and wire
// error_type a caller should see. Everything the engine did not raise as a
// *triangularlist.Error (a binding failure, say) is treated as a client
// invalid_request instead of a 500.
func statusAndType(err error) (int, string) {
	te, ok := err.(*triangularlist.Error)
	if !ok {
		return http.StatusBadRequest, errInvalidRequest
	}
	switch te.Kind {
	case triangularlist.UnknownAggregate, triangularlist.UnknownRank:
		return http.StatusNotFound, errNotFound
	case triangularlist.InvalidRange, triangularlist.TypeMismatch, triangularlist.ConfigInvalid:
		return http.StatusBadRequest, errInvalidRequest
	case triangularlist.EngineDeleted:
		return http.StatusGone, errEngineDeleted
	default:
		return http.StatusInternalServerError, errInternal
	}
}
