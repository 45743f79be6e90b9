package util

import (
	"context"
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/tunnelcore/tunnelcore/shared/status"
)

// ErrorResponse is the body of every non 2xx response
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// WriteJSONObject writes an object to the HTTP response in JSON format
func WriteJSONObject(ctx context.Context, w http.ResponseWriter, obj interface{}) {
	setHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		log.WithContext(ctx).Errorf("failed to encode response: %v", err)
	}
}

// WriteErrorResponse prepares and writes an error response in JSON format
func WriteErrorResponse(errMsg string, httpStatus int, w http.ResponseWriter) {
	setHeaders(w)
	w.WriteHeader(httpStatus)
	err := json.NewEncoder(w).Encode(&ErrorResponse{
		Message: errMsg,
		Code:    httpStatus,
	})
	if err != nil {
		http.Error(w, "failed handling request", http.StatusInternalServerError)
	}
}

// WriteError converts an error to a JSON error response.
// Not found and invalid input keep their message, everything else is reported as internal.
func WriteError(ctx context.Context, err error, w http.ResponseWriter) {
	httpStatus := http.StatusInternalServerError
	msg := "internal server error"

	errStatus, ok := status.FromError(err)
	if ok && errStatus != nil {
		switch errStatus.Type() {
		case status.NotFound:
			httpStatus = http.StatusNotFound
			msg = errStatus.Error()
		case status.InvalidArgument:
			httpStatus = http.StatusBadRequest
			msg = errStatus.Error()
		}
	}

	if httpStatus == http.StatusInternalServerError {
		log.WithContext(ctx).Errorf("got a handler error: %v", err)
	} else {
		log.WithContext(ctx).Debugf("request rejected: %v", err)
	}

	WriteErrorResponse(msg, httpStatus, w)
}

func setHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
