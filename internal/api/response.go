package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/dmitrijs2005/invkeeper/internal/pipeline"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	var f *pipeline.Failure
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrBlankName),
		errors.Is(err, common.ErrNegativeQuantity),
		errors.Is(err, common.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrIngestInProgress):
		return http.StatusConflict
	case errors.Is(err, common.ErrAccessDenied), errors.Is(err, common.ErrReadAsset):
		return http.StatusUnprocessableEntity
	case errors.As(err, &f):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
