package api

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/marco/cinematch/internal/logging"
)

// Response is the envelope for every API reply.
type Response struct {
	Status   string    `json:"status"` // success or error
	Data     any       `json:"data,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
	Error    *APIError `json:"error,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("failed to write JSON response")
	}
}

func respondData(w http.ResponseWriter, data any, warnings []string) {
	respondJSON(w, http.StatusOK, &Response{Status: "success", Data: data, Warnings: warnings})
}

func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Err(err).Str("code", code).Msg("API error")
	}
	respondJSON(w, status, &Response{
		Status: "error",
		Error:  &APIError{Code: code, Message: message},
	})
}

// intParam reads a query parameter, falling back to def when it is absent
// or not a positive integer.
func intParam(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
