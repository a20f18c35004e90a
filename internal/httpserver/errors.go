package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/FranksOps/liaison/internal/auth"
	"github.com/FranksOps/liaison/internal/linkedin"
	"github.com/FranksOps/liaison/internal/pipeline"
	"github.com/FranksOps/liaison/internal/postid"
	"github.com/FranksOps/liaison/internal/reply"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errBadRequest = errors.New("bad request")

// classify maps an error to a status and a stable code.
func classify(err error) (int, string) {
	var subErr *linkedin.SubmissionError
	switch {
	case errors.As(err, &subErr):
		return http.StatusBadGateway, "SUBMISSION_FAILED"
	case errors.Is(err, auth.ErrNotAuthenticated):
		return http.StatusUnauthorized, "NOT_AUTHENTICATED"
	case errors.Is(err, postid.ErrUnrecognized):
		return http.StatusBadRequest, "UNRECOGNIZED_POST"
	case errors.Is(err, pipeline.ErrEmptyPostText):
		return http.StatusBadRequest, "EMPTY_TEXT"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, reply.ErrUpstream):
		return http.StatusBadGateway, "GENERATION_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	writeJSON(w, status, ErrorBody{Code: code, Message: msg})
}
