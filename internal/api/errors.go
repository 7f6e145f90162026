package api

import (
	"errors"
	"net/http"

	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/dunamismax/shrinkit/internal/pipeline"
	"github.com/dunamismax/shrinkit/internal/store"
	"go.uber.org/zap"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

const (
	kindBusy       = "busy"
	kindNoSource   = "no_source"
	kindNotReady   = "not_ready"
	kindNotFound   = "not_found"
	kindBadRequest = "bad_request"
	kindInternal   = "internal"
)

// writeError maps state machine and domain errors onto HTTP. Anything it
// does not recognise is logged and reported as a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: kindBusy})
	case errors.Is(err, pipeline.ErrNoSource):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: kindNoSource})
	case errors.Is(err, pipeline.ErrNotReady):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: kindNotReady})
	case errors.Is(err, store.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Kind: kindNotFound})
	case errors.As(err, &de):
		writeJSON(w, statusForKind(de.Kind), errorBody{Error: de.Reason, Kind: string(de.Kind)})
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Kind: kindInternal})
	}
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput, domain.KindDecodeFailure:
		return http.StatusUnprocessableEntity
	case domain.KindReadFailure:
		return http.StatusBadRequest
	case domain.KindRemoteFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: kindBadRequest})
}
