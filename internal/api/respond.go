package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/logger"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logger.Error("failed to encode response", zap.Error(err))
		}
	}
}

func writeError(w http.ResponseWriter, err error) {
	ae := apperrors.AsError(err)
	if ae.Kind == apperrors.KindInternal {
		logger.Error("request failed", zap.Error(err))
		// Do not leak internals to the client
		ae = apperrors.Internalf(ae.Code, "internal error")
	}
	writeJSON(w, apperrors.HTTPStatus(err), map[string]any{"error": ae})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.Validationf("bad_body", "malformed request body: %s", err.Error())
	}
	return nil
}

// pagination validates limit/offset query parameters
func pagination(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxPageLimit {
			return 0, 0, apperrors.Validationf("bad_limit", "limit must be between 1 and %d", maxPageLimit).WithField("limit")
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, apperrors.Validationf("bad_offset", "offset must be non-negative").WithField("offset")
		}
	}
	return limit, offset, nil
}
