package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koustreak/stagegen/internal/bundle"
	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/inference"
	"github.com/koustreak/stagegen/internal/logger"
)

type generateResponse struct {
	RequestID string                    `json:"requestId"`
	Files     []bundle.GeneratedFile    `json:"files"`
	Tables    []inference.TableMetadata `json:"tables"`
}

type analyzeResponse struct {
	RequestID string                    `json:"requestId"`
	Tables    []inference.TableMetadata `json:"tables"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Table   string `json:"table,omitempty"`
	Column  string `json:"column,omitempty"`
}

// errorResponse carries the first failure in Error and, when a request
// failed on several tables, every failure in Details.
type errorResponse struct {
	Error   errorBody   `json:"error"`
	Details []errorBody `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{}

	all := errs.All(err)
	switch len(all) {
	case 0:
		resp.Error = errorBody{Kind: errs.ErrKindUnknown.String(), Message: "internal error"}
	default:
		resp.Error = bodyOf(all[0])
		if len(all) > 1 {
			resp.Details = make([]errorBody, len(all))
			for i, e := range all {
				resp.Details[i] = bodyOf(e)
			}
		}
	}

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.ErrorWith("request failed", err, map[string]interface{}{"status": status})
	} else {
		log.With().Err(err).Int("status", status).Logger().Debug("request rejected")
	}
	writeJSON(w, status, resp)
}

func bodyOf(e *errs.Error) errorBody {
	return errorBody{
		Kind:    e.Kind.String(),
		Message: e.Message,
		Table:   e.Table,
		Column:  e.Column,
	}
}

// statusClientClosedRequest is the non-standard status logged when the
// client goes away before the response is ready.
const statusClientClosedRequest = 499

// statusFor maps the kind of the first failure to an HTTP status. Input
// problems are the caller's (4xx); backend problems are ours (5xx).
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	switch errs.KindOf(err) {
	case errs.ErrKindEmptyInput, errs.ErrKindSchemaParse, errs.ErrKindInvalidInput, errs.ErrKindNameCollision:
		return http.StatusBadRequest
	case errs.ErrKindReferentialIntegrity, errs.ErrKindMissingKeyColumn:
		return http.StatusUnprocessableEntity
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindCanceled:
		return statusClientClosedRequest
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindConnectionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
