package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/equilix-backend/internal/flow"
	"github.com/yungbote/equilix-backend/internal/platform/apierr"
	"github.com/yungbote/equilix-backend/internal/schema"
)

// StatusClientClosedRequest is the nginx convention for a caller that went away.
const StatusClientClosedRequest = 499

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// toAPIError maps domain errors onto statuses and codes. Model output never
// reaches the client; only the fact that it was unusable does.
func toAPIError(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.New(http.StatusRequestEntityTooLarge, "request_too_large", err).
			WithMessage("request body too large")
	}

	switch flow.Kind(err) {
	case flow.KindNotFound:
		return apierr.New(http.StatusNotFound, "flow_not_found", err)
	case flow.KindOutputValidation:
		return apierr.New(http.StatusBadGateway, "invalid_model_output", err).
			WithMessage("the AI model returned a response that could not be used")
	case flow.KindUnknownModel:
		return apierr.New(http.StatusBadRequest, "unknown_model", err)
	case flow.KindValidation:
		out := apierr.New(http.StatusBadRequest, "validation_failed", err)
		var ve *schema.ValidationError
		if errors.As(err, &ve) {
			out = out.WithMessage(ve.Error()).WithDetails(ve.Fields)
		}
		return out
	case flow.KindCanceled:
		return apierr.New(StatusClientClosedRequest, "request_canceled", err).
			WithMessage("request canceled")
	case flow.KindModelInvocation:
		return apierr.New(http.StatusBadGateway, "model_unreachable", err).
			WithMessage("could not reach the AI model")
	default:
		return apierr.New(http.StatusInternalServerError, "internal", err).
			WithMessage("internal server error")
	}
}

func errorBodyFor(err error) errorBody {
	ae := toAPIError(err)
	msg := strings.TrimSpace(ae.Message)
	if msg == "" && ae.Err != nil {
		msg = ae.Err.Error()
	}
	if msg == "" {
		msg = http.StatusText(ae.StatusOrDefault())
	}
	return errorBody{Message: msg, Code: ae.Code, Details: ae.Details}
}

func respondError(c *gin.Context, err error) {
	c.JSON(toAPIError(err).StatusOrDefault(), errorEnvelope{Error: errorBodyFor(err)})
}

func abortError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(toAPIError(err).StatusOrDefault(), errorEnvelope{Error: errorBodyFor(err)})
}

func badRequest(c *gin.Context, msg string) {
	respondError(c, apierr.New(http.StatusBadRequest, "bad_request", errors.New(msg)))
}
