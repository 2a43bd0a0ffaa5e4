package response

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"github.com/yungbote/memoir-studio-backend/internal/platform/apierr"
)

// retryAfterSeconds is advertised on retryable failures.
const retryAfterSeconds = 5

// FromError maps a service failure to its HTTP status and envelope.
func FromError(err error) *apierr.Error {
	if err == nil {
		return nil
	}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	if se, ok := studio.AsError(err); ok {
		return &apierr.Error{Status: statusForStudio(se.Code), Code: string(se.Code), Retryable: se.Retryable(), Err: err}
	}
	switch domainagg.CodeOf(err) {
	case domainagg.CodeValidation:
		return apierr.New(http.StatusUnprocessableEntity, string(studio.CodeInvalidInput), err)
	case domainagg.CodeNotFound:
		return apierr.New(http.StatusNotFound, string(studio.CodeNotFound), err)
	case domainagg.CodeConflict, domainagg.CodePreconditionFailed:
		return apierr.NewRetryable(http.StatusConflict, "CONFLICT", err)
	case domainagg.CodeRetryable:
		return apierr.NewRetryable(http.StatusServiceUnavailable, "RETRYABLE", err)
	}
	return apierr.New(http.StatusInternalServerError, string(studio.CodeInternal), err)
}

func statusForStudio(code studio.ErrorCode) int {
	switch code {
	case studio.CodeAlreadyGenerating, studio.CodeInvalidAction:
		return http.StatusConflict
	case studio.CodeDraftNotReady, studio.CodeIllustrationsNotReady, studio.CodePopulateFailed:
		return http.StatusServiceUnavailable
	case studio.CodeRateLimited:
		return http.StatusTooManyRequests
	case studio.CodeNotFound:
		return http.StatusNotFound
	case studio.CodeNoAnswers, studio.CodeNoCandidates, studio.CodeInvalidInput:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// RespondFailure writes err using the studio error envelope. Users see actionable text
// for input problems and a generic retry hint otherwise.
func RespondFailure(c *gin.Context, err error) {
	ae := FromError(err)
	msg := studio.UserMessage(err)
	if _, ok := studio.AsError(err); !ok && (ae.Status == http.StatusUnprocessableEntity || ae.Status == http.StatusNotFound) {
		msg = ae.Error()
	}
	if ae.Retryable {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	if ae.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(ae.Status, ErrorEnvelope{
		Error: APIError{
			Message:   msg,
			Code:      ae.Code,
			Retryable: ae.Retryable,
		},
	})
}
