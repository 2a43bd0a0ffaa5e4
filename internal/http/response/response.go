package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError is the public body of every failed request.
type APIError struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondOK(c *gin.Context, payload any) { c.JSON(http.StatusOK, payload) }

func RespondCreated(c *gin.Context, payload any) { c.JSON(http.StatusCreated, payload) }

// RespondAccepted is used when work continues in the background; progress arrives
// on the chapter event stream.
func RespondAccepted(c *gin.Context, payload any) { c.JSON(http.StatusAccepted, payload) }
