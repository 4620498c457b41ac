package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edusight/observation-service/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps tagged service errors onto the HTTP envelope;
// untagged errors become plain 500s.
func RespondServiceError(c *gin.Context, err error) {
	code := apierr.CodeOf(err)
	if code == "" {
		code = "internal_error"
	}
	RespondError(c, apierr.StatusOf(err), code, err)
}
