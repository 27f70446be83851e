package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pressplay/arcade/internal/apperr"
)

// writeError maps the broker taxonomy onto HTTP statuses. Every failure
// reaches the client as a structured body, never a bare status.
func writeError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.ErrInternal.Wrap(err)
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperr.CodeValidation:
		status = http.StatusBadRequest
	case apperr.CodeNotFound, apperr.CodeRoomNotFound, apperr.CodeVersionUnavailable:
		status = http.StatusNotFound
	case apperr.CodeAuthorization:
		status = http.StatusForbidden
	case apperr.CodeRoomFull, apperr.CodeInvalidState, apperr.CodeUsernameExists:
		status = http.StatusConflict
	case apperr.CodePoolExhausted:
		status = http.StatusServiceUnavailable
	case apperr.CodeCompile, apperr.CodeSpawn, apperr.CodeAbnormalExit:
		status = http.StatusBadGateway
	case apperr.CodeInvalidCredentials, apperr.CodeUnauthenticated:
		status = http.StatusUnauthorized
	}

	body := gin.H{"code": int(appErr.Code), "error": appErr.Message}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	c.AbortWithStatusJSON(status, body)
}
