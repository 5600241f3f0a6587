package handler

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Xzayogn-ECS/trueport-backend/internal/middleware"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errcode"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserIDKey)
}

var errMapping = []struct {
	err  error
	code int
}{
	{appErr.ErrTokenInvalid, errcode.ErrTokenInvalid},
	{appErr.ErrTokenExpired, errcode.ErrTokenExpired},
	{appErr.ErrTokenRevoked, errcode.ErrTokenRevoked},
	{appErr.ErrAlreadyProcessed, errcode.ErrAlreadyProcessed},
	{appErr.ErrGone, errcode.ErrGone},
	{appErr.ErrUnauthorized, errcode.ErrUnauthorized},
	{appErr.ErrForbidden, errcode.ErrForbidden},
	{appErr.ErrNotFound, errcode.ErrNotFound},
	{appErr.ErrInvalid, errcode.ErrInvalid},
	{appErr.ErrConflict, errcode.ErrConflict},
	{appErr.ErrTooMany, errcode.ErrTooMany},
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	code := errcode.ErrInternal
	for _, m := range errMapping {
		if errors.Is(err, m.err) {
			code = m.code
			break
		}
	}
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	if code == errcode.ErrInternal {
		logger.Error("request failed")
		response.Error(c, code, "internal error")
		return
	}
	logger.Info("request rejected")
	response.Error(c, code, err.Error())
}

func badRequest(c *gin.Context, message string) {
	response.Error(c, errcode.ErrInvalid, message)
}

// bindJSON accepts an empty body as the zero value.
func bindJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "invalid request")
		return false
	}
	return true
}

// bearerToken is the token from the body, falling back to the X-Action-Token header.
func bearerToken(c *gin.Context, fromBody string) string {
	if token := strings.TrimSpace(fromBody); token != "" {
		return token
	}
	return strings.TrimSpace(c.GetHeader("X-Action-Token"))
}
