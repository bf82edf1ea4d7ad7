package handler

import (
	"errors"
	"net/http"

	"github.com/blues/stream/internal/apperr"
	"github.com/blues/stream/internal/logger"
	"github.com/gin-gonic/gin"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// AppErrorResponse 业务错误以错误码作为 message 返回, 其他错误只记录日志
func AppErrorResponse(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if appErr.Status >= http.StatusInternalServerError {
			logger.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		} else {
			logger.Debug("%s %s rejected: %v", c.Request.Method, c.FullPath(), err)
		}
		ErrorResponse(c, appErr.Status, string(appErr.Code))
		return
	}

	logger.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	ErrorResponse(c, http.StatusInternalServerError, string(apperr.TransferFailed))
}
