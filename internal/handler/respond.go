// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "yuanfen-go/pkg/errors"
	"yuanfen-go/pkg/log"
)

// httpStatusFor 把业务错误码映射为 HTTP 状态码。
func httpStatusFor(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidArgument, apperrors.CodeIncompleteProfile:
		return http.StatusBadRequest
	case apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.CodePermissionDenied:
		return http.StatusForbidden
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeAlreadyModerated, apperrors.CodeConversationInactive:
		return http.StatusConflict
	case apperrors.CodeScorerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError 按统一格式输出错误响应，业务码放入 code 字段。
func respondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	status := httpStatusFor(code)
	if status == http.StatusInternalServerError {
		log.Errorf("请求处理失败: path=%s, err=%v", c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{
		"code":    string(code),
		"message": err.Error(),
		"data":    nil,
	})
}

// respondOK 按统一格式输出成功响应。
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    data,
	})
}
