package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"product-catalog-server-go/internal/platform/errors"
)

// APIResponse 定义统一的接口返回结构体
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// ErrorData 错误响应的 data 字段
type ErrorData struct {
	Error       string `json:"error"`
	Kind        string `json:"kind"`
	RequestID   string `json:"requestId,omitempty"`
	RawResponse string `json:"rawResponse,omitempty"`
}

// RespondSuccess 返回成功响应
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}

	c.JSON(httpStatus, APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// RespondError 返回失败响应
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindInput, errors.KindUnsupportedFormat:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RespondFailure writes err as an error envelope. Parse failures carry the raw model reply.
func RespondFailure(c *gin.Context, httpStatus int, requestID string, err error) {
	data := ErrorData{
		Error:     err.Error(),
		Kind:      string(errors.KindOf(err)),
		RequestID: requestID,
	}
	if errors.IsKind(err, errors.KindParse) {
		data.RawResponse = errors.DetailOf(err)
	}

	RespondError(c, httpStatus, errors.MessageOf(err), data)
}
