package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tempora/backend/pkg/response"
)

// BodyLimit 请求体大小限制中间件
// 计时指令的请求体只有几个字段，声明长度超限直接拒绝，其余交给 MaxBytesReader 截断
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodeInvalidParams, "请求体过大")
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()
	}
}
