// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"mind-tutor-go/internal/model"
	"mind-tutor-go/internal/service"

	"github.com/gin-gonic/gin"
)

// AnalyticsHandler 处理学习统计相关的 API 请求。
type AnalyticsHandler struct {
	analyticsService service.AnalyticsService
}

// NewAnalyticsHandler 创建一个新的 AnalyticsHandler。
func NewAnalyticsHandler(analyticsService service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

// Summary 返回当前用户的学习统计摘要。
func (h *AnalyticsHandler) Summary(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	summary, err := h.analyticsService.Summary(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to retrieve activity summary",
			"data":    nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    summary,
	})
}
