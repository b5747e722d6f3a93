// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"mind-tutor-go/internal/model"
	"mind-tutor-go/internal/service"
	"mind-tutor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// QuizHandler 处理测验生成与结果提交的 API 请求。
type QuizHandler struct {
	quizService service.QuizService
}

// NewQuizHandler 创建一个新的 QuizHandler。
func NewQuizHandler(quizService service.QuizService) *QuizHandler {
	return &QuizHandler{quizService: quizService}
}

// GenerateQuizRequest 定义了生成测验 API 的请求体结构。
type GenerateQuizRequest struct {
	Topic          string `json:"topic" binding:"required"`
	ConversationID string `json:"conversationId"`
	QuestionCount  int    `json:"questionCount"`
}

// Generate 处理生成测验的请求。
func (h *QuizHandler) Generate(c *gin.Context) {
	var req GenerateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：topic 不能为空",
		})
		return
	}

	user := c.MustGet("user").(*model.User)
	quiz, err := h.quizService.Generate(c.Request.Context(), user.ID, req.ConversationID, req.Topic, req.QuestionCount)
	if err != nil {
		log.Errorf("生成测验失败: userID=%d, topic=%s, err=%v", user.ID, req.Topic, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "生成测验失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    quiz,
	})
}

// SubmitResultRequest 定义了提交测验结果 API 的请求体结构。
// 判分在客户端完成，这里接收的是已判分的结果。
type SubmitResultRequest struct {
	QuizID string `json:"quizId" binding:"required"`
	Score  int    `json:"score" binding:"min=0"`
	Total  int    `json:"total" binding:"required,min=1"`
}

// SubmitResult 处理提交测验结果的请求。
func (h *QuizHandler) SubmitResult(c *gin.Context) {
	var req SubmitResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载: " + err.Error(),
		})
		return
	}

	user := c.MustGet("user").(*model.User)
	result, err := h.quizService.SubmitResult(c.Request.Context(), user.ID, req.QuizID, req.Score, req.Total)
	if err != nil {
		log.Warnf("提交测验结果失败: userID=%d, quizID=%s, err=%v", user.ID, req.QuizID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "提交测验结果失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    result,
	})
}

// ListResults 返回当前用户的测验结果历史。
func (h *QuizHandler) ListResults(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	results, err := h.quizService.ListResults(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to retrieve quiz results",
			"data":    nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    results,
	})
}
