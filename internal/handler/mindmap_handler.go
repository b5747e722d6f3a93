// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"mind-tutor-go/internal/model"
	"mind-tutor-go/internal/service"
	"mind-tutor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// MindmapHandler 处理从语音生成思维导图的 API 请求。
type MindmapHandler struct {
	mindmapService service.MindmapService
}

// NewMindmapHandler 创建一个新的 MindmapHandler。
func NewMindmapHandler(mindmapService service.MindmapService) *MindmapHandler {
	return &MindmapHandler{mindmapService: mindmapService}
}

// maxAudioSize 限制上传录音的大小（32MB）。
const maxAudioSize = 32 << 20

// FromSpeech 处理上传录音并生成思维导图的请求（multipart 表单，字段名 audio）。
func (h *MindmapHandler) FromSpeech(c *gin.Context) {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求：缺少 audio 文件",
		})
		return
	}
	if fileHeader.Size > maxAudioSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "录音文件过大",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "读取录音文件失败",
		})
		return
	}
	defer file.Close()

	user := c.MustGet("user").(*model.User)
	contentType := fileHeader.Header.Get("Content-Type")

	mindmap, err := h.mindmapService.FromSpeech(c.Request.Context(), user.ID, fileHeader.Filename, file, fileHeader.Size, contentType)
	if err != nil {
		log.Errorf("生成思维导图失败: userID=%d, file=%s, err=%v", user.ID, fileHeader.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "生成思维导图失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    mindmap,
	})
}
