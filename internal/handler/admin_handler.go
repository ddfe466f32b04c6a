package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jotium-go/internal/middleware"
	"jotium-go/internal/repository"
	"jotium-go/pkg/log"
	"jotium-go/pkg/tasks"
)

// CleanupQueue 把清理任务投递到后台队列。
type CleanupQueue interface {
	ProduceCleanupTask(ctx context.Context, task tasks.CleanupTask) (*tasks.CleanupTask, error)
}

// AdminHandler 处理管理员相关的 API 请求。
type AdminHandler struct {
	turnRepo repository.TurnRepository
	queue    CleanupQueue
}

// NewAdminHandler 创建一个新的 AdminHandler。turnRepo 或 queue 为 nil 时对应接口返回 503。
func NewAdminHandler(turnRepo repository.TurnRepository, queue CleanupQueue) *AdminHandler {
	return &AdminHandler{turnRepo: turnRepo, queue: queue}
}

// ListTurns 分页列出归档的对话轮次，可按 userId 过滤。
func (h *AdminHandler) ListTurns(c *gin.Context) {
	if h.turnRepo == nil {
		respondError(c, http.StatusServiceUnavailable, "turn archive is not configured")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	records, total, err := h.turnRepo.FindWithPagination(c.Request.Context(), c.Query("userId"), (page-1)*size, size)
	if err != nil {
		log.Errorf("查询对话归档失败: %v", err)
		respondError(c, http.StatusInternalServerError, "Failed to list turns")
		return
	}
	respondOK(c, gin.H{
		"content":       records,
		"totalElements": total,
		"page":          page,
		"size":          size,
	})
}

// EnqueueCleanup 为指定用户投递一个数据清理任务。
func (h *AdminHandler) EnqueueCleanup(c *gin.Context) {
	if h.queue == nil {
		respondError(c, http.StatusServiceUnavailable, "cleanup queue is not configured")
		return
	}
	task, err := h.queue.ProduceCleanupTask(c.Request.Context(), tasks.CleanupTask{
		UserID:      c.Param("userId"),
		RequestedBy: middleware.AuthenticatedUserID(c),
	})
	if err != nil {
		log.Errorf("投递清理任务失败: %v", err)
		respondError(c, http.StatusInternalServerError, "Failed to enqueue cleanup task")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "cleanup task enqueued", "data": task})
}
