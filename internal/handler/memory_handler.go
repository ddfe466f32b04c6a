package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"jotium-go/internal/service"
)

// MemoryHandler 处理用户长期记忆相关的 API 请求。
type MemoryHandler struct {
	service service.MemoryService
}

// NewMemoryHandler 创建一个新的 MemoryHandler。
func NewMemoryHandler(service service.MemoryService) *MemoryHandler {
	return &MemoryHandler{service: service}
}

type storeMemoryRequest struct {
	Key      string                 `json:"key"`
	Value    interface{}            `json:"value"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Store 保存一条记忆。value 可以是字符串，也可以是任意 JSON 值。
func (h *MemoryHandler) Store(c *gin.Context) {
	userID := c.Param("userId")
	if !authorizeUser(c, userID) {
		return
	}
	var req storeMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Key) == "" || req.Value == nil {
		respondError(c, http.StatusBadRequest, "Key and value are required")
		return
	}
	entry, err := h.service.Store(c.Request.Context(), userID, req.Key, req.Value, req.Metadata)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Memory stored successfully", "data": entry})
}

// Get 读取一条记忆，不存在时 data 为 null。
func (h *MemoryHandler) Get(c *gin.Context) {
	userID := c.Param("userId")
	if !authorizeUser(c, userID) {
		return
	}
	entry, err := h.service.Get(c.Request.Context(), userID, c.Param("key"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, entry)
}

// GetAll 返回用户的全部记忆。
func (h *MemoryHandler) GetAll(c *gin.Context) {
	userID := c.Param("userId")
	if !authorizeUser(c, userID) {
		return
	}
	memories, err := h.service.GetAll(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, memories)
}

// Search 按 query 参数搜索记忆。
func (h *MemoryHandler) Search(c *gin.Context) {
	userID := c.Param("userId")
	if !authorizeUser(c, userID) {
		return
	}
	query := c.Query("query")
	if strings.TrimSpace(query) == "" {
		respondError(c, http.StatusBadRequest, "Query parameter is required")
		return
	}
	memories, err := h.service.Search(c.Request.Context(), userID, query)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, memories)
}

// Delete 删除一条记忆，不存在时返回 404。
func (h *MemoryHandler) Delete(c *gin.Context) {
	userID := c.Param("userId")
	if !authorizeUser(c, userID) {
		return
	}
	deleted, err := h.service.Delete(c.Request.Context(), userID, c.Param("key"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !deleted {
		respondError(c, http.StatusNotFound, "Memory not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Memory deleted successfully", "data": nil})
}
