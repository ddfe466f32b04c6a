package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"jotium-go/internal/middleware"
	"jotium-go/internal/service"
	"jotium-go/pkg/log"
	"jotium-go/pkg/storage"
)

const (
	maxImageSize       = 10 << 20
	defaultImagePrompt = "Analyze this image and describe what you see."
	anonymousUser      = "anonymous"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}

	errMissingInput = errors.New("message or image is required")
)

// ChatOptions 是请求中可选的生成参数。
type ChatOptions struct {
	Temperature  *float64 `json:"temperature"`
	HistoryLimit int      `json:"historyLimit"`
}

// InlineImage 是 JSON 或 WebSocket 请求中以 base64 编码内联的图片。
type InlineImage struct {
	MIMEType string `json:"mimeType"`
	FileName string `json:"fileName"`
	Data     []byte `json:"data"`
}

// ChatRequest 是 /api/v1/chat 和 WebSocket 帧的请求体。
type ChatRequest struct {
	Message        string       `json:"message" form:"message"`
	UserID         string       `json:"userId" form:"userId"`
	ConversationID string       `json:"conversationId" form:"conversationId"`
	IncludeHistory *bool        `json:"includeHistory" form:"includeHistory"`
	HistoryLimit   int          `json:"historyLimit" form:"historyLimit"`
	Options        *ChatOptions `json:"options" form:"-"`
	Stream         bool         `json:"stream" form:"stream"`
	Image          *InlineImage `json:"image" form:"-"`
}

// ChatHandler 负责处理对话请求，支持普通 JSON、multipart 图片上传、SSE 和 WebSocket。
type ChatHandler struct {
	chatService service.ChatService
	attachments storage.AttachmentStore
}

// NewChatHandler 创建一个新的 ChatHandler。attachments 为 nil 时图片不归档。
func NewChatHandler(chatService service.ChatService, attachments storage.AttachmentStore) *ChatHandler {
	return &ChatHandler{chatService: chatService, attachments: attachments}
}

// Chat 处理 POST /api/v1/chat。
func (h *ChatHandler) Chat(c *gin.Context) {
	req, err := h.bindRequest(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if req.Stream {
		h.stream(c, req)
		return
	}

	data, err := h.execute(c.Request.Context(), req)
	if err != nil {
		log.Errorf("处理对话请求失败: %v", err)
		respondServiceError(c, err)
		return
	}
	respondOK(c, data)
}

// HandleWebsocket 处理 GET /api/v1/chat/ws。每个 JSON 帧是一个 ChatRequest，
// 服务端依次回发 status、response（或 error）、complete 事件。
func (h *ChatHandler) HandleWebsocket(c *gin.Context) {
	authedUser := middleware.AuthenticatedUserID(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立, remote: %s", conn.RemoteAddr())

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		var req ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			_ = conn.WriteJSON(gin.H{"type": "error", "error": "invalid request: " + err.Error()})
			continue
		}
		if authedUser != "" {
			req.UserID = authedUser
		}
		if err := normalizeRequest(&req); err != nil {
			_ = conn.WriteJSON(gin.H{"type": "error", "error": err.Error()})
			continue
		}

		if err := conn.WriteJSON(gin.H{"type": "status", "message": "Processing...", "conversationId": req.ConversationID}); err != nil {
			return
		}
		data, err := h.execute(c.Request.Context(), req)
		if err != nil {
			log.Errorf("处理 WebSocket 对话失败: %v", err)
			if werr := conn.WriteJSON(gin.H{"type": "error", "error": err.Error()}); werr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(gin.H{"type": "response", "data": data}); err != nil {
			return
		}
		if err := conn.WriteJSON(gin.H{"type": "complete"}); err != nil {
			return
		}
	}
}

// stream 以 Server-Sent Events 的形式返回结果。
func (h *ChatHandler) stream(c *gin.Context, req ChatRequest) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	writeEvent(c, gin.H{"type": "status", "message": "Processing...", "conversationId": req.ConversationID})
	data, err := h.execute(c.Request.Context(), req)
	if err != nil {
		log.Errorf("处理流式对话请求失败: %v", err)
		writeEvent(c, gin.H{"type": "error", "error": err.Error()})
		return
	}
	writeEvent(c, gin.H{"type": "response", "data": data})
	writeEvent(c, gin.H{"type": "complete"})
}

func writeEvent(c *gin.Context, event gin.H) {
	b, err := json.Marshal(event)
	if err != nil {
		log.Errorf("序列化 SSE 事件失败: %v", err)
		return
	}
	_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", b)
	c.Writer.Flush()
}

// execute 运行一轮对话并组装响应数据。
func (h *ChatHandler) execute(ctx context.Context, req ChatRequest) (gin.H, error) {
	start := time.Now()

	in := service.TurnInput{Text: req.Message}
	var imageInfo []gin.H
	if req.Image != nil {
		img := service.ImageInput{MIMEType: req.Image.MIMEType, Data: req.Image.Data, FileName: req.Image.FileName}
		if h.attachments != nil {
			key, err := h.attachments.PutAttachment(ctx, req.UserID, req.ConversationID, img.FileName, img.MIMEType, img.Data)
			if err != nil {
				log.Warnf("归档图片失败，继续处理对话: %v", err)
			} else {
				img.ObjectKey = key
			}
		}
		in.Images = []service.ImageInput{img}
		info := gin.H{"filename": img.FileName, "size": len(img.Data), "mimetype": img.MIMEType}
		if img.ObjectKey != "" {
			info["objectKey"] = img.ObjectKey
		}
		imageInfo = append(imageInfo, info)
	}

	opts := service.TurnOptions{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		IncludeHistory: req.IncludeHistory == nil || *req.IncludeHistory,
		HistoryLimit:   req.HistoryLimit,
	}
	if req.Options != nil {
		opts.Temperature = req.Options.Temperature
		if req.Options.HistoryLimit > 0 {
			opts.HistoryLimit = req.Options.HistoryLimit
		}
	}

	result, err := h.chatService.RunTurn(ctx, in, opts)
	if err != nil {
		return nil, err
	}

	data := gin.H{
		"response":       result.Text,
		"thoughts":       result.Thoughts,
		"toolCalls":      result.ToolCalls,
		"timestamp":      result.Timestamp,
		"iterations":     result.Iterations,
		"stopReason":     result.StopReason,
		"forcedStop":     result.ForcedStop,
		"conversationId": req.ConversationID,
		"userId":         req.UserID,
		"processingTime": time.Since(start).Milliseconds(),
	}
	if len(imageInfo) > 0 {
		data["imageInfo"] = imageInfo
	}
	return data, nil
}

// bindRequest 解析 JSON 或 multipart 请求，并填充默认值。
func (h *ChatHandler) bindRequest(c *gin.Context) (ChatRequest, error) {
	var req ChatRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			return req, fmt.Errorf("invalid request: %w", err)
		}
		if raw := c.PostForm("options"); raw != "" {
			var opts ChatOptions
			if err := json.Unmarshal([]byte(raw), &opts); err != nil {
				return req, fmt.Errorf("invalid options: %w", err)
			}
			req.Options = &opts
		}
		img, err := readUploadedImage(c)
		if err != nil {
			return req, err
		}
		req.Image = img
	} else if err := c.ShouldBindJSON(&req); err != nil {
		return req, fmt.Errorf("invalid request: %w", err)
	}

	if authed := middleware.AuthenticatedUserID(c); authed != "" {
		req.UserID = authed
	}
	return req, normalizeRequest(&req)
}

// readUploadedImage 读取 multipart 表单中的第一张图片，其余文件忽略。
func readUploadedImage(c *gin.Context) (*InlineImage, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	for _, files := range form.File {
		for _, fh := range files {
			mimeType := fh.Header.Get("Content-Type")
			if !strings.HasPrefix(mimeType, "image/") {
				return nil, fmt.Errorf("only image files are allowed, got %q", mimeType)
			}
			if fh.Size > maxImageSize {
				return nil, errors.New("file too large, maximum size is 10MB")
			}
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open uploaded image: %w", err)
			}
			data, err := io.ReadAll(io.LimitReader(f, maxImageSize+1))
			_ = f.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read uploaded image: %w", err)
			}
			return &InlineImage{MIMEType: mimeType, FileName: fh.Filename, Data: data}, nil
		}
	}
	return nil, nil
}

func normalizeRequest(req *ChatRequest) error {
	if req.Image != nil && len(req.Image.Data) == 0 {
		req.Image = nil
	}
	if req.Image != nil {
		if !strings.HasPrefix(req.Image.MIMEType, "image/") {
			return fmt.Errorf("only image files are allowed, got %q", req.Image.MIMEType)
		}
		if len(req.Image.Data) > maxImageSize {
			return errors.New("file too large, maximum size is 10MB")
		}
	}
	if strings.TrimSpace(req.Message) == "" {
		if req.Image == nil {
			return errMissingInput
		}
		req.Message = defaultImagePrompt
	}
	if req.UserID == "" {
		req.UserID = anonymousUser
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	if req.HistoryLimit < 0 {
		req.HistoryLimit = 0
	}
	return nil
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
