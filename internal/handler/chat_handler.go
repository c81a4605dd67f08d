package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/search"
)

type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) *model.Answer
}

type ChatHandler struct {
	search Searcher
	opts   search.Options
}

// NewChatHandler accepts a nil searcher so a server whose service failed
// to start still answers /chat with 500.
func NewChatHandler(s Searcher, opts search.Options) *ChatHandler {
	return &ChatHandler{search: s, opts: opts}
}

type chatRequest struct {
	Message interface{} `json:"message"`
}

func chatError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func (h *ChatHandler) Chat(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		chatError(c, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if h.search == nil {
		logutil.GetLogger(c.Request.Context()).Error("chat service not initialized")
		chatError(c, http.StatusInternalServerError, "Failed to process chat request")
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		chatError(c, http.StatusBadRequest, "Message is required")
		return
	}
	message, ok := req.Message.(string)
	if !ok || strings.TrimSpace(message) == "" {
		chatError(c, http.StatusBadRequest, "Message is required")
		return
	}
	logutil.GetLogger(c.Request.Context()).Info("chat request", zap.Int("message_len", len(message)))
	c.JSON(http.StatusOK, h.search.Search(c.Request.Context(), message, h.opts))
}
