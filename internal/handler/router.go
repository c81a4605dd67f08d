package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/medrag/internal/middleware"
)

type RouterDeps struct {
	Chat *ChatHandler
	// Ingest and Archive are optional, their routes are only registered
	// when set.
	Ingest        *IngestHandler
	Archive       *ArchiveHandler
	ChatRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.Any("/chat", middleware.RateLimit(deps.ChatRateLimit), deps.Chat.Chat)

	if deps.Ingest != nil {
		api.POST("/ingest/documents", deps.Ingest.Documents)
		api.POST("/ingest/url", deps.Ingest.URL)
	}
	if deps.Archive != nil {
		api.GET("/archive/:key", deps.Archive.Get)
	}
}
