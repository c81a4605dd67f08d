package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/medrag/internal/filestore"
)

type ArchiveHandler struct {
	store filestore.Store
}

func NewArchiveHandler(store filestore.Store) *ArchiveHandler {
	return &ArchiveHandler{store: store}
}

// Get streams an archived document's text.
func (h *ArchiveHandler) Get(c *gin.Context) {
	file, err := h.store.Open(c.Request.Context(), c.Param("key"))
	if err != nil {
		handleError(c, err)
		return
	}
	defer file.Close()
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
