package handler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/medrag/internal/ingest"
	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/pkg/errcode"
	appErr "github.com/xxxsen/medrag/internal/pkg/errors"
	"github.com/xxxsen/medrag/internal/pkg/response"
)

type DocumentIngester interface {
	IngestBatch(ctx context.Context, docs []model.Document) []ingest.BatchResult
}

type URLIngester interface {
	IngestFromURL(ctx context.Context, url string, overrides *model.MetadataOverrides) (bool, error)
	IngestMultipleURLs(ctx context.Context, reqs []ingest.URLRequest) []ingest.URLResult
}

type IngestHandler struct {
	docs DocumentIngester
	urls URLIngester
}

func NewIngestHandler(docs DocumentIngester, urls URLIngester) *IngestHandler {
	return &IngestHandler{docs: docs, urls: urls}
}

type ingestDocumentsRequest struct {
	Documents []model.Document `json:"documents"`
}

type ingestURLRequest struct {
	URL      string                   `json:"url"`
	Metadata *model.MetadataOverrides `json:"metadata"`
	URLs     []ingest.URLRequest      `json:"urls"`
}

func (h *IngestHandler) Documents(c *gin.Context) {
	var req ingestDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Documents) == 0 {
		response.Error(c, errcode.ErrInvalid, "documents are required")
		return
	}
	for i, d := range req.Documents {
		if d.Metadata.Title == "" {
			response.Error(c, errcode.ErrInvalid, fmt.Sprintf("documents[%d]: title is required", i))
			return
		}
	}
	results := h.docs.IngestBatch(c.Request.Context(), req.Documents)
	response.Success(c, gin.H{"results": results})
}

func (h *IngestHandler) URL(c *gin.Context) {
	var req ingestURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if len(req.URLs) > 0 {
		results := h.urls.IngestMultipleURLs(c.Request.Context(), req.URLs)
		response.Success(c, gin.H{"results": results})
		return
	}
	if req.URL == "" {
		response.Error(c, errcode.ErrInvalid, "url is required")
		return
	}
	ok, err := h.urls.IngestFromURL(c.Request.Context(), req.URL, req.Metadata)
	if err != nil {
		handleError(c, err)
		return
	}
	if !ok {
		handleError(c, appErr.ErrIngestion)
		return
	}
	response.Success(c, ingest.URLResult{URL: req.URL, Success: true})
}
