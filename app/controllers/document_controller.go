package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/docchat/backend-go/internal/di"
	"github.com/docchat/backend-go/internal/logger"
	"github.com/docchat/backend-go/internal/services"
	"go.uber.org/zap"
)

// DocumentController 文档控制器
type DocumentController struct {
	BaseController
	docs *services.DocumentService
}

// Prepare 从DI容器解析文档服务
func (c *DocumentController) Prepare() {
	if err := di.Invoke(func(s *services.DocumentService) {
		c.docs = s
	}); err != nil {
		logger.Error("failed to resolve document service", zap.Error(err))
	}
}

// Create 录入纯文本文档
func (c *DocumentController) Create() {
	if c.docs == nil {
		c.JSONError(http.StatusInternalServerError, "document service unavailable")
		return
	}

	var req services.CreateDocumentRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := c.docs.CreateDocument(c.Ctx.Request.Context(), req)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    doc,
	})
}

// Upload 上传文件入库（multipart form，字段名file）
func (c *DocumentController) Upload() {
	if c.docs == nil {
		c.JSONError(http.StatusInternalServerError, "document service unavailable")
		return
	}

	file, header, err := c.GetFile("file")
	if err != nil {
		c.JSONError(http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	doc, err := c.docs.UploadDocument(c.Ctx.Request.Context(), header.Filename, contentType, file, header.Size)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    doc,
	})
}

// Get 查询单个文档
func (c *DocumentController) Get() {
	documentID := c.GetString(":id")
	if documentID == "" {
		c.JSONError(http.StatusBadRequest, "missing document id")
		return
	}

	doc, err := c.docs.GetDocument(c.Ctx.Request.Context(), documentID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(doc)
}

// List 分页查询文档
func (c *DocumentController) List() {
	page, _ := c.GetInt("page", 1)
	limit, _ := c.GetInt("limit", 20)

	docs, total, err := c.docs.ListDocuments(c.Ctx.Request.Context(), page, limit)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"documents": docs,
		"total":     total,
		"page":      page,
		"limit":     limit,
	})
}

// Delete 删除文档及其分块、索引与原始文件
func (c *DocumentController) Delete() {
	documentID := c.GetString(":id")
	if documentID == "" {
		c.JSONError(http.StatusBadRequest, "missing document id")
		return
	}

	if err := c.docs.DeleteDocument(c.Ctx.Request.Context(), documentID); err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]string{"document_id": documentID})
}

// Embed 触发文档嵌入
func (c *DocumentController) Embed() {
	documentID := c.GetString(":id")
	if documentID == "" {
		c.JSONError(http.StatusBadRequest, "missing document id")
		return
	}

	if err := c.docs.RequestEmbedding(c.Ctx.Request.Context(), documentID); err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSON(http.StatusAccepted, map[string]interface{}{
		"success": true,
		"data":    map[string]string{"document_id": documentID, "status": "queued"},
	})
}

// EmbedBatch 批量触发嵌入
func (c *DocumentController) EmbedBatch() {
	var req struct {
		DocumentIDs []string `json:"document_ids"`
	}
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil || len(req.DocumentIDs) == 0 {
		c.JSONError(http.StatusBadRequest, "document_ids must not be empty")
		return
	}

	enqueued, err := c.docs.RequestEmbeddingBatch(c.Ctx.Request.Context(), req.DocumentIDs)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSON(http.StatusAccepted, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"requested": len(req.DocumentIDs),
			"enqueued":  enqueued,
		},
	})
}

// Download 下载原始文件
// presigned=true 时返回预签名链接，否则直接回传文件流
func (c *DocumentController) Download() {
	documentID := c.GetString(":id")
	if documentID == "" {
		c.JSONError(http.StatusBadRequest, "missing document id")
		return
	}

	if presigned, _ := c.GetBool("presigned", false); presigned {
		url, err := c.docs.DocumentDownloadURL(c.Ctx.Request.Context(), documentID, 0)
		if err != nil {
			c.JSONAppError(err)
			return
		}
		c.JSONSuccess(map[string]string{"url": url})
		return
	}

	reader, doc, err := c.docs.DownloadDocumentFile(c.Ctx.Request.Context(), documentID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	defer reader.Close()

	c.Ctx.Output.Header("Content-Type", doc.ContentType)
	c.Ctx.Output.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Title))
	if _, err := io.Copy(c.Ctx.ResponseWriter, reader); err != nil {
		logger.Error("failed to stream raw file",
			zap.String("document_id", documentID), zap.Error(err))
	}
}

// EmbeddingStatus 查询嵌入进度
func (c *DocumentController) EmbeddingStatus() {
	documentID := c.GetString(":id")
	if documentID == "" {
		c.JSONError(http.StatusBadRequest, "missing document id")
		return
	}

	progress, err := c.docs.GetEmbeddingProgress(c.Ctx.Request.Context(), documentID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(progress)
}
