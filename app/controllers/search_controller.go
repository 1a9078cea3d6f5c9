package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/docchat/backend-go/internal/di"
	"github.com/docchat/backend-go/internal/logger"
	"github.com/docchat/backend-go/internal/services"
	"go.uber.org/zap"
)

// SearchController 检索控制器
type SearchController struct {
	BaseController
	search *services.SearchService
}

// Prepare 从DI容器解析检索服务
func (c *SearchController) Prepare() {
	if err := di.Invoke(func(s *services.SearchService) {
		c.search = s
	}); err != nil {
		logger.Error("failed to resolve search service", zap.Error(err))
	}
}

// Search 向量相似度检索
func (c *SearchController) Search() {
	if c.search == nil {
		c.JSONError(http.StatusInternalServerError, "search service unavailable")
		return
	}

	var req services.SearchRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := c.search.Search(c.Ctx.Request.Context(), req)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}

// KeywordSearch 关键词检索，失败文档也能被找到
func (c *SearchController) KeywordSearch() {
	if c.search == nil {
		c.JSONError(http.StatusInternalServerError, "search service unavailable")
		return
	}

	query := c.GetString("query")
	limit, _ := c.GetInt("limit", 10)

	matches, err := c.search.KeywordSearch(c.Ctx.Request.Context(), query, limit)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"query":   query,
		"results": matches,
		"count":   len(matches),
	})
}
