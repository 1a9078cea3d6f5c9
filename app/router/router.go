package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docchat/backend-go/app/controllers"
	"github.com/docchat/backend-go/app/middleware"
)

// Init registers all routes. Must be called after config is loaded.
func Init() {
	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")

	web.InsertFilter("/*", web.BeforeRouter, middleware.CORSMiddleware)

	// 文档路由
	documentController := &controllers.DocumentController{}
	web.Router("/api/documents", documentController, "get:List;post:Create")
	web.Router("/api/documents/upload", documentController, "post:Upload")
	web.Router("/api/documents/embed-batch", documentController, "post:EmbedBatch")
	// 注意：具体路由必须在参数路由之前注册
	web.Router("/api/documents/:id", documentController, "get:Get;delete:Delete")
	web.Router("/api/documents/:id/embed", documentController, "post:Embed")
	web.Router("/api/documents/:id/download", documentController, "get:Download")
	web.Router("/api/documents/:id/embedding_status", documentController, "get:EmbeddingStatus")

	// 检索路由
	searchController := &controllers.SearchController{}
	web.Router("/api/search", searchController, "post:Search")
	web.Router("/api/search/keyword", searchController, "get:KeywordSearch")

	// 管道状态
	pipelineController := &controllers.PipelineController{}
	web.Router("/api/pipeline/stats", pipelineController, "get:Stats")

	// Prometheus指标
	web.Handler("/metrics", promhttp.Handler())
}
