package main

import (
	"log"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/docchat/backend-go/app/bootstrap"
	"github.com/docchat/backend-go/app/router"
	"github.com/docchat/backend-go/internal/config"
	"github.com/docchat/backend-go/internal/logger"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	router.Init()

	cfg := config.GetAppConfig()
	web.BConfig.AppName = "Document Retrieval Service"
	web.BConfig.CopyRequestBody = true
	web.BConfig.Listen.HTTPPort = cfg.Server.Port

	logger.Info("🚀 Starting Document Retrieval Service", zap.Int("port", cfg.Server.Port))
	web.Run()
}
