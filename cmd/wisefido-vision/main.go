package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"wisefido-vision/internal/config"
	"wisefido-vision/internal/metrics"
	"wisefido-vision/internal/service"
	"wisefido-vision/pkg/logger"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-vision")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 配置校验失败是致命错误，拒绝以不明确的阈值运行
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.Vision.DeviceID == "" {
		log.Fatal("DEVICE_ID environment variable is required")
	}
	if cfg.Vision.TenantID == "" {
		log.Fatal("TENANT_ID environment variable is required")
	}

	// 4. 注册指标
	metrics.Register()

	// 5. 创建服务
	visionService, err := service.NewVisionService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create vision service", zap.Error(err))
	}

	// 6. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 7. 启动服务
	if err := visionService.Start(ctx); err != nil {
		log.Fatal("Failed to start vision service", zap.Error(err))
	}

	// 8. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	cancel()

	if err := visionService.Stop(); err != nil {
		log.Error("Failed to stop vision service", zap.Error(err))
	}
	log.Info("Vision service stopped")
}
