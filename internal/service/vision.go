package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"wisefido-vision/internal/alert"
	"wisefido-vision/internal/config"
	"wisefido-vision/internal/consumer"
	"wisefido-vision/internal/engine"
	"wisefido-vision/internal/evaluator"
	"wisefido-vision/internal/httpapi"
	"wisefido-vision/internal/repository"
	"wisefido-vision/internal/severity"
	"wisefido-vision/internal/window"
	"wisefido-vision/pkg/database"
	"wisefido-vision/pkg/mqtt"
	"wisefido-vision/pkg/redis"
)

// VisionService 视觉报警服务（整合各层）
type VisionService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client // 未启用 MQTT 时为 nil

	engine        *engine.Engine
	alertManager  *alert.Manager
	hub           *alert.Hub // 未启用 WebSocket sink 时为 nil
	frameConsumer *consumer.FrameConsumer
	frameBridge   *consumer.FrameBridge // 未启用桥接时为 nil
	httpServer    *http.Server

	managerCtx    context.Context
	managerCancel context.CancelFunc
	wg            sync.WaitGroup
}

// NewVisionService 创建视觉报警服务
func NewVisionService(cfg *config.Config, logger *zap.Logger) (*VisionService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewRedisClient(&cfg.Redis)
	if err := redis.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. MQTT 客户端（桥接或 MQTT sink 启用时才连接）
	var mqttClient *mqtt.Client
	if cfg.Vision.MQTTEnabled || cfg.Alert.Sinks.MQTT {
		mqttClient, err = mqtt.NewClient(&cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
	}

	// 4. 核心管线
	win := window.New(time.Duration(cfg.Vision.Window.RetentionSec)*time.Second, cfg.Vision.Window.Capacity)
	alarmEventsRepo := repository.NewAlarmEventsRepository(db, logger)
	alertManager := alert.NewManager(cfg, logger)
	eng := engine.NewEngine(cfg, win, evaluator.NewRules(cfg), severity.NewScorer(cfg), alertManager, logger)

	// 5. 挂载 sink
	alertManager.RegisterSink(alert.NewStoreSink(alarmEventsRepo, cfg.Vision.TenantID, cfg.Vision.DeviceID))
	if cfg.Alert.Sinks.Log {
		alertManager.RegisterSink(alert.NewLogSink(logger))
	}
	if cfg.Alert.Sinks.Console {
		alertManager.RegisterSink(alert.NewConsoleSink())
	}
	if cfg.Alert.Sinks.Redis {
		alertManager.RegisterSink(alert.NewRedisSink(redisClient, cfg))
	}
	var hub *alert.Hub
	if cfg.Alert.Sinks.WebSocket {
		hub = alert.NewHub(logger)
		alertManager.RegisterSink(alert.NewWebSocketSink(hub))
	}
	if cfg.Alert.Sinks.MQTT {
		alertManager.RegisterSink(alert.NewMQTTSink(mqttClient, cfg.Alert.Sinks.MQTTTopic, cfg.MQTT.QoS))
	}
	if cfg.Alert.Sinks.Webhook {
		alertManager.RegisterSink(alert.NewWebhookSink(cfg.Alert.Sinks.WebhookURL))
	}

	// 6. 帧接入
	frameConsumer := consumer.NewFrameConsumer(cfg, redisClient, eng, logger)
	var frameBridge *consumer.FrameBridge
	if cfg.Vision.MQTTEnabled {
		frameBridge = consumer.NewFrameBridge(cfg, mqttClient, redisClient, logger)
	}

	// 7. HTTP 接口
	handler := httpapi.NewVisionHandler(eng, alertManager, hub, alarmEventsRepo, cfg.Vision.TenantID, cfg.Vision.DeviceID, logger)
	router := httpapi.NewRouter(logger)
	router.RegisterVisionRoutes(handler)

	managerCtx, managerCancel := context.WithCancel(context.Background())

	return &VisionService{
		config:        cfg,
		logger:        logger,
		db:            db,
		redisClient:   redisClient,
		mqttClient:    mqttClient,
		engine:        eng,
		alertManager:  alertManager,
		hub:           hub,
		frameConsumer: frameConsumer,
		frameBridge:   frameBridge,
		httpServer: &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: router,
		},
		managerCtx:    managerCtx,
		managerCancel: managerCancel,
	}, nil
}

// Start 启动服务，ctx 取消后各组件停止
func (s *VisionService) Start(ctx context.Context) error {
	s.logger.Info("Starting vision service",
		zap.String("device_id", s.config.Vision.DeviceID),
		zap.String("http_addr", s.config.HTTP.Addr))

	// 分发层独立于主 ctx，停机时先等引擎排空再关闭
	s.alertManager.Start(s.managerCtx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.engine.Run(ctx)
	}()

	if err := s.frameConsumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start frame consumer: %w", err)
	}
	if s.frameBridge != nil {
		if err := s.frameBridge.Start(ctx); err != nil {
			return fmt.Errorf("failed to start frame bridge: %w", err)
		}
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop 优雅停机：引擎先关闭开启中的事件，分发层排空后再断开连接
func (s *VisionService) Stop() error {
	s.logger.Info("Stopping vision service")

	// 引擎退出（Run 在 ctx 取消后已触发 Shutdown，解除通知已入队）
	s.wg.Wait()

	// 排空分发队列
	s.managerCancel()
	s.alertManager.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	if s.frameBridge != nil {
		s.frameBridge.Stop()
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if err := redis.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis client", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}

	return nil
}
