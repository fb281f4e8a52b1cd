package config

import (
	"fmt"
	"os"
	"strconv"

	"wisefido-vision/pkg/database"
	"wisefido-vision/pkg/mqtt"
	"wisefido-vision/pkg/redis"
)

// Weights 严重度评分权重（置信度/运动强度/持续时长）
type Weights struct {
	Confidence float64
	Intensity  float64
	Duration   float64
}

// Sum 权重之和
func (w Weights) Sum() float64 {
	return w.Confidence + w.Intensity + w.Duration
}

// Config 视觉报警服务配置
type Config struct {
	Database database.Config
	Redis    redis.Config
	MQTT     mqtt.Config

	// 视觉管线配置
	Vision struct {
		TenantID string // 租户ID
		DeviceID string // 摄像头设备ID（上游worker的标识）

		// 帧接入
		FrameStream   string // Redis Stream 名称
		ConsumerGroup string
		ConsumerName  string
		MQTTEnabled   bool   // 是否启用 MQTT→Streams 桥接
		FrameTopic    string // MQTT 帧主题（vision/{device_id}/frames）

		// 信号窗口
		Window struct {
			RetentionSec int // 窗口保留时长（秒）
			Capacity     int // 窗口最大帧数
		}

		// 事件引擎
		Engine struct {
			TickIntervalMS   int     // tick 周期（毫秒）
			DebounceTicks    int     // Pending→Confirmed 需要的连续触发 tick 数
			GraceSec         int     // 触发消失后的宽限期（秒）
			CooldownSec      int     // 事件关闭后的冷却期（秒）
			HysteresisMargin float64 // 迟滞余量（阈值的相对比例）
		}

		// 规则阈值
		Rules struct {
			FallTorsoAngleDeg    float64 // 跌倒：躯干水平角阈值（度）
			FallDescentFraction  float64 // 跌倒：快速下坠的画面比例
			FallDescentWindowSec float64 // 跌倒：下坠检测窗口（秒）
			FallNoseLowFraction  float64 // 跌倒：鼻部低位阈值（画面比例）

			BedExitUpperFraction  float64 // 离床：髋部上部画面区域阈值
			BedExitUpwardVelocity float64 // 离床：向上运动速度阈值（画面比例/秒）
			BedExitConfirmSec     float64 // 离床：确认窗口（秒）

			ImmobilityMotionThreshold float64 // 静止：低运动阈值
			ImmobilitySec             float64 // 静止：持续时长（秒）

			AbnormalMotionThreshold float64 // 异动：高运动阈值
			AbnormalSustainSec      float64 // 异动：持续窗口（秒）
		}
	}

	// 严重度评分配置
	Severity struct {
		WarningThreshold  float64 // Warning 分界点
		CriticalThreshold float64 // Critical 分界点
		DurationNormSec   float64 // 持续时长归一化基准（秒）

		FallWeights       Weights
		BedExitWeights    Weights
		ImmobilityWeights Weights
		AbnormalWeights   Weights
	}

	// 报警分发配置
	Alert struct {
		RateLimitSec      int // 同类型非升级报警的最小间隔（秒）
		DispatchTimeoutMS int // 单个 sink 的分发超时（毫秒）
		QueueSize         int // 分发队列长度
		RecentBuffer      int // 内存中保留的最近报警条数

		Sinks struct {
			Log       bool
			Console   bool
			Redis     bool
			WebSocket bool
			MQTT      bool
			Webhook   bool

			RedisChannel   string // 报警 Pub/Sub 频道
			RedisKeyPrefix string // 报警缓存键前缀
			RedisTTLSec    int    // 报警缓存 TTL（秒）
			MQTTTopic      string // 报警 MQTT 主题
			WebhookURL     string
		}
	}

	HTTP struct {
		Addr string // 状态/指标端点监听地址
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量覆盖默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-vision")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.Vision.TenantID = getEnv("TENANT_ID", "")
	cfg.Vision.DeviceID = getEnv("DEVICE_ID", "")
	cfg.Vision.FrameStream = getEnv("FRAME_STREAM", "vision:frames:stream")
	cfg.Vision.ConsumerGroup = getEnv("FRAME_CONSUMER_GROUP", "wisefido-vision")
	cfg.Vision.ConsumerName = getEnv("FRAME_CONSUMER_NAME", "vision-1")
	cfg.Vision.MQTTEnabled = getEnvBool("MQTT_ENABLED", false)
	cfg.Vision.FrameTopic = getEnv("FRAME_TOPIC", "vision/+/frames")

	cfg.Vision.Window.RetentionSec = getEnvInt("WINDOW_RETENTION_SEC", 30)
	cfg.Vision.Window.Capacity = getEnvInt("WINDOW_CAPACITY", 256)

	cfg.Vision.Engine.TickIntervalMS = getEnvInt("ENGINE_TICK_INTERVAL_MS", 1000)
	cfg.Vision.Engine.DebounceTicks = getEnvInt("ENGINE_DEBOUNCE_TICKS", 2)
	cfg.Vision.Engine.GraceSec = getEnvInt("ENGINE_GRACE_SEC", 5)
	cfg.Vision.Engine.CooldownSec = getEnvInt("ENGINE_COOLDOWN_SEC", 30)
	cfg.Vision.Engine.HysteresisMargin = getEnvFloat("ENGINE_HYSTERESIS_MARGIN", 0.1)

	cfg.Vision.Rules.FallTorsoAngleDeg = getEnvFloat("FALL_TORSO_ANGLE_DEG", 55)
	cfg.Vision.Rules.FallDescentFraction = getEnvFloat("FALL_DESCENT_FRACTION", 0.25)
	cfg.Vision.Rules.FallDescentWindowSec = getEnvFloat("FALL_DESCENT_WINDOW_SEC", 1)
	cfg.Vision.Rules.FallNoseLowFraction = getEnvFloat("FALL_NOSE_LOW_FRACTION", 0.8)
	cfg.Vision.Rules.BedExitUpperFraction = getEnvFloat("BED_EXIT_UPPER_FRACTION", 0.4)
	cfg.Vision.Rules.BedExitUpwardVelocity = getEnvFloat("BED_EXIT_UPWARD_VELOCITY", 0.15)
	cfg.Vision.Rules.BedExitConfirmSec = getEnvFloat("BED_EXIT_CONFIRM_SEC", 2)
	cfg.Vision.Rules.ImmobilityMotionThreshold = getEnvFloat("IMMOBILITY_MOTION_THRESHOLD", 0.1)
	cfg.Vision.Rules.ImmobilitySec = getEnvFloat("IMMOBILITY_SEC", 30)
	cfg.Vision.Rules.AbnormalMotionThreshold = getEnvFloat("ABNORMAL_MOTION_THRESHOLD", 0.7)
	cfg.Vision.Rules.AbnormalSustainSec = getEnvFloat("ABNORMAL_SUSTAIN_SEC", 5)

	cfg.Severity.WarningThreshold = getEnvFloat("SEVERITY_WARNING_THRESHOLD", 0.4)
	cfg.Severity.CriticalThreshold = getEnvFloat("SEVERITY_CRITICAL_THRESHOLD", 0.7)
	cfg.Severity.DurationNormSec = getEnvFloat("SEVERITY_DURATION_NORM_SEC", 60)
	cfg.Severity.FallWeights = getEnvWeights("SEVERITY_FALL_WEIGHTS", Weights{0.6, 0.2, 0.2})
	cfg.Severity.BedExitWeights = getEnvWeights("SEVERITY_BED_EXIT_WEIGHTS", Weights{0.6, 0.2, 0.2})
	cfg.Severity.ImmobilityWeights = getEnvWeights("SEVERITY_IMMOBILITY_WEIGHTS", Weights{0.3, 0.1, 0.6})
	cfg.Severity.AbnormalWeights = getEnvWeights("SEVERITY_ABNORMAL_WEIGHTS", Weights{0.4, 0.4, 0.2})

	cfg.Alert.RateLimitSec = getEnvInt("ALERT_RATE_LIMIT_SEC", 10)
	cfg.Alert.DispatchTimeoutMS = getEnvInt("ALERT_DISPATCH_TIMEOUT_MS", 2000)
	cfg.Alert.QueueSize = getEnvInt("ALERT_QUEUE_SIZE", 64)
	cfg.Alert.RecentBuffer = getEnvInt("ALERT_RECENT_BUFFER", 100)
	cfg.Alert.Sinks.Log = getEnvBool("SINK_LOG_ENABLED", true)
	cfg.Alert.Sinks.Console = getEnvBool("SINK_CONSOLE_ENABLED", false)
	cfg.Alert.Sinks.Redis = getEnvBool("SINK_REDIS_ENABLED", true)
	cfg.Alert.Sinks.WebSocket = getEnvBool("SINK_WEBSOCKET_ENABLED", true)
	cfg.Alert.Sinks.MQTT = getEnvBool("SINK_MQTT_ENABLED", false)
	cfg.Alert.Sinks.Webhook = getEnvBool("SINK_WEBHOOK_ENABLED", false)
	cfg.Alert.Sinks.RedisChannel = getEnv("SINK_REDIS_CHANNEL", "vision:alerts")
	cfg.Alert.Sinks.RedisKeyPrefix = getEnv("SINK_REDIS_KEY_PREFIX", "vital-focus:device:")
	cfg.Alert.Sinks.RedisTTLSec = getEnvInt("SINK_REDIS_TTL_SEC", 30)
	cfg.Alert.Sinks.MQTTTopic = getEnv("SINK_MQTT_TOPIC", "")
	cfg.Alert.Sinks.WebhookURL = getEnv("SINK_WEBHOOK_URL", "")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8086")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// Validate 校验配置（启动时调用，失败即致命错误）
func (c *Config) Validate() error {
	if c.Vision.Window.RetentionSec <= 0 {
		return fmt.Errorf("invalid config: window retention must be positive, got %d", c.Vision.Window.RetentionSec)
	}
	if c.Vision.Window.Capacity <= 0 {
		return fmt.Errorf("invalid config: window capacity must be positive, got %d", c.Vision.Window.Capacity)
	}

	e := &c.Vision.Engine
	if e.TickIntervalMS <= 0 {
		return fmt.Errorf("invalid config: tick interval must be positive, got %d", e.TickIntervalMS)
	}
	if e.DebounceTicks < 1 {
		return fmt.Errorf("invalid config: debounce ticks must be >= 1, got %d", e.DebounceTicks)
	}
	if e.GraceSec < 0 || e.CooldownSec < 0 {
		return fmt.Errorf("invalid config: grace/cooldown must be non-negative")
	}
	if e.HysteresisMargin < 0 || e.HysteresisMargin >= 1 {
		return fmt.Errorf("invalid config: hysteresis margin must be in [0,1), got %f", e.HysteresisMargin)
	}

	r := &c.Vision.Rules
	for name, v := range map[string]float64{
		"fall torso angle":    r.FallTorsoAngleDeg,
		"fall descent window": r.FallDescentWindowSec,
		"bed exit confirm":    r.BedExitConfirmSec,
		"immobility duration": r.ImmobilitySec,
		"abnormal sustain":    r.AbnormalSustainSec,
		"abnormal threshold":  r.AbnormalMotionThreshold,
		"bed exit velocity":   r.BedExitUpwardVelocity,
	} {
		if v <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %f", name, v)
		}
	}
	if r.FallTorsoAngleDeg > 90 {
		return fmt.Errorf("invalid config: fall torso angle must be <= 90, got %f", r.FallTorsoAngleDeg)
	}
	for name, v := range map[string]float64{
		"fall descent fraction":  r.FallDescentFraction,
		"fall nose low fraction": r.FallNoseLowFraction,
		"bed exit upper":         r.BedExitUpperFraction,
		"immobility threshold":   r.ImmobilityMotionThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("invalid config: %s must be in [0,1], got %f", name, v)
		}
	}

	s := &c.Severity
	if s.WarningThreshold <= 0 || s.WarningThreshold >= 1 {
		return fmt.Errorf("invalid config: warning threshold must be in (0,1), got %f", s.WarningThreshold)
	}
	if s.CriticalThreshold <= s.WarningThreshold || s.CriticalThreshold > 1 {
		return fmt.Errorf("invalid config: critical threshold must be in (warning,1], got %f", s.CriticalThreshold)
	}
	if s.DurationNormSec <= 0 {
		return fmt.Errorf("invalid config: duration normalization must be positive, got %f", s.DurationNormSec)
	}
	for name, w := range map[string]Weights{
		"fall":       s.FallWeights,
		"bed_exit":   s.BedExitWeights,
		"immobility": s.ImmobilityWeights,
		"abnormal":   s.AbnormalWeights,
	} {
		if w.Confidence < 0 || w.Intensity < 0 || w.Duration < 0 {
			return fmt.Errorf("invalid config: %s severity weights must be non-negative", name)
		}
		if w.Sum() <= 0 || w.Sum() > 1.0+1e-9 {
			return fmt.Errorf("invalid config: %s severity weights must sum to (0,1], got %f", name, w.Sum())
		}
	}

	a := &c.Alert
	if a.RateLimitSec <= 0 {
		return fmt.Errorf("invalid config: alert rate limit must be positive, got %d", a.RateLimitSec)
	}
	if a.DispatchTimeoutMS <= 0 {
		return fmt.Errorf("invalid config: dispatch timeout must be positive, got %d", a.DispatchTimeoutMS)
	}
	if a.QueueSize <= 0 || a.RecentBuffer <= 0 {
		return fmt.Errorf("invalid config: alert queue/recent buffer must be positive")
	}
	if a.Sinks.Webhook && a.Sinks.WebhookURL == "" {
		return fmt.Errorf("invalid config: webhook sink enabled but SINK_WEBHOOK_URL is empty")
	}
	if a.Sinks.MQTT && a.Sinks.MQTTTopic == "" {
		return fmt.Errorf("invalid config: mqtt sink enabled but SINK_MQTT_TOPIC is empty")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvWeights 解析 "0.6,0.2,0.2" 形式的权重三元组
func getEnvWeights(key string, defaultValue Weights) Weights {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var w Weights
	if _, err := fmt.Sscanf(value, "%f,%f,%f", &w.Confidence, &w.Intensity, &w.Duration); err != nil {
		return defaultValue
	}
	return w
}
