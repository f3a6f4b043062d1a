package config

import (
	"SafeBuddyGuardian/pkg/cache"
	"SafeBuddyGuardian/pkg/logger"
	"SafeBuddyGuardian/pkg/notification"
	"SafeBuddyGuardian/pkg/util"
	"log"
	"os"
	"time"
)

// SOSConfig SOS 会话编排参数
type SOSConfig struct {
	StreamInterval     time.Duration // 位置流间隔
	NotifyRetryBackoff time.Duration // 监护人通知重试退避（仅一次）
	DialStagger        time.Duration // 紧急呼叫号码之间的错峰间隔
	MaxActiveAge       time.Duration // 超过该时长的 active 事件由清扫任务自动 resolve
	SweepSchedule      string        // 清扫任务 cron 表达式
	DefaultBattery     int           // 电量不可读时的替代值
	EmergencyNumbers   []string      // 固定升级呼叫序列
}

// FallConfig 跌倒检测阈值（经验值，按设备校准，故全部可配）
type FallConfig struct {
	HighThreshold     float64       // Thi：骤降沿的高位阈值 (m/s²)
	LowThreshold      float64       // Tlo：骤降沿的低位阈值 (m/s²)
	FreeFallThreshold float64       // 自由落体阈值 (m/s²)
	FreeFallSamples   int           // 连续低于自由落体阈值的采样数门限
	ConfirmWindow     time.Duration // 确认窗口，超时必定升级
}

type Config struct {
	DBDriver          string `env:"DB_DRIVER"`
	DSN               string `env:"DSN"`
	Addr              string `env:"ADDR"`
	Mode              string `env:"MODE"`
	APIPrefix         string `env:"API_PREFIX"`
	AuthPrefix        string `env:"AUTH_PREFIX"`
	SessionSecret     string `env:"SESSION_SECRET"`
	SessionExpireDays string `env:"SESSION_EXPIRE_DAYS"`
	Log               logger.LogConfig
	Mail              notification.MailConfig
	FCM               notification.FCMConfig
	SMS               notification.SMSConfig
	Cache             cache.Config
	SOS               SOSConfig
	Fall              FallConfig
	DefaultLanguage   string `env:"DEFAULT_LANGUAGE"`
	MonitorPrefix     string `env:"MONITOR_PREFIX"`
	RateLimit         string `env:"RATE_LIMIT"`
	BackupEnabled     bool   `env:"BACKUP_ENABLED"`
	BackupPath        string `env:"BACKUP_PATH"`
	BackupSchedule    string `env:"BACKUP_SCHEDULE"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = &Config{
		DBDriver:          util.GetEnv("DB_DRIVER"),
		DSN:               util.GetEnv("DSN"),
		Addr:              util.GetEnvDefault("ADDR", ":8080"),
		Mode:              util.GetEnv("MODE"),
		APIPrefix:         util.GetEnvDefault("API_PREFIX", "/api"),
		AuthPrefix:        util.GetEnvDefault("AUTH_PREFIX", "/auth"),
		SessionSecret:     util.GetEnv("SESSION_SECRET"),
		SessionExpireDays: util.GetEnv("SESSION_EXPIRE_DAYS"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		Mail: notification.MailConfig{
			Host:     util.GetEnv("MAIL_HOST"),
			Username: util.GetEnv("MAIL_USERNAME"),
			Password: util.GetEnv("MAIL_PASSWORD"),
			Port:     util.GetIntEnv("MAIL_PORT"),
			From:     util.GetEnv("MAIL_FROM"),
		},
		FCM: notification.FCMConfig{
			ServerKey: util.GetEnv("FCM_SERVER_KEY"),
			Endpoint:  util.GetEnv("FCM_ENDPOINT"),
		},
		SMS: notification.SMSConfig{
			APIKey:   util.GetEnv("SMS_API_KEY"),
			SenderID: util.GetEnvDefault("SMS_SENDER_ID", "SAFBDY"),
			Endpoint: util.GetEnv("SMS_ENDPOINT"),
		},
		Cache: cache.Config{
			Type: util.GetEnvDefault("CACHE_TYPE", "local"),
			Redis: cache.RedisConfig{
				Addr:         util.GetEnvDefault("REDIS_ADDR", "localhost:6379"),
				Password:     util.GetEnv("REDIS_PASSWORD"),
				DB:           int(util.GetIntEnv("REDIS_DB")),
				PoolSize:     int(util.GetIntEnvDefault("REDIS_POOL_SIZE", 10)),
				DialTimeout:  util.GetDurationEnvDefault("REDIS_DIAL_TIMEOUT", 5*time.Second),
				ReadTimeout:  util.GetDurationEnvDefault("REDIS_READ_TIMEOUT", 3*time.Second),
				WriteTimeout: util.GetDurationEnvDefault("REDIS_WRITE_TIMEOUT", 3*time.Second),
			},
			Local: cache.LocalConfig{
				MaxSize:           int(util.GetIntEnvDefault("LOCAL_CACHE_MAX_SIZE", 1000)),
				DefaultExpiration: util.GetDurationEnvDefault("LOCAL_CACHE_DEFAULT_EXPIRATION", 5*time.Minute),
				CleanupInterval:   util.GetDurationEnvDefault("LOCAL_CACHE_CLEANUP_INTERVAL", 10*time.Minute),
			},
		},
		SOS: SOSConfig{
			StreamInterval:     util.GetDurationEnvDefault("SOS_STREAM_INTERVAL", 5*time.Second),
			NotifyRetryBackoff: util.GetDurationEnvDefault("SOS_NOTIFY_RETRY_BACKOFF", 10*time.Second),
			DialStagger:        util.GetDurationEnvDefault("SOS_DIAL_STAGGER", 8*time.Second),
			MaxActiveAge:       util.GetDurationEnvDefault("SOS_MAX_ACTIVE_AGE", 24*time.Hour),
			SweepSchedule:      util.GetEnvDefault("SOS_SWEEP_SCHEDULE", "@every 1h"),
			DefaultBattery:     int(util.GetIntEnvDefault("SOS_DEFAULT_BATTERY", 100)),
			// 印度统一应急、警察、急救、妇女求助热线，按序错峰拨打
			EmergencyNumbers: []string{"112", "100", "108", "1091"},
		},
		Fall: FallConfig{
			HighThreshold:     util.GetFloatEnvDefault("FALL_HIGH_THRESHOLD", 12.0),
			LowThreshold:      util.GetFloatEnvDefault("FALL_LOW_THRESHOLD", 3.0),
			FreeFallThreshold: util.GetFloatEnvDefault("FALL_FREEFALL_THRESHOLD", 1.5),
			FreeFallSamples:   int(util.GetIntEnvDefault("FALL_FREEFALL_SAMPLES", 4)),
			ConfirmWindow:     util.GetDurationEnvDefault("FALL_CONFIRM_WINDOW", 30*time.Second),
		},
		DefaultLanguage: util.GetEnvDefault("DEFAULT_LANGUAGE", "en"),
		MonitorPrefix:   util.GetEnv("MONITOR_PREFIX"),
		RateLimit:       util.GetEnvDefault("RATE_LIMIT", "300-M"),
		BackupEnabled:   util.GetBoolEnv("BACKUP_ENABLED"),
		BackupPath:      util.GetEnv("BACKUP_PATH"),
		BackupSchedule:  util.GetEnvDefault("BACKUP_SCHEDULE", "0 3 * * *"),
	}
	return nil
}
