package config

import (
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション設定を表す
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Providers ProvidersConfig
	Worker    WorkerConfig
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Environment  string
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig はRedis設定
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ProvidersConfig は決済プロバイダ設定
type ProvidersConfig struct {
	Card        CardProviderConfig
	MobileMoney MobileMoneyProviderConfig
}

// CardProviderConfig はカード決済プロバイダの設定
type CardProviderConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// MobileMoneyProviderConfig はモバイルマネー決済プロバイダの設定
type MobileMoneyProviderConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

// WorkerConfig はバックグラウンドワーカー設定
type WorkerConfig struct {
	// PollInterval は決済照合ポーリングの実行間隔
	PollInterval time.Duration
	// ReconcileAfter はコールバック未着とみなして照会を開始するまでの経過時間
	ReconcileAfter time.Duration
	// AbandonAfter は進展のない保留中決済を失敗扱いにするまでの経過時間
	AbandonAfter time.Duration
}

// Load は環境変数から設定を読み込む
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "nearbyhappenings"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Providers: ProvidersConfig{
			Card: CardProviderConfig{
				BaseURL:       getEnv("CARD_API_URL", "https://api.cardgateway.example"),
				SecretKey:     getEnv("CARD_SECRET_KEY", ""),
				WebhookSecret: getEnv("CARD_WEBHOOK_SECRET", ""),
				Timeout:       getDurationEnv("CARD_TIMEOUT", 10*time.Second),
			},
			MobileMoney: MobileMoneyProviderConfig{
				BaseURL:        getEnv("MPESA_API_URL", "https://sandbox.safaricom.co.ke"),
				ConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
				ConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
				ShortCode:      getEnv("MPESA_SHORTCODE", ""),
				Passkey:        getEnv("MPESA_PASSKEY", ""),
				CallbackURL:    getEnv("MPESA_CALLBACK_URL", ""),
				Timeout:        getDurationEnv("MPESA_TIMEOUT", 10*time.Second),
			},
		},
		Worker: WorkerConfig{
			PollInterval:   getDurationEnv("WORKER_POLL_INTERVAL", time.Minute),
			ReconcileAfter: getDurationEnv("WORKER_RECONCILE_AFTER", 2*time.Minute),
			AbandonAfter:   getDurationEnv("WORKER_ABANDON_AFTER", 30*time.Minute),
		},
	}
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
