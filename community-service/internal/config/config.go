package config

import (
	"time"

	pkgconfig "github.com/chys-app/chys-live/pkg/config"
	"github.com/chys-app/chys-live/pkg/database"
	"github.com/chys-app/chys-live/pkg/storage"
)

type Config struct {
	Server    ServerConfig
	Database  database.Config
	Redis     RedisConfig
	Auth      AuthConfig
	Agora     AgoraConfig
	Recording RecordingConfig
	Storage   storage.Config
	Push      PushConfig
	Kafka     KafkaConfig
	WebSocket WebSocketConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string
}

type AgoraConfig struct {
	AppID          string        `mapstructure:"app_id"`
	AppCertificate string        `mapstructure:"app_certificate"`
	CustomerID     string        `mapstructure:"customer_id"`
	CustomerSecret string        `mapstructure:"customer_secret"`
	BaseURL        string        `mapstructure:"base_url"`
	RecorderUID    uint32        `mapstructure:"recorder_uid"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	Timeout        time.Duration
	Breaker        BreakerConfig
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type RecordingConfig struct {
	VerifyDelay    time.Duration `mapstructure:"verify_delay"`
	VerifyAttempts int           `mapstructure:"verify_attempts"`
	URLExpiry      time.Duration `mapstructure:"url_expiry"`
	KeyPrefix      string        `mapstructure:"key_prefix"`
	// Where the vendor writes the recording.
	StorageVendor int    `mapstructure:"storage_vendor"`
	StorageRegion int    `mapstructure:"storage_region"`
	Bucket        string `mapstructure:"bucket"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
}

type PushConfig struct {
	Driver          string // "fcm", "log"
	CredentialsFile string `mapstructure:"credentials_file"`
	Concurrency     int
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	RateLimit      float64       `mapstructure:"rate_limit"` // messages per second
	RateBurst      int           `mapstructure:"rate_burst"`
}

type LogConfig struct {
	Level       string
	Format      string // "json" or "console"
	Environment string
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	pkgconfig.SetDefaults(v, map[string]interface{}{
		"server.host":                 "0.0.0.0",
		"server.port":                 8090,
		"database.driver":             "postgres",
		"database.host":               "localhost",
		"database.port":               5432,
		"database.user":               "postgres",
		"database.password":           "postgres",
		"database.dbname":             "community",
		"database.sslmode":            "disable",
		"database.file_path":          "./data/community.db",
		"database.max_idle_conns":     10,
		"database.max_open_conns":     100,
		"database.conn_max_lifetime":  60,
		"database.log_level":          "warn",
		"redis.enabled":               false,
		"redis.address":               "localhost:6379",
		"redis.db":                    0,
		"redis.prefix":                "community:recording",
		"redis.ttl":                   "6h",
		"auth.issuer":                 "chys-auth",
		"agora.base_url":              "https://api.agora.io",
		"agora.recorder_uid":          0,
		"agora.token_ttl":             "1h",
		"agora.timeout":               "10s",
		"agora.breaker.max_failures":  5,
		"agora.breaker.open_timeout":  "30s",
		"recording.verify_delay":      "3s",
		"recording.verify_attempts":   3,
		"recording.url_expiry":        "168h",
		"recording.key_prefix":        "podcasts",
		"recording.storage_vendor":    1,
		"recording.storage_region":    1,
		"storage.driver":              "local",
		"storage.local.base_path":     "./data/recordings",
		"storage.s3.region":           "us-east-1",
		"push.driver":                 "log",
		"push.concurrency":            8,
		"kafka.enabled":               false,
		"kafka.brokers":               "localhost:9092",
		"kafka.topic":                 "community-events",
		"kafka.partitions":            3,
		"websocket.ping_interval":     "30s",
		"websocket.pong_wait":         "60s",
		"websocket.write_wait":        "10s",
		"websocket.max_message_size":  8192,
		"websocket.send_buffer":       256,
		"websocket.rate_limit":        5,
		"websocket.rate_burst":        10,
		"log.level":                   "info",
		"log.format":                  "json",
	})

	if err := pkgconfig.BindEnvs(v, map[string]string{
		"server.port":                       "PORT",
		"database.driver":                   "DB_DRIVER",
		"database.host":                     "DB_HOST",
		"database.port":                     "DB_PORT",
		"database.user":                     "DB_USER",
		"database.password":                 "DB_PASSWORD",
		"database.dbname":                   "DB_NAME",
		"database.sslmode":                  "DB_SSLMODE",
		"database.file_path":                "DB_FILE_PATH",
		"redis.enabled":                     "REDIS_ENABLED",
		"redis.address":                     "REDIS_ADDRESS",
		"redis.password":                    "REDIS_PASSWORD",
		"auth.jwt_secret":                   "JWT_SECRET",
		"agora.app_id":                      "AGORA_APP_ID",
		"agora.app_certificate":             "AGORA_APP_CERTIFICATE",
		"agora.customer_id":                 "AGORA_CUSTOMER_ID",
		"agora.customer_secret":             "AGORA_CUSTOMER_SECRET",
		"recording.bucket":                  "AWS_S3_BUCKET",
		"recording.access_key":              "AWS_ACCESS_KEY",
		"recording.secret_key":              "AWS_SECRET_KEY",
		"storage.driver":                    "STORAGE_DRIVER",
		"storage.s3.bucket":                 "AWS_S3_BUCKET",
		"storage.s3.access_key_id":          "AWS_ACCESS_KEY",
		"storage.s3.secret_access_key":      "AWS_SECRET_KEY",
		"push.driver":                       "PUSH_DRIVER",
		"push.credentials_file":             "FIREBASE_CREDENTIALS_FILE",
		"kafka.enabled":                     "KAFKA_ENABLED",
		"kafka.brokers":                     "KAFKA_BROKERS",
		"log.level":                         "LOG_LEVEL",
		"log.format":                        "LOG_FORMAT",
		"log.environment":                   "APP_ENV",
	}); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
