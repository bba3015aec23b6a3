package config

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"recording-service/constant"
)

type Config struct {
	App     App           `yaml:"app"`
	Server  Server        `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Upload  Upload        `yaml:"upload"`
	Auth    Auth          `yaml:"auth"`
	DB      *sql.DB       `yaml:"db"`
	Queue   *RabbitMQ     `yaml:"rabbitmq"`
	Minio   *minio.Client `yaml:"minio"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

// StorageConfig selects the blob backend once at startup; nothing past
// construction inspects the environment.
type StorageConfig struct {
	Mode          constant.StorageMode `yaml:"mode"`
	Bucket        string               `yaml:"bucket"`
	LocalDir      string               `yaml:"local_dir"`
	TempDir       string               `yaml:"temp_dir"`
	PresignExpiry time.Duration        `yaml:"presign_expiry"`
}

type Upload struct {
	MaxSizeBytes   int64         `yaml:"max_size_bytes"`
	SessionIdleAge time.Duration `yaml:"session_idle_age"`
	ReaperInterval time.Duration `yaml:"reaper_interval"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type RabbitMQ struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
	Pass string `json:"pass"`
	Kind string `json:"kind"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	viper.SetDefault("storage.mode", string(constant.StorageModeLocal))
	viper.SetDefault("storage.local_dir", "data/recordings")
	viper.SetDefault("storage.temp_dir", "data/tmp")
	viper.SetDefault("storage.presign_expiry", "1h")
	viper.SetDefault("upload.max_size_bytes", 100<<20)
	viper.SetDefault("upload.session_idle_age", "24h")
	viper.SetDefault("upload.reaper_interval", "15m")
	viper.SetDefault("server.workers", 4)

	// Without a postgres DSN the server falls back to its in-memory
	// repository (develop mode).
	var db *sql.DB
	if dsn := viper.GetString("postgresql_host"); dsn != "" {
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
	}

	rabbitmq := &RabbitMQ{
		Host: viper.GetString("rabbitmq_host"),
		Port: viper.GetInt("rabbitmq_port"),
		User: viper.GetString("rabbitmq_user"),
		Pass: viper.GetString("rabbitmq_pass"),
		Kind: viper.GetString("rabbitmq_kind"),
	}

	cfg := &Config{
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
			Workers:  viper.GetInt("server.workers"),
		},
		Storage: StorageConfig{
			Mode:          constant.StorageMode(viper.GetString("storage.mode")),
			Bucket:        viper.GetString("minio.bucket"),
			LocalDir:      viper.GetString("storage.local_dir"),
			TempDir:       viper.GetString("storage.temp_dir"),
			PresignExpiry: viper.GetDuration("storage.presign_expiry"),
		},
		Upload: Upload{
			MaxSizeBytes:   viper.GetInt64("upload.max_size_bytes"),
			SessionIdleAge: viper.GetDuration("upload.session_idle_age"),
			ReaperInterval: viper.GetDuration("upload.reaper_interval"),
		},
		Auth: Auth{
			JWTSecret: viper.GetString("auth.jwt_secret"),
		},
		DB:    db,
		Queue: rabbitmq,
	}

	if cfg.Storage.Mode == constant.StorageModeMinio {
		minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: viper.GetBool("minio.secure"),
		})
		if err != nil {
			return nil, err
		}
		cfg.Minio = minioClient
	}

	return cfg, nil
}

// BaseURL is the externally visible origin of this server, used by the local
// presign fallback.
func (c *Config) BaseURL() string {
	return c.App.Protocol + "://" + c.App.Host + ":" + c.Server.HttpPort
}
