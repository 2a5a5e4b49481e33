package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "prismy"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "PRISMY_APP_ENV"
	EnvDBDSN  = "PRISMY_DB_DSN"
	EnvDBHost = "PRISMY_DB_HOST"
	EnvDBUser = "PRISMY_DB_USER"
	EnvDBName = "PRISMY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	GCP        GCPConfig
	GCS        GCSConfig
	PubSub     PubSubConfig
	Upload     UploadConfig
	Pipeline   PipelineConfig
	Translator TranslatorConfig
	Cron       CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PRISMY_APP_ENV" required:"true"`
	Port         string `envconfig:"PRISMY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PRISMY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PRISMY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PRISMY_DB_DSN"`
	Driver string `envconfig:"PRISMY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PRISMY_DB_HOST"`
	LegacyPort     int    `envconfig:"PRISMY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PRISMY_DB_USER"`
	LegacyPassword string `envconfig:"PRISMY_DB_PASSWORD"`
	LegacyName     string `envconfig:"PRISMY_DB_NAME"`
	LegacySSLMode  string `envconfig:"PRISMY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PRISMY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PRISMY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PRISMY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PRISMY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"PRISMY_DB_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PRISMY_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"PRISMY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PRISMY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PRISMY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PRISMY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PRISMY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type AuthConfig struct {
	JWTSecret            string `envconfig:"PRISMY_JWT_SECRET" required:"true"`
	JWTIssuer            string `envconfig:"PRISMY_JWT_ISSUER" default:"prismy"`
	JWTExpirationMinutes int    `envconfig:"PRISMY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"PRISMY_GCP_PROJECT_ID" required:"true"`
}

type GCSConfig struct {
	BucketName string `envconfig:"PRISMY_GCS_BUCKET_NAME" required:"true"`
}

type PubSubConfig struct {
	PipelineTopic        string `envconfig:"PRISMY_PUBSUB_PIPELINE_TOPIC" default:"prismy-pipeline-dispatch"`
	PipelineSubscription string `envconfig:"PRISMY_PUBSUB_PIPELINE_SUBSCRIPTION" default:"prismy-pipeline-dispatch-worker"`
}

type UploadConfig struct {
	MaxUploadMB     int           `envconfig:"PRISMY_MAX_UPLOAD_MB" default:"100"`
	MaxChunks       int           `envconfig:"PRISMY_UPLOAD_MAX_CHUNKS" default:"1024"`
	StaleSessionTTL time.Duration `envconfig:"PRISMY_UPLOAD_STALE_SESSION_TTL" default:"24h"`
}

// MaxUploadBytes returns the configured upload ceiling in bytes.
func (u UploadConfig) MaxUploadBytes() int64 {
	return int64(u.MaxUploadMB) * 1024 * 1024
}

type PipelineConfig struct {
	AssumedDuration time.Duration `envconfig:"PRISMY_PIPELINE_ASSUMED_DURATION" default:"30s"`
	StageTimeout    time.Duration `envconfig:"PRISMY_PIPELINE_STAGE_TIMEOUT" default:"2m"`
	WatchdogWindow  time.Duration `envconfig:"PRISMY_PIPELINE_WATCHDOG_WINDOW" default:"15m"`
}

type TranslatorConfig struct {
	Provider    string        `envconfig:"PRISMY_TRANSLATOR_PROVIDER" default:"static"`
	EndpointURL string        `envconfig:"PRISMY_TRANSLATOR_ENDPOINT_URL"`
	APIKey      string        `envconfig:"PRISMY_TRANSLATOR_API_KEY"`
	Timeout     time.Duration `envconfig:"PRISMY_TRANSLATOR_TIMEOUT" default:"30s"`
	MaxRetries  int           `envconfig:"PRISMY_TRANSLATOR_MAX_RETRIES" default:"3"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"PRISMY_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"PRISMY_CRON_LOCK_TTL" default:"5m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
