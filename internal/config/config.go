package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	OIDC       OIDCConfig
	Gateway    GatewayConfig
	AWS        AWSConfig
	Transcoder TranscoderConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type OIDCConfig struct {
	Issuer   string
	ClientID string
}

type GatewayConfig struct {
	Enabled bool
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // custom endpoint for localstack/minio setups
	S3PathStyle     bool
}

type TranscoderConfig struct {
	PipelineID   string
	PresetID     string
	InputBucket  string
	OutputBucket string
	QueueURL     string
	WaitTimeout  time.Duration
	WorkDir      string
}

type RateLimitConfig struct {
	TranscodePerHour int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("AWS_ACCESS_KEY_ID")
	readSecret("AWS_SECRET_ACCESS_KEY")
	readSecret("OIDC_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = viper.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("aws.region", "AWS_REGION")
	_ = viper.BindEnv("aws.access_key_id", "AWS_ACCESS_KEY_ID")
	_ = viper.BindEnv("aws.secret_access_key", "AWS_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("aws.endpoint", "AWS_ENDPOINT")
	_ = viper.BindEnv("aws.s3_path_style", "AWS_S3_PATH_STYLE")
	_ = viper.BindEnv("transcoder.pipeline_id", "TRANSCODER_PIPELINE_ID")
	_ = viper.BindEnv("transcoder.preset_id", "TRANSCODER_PRESET_ID")
	_ = viper.BindEnv("transcoder.input_bucket", "TRANSCODER_INPUT_BUCKET")
	_ = viper.BindEnv("transcoder.output_bucket", "TRANSCODER_OUTPUT_BUCKET")
	_ = viper.BindEnv("transcoder.queue_url", "TRANSCODER_QUEUE_URL")
	_ = viper.BindEnv("transcoder.wait_timeout", "TRANSCODER_WAIT_TIMEOUT")
	_ = viper.BindEnv("transcoder.work_dir", "TRANSCODER_WORK_DIR")
	_ = viper.BindEnv("ratelimit.transcode_per_hour", "RATELIMIT_TRANSCODE_PER_HOUR")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("gateway.enabled", false)

	// AWS defaults
	viper.SetDefault("aws.region", "us-east-1")
	viper.SetDefault("aws.s3_path_style", false)

	// Transcoder defaults
	viper.SetDefault("transcoder.wait_timeout", "30m")
	viper.SetDefault("transcoder.work_dir", os.TempDir())

	viper.SetDefault("ratelimit.transcode_per_hour", 20)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		OIDC: OIDCConfig{
			Issuer:   viper.GetString("oidc.issuer"),
			ClientID: viper.GetString("oidc.client_id"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		AWS: AWSConfig{
			Region:          viper.GetString("aws.region"),
			AccessKeyID:     viper.GetString("aws.access_key_id"),
			SecretAccessKey: viper.GetString("aws.secret_access_key"),
			Endpoint:        viper.GetString("aws.endpoint"),
			S3PathStyle:     viper.GetBool("aws.s3_path_style"),
		},
		Transcoder: TranscoderConfig{
			PipelineID:   viper.GetString("transcoder.pipeline_id"),
			PresetID:     viper.GetString("transcoder.preset_id"),
			InputBucket:  viper.GetString("transcoder.input_bucket"),
			OutputBucket: viper.GetString("transcoder.output_bucket"),
			QueueURL:     viper.GetString("transcoder.queue_url"),
			WaitTimeout:  viper.GetDuration("transcoder.wait_timeout"),
			WorkDir:      viper.GetString("transcoder.work_dir"),
		},
		RateLimit: RateLimitConfig{
			TranscodePerHour: viper.GetInt("ratelimit.transcode_per_hour"),
		},
	}

	return cfg, nil
}
