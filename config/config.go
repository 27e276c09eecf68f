package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"groupdrive/utils"
)

type Config struct {
	Port string `validate:"required,numeric"`
	Env  string `validate:"required,oneof=development staging production test"`

	MongoURI     string `validate:"required,startswith=mongodb"`
	DatabaseName string `validate:"required"`

	JWTSecret  string `validate:"required_without=JWTJWKSURL"`
	JWTJWKSURL string `validate:"omitempty,url"`

	StorageBackend string `validate:"required,oneof=b2 s3 memory"`
	URLExpiry      time.Duration

	B2ApplicationKeyID string `validate:"required_if=StorageBackend b2"`
	B2ApplicationKey   string `validate:"required_if=StorageBackend b2"`
	B2BucketName       string `validate:"required_if=StorageBackend b2"`

	S3Bucket          string `validate:"required_if=StorageBackend s3"`
	S3Region          string `validate:"required_if=StorageBackend s3"`
	S3Endpoint        string `validate:"omitempty,url"`
	S3AccessKeyID     string
	S3SecretAccessKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int           `validate:"gte=0"`
	MembershipTTL time.Duration `validate:"gt=0"`

	JournalDir string `validate:"required"`

	TrashPolicy          string        `validate:"oneof=require_empty cascade"`
	TrashRetention       time.Duration `validate:"gt=0"`
	TrashCleanupInterval time.Duration `validate:"gte=0"`

	MaxBatchSize int   `validate:"gt=0"`
	MaxFileSize  int64 `validate:"gt=0"`

	RateLimitRPS   float64 `validate:"gte=0"`
	RateLimitBurst int     `validate:"gte=0"`

	ShutdownTimeout time.Duration `validate:"gt=0"`

	AllowedOrigins []string

	Log utils.LogConfig
}

var AppConfig *Config

var validate = validator.New()

// aliases lists the extra environment variable names accepted for a key.
// The first name wins when several are set.
var aliases = map[string][]string{
	"mongo_uri":              {"MONGO_URI", "MONGODB_URI"},
	"b2_application_key_id":  {"B2_APPLICATION_KEY_ID", "B2_KEY_ID", "BACKBLAZE_KEY_ID"},
	"b2_application_key":     {"B2_APPLICATION_KEY", "B2_APP_KEY", "BACKBLAZE_APP_KEY"},
	"b2_bucket_name":         {"B2_BUCKET_NAME", "B2_BUCKET", "BACKBLAZE_BUCKET"},
	"trash_cleanup_interval": {"TRASH_CLEANUP_INTERVAL", "CLEANUP_INTERVAL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("env", "development")
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("database_name", "groupdrive")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_jwks_url", "")
	v.SetDefault("storage_backend", "b2")
	v.SetDefault("url_expiry", "1h")
	v.SetDefault("b2_application_key_id", "")
	v.SetDefault("b2_application_key", "")
	v.SetDefault("b2_bucket_name", "")
	v.SetDefault("s3_bucket", "")
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_access_key_id", "")
	v.SetDefault("s3_secret_access_key", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("membership_ttl", "5m")
	v.SetDefault("journal_dir", "./data/journal")
	v.SetDefault("trash_policy", "require_empty")
	v.SetDefault("trash_retention", "720h")
	v.SetDefault("trash_cleanup_interval", "24h")
	v.SetDefault("max_batch_size", 500)
	v.SetDefault("max_file_size", int64(104857600))
	v.SetDefault("rate_limit_rps", 20.0)
	v.SetDefault("rate_limit_burst", 40)
	v.SetDefault("shutdown_timeout", "15s")
	v.SetDefault("allowed_origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_output", "stdout")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range aliases {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	setDefaults(v)
	return v
}

// LoadConfig reads the process environment into AppConfig and validates it.
// A .env file, if any, must be loaded before calling this.
func LoadConfig() (*Config, error) {
	cfg, err := fromViper(newViper())
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	AppConfig = cfg
	return cfg, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port: v.GetString("port"),
		Env:  strings.ToLower(v.GetString("env")),

		MongoURI:     v.GetString("mongo_uri"),
		DatabaseName: v.GetString("database_name"),

		JWTSecret:  v.GetString("jwt_secret"),
		JWTJWKSURL: v.GetString("jwt_jwks_url"),

		StorageBackend: strings.ToLower(v.GetString("storage_backend")),

		B2ApplicationKeyID: v.GetString("b2_application_key_id"),
		B2ApplicationKey:   v.GetString("b2_application_key"),
		B2BucketName:       v.GetString("b2_bucket_name"),

		S3Bucket:          v.GetString("s3_bucket"),
		S3Region:          v.GetString("s3_region"),
		S3Endpoint:        v.GetString("s3_endpoint"),
		S3AccessKeyID:     v.GetString("s3_access_key_id"),
		S3SecretAccessKey: v.GetString("s3_secret_access_key"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		JournalDir:  v.GetString("journal_dir"),
		TrashPolicy: strings.ToLower(v.GetString("trash_policy")),

		MaxBatchSize: v.GetInt("max_batch_size"),
		MaxFileSize:  v.GetInt64("max_file_size"),

		RateLimitRPS:   v.GetFloat64("rate_limit_rps"),
		RateLimitBurst: v.GetInt("rate_limit_burst"),

		AllowedOrigins: parseStringSlice(v.GetString("allowed_origins")),

		Log: utils.LogConfig{
			Level:      v.GetString("log_level"),
			Format:     v.GetString("log_format"),
			OutputPath: v.GetString("log_output"),
		},
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"url_expiry", &cfg.URLExpiry},
		{"membership_ttl", &cfg.MembershipTTL},
		{"trash_retention", &cfg.TrashRetention},
		{"trash_cleanup_interval", &cfg.TrashCleanupInterval},
		{"shutdown_timeout", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		parsed, err := parseDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.ToUpper(d.key), err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

// Validate checks the struct tags on cfg and reports every failing field
// by its environment variable name.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		var fields []string
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", envName(fe.StructField()), fe.Tag()))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
	}
	return nil
}

var envNames = map[string]string{
	"Port":                 "PORT",
	"Env":                  "ENV",
	"MongoURI":             "MONGO_URI",
	"DatabaseName":         "DATABASE_NAME",
	"JWTSecret":            "JWT_SECRET",
	"JWTJWKSURL":           "JWT_JWKS_URL",
	"StorageBackend":       "STORAGE_BACKEND",
	"B2ApplicationKeyID":   "B2_APPLICATION_KEY_ID",
	"B2ApplicationKey":     "B2_APPLICATION_KEY",
	"B2BucketName":         "B2_BUCKET_NAME",
	"S3Bucket":             "S3_BUCKET",
	"S3Region":             "S3_REGION",
	"S3Endpoint":           "S3_ENDPOINT",
	"RedisDB":              "REDIS_DB",
	"MembershipTTL":        "MEMBERSHIP_TTL",
	"JournalDir":           "JOURNAL_DIR",
	"TrashPolicy":          "TRASH_POLICY",
	"TrashRetention":       "TRASH_RETENTION",
	"TrashCleanupInterval": "TRASH_CLEANUP_INTERVAL",
	"MaxBatchSize":         "MAX_BATCH_SIZE",
	"MaxFileSize":          "MAX_FILE_SIZE",
	"RateLimitRPS":         "RATE_LIMIT_RPS",
	"RateLimitBurst":       "RATE_LIMIT_BURST",
	"ShutdownTimeout":      "SHUTDOWN_TIMEOUT",
}

func envName(field string) string {
	if name, ok := envNames[field]; ok {
		return name
	}
	return field
}

// LogConfig writes the effective configuration with secrets masked.
func LogConfig(cfg *Config) {
	utils.LogInfo("Configuration loaded",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("database", cfg.DatabaseName),
		zap.String("mongo_uri", maskConnectionString(cfg.MongoURI)),
		zap.String("jwt_secret", maskSecret(cfg.JWTSecret)),
		zap.String("jwt_jwks_url", cfg.JWTJWKSURL),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.String("b2_key_id", maskSecret(cfg.B2ApplicationKeyID)),
		zap.String("b2_bucket", cfg.B2BucketName),
		zap.String("s3_bucket", cfg.S3Bucket),
		zap.String("s3_endpoint", cfg.S3Endpoint),
		zap.String("s3_access_key_id", maskSecret(cfg.S3AccessKeyID)),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.Duration("membership_ttl", cfg.MembershipTTL),
		zap.String("journal_dir", cfg.JournalDir),
		zap.String("trash_policy", cfg.TrashPolicy),
		zap.Duration("trash_retention", cfg.TrashRetention),
		zap.Duration("trash_cleanup_interval", cfg.TrashCleanupInterval),
		zap.Int("max_batch_size", cfg.MaxBatchSize),
		zap.Int64("max_file_size", cfg.MaxFileSize),
		zap.Float64("rate_limit_rps", cfg.RateLimitRPS),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
	)
}

func maskSecret(secret string) string {
	if secret == "" {
		return "[NOT SET]"
	}
	if len(secret) <= 8 {
		return "[HIDDEN]"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}

func maskConnectionString(uri string) string {
	if uri == "" {
		return "[NOT SET]"
	}
	if strings.Contains(uri, "@") {
		parts := strings.Split(uri, "@")
		if len(parts) >= 2 {
			return "[CREDENTIALS_HIDDEN]@" + parts[len(parts)-1]
		}
	}
	return uri
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", s, err)
	}
	return d, nil
}

func CreateContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func parseStringSlice(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	var result []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
