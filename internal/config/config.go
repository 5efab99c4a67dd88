// Package config loads and holds the application configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Conf holds every setting loaded from the configuration file.
var Conf Config

// Config mirrors the layout of configs/config.yaml.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Search        SearchConfig        `mapstructure:"search"`
	Import        ImportConfig        `mapstructure:"import"`
	Export        ExportConfig        `mapstructure:"export"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig holds the configuration store and cache connections.
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig holds the schema store DSN.
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig holds the Redis connection used for export bookkeeping.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds the secret used to sign admin tokens.
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig holds the export task queue settings.
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig holds the engine connection. IndexPrefix is prepended
// to every search application's index name.
type ElasticsearchConfig struct {
	Addresses      string `mapstructure:"addresses"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	IndexPrefix    string `mapstructure:"index_prefix"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// MinIOConfig holds object storage settings for export files.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// SearchConfig holds request-time tunables.
type SearchConfig struct {
	CacheTTLSeconds  int  `mapstructure:"cache_ttl_seconds"`
	PaginationRadius int  `mapstructure:"pagination_radius"`
	Highlight        bool `mapstructure:"highlight"`
}

// ImportConfig holds bulk import tunables.
type ImportConfig struct {
	BatchSize         int    `mapstructure:"batch_size"`
	MaxTextLength     int    `mapstructure:"max_text_length"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds"`
	ErrorDir          string `mapstructure:"error_dir"`
}

// ExportConfig holds export file generation settings.
type ExportConfig struct {
	FreshnessSeconds int    `mapstructure:"freshness_seconds"`
	MaxRows          int    `mapstructure:"max_rows"`
	ObjectPrefix     string `mapstructure:"object_prefix"`
	URLExpiryMinutes int    `mapstructure:"url_expiry_minutes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.access_token_expire_hours", 12)
	v.SetDefault("kafka.topic", "search-export")
	v.SetDefault("kafka.group_id", "oc-search-export")
	v.SetDefault("elasticsearch.timeout_seconds", 30)
	v.SetDefault("minio.bucket_name", "search-exports")
	v.SetDefault("search.cache_ttl_seconds", 30)
	v.SetDefault("search.pagination_radius", 3)
	v.SetDefault("search.highlight", true)
	v.SetDefault("import.batch_size", 1000)
	v.SetDefault("import.max_text_length", 32000)
	v.SetDefault("import.max_retries", 10)
	v.SetDefault("import.retry_delay_seconds", 5)
	v.SetDefault("import.error_dir", ".")
	v.SetDefault("export.freshness_seconds", 600)
	v.SetDefault("export.max_rows", 10000)
	v.SetDefault("export.object_prefix", "exports")
	v.SetDefault("export.url_expiry_minutes", 60)
}

// Load reads the YAML file at configPath. Environment variables prefixed with
// OCS_ override file values (OCS_DATABASE_MYSQL_DSN, ...).
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("OCS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Init loads configPath into Conf and panics on failure.
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
