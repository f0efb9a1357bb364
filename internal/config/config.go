package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Env                string `mapstructure:"env"`
	LocalStackEndpoint string `mapstructure:"localstack_endpoint"`
	Round              RoundConfig
	TeeSigner          TeeSignerConfig
	Hook               HookConfig
	Distribution       DistributionConfig
	DB                 DBConfig
	Redis              RedisConfig
}

// RoundConfig parameterizes the round clock shared by the matcher and relayer.
type RoundConfig struct {
	Namespace           string `mapstructure:"namespace"`
	DurationSeconds     uint64 `mapstructure:"duration_seconds"`
	IntakeWindowSeconds uint64 `mapstructure:"intake_window_seconds"`
	MismatchTolerance   float64 `mapstructure:"mismatch_tolerance"`
}

// TeeSignerConfig holds the matcher's signing-session settings.
type TeeSignerConfig struct {
	SessionTTLSec int    `mapstructure:"session_ttl_sec"`
	KMSKeyID      string `mapstructure:"kms_key_id"`
	AWSRegion     string `mapstructure:"aws_region"`
}

// HookConfig holds the swap hook's policy parameters.
type HookConfig struct {
	MinOutBps uint64 `mapstructure:"min_out_bps"`
}

// DistributionConfig holds the match distribution surface's settings.
type DistributionConfig struct {
	ChallengeTTLSec int    `mapstructure:"challenge_ttl_sec"`
	ListenAddr      string `mapstructure:"listen_addr"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads configuration from environment variables prefixed with SHADOWPOOL_.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHADOWPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "development")

	v.SetDefault("round.namespace", "shadowpool")
	v.SetDefault("round.duration_seconds", 12)
	v.SetDefault("round.intake_window_seconds", 8)
	v.SetDefault("round.mismatch_tolerance", 0.2)

	v.SetDefault("teesigner.session_ttl_sec", 3600)
	v.SetDefault("teesigner.aws_region", "us-east-1")

	v.SetDefault("hook.min_out_bps", 10_000)

	v.SetDefault("distribution.challenge_ttl_sec", 300)
	v.SetDefault("distribution.listen_addr", ":8080")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "shadowpool")
	v.SetDefault("db.password", "shadowpool")
	v.SetDefault("db.dbname", "shadowpool")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	cfg := &Config{}

	cfg.Env = v.GetString("env")
	cfg.LocalStackEndpoint = v.GetString("localstack_endpoint")

	cfg.Round = RoundConfig{
		Namespace:           v.GetString("round.namespace"),
		DurationSeconds:     uint64(v.GetInt64("round.duration_seconds")),
		IntakeWindowSeconds: uint64(v.GetInt64("round.intake_window_seconds")),
		MismatchTolerance:   v.GetFloat64("round.mismatch_tolerance"),
	}

	cfg.TeeSigner = TeeSignerConfig{
		SessionTTLSec: v.GetInt("teesigner.session_ttl_sec"),
		KMSKeyID:      v.GetString("teesigner.kms_key_id"),
		AWSRegion:     v.GetString("teesigner.aws_region"),
	}

	cfg.Hook = HookConfig{
		MinOutBps: uint64(v.GetInt64("hook.min_out_bps")),
	}

	cfg.Distribution = DistributionConfig{
		ChallengeTTLSec: v.GetInt("distribution.challenge_ttl_sec"),
		ListenAddr:      v.GetString("distribution.listen_addr"),
	}

	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		DBName:   v.GetString("db.dbname"),
		SSLMode:  v.GetString("db.sslmode"),
	}

	cfg.Redis = RedisConfig{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}

	return cfg, nil
}
