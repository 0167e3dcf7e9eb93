package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Backend endpoints.
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	WSURL      string `mapstructure:"WS_URL"`

	// Session storage. Redis is the cross-tab backend; tests use the
	// in-memory one.
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisSessionDB int    `mapstructure:"REDIS_SESSION_DB"`

	// Client behaviour.
	HTTPTimeout      time.Duration `mapstructure:"HTTP_TIMEOUT"`
	PollInterval     time.Duration `mapstructure:"POLL_INTERVAL"`
	ReconnectMinWait time.Duration `mapstructure:"RECONNECT_MIN_WAIT"`
	ReconnectMaxWait time.Duration `mapstructure:"RECONNECT_MAX_WAIT"`

	// Simulator (local development backend).
	SimPort   string `mapstructure:"SIM_PORT"`
	JWTSecret string `mapstructure:"JWT_SECRET"`
}

var AppConfig Config

// LoadConfig initializes Viper to load config values from env, file, or
// defaults.
func LoadConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("API_BASE_URL", "http://localhost:8080")
	viper.SetDefault("WS_URL", "ws://localhost:8080/ws")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_SESSION_DB", 1)
	viper.SetDefault("HTTP_TIMEOUT", 15*time.Second)
	viper.SetDefault("POLL_INTERVAL", time.Minute)
	viper.SetDefault("RECONNECT_MIN_WAIT", time.Second)
	viper.SetDefault("RECONNECT_MAX_WAIT", 30*time.Second)
	viper.SetDefault("SIM_PORT", "8080")
	viper.SetDefault("JWT_SECRET", "")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

// GetEnv returns the application environment.
func GetEnv() string {
	return AppConfig.Env
}

// IsProduction checks if the environment is production.
func IsProduction() bool {
	return GetEnv() == "production"
}
