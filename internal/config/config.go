/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables (plus an
 * optional .env file), providing a centralized way to manage settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the donation-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	RazorpayKeyID            string `mapstructure:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret        string `mapstructure:"RAZORPAY_KEY_SECRET"`
	RazorpayAPIBaseURL       string `mapstructure:"RAZORPAY_API_BASE_URL"`
	AdminJWTSecret           string `mapstructure:"ADMIN_JWT_SECRET"`
	CORSAllowedOrigins       string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	OrderRateLimitPerMinute  int    `mapstructure:"ORDER_RATE_LIMIT_PER_MINUTE"`
	VerifyRateLimitPerMinute int    `mapstructure:"VERIFY_RATE_LIMIT_PER_MINUTE"`
	VerifyCommitMaxRetries   int    `mapstructure:"VERIFY_COMMIT_MAX_RETRIES"`
}

// AllowedOrigins splits the configured CORS origins into a slice.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("RAZORPAY_API_BASE_URL", "https://api.razorpay.com")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "sahaaya:rate_limit")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("ORDER_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("VERIFY_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("VERIFY_COMMIT_MAX_RETRIES", 3)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("RAZORPAY_KEY_ID")
	_ = viper.BindEnv("RAZORPAY_KEY_SECRET")
	_ = viper.BindEnv("RAZORPAY_API_BASE_URL")
	_ = viper.BindEnv("ADMIN_JWT_SECRET", "ADMIN_JWT_SECRET", "DONATION_SERVICE_ADMIN_JWT_SECRET")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("ORDER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("VERIFY_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("VERIFY_COMMIT_MAX_RETRIES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.AdminJWTSecret = strings.TrimSpace(config.AdminJWTSecret)
	if config.AdminJWTSecret == "" {
		config.AdminJWTSecret = strings.TrimSpace(os.Getenv("DONATION_SERVICE_ADMIN_JWT_SECRET"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "sahaaya:rate_limit"
	}

	if config.OrderRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative order rate limit configured; disabling\" limit=%d", config.OrderRateLimitPerMinute)
		config.OrderRateLimitPerMinute = 0
	}
	if config.VerifyRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative verify rate limit configured; disabling\" limit=%d", config.VerifyRateLimitPerMinute)
		config.VerifyRateLimitPerMinute = 0
	}
	if config.VerifyCommitMaxRetries <= 0 {
		config.VerifyCommitMaxRetries = 3
	}

	return
}
