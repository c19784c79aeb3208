package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	DatabaseURL         string
	RedisURL            string
	JWTSecret           string
	JWTTokenTTL         time.Duration
	AllowedEmailDomains []string
	OpenAIBaseURL       string
	TutorCacheTTL       time.Duration
	ChatRateLimit       int
	ChatRateWindow      time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LLTEACHER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "LLTeacher API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("jwt.token_ttl", "24h")
	v.SetDefault("tutor.cache_ttl", "5m")
	v.SetDefault("chat.rate_limit", 20)
	v.SetDefault("chat.rate_window", "1m")

	tokenTTL, err := time.ParseDuration(v.GetString("jwt.token_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid jwt token ttl: %w", err)
	}

	cacheTTL, err := time.ParseDuration(v.GetString("tutor.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid tutor cache ttl: %w", err)
	}

	rateWindow, err := time.ParseDuration(v.GetString("chat.rate_window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid chat rate window: %w", err)
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		JWTTokenTTL:         tokenTTL,
		AllowedEmailDomains: splitDomains(v.GetString("allowed_email_domains")),
		OpenAIBaseURL:       v.GetString("openai.base_url"),
		TutorCacheTTL:       cacheTTL,
		ChatRateLimit:       v.GetInt("chat.rate_limit"),
		ChatRateWindow:      rateWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.ChatRateLimit <= 0 {
		cfg.ChatRateLimit = 20
	}

	return cfg, nil
}

func splitDomains(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	domains := make([]string, 0, len(parts))
	for _, part := range parts {
		domain := strings.ToLower(strings.TrimSpace(part))
		if domain != "" {
			domains = append(domains, domain)
		}
	}
	return domains
}
