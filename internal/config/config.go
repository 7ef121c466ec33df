package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string   `mapstructure:"PORT"`
	Env                   string   `mapstructure:"ENV"`
	DatabaseURL           string   `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins           []string `mapstructure:"CORS_ORIGINS"`
	GeminiAPIKey          string   `mapstructure:"GEMINI_API_KEY"`
	GeminiBaseURL         string   `mapstructure:"GEMINI_BASE_URL"`
	GeminiModel           string   `mapstructure:"GEMINI_MODEL"`
	AnalysisMaxConcurrent int64    `mapstructure:"ANALYSIS_MAX_CONCURRENT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("ANALYSIS_MAX_CONCURRENT", 4)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("GEMINI_API_KEY")
	v.BindEnv("GEMINI_BASE_URL")
	v.BindEnv("GEMINI_MODEL")
	v.BindEnv("ANALYSIS_MAX_CONCURRENT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// a Gemini API key must be present, since every created case triggers an
// outbound generateContent call.
func (c *Config) Validate() error {
	if c.GeminiBaseURL == "" {
		return fmt.Errorf("GEMINI_BASE_URL must not be empty")
	}
	if c.GeminiModel == "" {
		return fmt.Errorf("GEMINI_MODEL must not be empty")
	}
	if !c.IsDev() && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when ENV is not development")
	}
	if c.AnalysisMaxConcurrent < 1 {
		return fmt.Errorf("ANALYSIS_MAX_CONCURRENT must be at least 1, got %d", c.AnalysisMaxConcurrent)
	}
	return nil
}
