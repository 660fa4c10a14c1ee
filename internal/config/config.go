package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string
	AllowedOrigin     string
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	StoreID           string
	PromotionTTLSecs  int
	AuthSecret        string
	SessionTTLMinutes int
	SeedDemoContent   bool
}

// Load reads configuration from the environment, with an optional .env file
// for local development. Env vars always win over file values.
func Load() (Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("DEFAULT_STORE_ID", "store-001")
	viper.SetDefault("PROMOTION_TTL_SECONDS", 30)
	viper.SetDefault("SESSION_TTL_MINUTES", 480)
	viper.SetDefault("SEED_DEMO_CONTENT", false)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Port:              viper.GetString("PORT"),
		AllowedOrigin:     viper.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:       viper.GetString("DATABASE_URL"),
		RedisAddr:         viper.GetString("REDIS_ADDR"),
		RedisPassword:     viper.GetString("REDIS_PASSWORD"),
		RedisDB:           viper.GetInt("REDIS_DB"),
		StoreID:           viper.GetString("DEFAULT_STORE_ID"),
		PromotionTTLSecs:  viper.GetInt("PROMOTION_TTL_SECONDS"),
		AuthSecret:        strings.TrimSpace(viper.GetString("AUTH_SECRET")),
		SessionTTLMinutes: viper.GetInt("SESSION_TTL_MINUTES"),
		SeedDemoContent:   viper.GetBool("SEED_DEMO_CONTENT"),
	}

	if cfg.PromotionTTLSecs < 1 {
		cfg.PromotionTTLSecs = 30
	}
	if cfg.SessionTTLMinutes < 1 {
		cfg.SessionTTLMinutes = 480
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
