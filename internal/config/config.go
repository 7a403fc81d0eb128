package config

import "github.com/spf13/viper"

type Config struct {
	DatabaseURL       string
	JWTSecret         string
	Port              string
	FCMServiceAccount string
}

func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "helpdesk.db")
	v.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	v.SetDefault("PORT", "8080")
	v.SetDefault("FCM_SERVICE_ACCOUNT", "")

	return &Config{
		DatabaseURL:       v.GetString("DATABASE_URL"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		Port:              v.GetString("PORT"),
		FCMServiceAccount: v.GetString("FCM_SERVICE_ACCOUNT"),
	}
}
