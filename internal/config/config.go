package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Keys     KeysConfig
	Cooldown CooldownConfig
	Discord  DiscordConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdownPeriod"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig carries the static shared secret expected in the X-API-Key
// header on operator routes. /api/verify is intentionally unauthenticated.
type AuthConfig struct {
	APISecret string `mapstructure:"apiSecret"`
}

type KeysConfig struct {
	MaxBatchAPI  int `mapstructure:"maxBatchApi"`
	MaxBatchChat int `mapstructure:"maxBatchChat"`
}

type CooldownConfig struct {
	FastTrack     time.Duration `mapstructure:"fastTrack"`
	Booster       time.Duration `mapstructure:"booster"`
	Premium       time.Duration `mapstructure:"premium"`
	PendingWindow time.Duration `mapstructure:"pendingWindow"`
}

type DiscordConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Token           string `mapstructure:"token"`
	GuildID         string `mapstructure:"guildId"`
	PremiumRoleID   string `mapstructure:"premiumRoleId"`
	BoosterRoleID   string `mapstructure:"boosterRoleId"`
	FastTrackRoleID string `mapstructure:"fastTrackRoleId"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func LoadConfig(configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables and config file")
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.readTimeout", 5*time.Second)
	viper.SetDefault("server.writeTimeout", 10*time.Second)
	viper.SetDefault("server.idleTimeout", 120*time.Second)
	viper.SetDefault("server.shutdownPeriod", 15*time.Second)

	viper.SetDefault("database.maxOpenConns", 25)
	viper.SetDefault("database.maxIdleConns", 25)
	viper.SetDefault("database.connMaxLifetime", 5*time.Minute)

	viper.SetDefault("redis.db", "0")

	viper.SetDefault("keys.maxBatchApi", 100)
	viper.SetDefault("keys.maxBatchChat", 50)

	viper.SetDefault("cooldown.fastTrack", 1*time.Second)
	viper.SetDefault("cooldown.booster", 12*time.Hour)
	viper.SetDefault("cooldown.premium", 60*time.Hour)
	viper.SetDefault("cooldown.pendingWindow", 5*time.Minute)

	viper.SetDefault("discord.enabled", false)

	viper.SetDefault("log.level", "info")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AllowEmptyEnv(true)

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			log.Printf("Warning: could not read config file: %s. Error: %v\n", configPath, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
