package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Game struct {
		TimeLimit         int    `yaml:"time_limit"`
		CountdownSeconds  int    `yaml:"countdown_seconds"`
		Tick              string `yaml:"tick"`
		CodeLength        int    `yaml:"code_length"`
		FinishedRetention string `yaml:"finished_retention"`
		MaxRoomAge        string `yaml:"max_room_age"`
		ReapSchedule      string `yaml:"reap_schedule"`
	} `yaml:"game"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
	} `yaml:"auth"`
	WebSocket struct {
		MessagesPerSecond float64  `yaml:"messages_per_second"`
		Burst             int      `yaml:"burst"`
		PingInterval      string   `yaml:"ping_interval"`
		AllowedOrigins    []string `yaml:"allowed_origins"`
	} `yaml:"websocket"`
}

// Load reads YAML config from path. AUTH_JWT_SECRET overrides the file so the
// secret can stay out of it.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if secret := os.Getenv("AUTH_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
