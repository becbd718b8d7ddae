// Package config はアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// セッションストアの種類
const (
	SessionBackendPostgres = "postgres"
	SessionBackendRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Google
	ClientSecretsFile string `env:"CLIENT_SECRETS_FILE" envDefault:"client_secrets.json"`

	// Session
	SessionBackend         string        `env:"SESSION_BACKEND" envDefault:"postgres"`
	SessionMaxAge          time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Redis（SESSION_BACKEND=redisの場合のみ使用）
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitWrite   int `env:"RATE_LIMIT_WRITE" envDefault:"30"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL,required"`

	// Cookie（CookieSecureはBASE_URLから導出する）
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS（JSONエンドポイントのみ）
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN"`
}

// Load はカレントディレクトリの.env（存在すれば）と環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	return LoadWithDotEnv(".env")
}

// LoadWithDotEnv は指定した.envファイルを読み込んでからConfigを構築する。
// 既に設定済みの環境変数は.envで上書きしない。
func LoadWithDotEnv(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SessionBackend {
	case SessionBackendPostgres, SessionBackendRedis:
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q",
			SessionBackendPostgres, SessionBackendRedis, c.SessionBackend)
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive, got %s", c.SessionMaxAge)
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitWrite <= 0 {
		return fmt.Errorf("rate limits must be positive (general=%d, write=%d)",
			c.RateLimitGeneral, c.RateLimitWrite)
	}
	return nil
}

// LoadGoogleOAuth はGoogle Cloud Consoleからダウンロードしたclient_secrets.json
// （"web"または"installed"形式）を読み込む。scopesが空の場合は呼び出し側で補う。
func LoadGoogleOAuth(path string, scopes ...string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secrets: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secrets %s: %w", path, err)
	}
	if oauthCfg.ClientID == "" {
		return nil, fmt.Errorf("client secrets %s has no client_id", path)
	}
	return oauthCfg, nil
}
