// Package config resolve a configuração do servidor: valores padrão, arquivo YAML opcional
// e, por último, variáveis de ambiente.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvConfigPath = "CONFIG_PATH"

const (
	StoreDriverRedis  = "redis"
	StoreDriverMemory = "memory"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Game   GameConfig   `yaml:"game"`
	Chat   ChatConfig   `yaml:"chat"`
	Limits LimitsConfig `yaml:"limits"`
	Stats  StatsConfig  `yaml:"stats"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen-addr"`
	TrustXFF        bool          `yaml:"trust-xff"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout"`
	Production      bool          `yaml:"production"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig aponta para o KV remoto. URL tem precedência sobre Addr.
type StoreConfig struct {
	Driver         string `yaml:"driver"`
	URL            string `yaml:"url"`
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	LeaderboardKey string `yaml:"leaderboard-key"`
}

type GameConfig struct {
	MinTime          float64       `yaml:"min-time"`
	LocalRecordFloor float64       `yaml:"local-record-floor"`
	Cooldown         time.Duration `yaml:"cooldown"`
	TopLimit         int           `yaml:"top-limit"`
	RankingMaxAge    time.Duration `yaml:"ranking-max-age"`
	RankingStale     time.Duration `yaml:"ranking-stale"`
}

type ChatConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	APIKey          string        `yaml:"api-key"`
	Deployment      string        `yaml:"deployment"`
	APIVersion      string        `yaml:"api-version"`
	MaxTokens       int           `yaml:"max-tokens"`
	Temperature     float64       `yaml:"temperature"`
	Timeout         time.Duration `yaml:"timeout"`
	Retries         int           `yaml:"retries"`
	BackoffBase     time.Duration `yaml:"backoff-base"`
	HistoryLimit    int           `yaml:"history-limit"`
	MaxMessageChars int           `yaml:"max-message-chars"`
	CacheEnabled    bool          `yaml:"cache-enabled"`
	CacheTTL        time.Duration `yaml:"cache-ttl"`
	UpstreamRPS     float64       `yaml:"upstream-rps"`
	UpstreamBurst   int           `yaml:"upstream-burst"`
	MaxConcurrent   int           `yaml:"max-concurrent"`
	AcquireTimeout  time.Duration `yaml:"acquire-timeout"`
}

// Configured indica se há credenciais suficientes para chamar o modelo.
func (c ChatConfig) Configured() bool {
	return strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.APIKey) != "" &&
		strings.TrimSpace(c.Deployment) != ""
}

// RuleConfig descreve uma regra de janela deslizante.
type RuleConfig struct {
	Scope  string        `yaml:"scope"`
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// LimitsConfig: as regras são avaliadas na ordem em que aparecem.
type LimitsConfig struct {
	Prefix string       `yaml:"prefix"`
	Chat   []RuleConfig `yaml:"chat"`
	Game   []RuleConfig `yaml:"game"`
}

type StatsConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl"`
	TrackKeys bool          `yaml:"track-keys"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{
			Driver:         StoreDriverRedis,
			LeaderboardKey: "leaderboard:feb2026_Q1",
		},
		Game: GameConfig{
			MinTime:          0.010,
			LocalRecordFloor: 0.050,
			Cooldown:         2 * time.Second,
			TopLimit:         10,
			RankingMaxAge:    5 * time.Second,
			RankingStale:     10 * time.Second,
		},
		Chat: ChatConfig{
			APIVersion:      "2024-07-01-preview",
			MaxTokens:       150,
			Temperature:     0.5,
			Timeout:         12 * time.Second,
			Retries:         2,
			BackoffBase:     400 * time.Millisecond,
			HistoryLimit:    6,
			MaxMessageChars: 500,
			CacheEnabled:    true,
			CacheTTL:        time.Hour,
			UpstreamRPS:     5,
			UpstreamBurst:   10,
			MaxConcurrent:   20,
			AcquireTimeout:  2 * time.Second,
		},
		Limits: LimitsConfig{
			Prefix: "ratelimit",
			Chat: []RuleConfig{
				{Scope: "ip", Limit: 300, Window: 24 * time.Hour},
				{Scope: "burst", Limit: 4, Window: 10 * time.Second},
				{Scope: "user", Limit: 50, Window: 24 * time.Hour},
			},
			Game: []RuleConfig{
				{Scope: "ip", Limit: 600, Window: time.Hour},
				{Scope: "burst", Limit: 3, Window: 5 * time.Second},
				{Scope: "user", Limit: 300, Window: 24 * time.Hour},
			},
		},
		Stats: StatsConfig{
			Prefix: "ratelimit:stats",
			TTL:    24 * time.Hour,
		},
	}
}

// ResolveConfigPath normaliza o caminho e aplica o padrão ./config.yaml.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load aplica padrões, o arquivo YAML (se existir) e o ambiente, e valida o resultado.
// Arquivo ausente não é erro; arquivo inválido é.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
				return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.TrustXFF = getenvBoolDefault("TRUST_XFF", cfg.Server.TrustXFF)
	cfg.Server.ShutdownTimeout = getenvDurationDefault("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.Production = getenvBoolDefault("PRODUCTION", cfg.Server.Production)

	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)

	cfg.Store.Driver = strings.ToLower(getenvDefault("STORE_DRIVER", cfg.Store.Driver))
	cfg.Store.URL = getenvDefault("KV_URL", getenvDefault("REDIS_URL", cfg.Store.URL))
	cfg.Store.Addr = getenvDefault("REDIS_ADDR", cfg.Store.Addr)
	cfg.Store.Password = getenvDefault("REDIS_PASSWORD", cfg.Store.Password)
	cfg.Store.DB = getenvIntDefault("REDIS_DB", cfg.Store.DB)
	cfg.Store.LeaderboardKey = getenvDefault("LEADERBOARD_KEY", cfg.Store.LeaderboardKey)

	cfg.Game.MinTime = getenvFloatDefault("GAME_MIN_TIME", cfg.Game.MinTime)
	cfg.Game.LocalRecordFloor = getenvFloatDefault("GAME_LOCAL_RECORD_FLOOR", cfg.Game.LocalRecordFloor)
	cfg.Game.Cooldown = getenvDurationDefault("GAME_COOLDOWN", cfg.Game.Cooldown)

	cfg.Chat.Endpoint = getenvDefault("AZURE_OPENAI_ENDPOINT", cfg.Chat.Endpoint)
	cfg.Chat.APIKey = getenvDefault("AZURE_OPENAI_API_KEY", cfg.Chat.APIKey)
	cfg.Chat.Deployment = getenvDefault("AZURE_OPENAI_DEPLOYMENT", cfg.Chat.Deployment)
	cfg.Chat.APIVersion = getenvDefault("AZURE_OPENAI_API_VERSION", cfg.Chat.APIVersion)
	cfg.Chat.Timeout = getenvDurationDefault("CHAT_TIMEOUT", cfg.Chat.Timeout)
	cfg.Chat.Retries = getenvIntDefault("CHAT_RETRIES", cfg.Chat.Retries)
	cfg.Chat.CacheEnabled = getenvBoolDefault("CHAT_CACHE_ENABLED", cfg.Chat.CacheEnabled)
	cfg.Chat.CacheTTL = getenvDurationDefault("CHAT_CACHE_TTL", cfg.Chat.CacheTTL)
	cfg.Chat.UpstreamRPS = getenvFloatDefault("CHAT_UPSTREAM_RPS", cfg.Chat.UpstreamRPS)
	cfg.Chat.UpstreamBurst = getenvIntDefault("CHAT_UPSTREAM_BURST", cfg.Chat.UpstreamBurst)
	cfg.Chat.MaxConcurrent = getenvIntDefault("CHAT_MAX_CONCURRENT", cfg.Chat.MaxConcurrent)

	cfg.Stats.Enabled = getenvBoolDefault("RATE_STATS_ENABLED", cfg.Stats.Enabled)
	cfg.Stats.Prefix = getenvDefault("RATE_STATS_PREFIX", cfg.Stats.Prefix)
	cfg.Stats.TTL = getenvDurationDefault("RATE_STATS_TTL", cfg.Stats.TTL)
	cfg.Stats.TrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", cfg.Stats.TrackKeys)
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverRedis, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverRedis, StoreDriverMemory, c.Store.Driver)
	}
	if strings.TrimSpace(c.Store.LeaderboardKey) == "" {
		return errors.New("LEADERBOARD_KEY must not be empty")
	}
	if c.Game.MinTime <= 0 {
		return errors.New("GAME_MIN_TIME must be > 0")
	}
	if c.Game.LocalRecordFloor < c.Game.MinTime {
		return errors.New("GAME_LOCAL_RECORD_FLOOR must be >= GAME_MIN_TIME")
	}
	if c.Game.TopLimit <= 0 {
		return errors.New("game top-limit must be > 0")
	}
	if c.Chat.Timeout <= 0 {
		return errors.New("CHAT_TIMEOUT must be > 0")
	}
	if c.Chat.Retries < 0 {
		return errors.New("CHAT_RETRIES must be >= 0")
	}
	if c.Chat.HistoryLimit <= 0 {
		return errors.New("chat history-limit must be > 0")
	}
	if c.Chat.UpstreamRPS < 0 || c.Chat.UpstreamBurst < 0 {
		return errors.New("CHAT_UPSTREAM_RPS and CHAT_UPSTREAM_BURST must be >= 0")
	}
	if c.Chat.MaxConcurrent < 0 {
		return errors.New("CHAT_MAX_CONCURRENT must be >= 0")
	}
	for name, rules := range map[string][]RuleConfig{"chat": c.Limits.Chat, "game": c.Limits.Game} {
		for i, r := range rules {
			switch r.Scope {
			case "ip", "burst", "user":
			default:
				return fmt.Errorf("limits.%s[%d]: unknown scope %q", name, i, r.Scope)
			}
			if r.Limit <= 0 || r.Window <= 0 {
				return fmt.Errorf("limits.%s[%d]: limit and window must be > 0", name, i)
			}
		}
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}
