package config

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pavelzar/content-maker/src/shared/store"
)

// Runtime-mutable setting keys, read fresh from the store on every use.
const (
	KeyTargetChat   = "target_chat_id"
	KeyDefaultStyle = "default_style"
)

const (
	defaultStyles         = "default,formal,casual"
	defaultTickMinutes    = 120
	defaultDelaySeconds   = 60
	defaultRewriteTimeout = 20 * time.Second
)

type Config struct {
	Token          string
	GuildID        string
	OperatorRoleID string
	MySQLDSN       string
	RedisURL       string
	RewriteURL     string
	RewriteKey     string
	Styles         []string
	TickInterval   time.Duration
	PublishDelay   time.Duration
	RewriteTimeout time.Duration
}

// Load reads startup configuration from the settings table with environment
// fallbacks. Only keys that require a restart anyway live here; the target
// channel and default style are runtime-mutable and stay behind the store.
func Load(st *store.Store) Config {
	cfg := Config{
		Token:          setting(st, "discord_token", "DISCORD_TOKEN"),
		GuildID:        setting(st, "guild_id", "GUILD_ID"),
		OperatorRoleID: setting(st, "operator_role_id", "OPERATOR_ROLE_ID"),
		MySQLDSN:       getenv("MYSQL_DSN", "contentmaker:contentmaker@tcp(127.0.0.1:3306)/contentmaker"),
		RedisURL:       getenv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		RewriteURL:     setting(st, "rewrite_api_url", "REWRITE_API_URL"),
		RewriteKey:     setting(st, "rewrite_api_key", "REWRITE_API_KEY"),
		RewriteTimeout: defaultRewriteTimeout,
	}

	styles := setting(st, "rewrite_styles", "REWRITE_STYLES")
	if styles == "" {
		styles = defaultStyles
	}
	for _, s := range strings.Split(styles, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Styles = append(cfg.Styles, s)
		}
	}

	cfg.TickInterval = time.Duration(settingInt(st, "tick_interval_minutes", "TICK_INTERVAL_MINUTES", defaultTickMinutes)) * time.Minute
	cfg.PublishDelay = time.Duration(settingInt(st, "publish_delay_seconds", "PUBLISH_DELAY_SECONDS", defaultDelaySeconds)) * time.Second

	return cfg
}

// HasStyle reports whether s is one of the configured rewrite styles.
func (c Config) HasStyle(s string) bool {
	for _, v := range c.Styles {
		if v == s {
			return true
		}
	}
	return false
}

func setting(st *store.Store, key, env string) string {
	if st != nil {
		if v, err := st.GetConfig(context.Background(), key); err == nil && v != "" {
			return v
		}
	}
	return os.Getenv(env)
}

func settingInt(st *store.Store, key, env string, def int) int {
	raw := setting(st, key, env)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s=%q, using %d", key, raw, def)
		return def
	}
	return n
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
