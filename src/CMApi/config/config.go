package config

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"

	"github.com/pavelzar/content-maker/src/shared/store"
)

type Config struct {
	Port       string
	MySQLDSN   string
	AdminToken string
	JWTSecret  []byte
}

// Load reads API configuration from the settings table with env fallbacks.
func Load(st *store.Store) Config {
	cfg := Config{
		Port:       getenv("PORT", "8090"),
		MySQLDSN:   getenv("MYSQL_DSN", "contentmaker:contentmaker@tcp(127.0.0.1:3306)/contentmaker"),
		AdminToken: setting(st, "api_admin_token", "API_ADMIN_TOKEN"),
	}

	secret := setting(st, "jwt_secret", "JWT_SECRET")
	if secret == "" {
		// Ephemeral secret: tokens do not survive a restart.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			log.Fatalf("generate jwt secret: %v", err)
		}
		secret = hex.EncodeToString(buf)
		log.Println("config: jwt_secret not set, generated an ephemeral one")
	}
	cfg.JWTSecret = []byte(secret)

	return cfg
}

func setting(st *store.Store, key, env string) string {
	if st != nil {
		if v, err := st.GetConfig(context.Background(), key); err == nil && v != "" {
			return v
		}
	}
	return os.Getenv(env)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
