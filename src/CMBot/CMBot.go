package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pavelzar/content-maker/src/CMBot/bot"
	"github.com/pavelzar/content-maker/src/CMBot/config"
	"github.com/pavelzar/content-maker/src/shared/data"
	"github.com/pavelzar/content-maker/src/shared/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "contentmaker:contentmaker@tcp(127.0.0.1:3306)/contentmaker"
	}
	db := data.MustMySQL(mysqlDSN)

	st := store.New(db)
	if err := st.AutoMigrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	cfg := config.Load(st)
	if cfg.Token == "" {
		log.Fatal("discord_token not set in database or DISCORD_TOKEN environment")
	}

	rdb := data.MustRedis(cfg.RedisURL)

	b, err := bot.New(cfg, db, rdb)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	if err := b.Start(); err != nil {
		log.Fatalf("Failed to start bot: %v", err)
	}

	log.Println("Content bot is running. Press CTRL-C to exit.")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	b.Stop()
	log.Println("Content bot stopped gracefully")
}
