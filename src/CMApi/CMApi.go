package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pavelzar/content-maker/src/CMApi/config"
	"github.com/pavelzar/content-maker/src/CMApi/webserver"
	"github.com/pavelzar/content-maker/src/shared/data"
	"github.com/pavelzar/content-maker/src/shared/store"
)

func main() {
	_ = godotenv.Load()

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
	if cfg.AdminToken == "" {
		log.Println("warning: api_admin_token not set, login is disabled")
	}

	router := webserver.New(cfg, db)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("ContentMaker API listening on %s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	_ = httpSrv.Shutdown(shutCtx)
}
