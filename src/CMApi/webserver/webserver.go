package webserver

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pavelzar/content-maker/src/CMApi/config"
	"github.com/pavelzar/content-maker/src/shared/store"
)

func New(cfg config.Config, db *gorm.DB) *gin.Engine {
	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery())
	g.Use(cors.Default())
	attachRoutes(g, cfg, store.New(db))
	return g
}

func attachRoutes(g *gin.Engine, cfg config.Config, st *store.Store) {
	auth := NewAuth(cfg.AdminToken, cfg.JWTSecret)
	pipeline := NewPipeline(st)

	g.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := g.Group("/v1")
	v1.POST("/auth/login", auth.Login)

	protected := v1.Group("")
	protected.Use(JWT(cfg.JWTSecret))
	protected.GET("/schedule", pipeline.Schedule)
	protected.GET("/blocks", pipeline.Blocks)
	protected.GET("/blocks/:id/pending", pipeline.Pending)
}
