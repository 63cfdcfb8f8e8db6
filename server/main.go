package main

import (
	"github.com/gin-gonic/gin"
	"github.com/kataras/golog"

	"Mirage/server/config"
	"Mirage/server/handler/desktop"
)

func main() {
	cfg := config.Config
	golog.SetLevel(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	app := gin.New()
	app.Use(gin.Recovery())

	api := app.Group("/api/desktop")
	api.GET("/agent", desktop.InitAgent)
	api.GET("/view", desktop.InitViewer)
	api.GET("/webrtc/ice", desktop.HandleICE)

	golog.Infof("listening on %s", cfg.Listen)
	if err := app.Run(cfg.Listen); err != nil {
		golog.Fatalf("server exited: %v", err)
	}
}
