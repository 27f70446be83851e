package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pressplay/arcade/internal/config"
)

func newEngine(cfg *config.Config) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	return r
}

// SetupDeveloperRouter wires the publisher gateway: account handling plus
// catalog management over the caller's own games.
func SetupDeveloperRouter(cfg *config.Config, dev *DeveloperAPI) *gin.Engine {
	r := newEngine(cfg)

	api := r.Group("/api")
	api.POST("/register", dev.auth.RegisterHandler)
	api.POST("/login", dev.auth.LoginHandler)
	api.POST("/logout", dev.auth.LogoutHandler)

	games := api.Group("/games", dev.auth.RequireAuth())
	games.POST("", dev.publish)
	games.GET("", dev.listMine)
	games.PUT("/:id", dev.update)
	games.DELETE("/:id", dev.delist)

	log.Info().Str("module", "adapters.http").Msg("developer router setup")
	return r
}

// SetupPlayerRouter wires the lobby gateway: browsing, downloads, reviews
// and the room lifecycle.
func SetupPlayerRouter(cfg *config.Config, player *PlayerAPI) *gin.Engine {
	r := newEngine(cfg)

	api := r.Group("/api")
	api.POST("/register", player.auth.RegisterHandler)
	api.POST("/login", player.auth.LoginHandler)
	api.POST("/logout", player.auth.LogoutHandler)

	authed := api.Group("", player.auth.RequireAuth())
	authed.GET("/profile", player.profile)

	games := authed.Group("/games")
	games.GET("", player.browse)
	games.GET("/:id", player.getGame)
	games.GET("/:id/download", player.download)
	games.GET("/:id/reviews", player.listReviews)
	games.POST("/:id/reviews", player.submitReview)

	rooms := authed.Group("/rooms")
	rooms.POST("", player.createRoom)
	rooms.GET("", player.listRooms)
	rooms.GET("/:id", player.roomStatus)
	rooms.POST("/:id/join", player.joinRoom)
	rooms.POST("/:id/leave", player.leaveRoom)
	rooms.POST("/:id/start", player.startRoom)
	rooms.POST("/:id/result", player.reportResult)
	rooms.DELETE("/:id", player.teardownRoom)
	rooms.GET("/:id/watch", player.watchRoom)

	log.Info().Str("module", "adapters.http").Msg("player router setup")
	return r
}
