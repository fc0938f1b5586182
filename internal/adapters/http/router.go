package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Babyfoon/internal/adapters/signal"
	"github.com/dkeye/Babyfoon/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const clientKey = "ct"

// ClientTokenMiddleware pins a stable client id in the cookie session. The
// signaling rate limiter keys on it.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(clientKey).(string)
		if token == "" {
			token = uuid.NewString()
			s.Set(clientKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type Deps struct {
	API      *API
	Signal   *signal.SignalWSController
	Gatherer prometheus.Gatherer
	// MediaRoot is served under /media when chunks live on local disk.
	MediaRoot string
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.Mode == "test" {
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("BabyfoonSessions", store))
	r.Use(ClientTokenMiddleware())

	if d.MediaRoot != "" {
		r.Static("/media", d.MediaRoot)
	}
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	log.Info().Str("module", "adapters.http").Str("media", d.MediaRoot).Msg("router setup")

	r.GET("/watch/:code", d.API.Watch)

	api := r.Group("/api")
	api.POST("/token", d.API.IssueToken)
	api.POST("/channels", d.API.CreateChannel)
	api.GET("/channels/:code", d.API.GetChannel)
	api.DELETE("/channels/:code", d.API.DeleteChannel)
	api.PUT("/channels/:code/chunks/:seq", d.API.PutChunk)
	api.GET("/channels/:code/chunks/latest", d.API.LatestChunk)

	if d.Signal != nil {
		api.GET("/ws/signal", func(c *gin.Context) {
			log.Debug().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws signal endpoint hit")
			d.Signal.HandleSignal(ctx, c)
		})
	}
	return r
}
