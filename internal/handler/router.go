package handler

import (
	"net/http"

	"threadspost/internal/config"
	"threadspost/pkg/response"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(h *Handler, cfg *config.Config, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	api := r.Group("/api/v1")
	{
		persona := api.Group("/persona")
		{
			persona.POST("/create", h.CreatePersona)
			persona.POST("/token", h.UpdatePersonaToken)
			persona.POST("/auto-reply", h.SetAutoReply)
			persona.POST("/active", h.SetPersonaActive)
			persona.GET("/detail", h.GetPersona)
			persona.GET("/list", h.ListPersonas)
		}

		post := api.Group("/post")
		{
			post.POST("/create", h.CreatePost)
			post.POST("/schedule", h.SchedulePost)
			post.POST("/cancel", h.CancelPost)
			post.GET("/detail", h.GetPost)
			post.GET("/list", h.ListPosts)
		}

		jobs := api.Group("/jobs", ServiceRoleAuth(cfg.Auth.JWTSecret))
		{
			jobs.POST("/dispatch", h.RunDispatch)
			jobs.POST("/recover-replies", h.RunReplyRecovery)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})

	return r
}
