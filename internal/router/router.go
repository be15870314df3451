// Package router wires the HTTP API together.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ocilxc/lxc-deployer/internal/config"
	"github.com/ocilxc/lxc-deployer/internal/executor"
	"github.com/ocilxc/lxc-deployer/internal/graph"
	"github.com/ocilxc/lxc-deployer/internal/handlers"
	"github.com/ocilxc/lxc-deployer/internal/middleware"
	"github.com/ocilxc/lxc-deployer/internal/services"
	"github.com/ocilxc/lxc-deployer/internal/store"
	"github.com/ocilxc/lxc-deployer/internal/synth"
	"github.com/ocilxc/lxc-deployer/internal/system"
	"github.com/ocilxc/lxc-deployer/internal/version"
)

// Deps carries the constructed services the router wires handlers to.
type Deps struct {
	Store     *store.Store
	Synth     *synth.Synthesizer
	Builder   *graph.Builder
	Executor  *executor.Executor
	Stacks    *services.StackService
	Audit     *services.AuditService
	Inspector *system.Inspector
}

func New(cfg *config.Config, deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	rateLimiter := middleware.NewRateLimiter(300, time.Minute)

	appHandler := handlers.NewApplicationHandler(deps.Store, deps.Synth, deps.Builder, deps.Audit)
	execHandler := handlers.NewExecutionHandler(deps.Store, deps.Executor, deps.Stacks, deps.Audit, deps.Inspector)
	streamHandler := handlers.NewStreamHandler(deps.Executor)
	stackHandler := handlers.NewStackHandler(deps.Stacks, deps.Audit)
	systemHandler := handlers.NewSystemHandler(deps.Inspector, deps.Audit)

	api := r.Group(cfg.Server.PathPrefix + "/api")
	api.Use(rateLimiter.Middleware())

	api.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Info())
	})

	protected := api.Group("")
	protected.Use(middleware.TokenAuth(cfg.Auth.APIToken))
	{
		protected.GET("/frameworks", appHandler.ListFrameworks)
		protected.GET("/addons", appHandler.ListAddons)

		apps := protected.Group("/applications")
		// Uploaded file content travels in create and install bodies.
		apps.Use(middleware.BodySizeLimit(32 << 20))
		{
			apps.GET("", appHandler.List)
			apps.POST("", appHandler.Create)
			apps.POST("/preview", appHandler.Preview)
			apps.GET("/:id", appHandler.Get)
			apps.DELETE("/:id", appHandler.Delete)
			apps.GET("/:id/params", appHandler.Params)
			apps.POST("/:id/install", execHandler.Install)
			apps.GET("/:id/executions/:task", execHandler.Messages)
			apps.GET("/:id/executions/:task/stream", streamHandler.Stream)
		}

		executions := protected.Group("/executions")
		executions.Use(middleware.SmallBodyLimit())
		{
			executions.GET("", execHandler.ListGroups)
			executions.POST("/restart", execHandler.Restart)
			executions.POST("/reinstall", execHandler.Reinstall)
		}

		stacks := protected.Group("/stacks")
		stacks.Use(middleware.SmallBodyLimit())
		{
			stacks.GET("", stackHandler.List)
			stacks.POST("", stackHandler.Create)
			stacks.GET("/:id", stackHandler.Get)
			stacks.PUT("/:id", stackHandler.Update)
			stacks.DELETE("/:id", stackHandler.Delete)
		}

		protected.GET("/system", systemHandler.Info)
		protected.GET("/system/preflight", systemHandler.Preflight)
		protected.GET("/audit", systemHandler.AuditLogs)
	}

	return r
}
