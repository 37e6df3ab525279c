package api

import (
	"github.com/leadroutehq/leadroute/config"

	"github.com/leadroutehq/leadroute/api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/leadroutehq/leadroute"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	engine *leadroute.Leadroute
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/events/lead-created", a.IngestLeadCreated)

	router.GET("/assignments/:lead_id", a.GetAssignment)

	router.GET("/unassigned", a.GetUnassignedLeads)

	router.GET("/targets/:target_id/usage", a.GetTargetUsage)

	return a.router
}

func NewAPI(engine *leadroute.Leadroute) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	if conf.Server.SecretKey != "" {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{engine: engine, router: r}
}
