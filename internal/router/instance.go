package router

import (
	"vdisphere/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitInstanceRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	adminRouter := r.Group("/admin").Use(
		middleware.StrictAuth(deps.JWT, deps.Logger),
		middleware.AdminAuth(),
	)
	{
		adminRouter.GET("/instances", deps.InstanceHandler.List)
		adminRouter.DELETE("/instances/:uuid", deps.InstanceHandler.Remove)
		adminRouter.POST("/instances/:uuid/cancel", deps.InstanceHandler.Cancel)
		adminRouter.POST("/instances/:uuid/release", deps.InstanceHandler.Release)
		adminRouter.POST("/instances/:uuid/reset", deps.InstanceHandler.Reset)
		adminRouter.GET("/instances/:uuid/screenshot", deps.InstanceHandler.Screenshot)
		adminRouter.POST("/instances/:uuid/message", deps.InstanceHandler.SendMessage)
		adminRouter.GET("/instances/:uuid/console", deps.InstanceHandler.Console)
	}
}
