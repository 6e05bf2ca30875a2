package router

import (
	"vdisphere/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitTransportRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	adminRouter := r.Group("/admin").Use(
		middleware.StrictAuth(deps.JWT, deps.Logger),
		middleware.AdminAuth(),
	)
	{
		adminRouter.POST("/transports", deps.TransportHandler.Create)
		adminRouter.GET("/transports", deps.TransportHandler.List)
		adminRouter.PUT("/transports/:uuid", deps.TransportHandler.Update)
		adminRouter.DELETE("/transports/:uuid", deps.TransportHandler.Delete)
	}
}
