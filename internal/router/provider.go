package router

import (
	"vdisphere/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitProviderRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	adminRouter := r.Group("/admin").Use(
		middleware.StrictAuth(deps.JWT, deps.Logger),
		middleware.AdminAuth(),
	)
	{
		adminRouter.POST("/providers", deps.ProviderHandler.Create)
		adminRouter.GET("/providers", deps.ProviderHandler.List)
		adminRouter.GET("/providers/:uuid", deps.ProviderHandler.Get)
		adminRouter.PUT("/providers/:uuid", deps.ProviderHandler.Update)
	}
}
