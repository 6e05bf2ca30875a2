package router

import (
	"vdisphere/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitPoolRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	adminRouter := r.Group("/admin").Use(
		middleware.StrictAuth(deps.JWT, deps.Logger),
		middleware.AdminAuth(),
	)
	{
		adminRouter.POST("/pools", deps.PoolHandler.Create)
		adminRouter.GET("/pools", deps.PoolHandler.List)
		adminRouter.GET("/pools/:uuid", deps.PoolHandler.Get)
		adminRouter.PUT("/pools/:uuid", deps.PoolHandler.Update)
		adminRouter.DELETE("/pools/:uuid", deps.PoolHandler.Remove)

		adminRouter.POST("/pools/:uuid/publish", deps.PoolHandler.Publish)
		adminRouter.GET("/pools/:uuid/publications", deps.PoolHandler.ListPublications)
		adminRouter.GET("/pools/:uuid/stats", deps.PoolHandler.Stats)
	}
}
