package router

import (
	"vdisphere/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitMetaPoolRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	adminRouter := r.Group("/admin").Use(
		middleware.StrictAuth(deps.JWT, deps.Logger),
		middleware.AdminAuth(),
	)
	{
		adminRouter.POST("/meta-pools", deps.MetaPoolHandler.Create)
		adminRouter.GET("/meta-pools", deps.MetaPoolHandler.List)
		adminRouter.PUT("/meta-pools/:uuid", deps.MetaPoolHandler.Update)
		adminRouter.DELETE("/meta-pools/:uuid", deps.MetaPoolHandler.Delete)
	}
}
