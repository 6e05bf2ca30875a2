package router

import (
	"vdisphere/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitAccessRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	strictAuthRouter := r.Group("/").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		strictAuthRouter.POST("/connect", deps.AccessHandler.Connect)
	}
}
