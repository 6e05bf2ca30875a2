package router

import (
	"github.com/gin-gonic/gin"
)

func InitAgentRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	// Agents authenticate with their instance secret, not a JWT
	agentRouter := r.Group("/agent")
	{
		agentRouter.POST("/ready", deps.AgentHandler.Ready)
		agentRouter.POST("/login", deps.AgentHandler.Login)
		agentRouter.POST("/logout", deps.AgentHandler.Logout)
	}
}
