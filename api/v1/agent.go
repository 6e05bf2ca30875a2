package v1

// Guest agent callbacks. The agent authenticates every call with the secret
// it was seeded with at deployment.

type AgentReadyRequest struct {
	Secret string `json:"secret" binding:"required"`
	Ip     string `json:"ip" binding:"required" example:"10.0.3.41"`
	// Endpoint is where the agent listens for outbound commands
	Endpoint string `json:"endpoint" binding:"required" example:"https://10.0.3.41:43910"`
	Version  string `json:"version" binding:"required" example:"3.6.0"`
}

type AgentLoginRequest struct {
	Secret   string `json:"secret" binding:"required"`
	Username string `json:"username" binding:"required" example:"alice"`
}

type AgentLogoutRequest struct {
	Secret   string `json:"secret" binding:"required"`
	Username string `json:"username" binding:"required" example:"alice"`
}
