package handler

import (
	"net/http"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AgentHandler serves the guest agent callbacks. No JWT here: every request
// carries the per-instance secret and the service resolves it.
type AgentHandler struct {
	*Handler
	agentService service.AgentCallbackService
}

func NewAgentHandler(handler *Handler, agentService service.AgentCallbackService) *AgentHandler {
	return &AgentHandler{
		Handler:      handler,
		agentService: agentService,
	}
}

// Ready godoc
// @Summary Agent ready callback
// @Schemes
// @Description The in-guest agent reports its address once the OS finished booting
// @Tags agent
// @Accept json
// @Produce json
// @Param request body v1.AgentReadyRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/agent/ready [post]
func (h *AgentHandler) Ready(ctx *gin.Context) {
	var req v1.AgentReadyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if err := h.agentService.Ready(ctx, &req); err != nil {
		h.logger.WithContext(ctx).Error("agentService.Ready error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// Login godoc
// @Summary Agent login callback
// @Schemes
// @Description A user logged into the desktop
// @Tags agent
// @Accept json
// @Produce json
// @Param request body v1.AgentLoginRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/agent/login [post]
func (h *AgentHandler) Login(ctx *gin.Context) {
	var req v1.AgentLoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if err := h.agentService.Login(ctx, &req); err != nil {
		h.logger.WithContext(ctx).Error("agentService.Login error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// Logout godoc
// @Summary Agent logout callback
// @Schemes
// @Description The user logged out; stale desktops are recycled here
// @Tags agent
// @Accept json
// @Produce json
// @Param request body v1.AgentLogoutRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/agent/logout [post]
func (h *AgentHandler) Logout(ctx *gin.Context) {
	var req v1.AgentLogoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if err := h.agentService.Logout(ctx, &req); err != nil {
		h.logger.WithContext(ctx).Error("agentService.Logout error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}
