package handler

import (
	"net/http"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AccessHandler struct {
	*Handler
	accessService service.AccessService
}

func NewAccessHandler(handler *Handler, accessService service.AccessService) *AccessHandler {
	return &AccessHandler{
		Handler:       handler,
		accessService: accessService,
	}
}

// Connect godoc
// @Summary Request a desktop
// @Schemes
// @Description Allocates a desktop from the pool or meta pool and returns the transports to reach it. While the desktop prepares, the client polls the same endpoint.
// @Tags access
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.ConnectRequest true "params"
// @Success 200 {object} v1.ConnectResponse
// @Router /api/v1/connect [post]
func (h *AccessHandler) Connect(ctx *gin.Context) {
	userId := GetUserIdFromCtx(ctx)
	if userId == "" {
		v1.HandleError(ctx, http.StatusUnauthorized, v1.ErrUnauthorized, nil)
		return
	}

	var req v1.ConnectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.accessService.Connect(ctx, userId, &req, ctx.ClientIP())
	if err != nil {
		h.logger.WithContext(ctx).Warn("connect refused",
			zap.String("pool", req.PoolUuid), zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}
