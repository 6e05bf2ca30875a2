package handler

import (
	"net/http"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type InstanceHandler struct {
	*Handler
	instanceService service.InstanceService
}

func NewInstanceHandler(handler *Handler, instanceService service.InstanceService) *InstanceHandler {
	return &InstanceHandler{
		Handler:         handler,
		instanceService: instanceService,
	}
}

// List godoc
// @Summary List instances
// @Schemes
// @Description Filterable by pool, state and owner
// @Tags instance
// @Accept json
// @Produce json
// @Security Bearer
// @Param request query v1.ListInstanceRequest true "params"
// @Success 200 {object} v1.ListInstanceResponse
// @Router /api/v1/admin/instances [get]
func (h *InstanceHandler) List(ctx *gin.Context) {
	var req v1.ListInstanceRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	items, total, err := h.instanceService.List(ctx, &req)
	if err != nil {
		h.logger.WithContext(ctx).Error("instanceService.List error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, v1.ListInstanceResponseData{
		Total: total,
		List:  items,
	})
}

// Remove godoc
// @Summary Destroy an instance
// @Schemes
// @Description Tears the desktop down on the backend. Preparing desktops are canceled instead.
// @Tags instance
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "instance uuid"
// @Success 200 {object} v1.Response
// @Router /api/v1/admin/instances/{uuid} [delete]
func (h *InstanceHandler) Remove(ctx *gin.Context) {
	if err := h.instanceService.Remove(ctx, ctx.Param("uuid")); err != nil {
		h.logger.WithContext(ctx).Error("instanceService.Remove error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// Cancel godoc
// @Summary Cancel a preparing instance
// @Schemes
// @Description
// @Tags instance
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "instance uuid"
// @Success 200 {object} v1.Response
// @Router /api/v1/admin/instances/{uuid}/cancel [post]
func (h *InstanceHandler) Cancel(ctx *gin.Context) {
	if err := h.instanceService.Cancel(ctx, ctx.Param("uuid")); err != nil {
		h.logger.WithContext(ctx).Error("instanceService.Cancel error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// Release godoc
// @Summary Release an instance from its user
// @Schemes
// @Description Detaches the desktop from its owner. It is recycled into the cache when the pool wants a spare, destroyed otherwise.
// @Tags instance
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "instance uuid"
// @Success 200 {object} v1.Response
// @Router /api/v1/admin/instances/{uuid}/release [post]
func (h *InstanceHandler) Release(ctx *gin.Context) {
	if err := h.instanceService.Release(ctx, ctx.Param("uuid")); err != nil {
		h.logger.WithContext(ctx).Error("instanceService.Release error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// Reset godoc
// @Summary Hard-reset an instance
// @Schemes
// @Description
// @Tags instance
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "instance uuid"
// @Success 200 {object} v1.Response
// @Router /api/v1/admin/instances/{uuid}/reset [post]
func (h *InstanceHandler) Reset(ctx *gin.Context) {
	if err := h.instanceService.Reset(ctx, ctx.Param("uuid")); err != nil {
		h.logger.WithContext(ctx).Error("instanceService.Reset error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// Screenshot godoc
// @Summary Capture the instance screen
// @Schemes
// @Description Asks the guest agent for a screenshot
// @Tags instance
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "instance uuid"
// @Success 200 {object} v1.ScreenshotResponse
// @Router /api/v1/admin/instances/{uuid}/screenshot [get]
func (h *InstanceHandler) Screenshot(ctx *gin.Context) {
	image, err := h.instanceService.Screenshot(ctx, ctx.Param("uuid"))
	if err != nil {
		h.logger.WithContext(ctx).Error("instanceService.Screenshot error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}
	v1.HandleSuccess(ctx, v1.ScreenshotResponseData{Image: image})
}

// SendMessage godoc
// @Summary Message the logged-in user
// @Schemes
// @Description Shows a text notice on the desktop through the guest agent
// @Tags instance
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "instance uuid"
// @Param request body v1.SendMessageRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/admin/instances/{uuid}/message [post]
func (h *InstanceHandler) SendMessage(ctx *gin.Context) {
	var req v1.SendMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if err := h.instanceService.SendMessage(ctx, ctx.Param("uuid"), req.Text); err != nil {
		h.logger.WithContext(ctx).Error("instanceService.SendMessage error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

var consoleUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Console godoc
// @Summary Open a console stream
// @Schemes
// @Description Upgrades to a websocket and proxies the backend console
// @Tags instance
// @Security Bearer
// @Param uuid path string true "instance uuid"
// @Router /api/v1/admin/instances/{uuid}/console [get]
func (h *InstanceHandler) Console(ctx *gin.Context) {
	backendConn, err := h.instanceService.ConsoleDial(ctx, ctx.Param("uuid"))
	if err != nil {
		h.logger.WithContext(ctx).Error("console dial error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	clientConn, err := consoleUpgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		backendConn.Close()
		h.logger.WithContext(ctx).Error("console upgrade error", zap.Error(err))
		return
	}

	errc := make(chan error, 2)
	go consolePump(clientConn, backendConn, errc)
	go consolePump(backendConn, clientConn, errc)
	// the first broken direction ends the session
	<-errc
	clientConn.Close()
	backendConn.Close()
}

func consolePump(dst, src *websocket.Conn, errc chan<- error) {
	for {
		mt, msg, err := src.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		if err := dst.WriteMessage(mt, msg); err != nil {
			errc <- err
			return
		}
	}
}
