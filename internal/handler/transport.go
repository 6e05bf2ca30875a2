package handler

import (
	"net/http"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/model"
	"vdisphere/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TransportHandler struct {
	*Handler
	transportService service.TransportService
}

func NewTransportHandler(handler *Handler, transportService service.TransportService) *TransportHandler {
	return &TransportHandler{
		Handler:          handler,
		transportService: transportService,
	}
}

func toTransportItem(t *model.Transport) v1.TransportItem {
	return v1.TransportItem{
		Id:            t.Id,
		Uuid:          t.Uuid,
		Name:          t.Name,
		Comments:      t.Comments,
		Protocol:      t.Protocol,
		Priority:      t.Priority,
		AllowedOses:   t.AllowedOses,
		NetFilter:     t.NetFilter,
		NetFilterMode: t.NetFilterMode,
		CreateTime:    t.CreateTime,
		UpdateTime:    t.UpdateTime,
	}
}

// Create godoc
// @Summary Create a transport
// @Schemes
// @Description Registers a connection protocol with optional OS and network restrictions
// @Tags transport
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.CreateTransportRequest true "params"
// @Success 200 {object} v1.GetTransportResponse
// @Router /api/v1/admin/transports [post]
func (h *TransportHandler) Create(ctx *gin.Context) {
	var req v1.CreateTransportRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	transport, err := h.transportService.Create(ctx, &req)
	if err != nil {
		h.logger.WithContext(ctx).Error("transportService.Create error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, toTransportItem(transport))
}

// Update godoc
// @Summary Update a transport
// @Schemes
// @Description
// @Tags transport
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "transport uuid"
// @Param request body v1.UpdateTransportRequest true "params"
// @Success 200 {object} v1.GetTransportResponse
// @Router /api/v1/admin/transports/{uuid} [put]
func (h *TransportHandler) Update(ctx *gin.Context) {
	var req v1.UpdateTransportRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	transport, err := h.transportService.Update(ctx, ctx.Param("uuid"), &req)
	if err != nil {
		h.logger.WithContext(ctx).Error("transportService.Update error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, toTransportItem(transport))
}

// List godoc
// @Summary List transports
// @Schemes
// @Description
// @Tags transport
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} v1.ListTransportResponse
// @Router /api/v1/admin/transports [get]
func (h *TransportHandler) List(ctx *gin.Context) {
	transports, err := h.transportService.List(ctx)
	if err != nil {
		h.logger.WithContext(ctx).Error("transportService.List error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	list := make([]v1.TransportItem, 0, len(transports))
	for _, t := range transports {
		list = append(list, toTransportItem(t))
	}
	v1.HandleSuccess(ctx, v1.ListTransportResponseData{
		Total: int64(len(list)),
		List:  list,
	})
}

// Delete godoc
// @Summary Delete a transport
// @Schemes
// @Description
// @Tags transport
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "transport uuid"
// @Success 200 {object} v1.Response
// @Router /api/v1/admin/transports/{uuid} [delete]
func (h *TransportHandler) Delete(ctx *gin.Context) {
	if err := h.transportService.Delete(ctx, ctx.Param("uuid")); err != nil {
		h.logger.WithContext(ctx).Error("transportService.Delete error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, nil)
}
