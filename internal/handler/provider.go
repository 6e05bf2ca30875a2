package handler

import (
	"net/http"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/model"
	"vdisphere/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProviderHandler struct {
	*Handler
	providerService service.ProviderService
}

func NewProviderHandler(handler *Handler, providerService service.ProviderService) *ProviderHandler {
	return &ProviderHandler{
		Handler:         handler,
		providerService: providerService,
	}
}

func toProviderItem(p *model.Provider) v1.ProviderItem {
	return v1.ProviderItem{
		Id:                      p.Id,
		Uuid:                    p.Uuid,
		Name:                    p.Name,
		Type:                    p.Type,
		Comments:                p.Comments,
		ConcurrentCreationLimit: p.ConcurrentCreationLimit,
		ConcurrentRemovalLimit:  p.ConcurrentRemovalLimit,
		IgnoreLimits:            p.IgnoreLimits,
		Maintenance:             p.Maintenance,
		CreateTime:              p.CreateTime,
		UpdateTime:              p.UpdateTime,
	}
}

// Create godoc
// @Summary Register a provider
// @Schemes
// @Description Registers a virtualization backend the pools can draw from
// @Tags provider
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.CreateProviderRequest true "params"
// @Success 200 {object} v1.GetProviderResponse
// @Router /api/v1/admin/providers [post]
func (h *ProviderHandler) Create(ctx *gin.Context) {
	var req v1.CreateProviderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	provider, err := h.providerService.Create(ctx, &req)
	if err != nil {
		h.logger.WithContext(ctx).Error("providerService.Create error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, toProviderItem(provider))
}

// Update godoc
// @Summary Update a provider
// @Schemes
// @Description Partial update, absent fields keep their value. Maintenance pauses new work on the provider.
// @Tags provider
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "provider uuid"
// @Param request body v1.UpdateProviderRequest true "params"
// @Success 200 {object} v1.GetProviderResponse
// @Router /api/v1/admin/providers/{uuid} [put]
func (h *ProviderHandler) Update(ctx *gin.Context) {
	var req v1.UpdateProviderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	provider, err := h.providerService.Update(ctx, ctx.Param("uuid"), &req)
	if err != nil {
		h.logger.WithContext(ctx).Error("providerService.Update error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, toProviderItem(provider))
}

// Get godoc
// @Summary Get a provider
// @Schemes
// @Description
// @Tags provider
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "provider uuid"
// @Success 200 {object} v1.GetProviderResponse
// @Router /api/v1/admin/providers/{uuid} [get]
func (h *ProviderHandler) Get(ctx *gin.Context) {
	provider, err := h.providerService.GetByUuid(ctx, ctx.Param("uuid"))
	if err != nil {
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, toProviderItem(provider))
}

// List godoc
// @Summary List providers
// @Schemes
// @Description
// @Tags provider
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} v1.ListProviderResponse
// @Router /api/v1/admin/providers [get]
func (h *ProviderHandler) List(ctx *gin.Context) {
	providers, err := h.providerService.List(ctx)
	if err != nil {
		h.logger.WithContext(ctx).Error("providerService.List error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	list := make([]v1.ProviderItem, 0, len(providers))
	for _, p := range providers {
		list = append(list, toProviderItem(p))
	}
	v1.HandleSuccess(ctx, v1.ListProviderResponseData{
		Total: int64(len(list)),
		List:  list,
	})
}
