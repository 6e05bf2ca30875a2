package handler

import (
	"net/http"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MetaPoolHandler struct {
	*Handler
	metaPoolService service.MetaPoolService
}

func NewMetaPoolHandler(handler *Handler, metaPoolService service.MetaPoolService) *MetaPoolHandler {
	return &MetaPoolHandler{
		Handler:         handler,
		metaPoolService: metaPoolService,
	}
}

// Create godoc
// @Summary Create a meta pool
// @Schemes
// @Description Groups pools behind one entry point. The policy picks the member a new allocation lands in.
// @Tags meta-pool
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.CreateMetaPoolRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/admin/meta-pools [post]
func (h *MetaPoolHandler) Create(ctx *gin.Context) {
	var req v1.CreateMetaPoolRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	meta, err := h.metaPoolService.Create(ctx, &req)
	if err != nil {
		h.logger.WithContext(ctx).Error("metaPoolService.Create error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, map[string]interface{}{"uuid": meta.Uuid})
}

// Update godoc
// @Summary Update a meta pool
// @Schemes
// @Description Partial update. A members list replaces the membership wholesale.
// @Tags meta-pool
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "meta pool uuid"
// @Param request body v1.UpdateMetaPoolRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/admin/meta-pools/{uuid} [put]
func (h *MetaPoolHandler) Update(ctx *gin.Context) {
	var req v1.UpdateMetaPoolRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if _, err := h.metaPoolService.Update(ctx, ctx.Param("uuid"), &req); err != nil {
		h.logger.WithContext(ctx).Error("metaPoolService.Update error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, nil)
}

// List godoc
// @Summary List meta pools
// @Schemes
// @Description
// @Tags meta-pool
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} v1.ListMetaPoolResponse
// @Router /api/v1/admin/meta-pools [get]
func (h *MetaPoolHandler) List(ctx *gin.Context) {
	items, err := h.metaPoolService.List(ctx)
	if err != nil {
		h.logger.WithContext(ctx).Error("metaPoolService.List error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, v1.ListMetaPoolResponseData{
		Total: int64(len(items)),
		List:  items,
	})
}

// Delete godoc
// @Summary Delete a meta pool
// @Schemes
// @Description Removes the grouping only; member pools are untouched.
// @Tags meta-pool
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "meta pool uuid"
// @Success 200 {object} v1.Response
// @Router /api/v1/admin/meta-pools/{uuid} [delete]
func (h *MetaPoolHandler) Delete(ctx *gin.Context) {
	if err := h.metaPoolService.Delete(ctx, ctx.Param("uuid")); err != nil {
		h.logger.WithContext(ctx).Error("metaPoolService.Delete error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, nil)
}
