package handler

import (
	"net/http"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/model"
	"vdisphere/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PoolHandler struct {
	*Handler
	poolService service.PoolService
}

func NewPoolHandler(handler *Handler, poolService service.PoolService) *PoolHandler {
	return &PoolHandler{
		Handler:     handler,
		poolService: poolService,
	}
}

func toPublicationItem(pub *model.Publication) v1.PublicationItem {
	return v1.PublicationItem{
		Id:          pub.Id,
		Revision:    pub.Revision,
		State:       pub.State,
		UniqueID:    pub.UniqueID,
		PublishDate: pub.PublishDate,
	}
}

// Create godoc
// @Summary Create a pool
// @Schemes
// @Description Creates a desktop pool on a provider. The pool serves no desktops until its first publication.
// @Tags pool
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.CreatePoolRequest true "params"
// @Success 200 {object} v1.GetPoolResponse
// @Router /api/v1/admin/pools [post]
func (h *PoolHandler) Create(ctx *gin.Context) {
	var req v1.CreatePoolRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	pool, err := h.poolService.Create(ctx, &req)
	if err != nil {
		h.logger.WithContext(ctx).Error("poolService.Create error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	item, err := h.poolService.Describe(ctx, pool)
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, item)
}

// Update godoc
// @Summary Update a pool
// @Schemes
// @Description Partial update. Cache targets take effect on the next sizing pass.
// @Tags pool
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "pool uuid"
// @Param request body v1.UpdatePoolRequest true "params"
// @Success 200 {object} v1.GetPoolResponse
// @Router /api/v1/admin/pools/{uuid} [put]
func (h *PoolHandler) Update(ctx *gin.Context) {
	var req v1.UpdatePoolRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	pool, err := h.poolService.Update(ctx, ctx.Param("uuid"), &req)
	if err != nil {
		h.logger.WithContext(ctx).Error("poolService.Update error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	item, err := h.poolService.Describe(ctx, pool)
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, item)
}

// Get godoc
// @Summary Get a pool
// @Schemes
// @Description
// @Tags pool
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "pool uuid"
// @Success 200 {object} v1.GetPoolResponse
// @Router /api/v1/admin/pools/{uuid} [get]
func (h *PoolHandler) Get(ctx *gin.Context) {
	pool, err := h.poolService.GetByUuid(ctx, ctx.Param("uuid"))
	if err != nil {
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	item, err := h.poolService.Describe(ctx, pool)
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, item)
}

// List godoc
// @Summary List pools
// @Schemes
// @Description
// @Tags pool
// @Accept json
// @Produce json
// @Security Bearer
// @Param request query v1.ListPoolRequest true "params"
// @Success 200 {object} v1.ListPoolResponse
// @Router /api/v1/admin/pools [get]
func (h *PoolHandler) List(ctx *gin.Context) {
	var req v1.ListPoolRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	items, total, err := h.poolService.List(ctx, &req)
	if err != nil {
		h.logger.WithContext(ctx).Error("poolService.List error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, v1.ListPoolResponseData{
		Total: total,
		List:  items,
	})
}

// Remove godoc
// @Summary Retire a pool
// @Schemes
// @Description Starts pool retirement. Remaining desktops drain in the background before the pool turns terminal.
// @Tags pool
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "pool uuid"
// @Success 200 {object} v1.Response
// @Router /api/v1/admin/pools/{uuid} [delete]
func (h *PoolHandler) Remove(ctx *gin.Context) {
	pool, err := h.poolService.GetByUuid(ctx, ctx.Param("uuid"))
	if err != nil {
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	if err := h.poolService.Remove(ctx, pool); err != nil {
		h.logger.WithContext(ctx).Error("poolService.Remove error", zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, nil)
}

// Publish godoc
// @Summary Publish a new revision
// @Schemes
// @Description Cuts a new publication and makes it the active one. With template_id the given template is registered as-is, otherwise the backend builds one from the pool's base template.
// @Tags pool
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "pool uuid"
// @Param request body v1.PublishPoolRequest true "params"
// @Success 200 {object} v1.PublishPoolResponse
// @Router /api/v1/admin/pools/{uuid}/publish [post]
func (h *PoolHandler) Publish(ctx *gin.Context) {
	var req v1.PublishPoolRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	pool, err := h.poolService.GetByUuid(ctx, ctx.Param("uuid"))
	if err != nil {
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	pub, err := h.poolService.Publish(ctx, pool, &req)
	if err != nil {
		h.logger.WithContext(ctx).Error("poolService.Publish error",
			zap.String("pool", pool.Uuid), zap.Error(err))
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	v1.HandleSuccess(ctx, toPublicationItem(pub))
}

// ListPublications godoc
// @Summary List a pool's publications
// @Schemes
// @Description
// @Tags pool
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "pool uuid"
// @Success 200 {object} v1.ListPublicationResponse
// @Router /api/v1/admin/pools/{uuid}/publications [get]
func (h *PoolHandler) ListPublications(ctx *gin.Context) {
	pool, err := h.poolService.GetByUuid(ctx, ctx.Param("uuid"))
	if err != nil {
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	pubs, err := h.poolService.ListPublications(ctx, pool)
	if err != nil {
		h.logger.WithContext(ctx).Error("poolService.ListPublications error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	list := make([]v1.PublicationItem, 0, len(pubs))
	for _, pub := range pubs {
		list = append(list, toPublicationItem(pub))
	}
	v1.HandleSuccess(ctx, v1.ListPublicationResponseData{
		Total: int64(len(list)),
		List:  list,
	})
}

// Stats godoc
// @Summary Pool occupancy snapshot
// @Schemes
// @Description Live counters: assigned, in use, cached per tier, transitional and errored desktops.
// @Tags pool
// @Accept json
// @Produce json
// @Security Bearer
// @Param uuid path string true "pool uuid"
// @Success 200 {object} v1.GetPoolStatsResponse
// @Router /api/v1/admin/pools/{uuid}/stats [get]
func (h *PoolHandler) Stats(ctx *gin.Context) {
	pool, err := h.poolService.GetByUuid(ctx, ctx.Param("uuid"))
	if err != nil {
		v1.HandleError(ctx, statusFor(err), err, nil)
		return
	}

	stats, err := h.poolService.Stats(ctx, pool)
	if err != nil {
		h.logger.WithContext(ctx).Error("poolService.Stats error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, stats)
}
