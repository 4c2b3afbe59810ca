package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/infrastructure/http/v1/dto"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/usecase"
)

func (h *Handler) Layers(c *gin.Context) {
	var out []dto.LayerResponse
	ok := h.onLoop(c, func() {
		for _, l := range h.tileTreeUseCase.Layers() {
			src := l.Source()
			zoom := src.ZoomRange()
			out = append(out, dto.LayerResponse{
				ID:       string(l.ID),
				Kind:     l.Kind.String(),
				Source:   src.Name(),
				Format:   src.Format(),
				ZoomMin:  zoom.Min,
				ZoomMax:  zoom.Max,
				Order:    l.Order,
				Visible:  l.Visible,
				Opacity:  l.Opacity,
				Strategy: l.Strategy.Name(),
				Cached:   l.Cache.Len(),
			})
		}
	})
	if !ok {
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "got layers", out)
}

func (h *Handler) ClearLayerCache(c *gin.Context) {
	id := domain.LayerID(c.Param("id"))
	var err error
	if !h.onLoop(c, func() { err = h.tileTreeUseCase.ClearLayerCache(id) }) {
		return
	}
	if h.layerError(c, err) {
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "layer cache cleared", nil)
}

func (h *Handler) SetLayerVisibility(c *gin.Context) {
	var req dto.LayerVisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, "invalid json body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	id := domain.LayerID(c.Param("id"))
	var err error
	ok := h.onLoop(c, func() {
		opacity := 1.0
		for _, l := range h.tileTreeUseCase.Layers() {
			if l.ID == id {
				opacity = l.Opacity
			}
		}
		if req.Opacity != nil {
			opacity = *req.Opacity
		}
		err = h.tileTreeUseCase.SetLayerVisibility(id, *req.Visible, opacity)
	})
	if !ok || h.layerError(c, err) {
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "layer updated", nil)
}

func (h *Handler) SetLayerOrder(c *gin.Context) {
	var req dto.LayerOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, "invalid json body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	order := make([]domain.LayerID, len(req.Order))
	for i, id := range req.Order {
		order[i] = domain.LayerID(id)
	}
	var err error
	if !h.onLoop(c, func() { err = h.tileTreeUseCase.SetLayerOrder(order) }) {
		return
	}
	if h.layerError(c, err) {
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "layer order updated", nil)
}

// layerError writes the response for a failed layer operation and reports
// whether there was one.
func (h *Handler) layerError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, usecase.ErrLayerNotFound):
		h.RespondWithJSON(c, http.StatusNotFound, err.Error(), nil)
	default:
		requestLogger(c).Error("layer operation failed", "error", err)
		h.RespondWithInternalServerError(c)
	}
	return true
}
