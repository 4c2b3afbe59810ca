package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/infrastructure/http/v1/dto"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/provider"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/usecase"
	"github.com/paulmach/orb"
)

func (h *Handler) SetView(c *gin.Context) {
	var req dto.ViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, "invalid json body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	v := provider.View{X: req.X, Y: req.Y, Z: req.Z, FOV: req.FOV, ScreenHeight: req.ScreenHeight}
	if len(req.Visible) == 4 {
		v.Visible = orb.Bound{Min: orb.Point{req.Visible[0], req.Visible[1]}, Max: orb.Point{req.Visible[2], req.Visible[3]}}
	}
	if !h.onLoop(c, func() { h.tileTreeUseCase.SetView(v) }) {
		return
	}
	requestLogger(c).Debug("view updated", "x", v.X, "y", v.Y, "z", v.Z)
	h.RespondWithJSON(c, http.StatusOK, "view updated", nil)
}

// Notify asks the frame loop for a new evaluation pass.
func (h *Handler) Notify(c *gin.Context) {
	if !h.onLoop(c, h.tileTreeUseCase.NotifyChange) {
		return
	}
	h.RespondWithJSON(c, http.StatusAccepted, "update scheduled", nil)
}

func (h *Handler) Tiles(c *gin.Context) {
	leaves := c.Query("leaves") != "false"
	var tiles []usecase.TileInfo
	if !h.onLoop(c, func() { tiles = h.tileTreeUseCase.Tiles(leaves) }) {
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "got tiles", tiles)
}
