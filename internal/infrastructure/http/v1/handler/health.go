package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/usecase"
)

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, "OK")
}

func (h *Handler) Stats(c *gin.Context) {
	var st usecase.Stats
	if !h.onLoop(c, func() { st = h.tileTreeUseCase.Stats() }) {
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "stats", st)
}
