package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/infrastructure/http/v1/dto"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/usecase"
)

var contentTypes = map[string]string{
	"png":     "image/png",
	"jpg":     "image/jpeg",
	"jpeg":    "image/jpeg",
	"webp":    "image/webp",
	"geojson": "application/geo+json",
	"json":    "application/json",
	"mvt":     "application/vnd.mapbox-vector-tile",
	"pbf":     "application/x-protobuf",
	"f32":     "application/octet-stream",
}

// Tile serves the raw payload of one source tile through the payload cache.
func (h *Handler) Tile(c *gin.Context) {
	l := requestLogger(c)

	var req dto.TileRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, "z, x and y should be integers", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if n := 1 << req.Z; req.X >= n || req.Y >= n {
		h.RespondWithJSON(c, http.StatusBadRequest, "x and y should be below 2^z", nil)
		return
	}

	data, format, err := h.tileCacheUseCase.GetTile(c.Request.Context(), req.Source, req.Z, req.X, req.Y)
	switch {
	case err == nil:
	case errors.Is(err, usecase.ErrSourceNotFound), errors.Is(err, domain.ErrOutOfRange):
		h.RespondWithJSON(c, http.StatusNotFound, err.Error(), nil)
		return
	case errors.Is(err, domain.ErrTransientFetch):
		h.RespondWithJSON(c, http.StatusBadGateway, err.Error(), nil)
		return
	default:
		l.Error("tile lookup failed", "source", req.Source, "z", req.Z, "x", req.X, "y", req.Y, "error", err)
		h.RespondWithInternalServerError(c)
		return
	}

	contentType, ok := contentTypes[format]
	if !ok {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}
