package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/usecase"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
)

const (
	internalServerErrorText = "the server encountered an error and could not process your request"
	unavailableText         = "the tile tree is not running"
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type Handler struct {
	validate         *validator.Validate
	tileTreeUseCase  *usecase.TileTreeUseCase
	tileCacheUseCase *usecase.TileCacheUseCase
}

func NewHandler(v *validator.Validate, tree *usecase.TileTreeUseCase, tiles *usecase.TileCacheUseCase) *Handler {
	return &Handler{
		validate:         v,
		tileTreeUseCase:  tree,
		tileCacheUseCase: tiles,
	}
}

func (h *Handler) RespondWithInternalServerError(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusInternalServerError, internalServerErrorText, nil)
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	success := code < 400

	r := response{
		Success: success,
		Message: message,
		Data:    data,
	}

	c.JSON(code, r)
}

// onLoop runs fn on the frame loop with the request's context.
func (h *Handler) onLoop(c *gin.Context, fn func()) bool {
	err := h.tileTreeUseCase.Do(c.Request.Context(), fn)
	switch {
	case err == nil:
		return true
	case errors.Is(err, usecase.ErrStopped):
		h.RespondWithJSON(c, http.StatusServiceUnavailable, unavailableText, nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.RespondWithJSON(c, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		requestLogger(c).Error("frame loop call failed", "error", err)
		h.RespondWithInternalServerError(c)
	}
	return false
}

func requestLogger(c *gin.Context) logger.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(logger.Logger); ok {
			return l
		}
	}
	return logger.NewNop()
}
