package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumisalon/salon-chat/internal/chat"
	"github.com/lumisalon/salon-chat/internal/common"
)

func (h *Handler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": h.ChatSvc.AvailableModels()})
}

func (h *Handler) GetActiveModel(c *gin.Context) {
	model, err := h.ChatSvc.ActiveModel(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": model})
}

type setModelReq struct {
	Model string `json:"model"`
}

func (h *Handler) SetActiveModel(c *gin.Context) {
	var req setModelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.ChatSvc.SetActiveModel(c.Request.Context(), req.Model); err != nil {
		if errors.Is(err, chat.ErrUnknownModel) {
			common.Fail(c, http.StatusBadRequest, 10003, "unknown model")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": req.Model})
}
