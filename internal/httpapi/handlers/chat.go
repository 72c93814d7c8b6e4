package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lumisalon/salon-chat/internal/chat"
	"github.com/lumisalon/salon-chat/internal/common"
)

type sendChatReq struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Model     string `json:"model"`
}

type turnDTO struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SendChat handles POST /chat. Whatever happens to the dependencies
// downstream, a non-blank message gets a 200 with a reply.
func (h *Handler) SendChat(c *gin.Context) {
	var req sendChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	res, err := h.ChatSvc.SendMessage(c.Request.Context(), req.SessionID, req.Message, req.Model)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			common.Fail(c, http.StatusBadRequest, 10002, "message is required")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":    res.SessionID,
		"message":      res.Reply,
		"isNewSession": res.IsNewSession,
	})
}

// GetHistory handles GET /chat/:session_id.
func (h *Handler) GetHistory(c *gin.Context) {
	sessionID := c.Param("session_id")

	msgs, err := h.ChatSvc.History(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	turns := make([]turnDTO, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, turnDTO{Role: m.Role, Content: m.Content, Timestamp: m.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"messages":  turns,
	})
}

// ClearSession handles DELETE /chat/:session_id. 200 regardless of
// whether the session ever existed.
func (h *Handler) ClearSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	if err := h.ChatSvc.Clear(c.Request.Context(), sessionID); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to clear session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "cleared": true})
}
