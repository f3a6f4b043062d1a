package handlers

import (
	"errors"
	"net/http"

	"SafeBuddyGuardian/internal/falldetect"
	"SafeBuddyGuardian/internal/models"
	"SafeBuddyGuardian/pkg/response"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) handleFallEnable(c *gin.Context) {
	user := models.CurrentUser(c)
	m := h.monitors.Enable(user.ID)
	response.Success(c, "fall monitoring enabled", gin.H{"state": m.State().String()})
}

func (h *Handlers) handleFallDisable(c *gin.Context) {
	user := models.CurrentUser(c)
	h.monitors.Disable(user.ID)
	response.Success(c, "fall monitoring disabled", nil)
}

type fallConfirmForm struct {
	Text string `json:"text"` // 语音转写，可空（按钮确认）
}

// handleFallConfirm "我没事"确认：按钮或语音关键词
func (h *Handlers) handleFallConfirm(c *gin.Context) {
	var form fallConfirmForm
	_ = c.ShouldBindJSON(&form)

	user := models.CurrentUser(c)
	m := h.monitors.Get(user.ID)
	if m == nil {
		response.FailWithStatus(c, http.StatusNotFound, "fall monitoring is not enabled", nil)
		return
	}

	var err error
	if form.Text != "" {
		err = m.ConfirmVoice(form.Text)
	} else {
		err = m.Confirm()
	}
	if err != nil {
		if errors.Is(err, falldetect.ErrNotMonitoring) {
			response.FailWithStatus(c, http.StatusNotFound, "fall monitoring is not enabled", nil)
			return
		}
		response.FailWithStatus(c, http.StatusConflict, "no fall confirmation pending", nil)
		return
	}
	response.Success(c, "fall dismissed", nil)
}

func (h *Handlers) handleFallStatus(c *gin.Context) {
	user := models.CurrentUser(c)
	m := h.monitors.Get(user.ID)
	if m == nil {
		response.Success(c, "ok", gin.H{"state": falldetect.StateIdle.String()})
		return
	}
	response.Success(c, "ok", gin.H{
		"state":   m.State().String(),
		"pending": m.Pending(),
	})
}
