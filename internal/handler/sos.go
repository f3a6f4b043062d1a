package handlers

import (
	"errors"
	"net/http"
	"time"

	"SafeBuddyGuardian/internal/models"
	"SafeBuddyGuardian/internal/sos"
	"SafeBuddyGuardian/pkg/middleware"
	"SafeBuddyGuardian/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

type activateForm struct {
	TriggerMethod string   `json:"triggerMethod"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Accuracy      float64  `json:"accuracy"`
	Address       string   `json:"address"`
	BatteryLevel  *int     `json:"batteryLevel"`
}

type locationForm struct {
	Latitude     float64 `json:"latitude" binding:"required"`
	Longitude    float64 `json:"longitude" binding:"required"`
	Accuracy     float64 `json:"accuracy"`
	BatteryLevel *int    `json:"batteryLevel"`
}

type patchIncidentForm struct {
	Status       string   `json:"status"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Accuracy     float64  `json:"accuracy"`
	BatteryLevel *int     `json:"batteryLevel"`
}

// failSOSError 把编排器错误映射到 HTTP 状态
func failSOSError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sos.ErrAlreadyActive):
		response.FailWithStatus(c, http.StatusConflict, "an SOS incident is already active", nil)
	case errors.Is(err, sos.ErrNotActive):
		response.FailWithStatus(c, http.StatusNotFound, "no active SOS incident", nil)
	case errors.Is(err, sos.ErrLocationUnavailable):
		response.FailWithStatus(c, http.StatusUnprocessableEntity, "location unavailable", nil)
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.FailWithStatus(c, http.StatusNotFound, "incident not found", nil)
	default:
		response.FailWithStatus(c, http.StatusInternalServerError, "internal error", nil)
	}
}

type sessionView struct {
	Incident *models.SOSIncident   `json:"incident"`
	Outcome  map[string]sos.Status `json:"outcome"`
}

func (h *Handlers) handleCreateIncident(c *gin.Context) {
	var form activateForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	user := models.CurrentUser(c)

	req := sos.ActivateRequest{
		Trigger:        form.TriggerMethod,
		Address:        form.Address,
		DevicePlatform: middleware.DeviceDescription(c),
	}
	if form.Latitude != nil && form.Longitude != nil {
		req.Position = &sos.Position{
			Latitude:  *form.Latitude,
			Longitude: *form.Longitude,
			Accuracy:  form.Accuracy,
			Battery:   form.BatteryLevel,
		}
	}

	session, err := h.manager.Activate(c.Request.Context(), user, req)
	if err != nil {
		failSOSError(c, err)
		return
	}
	response.Created(c, "SOS activated", sessionView{
		Incident: session.Incident(),
		Outcome:  session.Outcome(),
	})
}

func (h *Handlers) handleGetActiveIncident(c *gin.Context) {
	user := models.CurrentUser(c)
	session, err := h.manager.Active(c.Request.Context(), user)
	if err != nil {
		failSOSError(c, err)
		return
	}
	if session == nil {
		response.Success(c, "no active incident", nil)
		return
	}
	response.Success(c, "ok", sessionView{
		Incident: session.Incident(),
		Outcome:  session.Outcome(),
	})
}

func (h *Handlers) handleGetIncident(c *gin.Context) {
	user := models.CurrentUser(c)
	incident, err := models.GetIncident(h.db, user.ID, cast.ToUint(c.Param("id")))
	if err != nil {
		failSOSError(c, err)
		return
	}
	response.Success(c, "ok", incident)
}

func (h *Handlers) handleUpdateIncident(c *gin.Context) {
	var form patchIncidentForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	user := models.CurrentUser(c)
	id := cast.ToUint(c.Param("id"))

	incident, err := models.GetIncident(h.db, user.ID, id)
	if err != nil {
		failSOSError(c, err)
		return
	}

	if form.Latitude != nil && form.Longitude != nil {
		_, err := h.manager.AppendLocation(c.Request.Context(), user, id, sos.Position{
			Latitude:  *form.Latitude,
			Longitude: *form.Longitude,
			Accuracy:  form.Accuracy,
			Battery:   form.BatteryLevel,
		})
		if err != nil {
			failSOSError(c, err)
			return
		}
	}
	if form.Status == models.IncidentResolved {
		if err := h.manager.Deactivate(c.Request.Context(), user.ID); err != nil {
			failSOSError(c, err)
			return
		}
	}

	incident, err = models.GetIncident(h.db, user.ID, incident.ID)
	if err != nil {
		failSOSError(c, err)
		return
	}
	response.Success(c, "updated", incident)
}

func (h *Handlers) handleAppendLocation(c *gin.Context) {
	var form locationForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	user := models.CurrentUser(c)
	sample, err := h.manager.AppendLocation(c.Request.Context(), user, cast.ToUint(c.Param("id")), sos.Position{
		Latitude:  form.Latitude,
		Longitude: form.Longitude,
		Accuracy:  form.Accuracy,
		Battery:   form.BatteryLevel,
		At:        time.Now(),
	})
	if err != nil {
		failSOSError(c, err)
		return
	}
	response.Created(c, "location recorded", sample)
}

func (h *Handlers) handleListLocations(c *gin.Context) {
	user := models.CurrentUser(c)
	incident, err := models.GetIncident(h.db, user.ID, cast.ToUint(c.Param("id")))
	if err != nil {
		failSOSError(c, err)
		return
	}
	samples, err := models.ListLocations(h.db, incident.ID)
	if err != nil {
		failSOSError(c, err)
		return
	}
	response.Success(c, "ok", samples)
}

func (h *Handlers) handleNotifyGuardians(c *gin.Context) {
	user := models.CurrentUser(c)
	report, err := h.manager.NotifyNow(c.Request.Context(), user)
	if err != nil {
		failSOSError(c, err)
		return
	}
	// WhatsApp 深链推回设备，一键打开预填消息
	if h.gateway != nil {
		for _, r := range report.Results {
			if r.Link != "" {
				_ = h.gateway.OpenDeepLink(user.ID, r.Link)
				break
			}
		}
	}
	response.Success(c, "notifications dispatched", report)
}

type callForm struct {
	PhoneNumbers []string `json:"phoneNumbers"`
}

func (h *Handlers) handleCallEmergency(c *gin.Context) {
	var form callForm
	// body 可为空，空时走配置的升级序列
	_ = c.ShouldBindJSON(&form)
	user := models.CurrentUser(c)
	receipts, err := h.manager.CallEmergency(c.Request.Context(), user, form.PhoneNumbers)
	if err != nil {
		failSOSError(c, err)
		return
	}
	response.Success(c, "emergency calls queued", receipts)
}

// handleIncidentStream 监护端看板的 SSE 订阅
func (h *Handlers) handleIncidentStream(c *gin.Context) {
	user := models.CurrentUser(c)
	incident, err := models.GetIncident(h.db, user.ID, cast.ToUint(c.Param("id")))
	if err != nil {
		failSOSError(c, err)
		return
	}
	h.events.Serve(c, uuid.NewString(), incident.Reference)
}
