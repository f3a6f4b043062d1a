package handlers

import (
	"errors"
	"net/http"

	"SafeBuddyGuardian/internal/models"
	"SafeBuddyGuardian/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

type guardianForm struct {
	Name         string `json:"name" binding:"required"`
	Phone        string `json:"phone" binding:"required"`
	Email        string `json:"email"`
	Relationship string `json:"relationship"`
	PushToken    string `json:"pushToken"`
	IsPrimary    bool   `json:"isPrimary"`
}

func (h *Handlers) handleListGuardians(c *gin.Context) {
	user := models.CurrentUser(c)
	guardians, err := models.ListGuardians(h.db, user.ID)
	if err != nil {
		response.Fail(c, "query failed", nil)
		return
	}
	response.Success(c, "ok", guardians)
}

func (h *Handlers) handleCreateGuardian(c *gin.Context) {
	var form guardianForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	user := models.CurrentUser(c)
	g := &models.GuardianContact{
		UserID:       user.ID,
		Name:         form.Name,
		Phone:        form.Phone,
		Email:        form.Email,
		Relationship: form.Relationship,
		PushToken:    form.PushToken,
		IsPrimary:    form.IsPrimary,
	}
	if err := models.CreateGuardian(h.db, g); err != nil {
		response.Fail(c, "create failed", nil)
		return
	}
	response.Created(c, "guardian added", g)
}

type guardianPatch struct {
	Name         *string `json:"name"`
	Phone        *string `json:"phone"`
	Email        *string `json:"email"`
	Relationship *string `json:"relationship"`
	PushToken    *string `json:"pushToken"`
	IsPrimary    *bool   `json:"isPrimary"`
}

func (p guardianPatch) columns() map[string]interface{} {
	updates := map[string]interface{}{}
	if p.Name != nil {
		updates["name"] = *p.Name
	}
	if p.Phone != nil {
		updates["phone"] = *p.Phone
	}
	if p.Email != nil {
		updates["email"] = *p.Email
	}
	if p.Relationship != nil {
		updates["relationship"] = *p.Relationship
	}
	if p.PushToken != nil {
		updates["push_token"] = *p.PushToken
	}
	if p.IsPrimary != nil {
		updates["is_primary"] = *p.IsPrimary
	}
	return updates
}

func (h *Handlers) handleUpdateGuardian(c *gin.Context) {
	var patch guardianPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	updates := patch.columns()
	if len(updates) == 0 {
		response.Fail(c, "nothing to update", nil)
		return
	}
	user := models.CurrentUser(c)
	err := models.UpdateGuardian(h.db, user.ID, cast.ToUint(c.Param("id")), updates)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.FailWithStatus(c, http.StatusNotFound, "guardian not found", nil)
			return
		}
		response.Fail(c, "update failed", nil)
		return
	}
	response.Success(c, "guardian updated", nil)
}

func (h *Handlers) handleDeleteGuardian(c *gin.Context) {
	user := models.CurrentUser(c)
	err := models.DeleteGuardian(h.db, user.ID, cast.ToUint(c.Param("id")))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.FailWithStatus(c, http.StatusNotFound, "guardian not found", nil)
			return
		}
		response.Fail(c, "delete failed", nil)
		return
	}
	response.Success(c, "guardian removed", nil)
}
