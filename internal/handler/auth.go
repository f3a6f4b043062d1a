package handlers

import (
	"SafeBuddyGuardian/internal/models"
	"SafeBuddyGuardian/pkg/logger"
	"SafeBuddyGuardian/pkg/middleware"
	"SafeBuddyGuardian/pkg/response"
	"SafeBuddyGuardian/pkg/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type signupForm struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	Phone       string `json:"phone"`
	DisplayName string `json:"displayName" binding:"required"`
	Language    string `json:"language"`
	PushToken   string `json:"pushToken"`
}

type signinForm struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handlers) handleUserSignup(c *gin.Context) {
	var form signupForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	lang := form.Language
	if lang == "" {
		lang = middleware.RequestLanguage(c)
	}
	user := &models.User{
		Email:       form.Email,
		Phone:       form.Phone,
		DisplayName: form.DisplayName,
		Language:    lang,
		PushToken:   form.PushToken,
		Enabled:     true,
	}
	if err := models.CreateUser(h.db, user, form.Password); err != nil {
		logger.Warn("user signup failed", zap.String("email", form.Email), zap.Error(err))
		response.Fail(c, "signup failed", nil)
		return
	}
	util.Sig().Emit(models.SigUserCreate, user)
	if err := models.SignIn(c, user); err != nil {
		response.Fail(c, "session error", nil)
		return
	}
	response.Created(c, "registered", user)
}

func (h *Handlers) handleUserSignin(c *gin.Context) {
	var form signinForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	user, err := models.AuthenticateUser(h.db, form.Email, form.Password)
	if err != nil {
		response.FailWithStatus(c, 401, "invalid credentials", nil)
		return
	}
	if err := models.SignIn(c, user); err != nil {
		response.Fail(c, "session error", nil)
		return
	}
	response.Success(c, "signed in", user)
}

func (h *Handlers) handleUserLogout(c *gin.Context) {
	if err := models.SignOut(c); err != nil {
		response.Fail(c, "session error", nil)
		return
	}
	response.Success(c, "signed out", nil)
}

func (h *Handlers) handleUserInfo(c *gin.Context) {
	response.Success(c, "ok", models.CurrentUser(c))
}
