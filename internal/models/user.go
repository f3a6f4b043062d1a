package models

import (
	"net/http"
	"time"

	constants "SafeBuddyGuardian/pkg/constant"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// 信号名
const (
	SigUserCreate      = "user.create"
	SigIncidentCreate  = "incident.create"
	SigIncidentResolve = "incident.resolve"
)

type User struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Email       string    `json:"email" gorm:"size:128;uniqueIndex"`
	Phone       string    `json:"phone,omitempty" gorm:"size:20"`
	Password    string    `json:"-" gorm:"size:128"` // bcrypt hash
	DisplayName string    `json:"displayName" gorm:"size:64"`
	Language    string    `json:"language" gorm:"size:8"`            // en / hi，通知文案语言
	PushToken   string    `json:"pushToken,omitempty" gorm:"size:256"` // FCM 设备令牌
	Enabled     bool      `json:"enabled" gorm:"default:true"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreateUser 注册用户（密码入库前哈希）
func CreateUser(db *gorm.DB, user *User, plainPassword string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hashed)
	if user.Language == "" {
		user.Language = "en"
	}
	if err := db.Create(user).Error; err != nil {
		return err
	}
	return nil
}

// AuthenticateUser 校验邮箱密码，成功返回用户
func AuthenticateUser(db *gorm.DB, email, plainPassword string) (*User, error) {
	var user User
	if err := db.Where("email = ? AND enabled = ?", email, true).First(&user).Error; err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(plainPassword)); err != nil {
		return nil, err
	}
	return &user, nil
}

// CurrentUser 从请求上下文取当前用户（AuthRequired 之后可用）
func CurrentUser(c *gin.Context) *User {
	if v, ok := c.Get(constants.UserField); ok {
		if u, ok := v.(*User); ok {
			return u
		}
	}
	return nil
}

// AuthRequired 会话认证中间件
func AuthRequired(c *gin.Context) {
	session := sessions.Default(c)
	uid := session.Get(constants.UserIDKey)
	if uid == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	db := c.MustGet(constants.DbField).(*gorm.DB)

	var user User
	if err := db.First(&user, uid).Error; err != nil || !user.Enabled {
		session.Clear()
		_ = session.Save()
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	c.Set(constants.UserField, &user)
	c.Next()
}

// SignIn 写入会话
func SignIn(c *gin.Context, user *User) error {
	session := sessions.Default(c)
	session.Set(constants.UserIDKey, user.ID)
	return session.Save()
}

// SignOut 清除会话
func SignOut(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	return session.Save()
}
