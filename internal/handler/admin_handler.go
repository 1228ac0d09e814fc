package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/shepherd/internal/db"
	"gorm.io/gorm"
)

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AdminLogin 校验管理员账号并写入会话。
func (a *API) AdminLogin(c *gin.Context) {
	var payload adminLoginRequest
	if !bindJSON(c, &payload, "Username and password are required") {
		return
	}

	username := strings.TrimSpace(payload.Username)
	if username == "" || payload.Password == "" {
		respondError(c, http.StatusBadRequest, "Username and password are required")
		return
	}

	// 查找用户
	var user db.User
	if err := a.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		respondInternalError(c, err)
		return
	}

	// 验证密码
	if !user.CheckPassword(payload.Password) {
		respondError(c, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	// 设置会话
	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	session.Set("username", user.Username)
	if err := session.Save(); err != nil {
		respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "username": user.Username})
}

// AdminLogout 处理管理员登出
func (a *API) AdminLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete("user_id")
	session.Delete("username")
	if err := session.Save(); err != nil {
		respondInternalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AuthRequired 是后台接口的认证中间件
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if session.Get("user_id") == nil {
			respondError(c, http.StatusUnauthorized, "Unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}
