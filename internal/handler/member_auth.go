package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shepherd/internal/db"
	"github.com/shepherd/internal/service"
)

const (
	sessionAuthUserKey = "auth_user_id"
	memberContextKey   = "__member"
)

var errInvalidAccessToken = errors.New("invalid access token")

// MemberAuthRequired 解析会员身份：有 Authorization 头时校验 Bearer access token，否则读取会话。
// 没有身份返回 401；身份有效但没有会员档案返回 404。
func (a *API) MemberAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authUserID, ok := a.authUserID(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "Unauthorized")
			c.Abort()
			return
		}

		member, err := a.members.ResolveByAuthUser(c.Request.Context(), authUserID)
		if err != nil {
			if errors.Is(err, service.ErrMemberNotFound) {
				respondError(c, http.StatusNotFound, "Member not found")
			} else {
				respondInternalError(c, err)
			}
			c.Abort()
			return
		}

		c.Set(memberContextKey, member)
		c.Next()
	}
}

func (a *API) authUserID(c *gin.Context) (string, bool) {
	if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			return "", false
		}
		subject, err := a.parseAccessToken(strings.TrimSpace(token))
		if err != nil {
			return "", false
		}
		return subject, true
	}

	session := sessions.Default(c)
	if value, ok := session.Get(sessionAuthUserKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// parseAccessToken 校验 HS256 签名与有效期，返回 subject（认证用户 uuid）。
func (a *API) parseAccessToken(raw string) (string, error) {
	if raw == "" || len(a.jwtSecret) == 0 {
		return "", errInvalidAccessToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", errInvalidAccessToken
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", errInvalidAccessToken
	}
	return subject.String(), nil
}

func currentMember(c *gin.Context) *db.Member {
	if value, ok := c.Get(memberContextKey); ok {
		if member, ok := value.(*db.Member); ok {
			return member
		}
	}
	return nil
}

type memberSessionRequest struct {
	AccessToken string `json:"access_token"`
}

// CreateMemberSession 用 access token 换取会话 cookie。
func (a *API) CreateMemberSession(c *gin.Context) {
	var payload memberSessionRequest
	if !bindJSON(c, &payload, "access_token is required") {
		return
	}

	authUserID, err := a.parseAccessToken(strings.TrimSpace(payload.AccessToken))
	if err != nil {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	member, err := a.members.ResolveByAuthUser(c.Request.Context(), authUserID)
	if err != nil {
		if errors.Is(err, service.ErrMemberNotFound) {
			respondError(c, http.StatusNotFound, "Member not found")
			return
		}
		respondInternalError(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(sessionAuthUserKey, authUserID)
	if err := session.Save(); err != nil {
		respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "member": memberPayload(*member)})
}

// DeleteMemberSession 清除会员会话。
func (a *API) DeleteMemberSession(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete(sessionAuthUserKey)
	if err := session.Save(); err != nil {
		respondInternalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetMemberProfile 返回当前会员档案。
func (a *API) GetMemberProfile(c *gin.Context) {
	member := currentMember(c)
	if member == nil {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": memberPayload(*member)})
}

func memberPayload(member db.Member) gin.H {
	return gin.H{
		"id":                member.ID,
		"auth_user_id":      member.AuthUserID,
		"email":             member.Email,
		"first_name":        member.FirstName,
		"last_name":         member.LastName,
		"tier":              member.Tier,
		"devotional_opt_in": member.DevotionalOptIn,
	}
}
