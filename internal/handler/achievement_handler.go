package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shepherd/internal/db"
	"github.com/shepherd/internal/service"
)

// GetNextAchievement 返回下一个待庆祝的成就，没有时为 null。
func (a *API) GetNextAchievement(c *gin.Context) {
	member := currentMember(c)
	if member == nil {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	next, err := a.achievements.NextUncelebrated(c.Request.Context(), member.ID)
	if err != nil {
		handleAchievementError(c, err)
		return
	}
	if next == nil {
		c.JSON(http.StatusOK, gin.H{"achievement": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"achievement": memberAchievementPayload(*next)})
}

// CelebrateAchievement 标记成就已庆祝。
func (a *API) CelebrateAchievement(c *gin.Context) {
	member := currentMember(c)
	if member == nil {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid achievement id")
		return
	}

	if err := a.achievements.Celebrate(c.Request.Context(), member.ID, id); err != nil {
		handleAchievementError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListMemberAchievements 返回会员全部已解锁成就。
func (a *API) ListMemberAchievements(c *gin.Context) {
	member := currentMember(c)
	if member == nil {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	rows, err := a.achievements.Unlocked(c.Request.Context(), member.ID)
	if err != nil {
		handleAchievementError(c, err)
		return
	}

	items := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		items = append(items, memberAchievementPayload(row))
	}
	c.JSON(http.StatusOK, gin.H{"achievements": items})
}

type achievementRequest struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Metric      string `json:"metric"`
	Threshold   int    `json:"threshold"`
}

// CreateAchievement 后台新建成就定义。
func (a *API) CreateAchievement(c *gin.Context) {
	var payload achievementRequest
	if !bindJSON(c, &payload, "Invalid achievement payload") {
		return
	}

	achievement, err := a.achievements.Create(c.Request.Context(), service.AchievementInput{
		Key:         payload.Key,
		Name:        payload.Name,
		Description: payload.Description,
		Icon:        payload.Icon,
		Metric:      payload.Metric,
		Threshold:   payload.Threshold,
	})
	if err != nil {
		handleAchievementError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"achievement": achievementPayload(*achievement)})
}

// ListAchievements 后台查看全部成就定义。
func (a *API) ListAchievements(c *gin.Context) {
	achievements, err := a.achievements.List(c.Request.Context())
	if err != nil {
		handleAchievementError(c, err)
		return
	}

	items := make([]gin.H, 0, len(achievements))
	for _, achievement := range achievements {
		items = append(items, achievementPayload(achievement))
	}
	c.JSON(http.StatusOK, gin.H{"achievements": items})
}

func achievementPayload(achievement db.Achievement) gin.H {
	return gin.H{
		"id":          achievement.ID,
		"key":         achievement.Key,
		"name":        achievement.Name,
		"description": achievement.Description,
		"icon":        achievement.Icon,
		"metric":      achievement.Metric,
		"threshold":   achievement.Threshold,
	}
}

func memberAchievementPayload(row db.MemberAchievement) gin.H {
	return gin.H{
		"id":            row.ID,
		"achievement":   achievementPayload(row.Achievement),
		"unlocked_at":   row.UnlockedAt,
		"celebrated":    row.Celebrated,
		"celebrated_at": row.CelebratedAt,
	}
}

func handleAchievementError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAchievementNotFound):
		respondError(c, http.StatusNotFound, "Achievement not found")
	case errors.Is(err, service.ErrAchievementInvalid):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAchievementDuplicate):
		respondError(c, http.StatusConflict, "Achievement key already exists")
	default:
		respondInternalError(c, err)
	}
}
