package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shepherd/internal/db"
	"github.com/shepherd/internal/service"
)

type activityRequest struct {
	ActivityType string `json:"activity_type"`
}

// LogMemberActivity 记录一次会员活动并返回本次获得的积分。
func (a *API) LogMemberActivity(c *gin.Context) {
	member := currentMember(c)
	if member == nil {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload activityRequest
	if !bindJSON(c, &payload, "activity_type is required") {
		return
	}

	result, err := a.engagement.LogActivity(c.Request.Context(), member.ID, payload.ActivityType)
	if err != nil {
		handleEngagementError(c, err)
		return
	}

	unlocked := make([]gin.H, 0, len(result.Unlocked))
	for _, achievement := range result.Unlocked {
		unlocked = append(unlocked, achievementPayload(achievement))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":               true,
		"points_earned":         result.PointsEarned,
		"activity_count":        result.ActivityCount,
		"unlocked_achievements": unlocked,
	})
}

// GetMemberActivity 返回 streak 快照与最近 30 天的活动。
func (a *API) GetMemberActivity(c *gin.Context) {
	member := currentMember(c)
	if member == nil {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	stats, err := a.engagement.GetStats(c.Request.Context(), member.ID)
	if err != nil {
		handleEngagementError(c, err)
		return
	}

	recent := make([]gin.H, 0, len(stats.RecentActivity))
	for _, log := range stats.RecentActivity {
		recent = append(recent, activityLogPayload(log))
	}

	c.JSON(http.StatusOK, gin.H{
		"streak":          streakPayload(stats.Streak),
		"recent_activity": recent,
	})
}

func streakPayload(streak db.EngagementStreak) gin.H {
	return gin.H{
		"current_streak":     streak.CurrentStreak,
		"longest_streak":     streak.LongestStreak,
		"engagement_score":   streak.EngagementScore,
		"total_days_active":  streak.TotalDaysActive,
		"devotionals_read":   streak.DevotionalsRead,
		"prayers_submitted":  streak.PrayersSubmitted,
		"prayers_prayed_for": streak.PrayersPrayedFor,
		"content_viewed":     streak.ContentViewed,
		"events_attended":    streak.EventsAttended,
		"donations_made":     streak.DonationsMade,
		"last_activity_date": nullableString(streak.LastActivityDate),
	}
}

func activityLogPayload(log db.DailyActivityLog) gin.H {
	return gin.H{
		"activity_date":  log.ActivityDate,
		"activity_type":  log.ActivityType,
		"activity_count": log.ActivityCount,
		"points_earned":  log.PointsEarned,
	}
}

func nullableString(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func handleEngagementError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidActivityType):
		respondError(c, http.StatusBadRequest, "Invalid activity type")
	case errors.Is(err, service.ErrMemberNotFound):
		respondError(c, http.StatusNotFound, "Member not found")
	default:
		respondInternalError(c, err)
	}
}
