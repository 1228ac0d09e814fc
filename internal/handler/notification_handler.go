package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shepherd/internal/notify"
	"github.com/shepherd/internal/service"
)

// RunNotificationJob 后台手动触发通知任务，与 cmd/jobs 的子命令一致。
func (a *API) RunNotificationJob(c *gin.Context) {
	if !a.hasDispatcher {
		respondError(c, http.StatusServiceUnavailable, "Notification delivery is not configured")
		return
	}

	var (
		report notify.Report
		err    error
	)
	switch c.Param("name") {
	case "streak-warnings":
		report, err = a.jobs.SendStreakWarnings(c.Request.Context())
	case "daily-devotional":
		report, err = a.jobs.SendDailyDevotional(c.Request.Context())
	default:
		respondError(c, http.StatusNotFound, "Unknown job")
		return
	}
	if err != nil {
		if errors.Is(err, service.ErrNoDevotionalToday) {
			respondError(c, http.StatusNotFound, "No devotional published for today")
			return
		}
		respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":   report.Total,
		"sent":    report.Sent,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	})
}

type devotionalRequest struct {
	PublishDate string `json:"publish_date"`
	Title       string `json:"title"`
	Scripture   string `json:"scripture"`
	Body        string `json:"body"`
}

// PublishDevotional 后台发布（或覆盖）某天的灵修内容。
func (a *API) PublishDevotional(c *gin.Context) {
	var payload devotionalRequest
	if !bindJSON(c, &payload, "Invalid devotional payload") {
		return
	}

	devotional, err := a.jobs.PublishDevotional(c.Request.Context(), service.DevotionalInput{
		PublishDate: payload.PublishDate,
		Title:       payload.Title,
		Scripture:   payload.Scripture,
		Body:        payload.Body,
	})
	if err != nil {
		if errors.Is(err, service.ErrDevotionalInvalid) {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"devotional": gin.H{
		"id":           devotional.ID,
		"publish_date": devotional.PublishDate,
		"title":        devotional.Title,
		"scripture":    devotional.Scripture,
		"body":         devotional.Body,
	}})
}
