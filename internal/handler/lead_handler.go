package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shepherd/internal/db"
	"github.com/shepherd/internal/service"
)

type leadRequest struct {
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Source        string     `json:"source"`
	Interests     []string   `json:"interests"`
	Notes         string     `json:"notes"`
	ActivityCount int        `json:"activity_count"`
	LastContactAt *time.Time `json:"last_contact_at"`
}

// CreateLead 后台录入线索。
func (a *API) CreateLead(c *gin.Context) {
	var payload leadRequest
	if !bindJSON(c, &payload, "Invalid lead payload") {
		return
	}

	lead, err := a.leads.Create(c.Request.Context(), service.LeadInput{
		FirstName:     payload.FirstName,
		LastName:      payload.LastName,
		Email:         payload.Email,
		Phone:         payload.Phone,
		Source:        payload.Source,
		Interests:     payload.Interests,
		Notes:         payload.Notes,
		ActivityCount: payload.ActivityCount,
		LastContactAt: payload.LastContactAt,
	})
	if err != nil {
		handleLeadError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"lead": leadPayload(*lead)})
}

// ListLeads 后台查看线索，按分数排序。
func (a *API) ListLeads(c *gin.Context) {
	leads, err := a.leads.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		handleLeadError(c, err)
		return
	}

	items := make([]gin.H, 0, len(leads))
	for _, lead := range leads {
		items = append(items, leadPayload(lead))
	}
	c.JSON(http.StatusOK, gin.H{"leads": items})
}

// ScoreLead 为线索打分，AI 不可用时使用启发式规则。
func (a *API) ScoreLead(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid lead id")
		return
	}

	lead, err := a.leads.Score(c.Request.Context(), id)
	if err != nil {
		handleLeadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead": leadPayload(*lead)})
}

func leadPayload(lead db.Lead) gin.H {
	return gin.H{
		"id":              lead.ID,
		"first_name":      lead.FirstName,
		"last_name":       lead.LastName,
		"email":           lead.Email,
		"phone":           lead.Phone,
		"source":          lead.Source,
		"interests":       lead.InterestTags(),
		"notes":           lead.Notes,
		"status":          lead.Status,
		"activity_count":  lead.ActivityCount,
		"last_contact_at": lead.LastContactAt,
		"score":           lead.Score,
		"score_reason":    lead.ScoreReason,
		"scored_by":       lead.ScoredBy,
		"scored_at":       lead.ScoredAt,
		"created_at":      lead.CreatedAt,
	}
}

func handleLeadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrLeadNotFound):
		respondError(c, http.StatusNotFound, "Lead not found")
	case errors.Is(err, service.ErrLeadInvalid):
		respondError(c, http.StatusBadRequest, "Lead requires a name or email")
	default:
		respondInternalError(c, err)
	}
}
