package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shepherd/internal/db"
	"github.com/shepherd/internal/service"
)

type signupRequest struct {
	ShiftID uint   `json:"shift_id"`
	Notes   string `json:"notes"`
}

// CreateVolunteerSignup 为当前会员报名志愿时段。
func (a *API) CreateVolunteerSignup(c *gin.Context) {
	member := currentMember(c)
	if member == nil {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload signupRequest
	if !bindJSON(c, &payload, "shift_id is required") {
		return
	}

	signup, err := a.volunteers.Signup(c.Request.Context(), member.ID, service.SignupInput{
		ShiftID: payload.ShiftID,
		Notes:   payload.Notes,
	})
	if err != nil {
		handleVolunteerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "signup": signupPayload(*signup)})
}

// CancelVolunteerSignup 取消报名，id 通过 query 传入。
func (a *API) CancelVolunteerSignup(c *gin.Context) {
	member := currentMember(c)
	if member == nil {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, ok := parseUintQuery(c, "id")
	if !ok {
		respondError(c, http.StatusBadRequest, "Signup id is required")
		return
	}

	if _, err := a.volunteers.Cancel(c.Request.Context(), member.ID, id); err != nil {
		handleVolunteerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListVolunteerSignups 返回会员的报名与合计小时数。
func (a *API) ListVolunteerSignups(c *gin.Context) {
	member := currentMember(c)
	if member == nil {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	list, err := a.volunteers.List(c.Request.Context(), member.ID, service.SignupFilter{
		Status:   c.Query("status"),
		Upcoming: parseBoolQuery(c, "upcoming"),
	})
	if err != nil {
		handleVolunteerError(c, err)
		return
	}

	items := make([]gin.H, 0, len(list.Signups))
	for _, signup := range list.Signups {
		items = append(items, signupPayload(signup))
	}
	c.JSON(http.StatusOK, gin.H{"signups": items, "totalHours": list.TotalHours})
}

// ListUpcomingShifts 返回尚未开始的志愿时段及剩余名额。
func (a *API) ListUpcomingShifts(c *gin.Context) {
	shifts, err := a.volunteers.ListShifts(c.Request.Context(), true)
	if err != nil {
		handleVolunteerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shifts": shiftsPayload(shifts)})
}

type shiftRequest struct {
	Title          string    `json:"title"`
	Ministry       string    `json:"ministry"`
	Location       string    `json:"location"`
	Description    string    `json:"description"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	SlotsAvailable int       `json:"slots_available"`
}

// CreateShift 后台新建志愿时段。
func (a *API) CreateShift(c *gin.Context) {
	var payload shiftRequest
	if !bindJSON(c, &payload, "Invalid shift payload") {
		return
	}

	shift, err := a.volunteers.CreateShift(c.Request.Context(), service.ShiftInput{
		Title:          payload.Title,
		Ministry:       payload.Ministry,
		Location:       payload.Location,
		Description:    payload.Description,
		StartsAt:       payload.StartsAt,
		EndsAt:         payload.EndsAt,
		SlotsAvailable: payload.SlotsAvailable,
	})
	if err != nil {
		handleVolunteerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"shift": shiftPayload(*shift)})
}

// ListShifts 后台查看时段，upcoming=true 时只看未开始的。
func (a *API) ListShifts(c *gin.Context) {
	shifts, err := a.volunteers.ListShifts(c.Request.Context(), parseBoolQuery(c, "upcoming"))
	if err != nil {
		handleVolunteerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shifts": shiftsPayload(shifts)})
}

func shiftsPayload(shifts []db.VolunteerShift) []gin.H {
	items := make([]gin.H, 0, len(shifts))
	for _, shift := range shifts {
		items = append(items, shiftPayload(shift))
	}
	return items
}

func shiftPayload(shift db.VolunteerShift) gin.H {
	return gin.H{
		"id":              shift.ID,
		"title":           shift.Title,
		"ministry":        shift.Ministry,
		"location":        shift.Location,
		"description":     shift.Description,
		"starts_at":       shift.StartsAt,
		"ends_at":         shift.EndsAt,
		"hours":           shift.Hours(),
		"slots_available": shift.SlotsAvailable,
		"slots_filled":    shift.SlotsFilled,
		"slots_remaining": shift.RemainingSlots(),
	}
}

func signupPayload(signup db.VolunteerSignup) gin.H {
	payload := gin.H{
		"id":           signup.ID,
		"shift_id":     signup.ShiftID,
		"status":       signup.Status,
		"notes":        signup.Notes,
		"created_at":   signup.CreatedAt,
		"cancelled_at": signup.CancelledAt,
	}
	if signup.Shift.ID != 0 {
		payload["shift"] = shiftPayload(signup.Shift)
	}
	return payload
}

func handleVolunteerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrShiftRequired):
		respondError(c, http.StatusBadRequest, "shift_id is required")
	case errors.Is(err, service.ErrShiftNotFound):
		respondError(c, http.StatusNotFound, "Shift not found")
	case errors.Is(err, service.ErrShiftStarted):
		respondError(c, http.StatusBadRequest, "Shift has already started")
	case errors.Is(err, service.ErrNoAvailableSlots):
		respondError(c, http.StatusBadRequest, "No available slots")
	case errors.Is(err, service.ErrAlreadySignedUp):
		respondError(c, http.StatusBadRequest, "Already signed up for this shift")
	case errors.Is(err, service.ErrSignupNotFound):
		respondError(c, http.StatusNotFound, "Signup not found")
	case errors.Is(err, service.ErrShiftInvalid):
		respondError(c, http.StatusBadRequest, strings.TrimPrefix(err.Error(), service.ErrShiftInvalid.Error()+": "))
	default:
		respondInternalError(c, err)
	}
}
