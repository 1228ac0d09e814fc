package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/shepherd/internal/db"
)

func TestCreateVolunteerSignupFillsSlots(t *testing.T) {
	api, gdb, cleanup := setupTestDB(t)
	defer cleanup()
	r := newTestEngine(api)
	shift := createTestShift(t, gdb, 1)
	first := createTestMember(t, gdb, "Ada")
	second := createTestMember(t, gdb, "Grace")

	w := serve(r, memberRequest(t, first, http.MethodPost, "/api/volunteer/signup", map[string]interface{}{
		"shift_id": shift.ID,
		"notes":    "<b>happy</b> to help",
	}))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	signup := body["signup"].(map[string]interface{})
	if signup["notes"] != "happy to help" {
		t.Fatalf("expected sanitized notes, got %v", signup["notes"])
	}

	dup := serve(r, memberRequest(t, first, http.MethodPost, "/api/volunteer/signup", map[string]interface{}{"shift_id": shift.ID}))
	if dup.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate signup, got %d", dup.Code)
	}

	full := serve(r, memberRequest(t, second, http.MethodPost, "/api/volunteer/signup", map[string]interface{}{"shift_id": shift.ID}))
	if full.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when full, got %d", full.Code)
	}
	if msg := decodeBody(t, full)["error"]; msg != "No available slots" {
		t.Fatalf("unexpected error message: %v", msg)
	}

	var stored db.VolunteerShift
	gdb.First(&stored, shift.ID)
	if stored.SlotsFilled != 1 {
		t.Fatalf("expected slots_filled 1, got %d", stored.SlotsFilled)
	}
}

func TestCreateVolunteerSignupValidation(t *testing.T) {
	api, gdb, cleanup := setupTestDB(t)
	defer cleanup()
	r := newTestEngine(api)
	member := createTestMember(t, gdb, "Ada")

	started := db.VolunteerShift{
		Title:          "Early",
		StartsAt:       testNow.Add(-time.Minute),
		EndsAt:         testNow.Add(time.Hour),
		SlotsAvailable: 5,
	}
	gdb.Create(&started)

	tests := []struct {
		name    string
		payload map[string]interface{}
		status  int
	}{
		{name: "missing shift", payload: map[string]interface{}{}, status: http.StatusBadRequest},
		{name: "unknown shift", payload: map[string]interface{}{"shift_id": 9999}, status: http.StatusNotFound},
		{name: "already started", payload: map[string]interface{}{"shift_id": started.ID}, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, memberRequest(t, member, http.MethodPost, "/api/volunteer/signup", tt.payload))
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestCancelVolunteerSignupReleasesSlot(t *testing.T) {
	api, gdb, cleanup := setupTestDB(t)
	defer cleanup()
	r := newTestEngine(api)
	shift := createTestShift(t, gdb, 2)
	member := createTestMember(t, gdb, "Ada")
	other := createTestMember(t, gdb, "Eve")

	created := serve(r, memberRequest(t, member, http.MethodPost, "/api/volunteer/signup", map[string]interface{}{"shift_id": shift.ID}))
	id := uint(decodeBody(t, created)["signup"].(map[string]interface{})["id"].(float64))

	if w := serve(r, memberRequest(t, member, http.MethodDelete, "/api/volunteer/signup", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without id, got %d", w.Code)
	}
	if w := serve(r, memberRequest(t, other, http.MethodDelete, "/api/volunteer/signup?id="+uintString(id), nil)); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another member, got %d", w.Code)
	}

	for i := 0; i < 2; i++ {
		w := serve(r, memberRequest(t, member, http.MethodDelete, "/api/volunteer/signup?id="+uintString(id), nil))
		if w.Code != http.StatusOK {
			t.Fatalf("cancel %d: expected 200, got %d", i, w.Code)
		}
	}

	var stored db.VolunteerShift
	gdb.First(&stored, shift.ID)
	if stored.SlotsFilled != 0 {
		t.Fatalf("expected slots_filled 0, got %d", stored.SlotsFilled)
	}
}

func TestListVolunteerSignupsTotalsHours(t *testing.T) {
	api, gdb, cleanup := setupTestDB(t)
	defer cleanup()
	r := newTestEngine(api)
	member := createTestMember(t, gdb, "Ada")
	kept := createTestShift(t, gdb, 3)
	dropped := createTestShift(t, gdb, 3)

	serve(r, memberRequest(t, member, http.MethodPost, "/api/volunteer/signup", map[string]interface{}{"shift_id": kept.ID}))
	created := serve(r, memberRequest(t, member, http.MethodPost, "/api/volunteer/signup", map[string]interface{}{"shift_id": dropped.ID}))
	droppedID := uint(decodeBody(t, created)["signup"].(map[string]interface{})["id"].(float64))
	serve(r, memberRequest(t, member, http.MethodDelete, "/api/volunteer/signup?id="+uintString(droppedID), nil))

	w := serve(r, memberRequest(t, member, http.MethodGet, "/api/volunteer/signup", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if signups := body["signups"].([]interface{}); len(signups) != 2 {
		t.Fatalf("expected 2 signups, got %d", len(signups))
	}
	if body["totalHours"] != float64(2) {
		t.Fatalf("expected totalHours 2, got %v", body["totalHours"])
	}

	confirmed := serve(r, memberRequest(t, member, http.MethodGet, "/api/volunteer/signup?status=confirmed&upcoming=true", nil))
	if signups := decodeBody(t, confirmed)["signups"].([]interface{}); len(signups) != 1 {
		t.Fatalf("expected 1 confirmed signup, got %d", len(signups))
	}
}
