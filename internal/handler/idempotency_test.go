package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shepherd/internal/db"
	"github.com/shepherd/internal/logging"
)

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	api, gdb, cleanup := setupTestDB(t)
	defer cleanup()
	r := newTestEngine(api)
	member := createTestMember(t, gdb, "Ada")
	shift := createTestShift(t, gdb, 5)

	send := func() (int, string, string) {
		req := memberRequest(t, member, http.MethodPost, "/api/volunteer/signup", map[string]interface{}{"shift_id": shift.ID})
		req.Header.Set(IdempotencyKeyHeader, "signup-1")
		w := serve(r, req)
		return w.Code, w.Body.String(), w.Header().Get(IdempotentReplayHeader)
	}

	status, body, replay := send()
	if status != http.StatusCreated || replay != "" {
		t.Fatalf("expected fresh 201, got %d replay=%q", status, replay)
	}

	status2, body2, replay2 := send()
	if status2 != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", status2)
	}
	if replay2 != "true" {
		t.Fatalf("expected replay header, got %q", replay2)
	}
	if body2 != body {
		t.Fatalf("expected identical body, got %s vs %s", body2, body)
	}

	var stored db.VolunteerShift
	gdb.First(&stored, shift.ID)
	if stored.SlotsFilled != 1 {
		t.Fatalf("replay must not claim another slot, slots_filled=%d", stored.SlotsFilled)
	}
}

func TestIdempotencyPendingKeyConflicts(t *testing.T) {
	api, gdb, cleanup := setupTestDB(t)
	defer cleanup()
	r := newTestEngine(api)
	member := createTestMember(t, gdb, "Ada")

	key := fmt.Sprintf("idempotency:member:%d:%s:%s:%s", member.ID, http.MethodPost, "/api/member/activity", "in-flight")
	marker, _ := json.Marshal(idempotentResponse{Pending: true})
	if err := api.Cache().Set(context.Background(), key, marker, idempotencyPendingTTL); err != nil {
		t.Fatalf("failed to seed marker: %v", err)
	}

	req := memberRequest(t, member, http.MethodPost, "/api/member/activity", map[string]string{"activity_type": "login"})
	req.Header.Set(IdempotencyKeyHeader, "in-flight")
	w := serve(r, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	var count int64
	gdb.Model(&db.DailyActivityLog{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no activity recorded, got %d", count)
	}
}

func TestIdempotencyKeysAreScopedPerMember(t *testing.T) {
	api, gdb, cleanup := setupTestDB(t)
	defer cleanup()
	r := newTestEngine(api)
	first := createTestMember(t, gdb, "Ada")
	second := createTestMember(t, gdb, "Grace")

	for _, member := range []db.Member{first, second} {
		req := memberRequest(t, member, http.MethodPost, "/api/member/activity", map[string]string{"activity_type": "login"})
		req.Header.Set(IdempotencyKeyHeader, "shared-key")
		w := serve(r, req)
		if w.Header().Get(IdempotentReplayHeader) != "" {
			t.Fatalf("member %d must not receive another member's replay", member.ID)
		}
	}

	var count int64
	gdb.Model(&db.DailyActivityLog{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 activity rows, got %d", count)
	}
}

func TestIdempotencyWithoutHeaderIsPassThrough(t *testing.T) {
	api, gdb, cleanup := setupTestDB(t)
	defer cleanup()
	r := newTestEngine(api)
	member := createTestMember(t, gdb, "Ada")

	for i := 0; i < 2; i++ {
		w := serve(r, memberRequest(t, member, http.MethodPost, "/api/member/activity", map[string]string{"activity_type": "checkin"}))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}

	var log db.DailyActivityLog
	gdb.Where("member_id = ?", member.ID).First(&log)
	if log.ActivityCount != 2 || log.PointsEarned != 10 {
		t.Fatalf("unexpected log: %+v", log)
	}
}

func TestIdempotencyReleasesKeyWhenHandlerPanics(t *testing.T) {
	api, _, cleanup := setupTestDB(t)
	defer cleanup()

	calls := 0
	r := gin.New()
	r.Use(logging.Recovery())
	r.POST("/flaky", api.Idempotency(), func(c *gin.Context) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		c.JSON(http.StatusCreated, gin.H{"success": true})
	})

	send := func() int {
		req := newJSONRequest(t, http.MethodPost, "/flaky", map[string]string{})
		req.Header.Set(IdempotencyKeyHeader, "retry-after-panic")
		return serve(r, req).Code
	}

	if code := send(); code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from recovered panic, got %d", code)
	}
	if code := send(); code != http.StatusCreated {
		t.Fatalf("expected retry to run the handler again, got %d", code)
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, got %d", calls)
	}
}
