package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shepherd/internal/db"
	"gorm.io/gorm"
)

const testJWTSecret = "handler-test-secret"

var testDBSeq atomic.Int64

// testNow 固定在未来的某个上午，便于构造"未开始"的时段。
var testNow = time.Date(2030, 3, 14, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*API, *gorm.DB, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handler-%d-%d?mode=memory&cache=shared", time.Now().UnixNano(), testDBSeq.Add(1))
	gdb, err := db.Open(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(db.Models()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	api := NewAPI(gdb, Options{
		Location:  time.UTC,
		JWTSecret: testJWTSecret,
		Clock:     func() time.Time { return testNow },
	})

	return api, gdb, func() { sqlDB.Close() }
}

// newTestEngine 组装与线上一致的会员与后台路由，测试不依赖 router 包。
func newTestEngine(api *API) *gin.Engine {
	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-session-secret"))))

	r.POST("/api/auth/session", api.CreateMemberSession)
	r.DELETE("/api/auth/session", api.DeleteMemberSession)

	member := r.Group("/api")
	member.Use(api.MemberAuthRequired())
	member.GET("/member/profile", api.GetMemberProfile)
	member.POST("/member/activity", api.Idempotency(), api.LogMemberActivity)
	member.GET("/member/activity", api.GetMemberActivity)
	member.GET("/member/achievements", api.ListMemberAchievements)
	member.GET("/member/achievements/next", api.GetNextAchievement)
	member.POST("/member/achievements/:id/celebrate", api.CelebrateAchievement)
	member.GET("/volunteer/shifts", api.ListUpcomingShifts)
	member.POST("/volunteer/signup", api.Idempotency(), api.CreateVolunteerSignup)
	member.DELETE("/volunteer/signup", api.CancelVolunteerSignup)
	member.GET("/volunteer/signup", api.ListVolunteerSignups)

	r.POST("/admin/api/login", api.AdminLogin)
	r.POST("/admin/api/logout", api.AdminLogout)
	admin := r.Group("/admin/api")
	admin.Use(AuthRequired())
	admin.GET("/settings", api.GetSystemSettings)
	admin.PUT("/settings", api.UpdateSystemSettings)
	admin.POST("/achievements", api.CreateAchievement)
	admin.GET("/achievements", api.ListAchievements)
	admin.POST("/volunteer/shifts", api.CreateShift)
	admin.GET("/volunteer/shifts", api.ListShifts)
	admin.POST("/leads", api.CreateLead)
	admin.GET("/leads", api.ListLeads)
	admin.POST("/leads/:id/score", api.ScoreLead)
	admin.POST("/devotionals", api.PublishDevotional)
	admin.POST("/jobs/:name", api.RunNotificationJob)
	return r
}

func createTestMember(t *testing.T, gdb *gorm.DB, firstName string) db.Member {
	t.Helper()
	member := db.Member{
		AuthUserID: uuid.NewString(),
		FirstName:  firstName,
		Email:      fmt.Sprintf("%s-%d@example.com", firstName, testDBSeq.Add(1)),
	}
	if err := gdb.Create(&member).Error; err != nil {
		t.Fatalf("failed to create member: %v", err)
	}
	return member
}

func createTestShift(t *testing.T, gdb *gorm.DB, slots int) db.VolunteerShift {
	t.Helper()
	shift := db.VolunteerShift{
		Title:          "Greeter",
		Ministry:       "Hospitality",
		StartsAt:       testNow.Add(48 * time.Hour),
		EndsAt:         testNow.Add(50 * time.Hour),
		SlotsAvailable: slots,
	}
	if err := gdb.Create(&shift).Error; err != nil {
		t.Fatalf("failed to create shift: %v", err)
	}
	return shift
}

func signTestToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newJSONRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("failed to encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// memberRequest 构造携带会员 Bearer token 的请求。
func memberRequest(t *testing.T, member db.Member, method, target string, payload interface{}) *http.Request {
	t.Helper()
	req := newJSONRequest(t, method, target, payload)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, member.AuthUserID))
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

// adminCookies 创建管理员并登录，返回会话 cookie。
func adminCookies(t *testing.T, r http.Handler, gdb *gorm.DB) []*http.Cookie {
	t.Helper()
	if _, err := db.EnsureUser(gdb, "root", "s3cret-pass"); err != nil {
		t.Fatalf("failed to ensure admin: %v", err)
	}
	w := serve(r, newJSONRequest(t, http.MethodPost, "/admin/api/login", map[string]string{
		"username": "root",
		"password": "s3cret-pass",
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("admin login failed: %d %s", w.Code, w.Body.String())
	}
	return w.Result().Cookies()
}

func withCookies(req *http.Request, cookies []*http.Cookie) *http.Request {
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	return req
}

func uintString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
