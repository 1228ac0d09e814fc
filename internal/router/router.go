package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/shepherd/internal/handler"
	"github.com/shepherd/internal/logging"
)

// Options 描述路由层需要的配置。
type Options struct {
	SessionSecret      string
	AllowedOrigins     []string
	RateLimitPerMinute int
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(logging.GinLogger(), logging.Recovery())
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	// 配置会话中间件
	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 3600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("shepherd_session", store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})
	r.GET("/healthz", api.HealthCheck)

	limiter := handler.NewRateLimiter(opts.RateLimitPerMinute)

	// 会员接口
	public := r.Group("/api")
	public.Use(limiter.Middleware())
	{
		public.POST("/auth/session", api.CreateMemberSession)
		public.DELETE("/auth/session", api.DeleteMemberSession)

		member := public.Group("")
		member.Use(api.MemberAuthRequired())
		{
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
		}
	}

	// 后台管理路由
	admin := r.Group("/admin/api")
	{
		admin.POST("/login", api.AdminLogin)
		admin.POST("/logout", api.AdminLogout)

		// 需要认证的后台路由
		auth := admin.Group("")
		auth.Use(handler.AuthRequired())
		{
			auth.GET("/settings", api.GetSystemSettings)
			auth.PUT("/settings", api.UpdateSystemSettings)
			auth.POST("/settings/ai/test", api.TestAIConnection)

			auth.GET("/achievements", api.ListAchievements)
			auth.POST("/achievements", api.CreateAchievement)

			auth.GET("/volunteer/shifts", api.ListShifts)
			auth.POST("/volunteer/shifts", api.CreateShift)

			auth.GET("/leads", api.ListLeads)
			auth.POST("/leads", api.CreateLead)
			auth.POST("/leads/:id/score", api.ScoreLead)

			auth.POST("/devotionals", api.PublishDevotional)
			auth.POST("/jobs/:name", api.RunNotificationJob)
		}
	}

	return r
}

// corsConfig 通配时只返回字面量 *，不允许携带凭证；只有明确列出的来源才允许 cookie 跨域。
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Idempotency-Key", logging.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", "Idempotent-Replay", logging.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}
