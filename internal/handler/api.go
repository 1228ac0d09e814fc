package handler

import (
	"time"

	"github.com/shepherd/internal/cache"
	"github.com/shepherd/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db           *gorm.DB
	members      *service.MemberService
	engagement   *service.EngagementService
	achievements *service.AchievementService
	volunteers   *service.VolunteerService
	leads        *service.LeadService
	system       *service.SystemSettingService
	jobs         *service.NotificationJobService
	cache        cache.Store
	jwtSecret    []byte

	hasDispatcher bool
}

// Options 汇总构造 API 时的可选依赖。
type Options struct {
	// Cache 用于统计缓存与幂等键，nil 时使用进程内存。
	Cache cache.Store
	// Location 为计算"今天"的业务时区。
	Location *time.Location
	// JWTSecret 用于校验托管认证服务签发的 access token。
	JWTSecret string
	// LeadScoringAI 为 true 时线索评分优先调用 AI。
	LeadScoringAI  bool
	AIProvider     string
	OpenAIAPIKey   string
	DeepSeekAPIKey string
	// OpenAIModel 与 DeepSeekModel 为空时使用评分默认模型。
	OpenAIModel   string
	DeepSeekModel string
	// Dispatcher 为后台手动触发通知任务使用的分发器，可为 nil。
	Dispatcher service.Dispatcher
	// Clock 覆盖当前时间来源，主要用于测试。
	Clock func() time.Time
}

// NewAPI constructs a handler set with shared services.
func NewAPI(db *gorm.DB, opts Options) *API {
	store := opts.Cache
	if store == nil {
		store = cache.NewMemoryStore()
	}

	systemService := service.NewSystemSettingService(db)
	systemService.SetDefaults(opts.AIProvider, opts.OpenAIAPIKey, opts.DeepSeekAPIKey)

	engagement := service.NewEngagementService(db)
	engagement.SetCache(store)
	engagement.SetLocation(opts.Location)
	engagement.SetClock(opts.Clock)

	volunteers := service.NewVolunteerService(db)
	volunteers.SetClock(opts.Clock)

	scorer := service.NewAILeadScorer(systemService, opts.LeadScoringAI)
	scorer.SetModels(opts.OpenAIModel, opts.DeepSeekModel)
	leads := service.NewLeadService(db, scorer)
	leads.SetClock(opts.Clock)

	jobs := service.NewNotificationJobService(db, opts.Dispatcher)
	jobs.SetLocation(opts.Location)
	jobs.SetClock(opts.Clock)

	return &API{
		db:           db,
		members:      service.NewMemberService(db),
		engagement:   engagement,
		achievements: service.NewAchievementService(db),
		volunteers:   volunteers,
		leads:        leads,
		system:       systemService,
		jobs:         jobs,
		cache:        store,
		jwtSecret:    []byte(opts.JWTSecret),

		hasDispatcher: opts.Dispatcher != nil,
	}
}

// DB exposes the underlying gorm instance.
func (a *API) DB() *gorm.DB {
	return a.db
}

// Cache 返回共享的缓存存储。
func (a *API) Cache() cache.Store {
	return a.cache
}
